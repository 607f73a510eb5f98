package environment

import ts "github.com/samuelfneumann/anchorppo/timestep"

// StepLimit implements the Ender interface to end episodes at specific
// timestep limits
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode temrination. If the episode
// should be ended End() will modify the timestep so that it is the
// last in the episode with an EndType of timestep.Timeout.
func (s StepLimit) End(t *ts.TimeStep) bool {
	if s.episodeSteps > 0 && t.Number >= s.episodeSteps {
		t.SetEnd(ts.Timeout)
		return true
	}
	return false
}

// EpisodeSteps returns the number of steps after which an episode is
// cut off. Zero means no cutoff.
func (s StepLimit) EpisodeSteps() int {
	return s.episodeSteps
}
