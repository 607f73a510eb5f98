package trackers

import (
	ts "github.com/samuelfneumann/anchorppo/timestep"
)

// Return tracks and saves the episodic return in an experiment. When
// an environment returns a TimeStep, this Tracker will extract the
// reward and accumulate the return for each episode in the experiment.
//
// Note: An episode must finish for this Tracker to save its data. A
// First TimeStep starts a new episode, so an episode cut short by an
// implicit reset, for example when the morphology of the environment
// changes, is discarded.
type Return struct {
	currentReturn  float64
	episodeReturns []float64
	morphologies   []string
	filename       string
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn(filename string) *Return {
	return &Return{filename: filename}
}

// Track tracks the rewards seen on a timestep. By calling this method
// on every timestep, the Tracker will store all rewards seen in the
// episode, and save the cumulative reward for that episode as the
// episodic return.
func (r *Return) Track(step ts.TimeStep) {
	if step.First() {
		r.currentReturn = 0
		return
	}

	r.currentReturn += step.Reward
	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.morphologies = append(r.morphologies, step.Info.Morphology)
		r.currentReturn = 0
	}
}

// Episodes returns the number of finished episodes
func (r *Return) Episodes() int {
	return len(r.episodeReturns)
}

// Returns returns the returns of the finished episodes from episode
// start onwards
func (r *Return) Returns(start int) []float64 {
	if start >= len(r.episodeReturns) {
		return nil
	}
	return append([]float64(nil), r.episodeReturns[start:]...)
}

// Morphology returns the morphology of the environment at the end of
// the finished episode i
func (r *Return) Morphology(i int) string {
	return r.morphologies[i]
}

// Save saves the data tracked by the Return Tracker to disk.
func (r *Return) Save() error {
	return save(r.filename, r.episodeReturns)
}
