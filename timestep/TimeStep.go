// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes how an episode ended
type EndType int

const (
	NoEnd EndType = iota
	TerminalStateReached
	Timeout
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "NoEnd"
	}
}

// Info holds auxiliary data an environment reports along with a
// TimeStep. ImplicitReset is true when the environment began a new
// episode on its own, for example after changing its morphology.
type Info struct {
	Morphology    string
	ImplicitReset bool
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	EndType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
	Info        Info
}

// New returns a new TimeStep. The EndType of the returned TimeStep is
// NoEnd.
func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{
		StepType:    t,
		EndType:     NoEnd,
		Reward:      r,
		Discount:    d,
		Observation: o,
		Number:      n,
	}
}

// First returns whether a TimeStep is the first in an environment
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

// TerminalEnd returns whether the episode ended by entering a terminal
// state
func (t TimeStep) TerminalEnd() bool {
	return t.Last() && t.EndType == TerminalStateReached
}

// TimeoutEnd returns whether the episode was cut off by a step limit
func (t TimeStep) TimeoutEnd() bool {
	return t.Last() && t.EndType == Timeout
}

// SetEnd marks the TimeStep as the last in an episode with the given
// EndType
func (t *TimeStep) SetEnd(e EndType) {
	t.StepType = Last
	t.EndType = e
}

// ObservationSlice returns a copy of the observation as a slice
func (t TimeStep) ObservationSlice() []float64 {
	if t.Observation == nil {
		return nil
	}
	obs := make([]float64, t.Observation.Len())
	for i := range obs {
		obs[i] = t.Observation.AtVec(i)
	}
	return obs
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  End: %v  |  Reward:  %.2f  |  " +
		"Discount: %.2f  |  Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.EndType, t.Reward, t.Discount,
		t.Number)
}
