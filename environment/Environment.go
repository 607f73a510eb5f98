// Package environment outlines the interfaces and structs needed to
// implement concrete environments whose simulated body can be changed
// while training.
package environment

import (
	"errors"

	ts "github.com/samuelfneumann/anchorppo/timestep"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidMorphology is returned when an environment is asked to use
// a morphology it does not know about.
var ErrInvalidMorphology = errors.New("invalid morphology")

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes end. If the episode should end, End
// modifies the argument TimeStep so that it is the last in the episode.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Environment implements a simulated environment which an agent
// interacts with.
type Environment interface {
	// Reset begins a new episode and returns its first TimeStep
	Reset() (ts.TimeStep, error)

	// Step takes an action in the environment, returning the next
	// TimeStep and whether it is the last in the episode.
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)

	CurrentTimeStep() ts.TimeStep

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec

	Close() error
}

// Morphable is an Environment whose simulated body can be swapped for
// another named body configuration.
//
// SetMorphology is destructive and cannot be undone, the previous body
// is released. The new morphology is in effect for every following call
// to Step and Reset. If the backend cannot change the body while
// keeping the current episode alive, SetMorphology begins a new episode
// itself: CurrentTimeStep will then be a First TimeStep whose Info has
// ImplicitReset set. If id is unknown, an error wrapping
// ErrInvalidMorphology is returned and the current body is kept.
type Morphable interface {
	Environment
	SetMorphology(id string) error
	Morphology() string
}
