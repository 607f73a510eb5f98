//go:build gym
// +build gym

// Package gym provides morphable environments backed by OpenAI Gym
// through the GoGym bindings, found at
// https://github.com/samuelfneumann/GoGym.
//
// Each morphology id maps to a Gym environment id. A morphology switch
// re-creates the Gym environment and always begins a new episode.
package gym

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/environment/envconfig"
	ts "github.com/samuelfneumann/anchorppo/timestep"
	"github.com/samuelfneumann/gogym"
	"gonum.org/v1/gonum/mat"
)

func init() {
	envconfig.Register(envconfig.Gym, create)
}

// create creates a GymEnv. The options of c map morphology ids to Gym
// environment ids. Morphologies without an option are used as Gym ids
// unchanged.
func create(c envconfig.Config, seed uint64) (environment.Morphable, error) {
	g, _, err := New(c.Options, c.Morphology, c.EpisodeLength, c.Discount,
		seed)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GymEnv implements access to an OpenAI Gym environment using GoGym
type GymEnv struct {
	gogym.Environment

	ids        map[string]string
	morphology string
	seed       uint64
	discount   float64
	stepLimit  environment.Ender // nil if Gym determines timeouts

	currentStep ts.TimeStep
}

// New returns a new GymEnv for morphology id along with the first
// TimeStep. If episodeLength > 0, episodes are cut off after
// episodeLength steps.
func New(ids map[string]string, id string, episodeLength int,
	discount float64, seed uint64) (*GymEnv, ts.TimeStep, error) {
	g := &GymEnv{
		ids:      ids,
		seed:     seed,
		discount: discount,
	}
	if episodeLength > 0 {
		g.stepLimit = environment.NewStepLimit(episodeLength)
	}

	if err := g.make(id); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %w", err)
	}

	step, err := g.Reset()
	if err != nil {
		g.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return g, step, nil
}

// make replaces the Gym environment with the one of morphology id
func (g *GymEnv) make(id string) error {
	name, ok := g.ids[id]
	if !ok {
		name = id
	}

	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return fmt.Errorf("make: %w %q: could not create gym environment "+
			"%v: %v", environment.ErrInvalidMorphology, id, name, err)
	}
	goGymEnv.Seed(int(g.seed))

	if g.Environment != nil {
		g.Environment.Close()
	}
	g.Environment = goGymEnv
	g.morphology = id
	return nil
}

// Morphology returns the current morphology id
func (g *GymEnv) Morphology() string {
	return g.morphology
}

// SetMorphology re-creates the Gym environment for morphology id and
// begins a new episode
func (g *GymEnv) SetMorphology(id string) error {
	if err := g.make(id); err != nil {
		return fmt.Errorf("setMorphology: %w", err)
	}
	if _, err := g.Reset(); err != nil {
		return fmt.Errorf("setMorphology: %v", err)
	}
	g.currentStep.Info.ImplicitReset = true
	return nil
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %v", err)
	}

	t := ts.New(ts.Mid, reward, g.discount, obs, g.currentStep.Number+1)
	t.Info.Morphology = g.morphology
	if done {
		t.SetEnd(ts.TerminalStateReached)
	} else if g.stepLimit != nil {
		done = g.stepLimit.End(&t)
	}
	g.currentStep = t

	return t, done, nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %v", err)
	}

	t := ts.New(ts.First, 0, g.discount, obs, 0)
	t.Info.Morphology = g.morphology
	g.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() environment.Spec {
	low, high := bounds(g.ObservationSpace())
	return environment.NewSpec(mat.NewVecDense(low.Len(), nil),
		environment.Observation, low, high, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (g *GymEnv) ActionSpec() environment.Spec {
	low, high := bounds(g.ActionSpace())
	return environment.NewSpec(mat.NewVecDense(low.Len(), nil),
		environment.Action, low, high, environment.Continuous)
}

// space is a GoGym space
type space interface {
	Low() []*mat.VecDense
	High() []*mat.VecDense
}

// bounds returns the bounds of a continuous GoGym space
func bounds(s space) (low, high *mat.VecDense) {
	if _, ok := s.(*gogym.BoxSpace); !ok {
		panic(fmt.Sprintf("bounds: invalid space type %T, package gym "+
			"supports only GoGym's BoxSpace", s))
	}
	return s.Low()[0], s.High()[0]
}

// DiscountSpec returns the discount specification of the environment
func (g *GymEnv) DiscountSpec() environment.Spec {
	return environment.NewDiscountSpec(g.discount)
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}
