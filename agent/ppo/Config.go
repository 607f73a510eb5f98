package ppo

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/initwfn"
	"github.com/samuelfneumann/anchorppo/policy"
	"github.com/samuelfneumann/anchorppo/solver"
)

// Config implements a configuration of a PPO agent
type Config struct {
	// Number of environment steps collected between updates
	Horizon int

	// Each update makes Epochs passes over the rollout, split into
	// Minibatches minibatches of Horizon / Minibatches transitions
	Epochs      int
	Minibatches int

	// Generalized Advantage Estimation
	Gamma  float64
	Lambda float64

	// ClipEpsilon bounds the probability ratio to [1-ε, 1+ε]. If
	// ValueClip > 0, the value prediction is bounded to within
	// ValueClip of the value predicted at collection time.
	ClipEpsilon float64
	ValueClip   float64

	EntropyCoef float64
	ValueCoef   float64

	// TargetKL stops an update early once the approximate KL
	// divergence from the behaviour policy exceeds 1.5 * TargetKL. If
	// TargetKL <= 0, updates always run for all epochs.
	TargetKL float64

	Solver       *solver.Solver
	InitWFn      *initwfn.InitWFn
	Architecture policy.Architecture

	// Distance from the anchor policy used for the anchoring penalty
	Distance policy.Distance
}

// DefaultConfig returns the default hyperparameters. Updates use
// minibatches of 64 transitions from a horizon of 512 steps.
func DefaultConfig() Config {
	s, err := solver.NewAdam(3e-4, 1e-8, 0.9, 0.999, 1, 0.5)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}

	return Config{
		Horizon:      512,
		Epochs:       10,
		Minibatches:  8,
		Gamma:        0.99,
		Lambda:       0.95,
		ClipEpsilon:  0.2,
		EntropyCoef:  0.0,
		ValueCoef:    0.5,
		Solver:       s,
		InitWFn:      init,
		Architecture: policy.DefaultArchitecture(),
		Distance:     policy.KLDivergence,
	}
}

// MinibatchSize returns the number of transitions in each minibatch
func (c Config) MinibatchSize() int {
	return c.Horizon / c.Minibatches
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("validate: horizon must be positive")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("validate: epochs must be positive")
	}
	if c.Minibatches <= 0 || c.Minibatches > c.Horizon {
		return fmt.Errorf("validate: minibatches must be in [1, horizon]"+
			"\n\twant(<= %v) \n\thave(%v)", c.Horizon, c.Minibatches)
	}
	if c.Horizon%c.Minibatches != 0 {
		return fmt.Errorf("validate: horizon (%v) must be divisible by "+
			"the number of minibatches (%v)", c.Horizon, c.Minibatches)
	}

	// Advantages are normalized by their standard deviation, which
	// needs at least two samples
	if c.MinibatchSize() < 2 {
		return fmt.Errorf("validate: minibatch size must be at least 2"+
			"\n\twant(>= 2) \n\thave(%v)", c.MinibatchSize())
	}

	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1]")
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: lambda must be in [0, 1]")
	}

	if c.ClipEpsilon <= 0 || c.ClipEpsilon >= 1 {
		return fmt.Errorf("validate: clip epsilon must be in (0, 1)")
	}
	if c.EntropyCoef < 0 || c.ValueCoef < 0 {
		return fmt.Errorf("validate: loss coefficients must be " +
			"non-negative")
	}

	if c.Solver == nil || c.Solver.Config == nil {
		return fmt.Errorf("validate: no solver")
	}
	if c.InitWFn == nil || c.InitWFn.Config == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if err := c.Architecture.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.Distance.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}

	return nil
}
