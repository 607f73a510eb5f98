// Package config implements loading and validation of experiment
// configuration files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/anchorppo/agent/ppo"
	"github.com/samuelfneumann/anchorppo/anchor"
	"github.com/samuelfneumann/anchorppo/environment/envconfig"
	"github.com/samuelfneumann/anchorppo/policy"
	"github.com/samuelfneumann/anchorppo/schedule"
)

// ErrConfiguration is returned when a configuration is missing or
// malformed
var ErrConfiguration = errors.New("configuration error")

// Checkpoint configures saving and resuming training state
type Checkpoint struct {
	Dir    string
	Every  int  // Iterations between checkpoints, 0 disables
	Resume bool // Resume from the newest checkpoint in Dir
}

// Config is the configuration of a single experiment
type Config struct {
	ExptID         string
	Seed           uint64
	TotalTimesteps int

	Environment envconfig.Config
	Schedule    []schedule.Entry
	Agent       ppo.Config
	Anchor      anchor.Config
	Checkpoint  Checkpoint

	// OutputDir holds the tracked episode data of the run
	OutputDir   string
	LogInterval int // Iterations between log lines
	ProgressBar bool

	// A policy is kept as a good policy if the mean return of the
	// episodes finished during an iteration is at least
	// GoodPolicyThreshold. The GoodPolicies most recent good policies
	// are kept.
	GoodPolicies        int
	GoodPolicyThreshold float64
}

// Default returns the default configuration: one morphology switch
// from vanilla to bigleg half way through 20 million timesteps
func Default() Config {
	weight, err := anchor.NewConstant(0.1)
	if err != nil {
		panic(fmt.Sprintf("default: %v", err))
	}

	return Config{
		Seed:           0,
		TotalTimesteps: 20_000_000,
		Environment: envconfig.Config{
			Backend:       envconfig.Box2D,
			Morphology:    "vanilla",
			EpisodeLength: 1000,
			Discount:      0.99,
		},
		Schedule: []schedule.Entry{
			{Threshold: 0, Morphology: "vanilla"},
			{Threshold: 10_000_000, Morphology: "bigleg"},
		},
		Agent: ppo.DefaultConfig(),
		Anchor: anchor.Config{
			Distance: policy.KLDivergence,
			Schedule: weight,
			Source:   anchor.CurrentPolicy,
		},
		Checkpoint: Checkpoint{
			Dir:   "checkpoints",
			Every: 100,
		},
		OutputDir:           "results",
		LogInterval:         1,
		GoodPolicies:        5,
		GoodPolicyThreshold: 1000,
	}
}

// Load loads the configuration of experiment exptID from the JSON file
// <dir>/<exptID>.json. Fields missing from the file keep their
// default values.
func Load(dir, exptID string) (Config, error) {
	filename := filepath.Join(dir, exptID+".json")
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("load: %w: %v", ErrConfiguration, err)
	}

	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("load: %v: %w", filename, err)
	}
	if c.ExptID == "" {
		c.ExptID = exptID
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("load: %v: %w", filename, err)
	}
	return c, nil
}

// Parse parses a JSON configuration on top of the default
// configuration and fills in the fields that are implied by others.
// The returned Config is not validated.
func Parse(data []byte) (Config, error) {
	c := Default()
	c.Agent.Distance = ""
	c.Environment.Morphology = ""
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse: %w: %v", ErrConfiguration, err)
	}

	if c.Agent.Distance == "" {
		c.Agent.Distance = c.Anchor.Distance
	}
	if len(c.Schedule) > 0 && c.Environment.Morphology == "" {
		c.Environment.Morphology = c.Schedule[0].Morphology
	}
	return c, nil
}

// Validate returns an error wrapping ErrConfiguration if the Config is
// invalid
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("validate: %w: %v", ErrConfiguration, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.ExptID == "" {
		return fmt.Errorf("no experiment id")
	}
	if c.TotalTimesteps <= 0 {
		return fmt.Errorf("total timesteps must be positive")
	}

	if err := c.Environment.Validate(); err != nil {
		return fmt.Errorf("environment: %v", err)
	}
	if err := schedule.Validate(c.Schedule); err != nil {
		return fmt.Errorf("schedule: %v", err)
	}
	if c.Environment.Morphology != c.Schedule[0].Morphology {
		return fmt.Errorf("initial morphology %q differs from the first "+
			"scheduled morphology %q", c.Environment.Morphology,
			c.Schedule[0].Morphology)
	}

	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %v", err)
	}
	if err := c.Anchor.Validate(); err != nil {
		return fmt.Errorf("anchor: %v", err)
	}
	if c.Agent.Distance != c.Anchor.Distance {
		return fmt.Errorf("agent distance %q differs from anchor distance %q",
			c.Agent.Distance, c.Anchor.Distance)
	}

	if c.Checkpoint.Every < 0 {
		return fmt.Errorf("checkpoint interval must be non-negative")
	}
	if (c.Checkpoint.Every > 0 || c.Checkpoint.Resume) &&
		c.Checkpoint.Dir == "" {
		return fmt.Errorf("no checkpoint directory")
	}
	if c.LogInterval < 0 || c.GoodPolicies < 0 {
		return fmt.Errorf("log interval and number of good policies must " +
			"be non-negative")
	}
	return nil
}
