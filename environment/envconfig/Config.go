// Package envconfig provides JSON serializable configurations of
// environments whose morphology can be changed while training, along
// with a registry of the simulator backends that can create them.
package envconfig

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	env "github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/environment/box2d/cheetah"
)

// ErrUnknownBackend is returned when a Config names a backend that has
// not been registered.
var ErrUnknownBackend = errors.New("unknown environment backend")

// Backend is the name of a simulator backend
type Backend string

// Backends available for configuration. The Box2D backend is always
// available, the others register themselves when built with the
// corresponding build tag.
const (
	Box2D  Backend = "box2d"
	MuJoCo Backend = "mujoco"
	Gym    Backend = "gym"
)

// Config implements a specific configuration of a morphable
// environment
type Config struct {
	Backend       Backend
	Morphology    string // Morphology of the first task
	EpisodeLength int
	Discount      float64

	// AssetDir holds the morphology descriptions of the backend, for
	// example MuJoCo XML files
	AssetDir string

	// Options are backend specific settings. The gym backend uses it
	// to map morphology ids to gym environment ids.
	Options map[string]string
}

// Maker creates an environment from a Config
type Maker func(c Config, seed uint64) (env.Morphable, error)

var (
	registry = map[Backend]Maker{}
	mu       sync.Mutex
)

func init() {
	Register(Box2D, createCheetah)
}

// Register registers a backend so that Configs naming it can be
// created. Register panics if the backend is registered twice.
func Register(b Backend, m Maker) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := registry[b]; ok {
		panic(fmt.Sprintf("register: backend %v already registered", b))
	}
	registry[b] = m
}

// Registered returns the names of all registered backends
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Validate returns an error if the Config is malformed
func (c Config) Validate() error {
	if c.Morphology == "" {
		return fmt.Errorf("validate: no initial morphology")
	}
	if c.EpisodeLength < 0 {
		return fmt.Errorf("validate: episode length must be non-negative")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1]")
	}

	mu.Lock()
	_, ok := registry[c.Backend]
	mu.Unlock()
	if !ok {
		return fmt.Errorf("validate: %w %q (registered: %v)",
			ErrUnknownBackend, c.Backend, Registered())
	}

	return nil
}

// Create returns the environment described by the Config
func (c Config) Create(seed uint64) (env.Morphable, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	mu.Lock()
	maker := registry[c.Backend]
	mu.Unlock()

	e, err := maker(c, seed)
	if err != nil {
		return nil, fmt.Errorf("create: could not create %v environment: %w",
			c.Backend, err)
	}
	return e, nil
}

// createCheetah creates the Box2D half cheetah. The FlipLimit option
// sets the torso angle beyond which episodes terminate.
func createCheetah(c Config, seed uint64) (env.Morphable, error) {
	var flipLimit float64
	if limit, ok := c.Options["FlipLimit"]; ok {
		var err error
		if flipLimit, err = strconv.ParseFloat(limit, 64); err != nil {
			return nil, fmt.Errorf("createCheetah: invalid FlipLimit %q: %v",
				limit, err)
		}
	}

	e, _, err := cheetah.New(c.Morphology, cheetah.Config{
		EpisodeLength: c.EpisodeLength,
		Discount:      c.Discount,
		AssetDir:      c.AssetDir,
		FlipLimit:     flipLimit,
	}, seed)
	if err != nil {
		return nil, err
	}
	return e, nil
}
