package envconfig

import (
	"errors"
	"testing"

	env "github.com/samuelfneumann/anchorppo/environment"
)

func TestCreateBox2D(t *testing.T) {
	c := Config{
		Backend:       Box2D,
		Morphology:    "vanilla",
		EpisodeLength: 100,
		Discount:      0.99,
		Options:       map[string]string{"FlipLimit": "1.5"},
	}

	e, err := c.Create(10)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}
	defer e.Close()

	if e.Morphology() != "vanilla" {
		t.Errorf("morphology: want(vanilla) have(%v)", e.Morphology())
	}
}

func TestCreateErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		target error
	}{
		{
			name:   "unknown backend",
			config: Config{Backend: "bullet", Morphology: "vanilla"},
			target: ErrUnknownBackend,
		},
		{
			name:   "unknown morphology",
			config: Config{Backend: Box2D, Morphology: "wings"},
			target: env.ErrInvalidMorphology,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := test.config.Create(1)
			if !errors.Is(err, test.target) {
				t.Errorf("want %v, have %v", test.target, err)
			}
		})
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("registering a backend twice should panic")
		}
	}()
	Register(Box2D, createCheetah)
}
