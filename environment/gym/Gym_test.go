//go:build gym
// +build gym

package gym_test

import (
	"errors"
	"testing"

	"github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/environment/gym"
	"gonum.org/v1/gonum/mat"
)

func TestSetMorphology(t *testing.T) {
	ids := map[string]string{
		"vanilla": "HalfCheetah-v2",
		"short":   "Swimmer-v2",
	}
	env, step, err := gym.New(ids, "vanilla", 5, 0.99, 123)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}
	defer env.Close()

	if !step.First() || step.Info.Morphology != "vanilla" {
		t.Fatalf("unexpected first step %v", step)
	}

	size := env.ActionSpec().LowerBound.Len()
	var last bool
	for i := 0; i < 5; i++ {
		if step, last, err = env.Step(mat.NewVecDense(size, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if !last || !step.TimeoutEnd() {
		t.Errorf("want timeout after 5 steps, have %v", step)
	}

	if err := env.SetMorphology("short"); err != nil {
		t.Fatalf("could not switch: %v", err)
	}
	cur := env.CurrentTimeStep()
	if !cur.First() || !cur.Info.ImplicitReset {
		t.Errorf("switch should reset implicitly, have %v", cur)
	}

	if err := env.SetMorphology("NoSuchEnv-v0"); !errors.Is(err,
		environment.ErrInvalidMorphology) {
		t.Errorf("want ErrInvalidMorphology, have %v", err)
	}
	if env.Morphology() != "short" {
		t.Errorf("failed switch changed morphology to %v", env.Morphology())
	}
}
