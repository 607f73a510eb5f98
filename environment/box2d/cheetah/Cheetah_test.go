package cheetah

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/anchorppo/environment"
	ts "github.com/samuelfneumann/anchorppo/timestep"
	"gonum.org/v1/gonum/mat"
)

func newTestCheetah(t *testing.T, c Config) *Cheetah {
	t.Helper()
	ch, step, err := New(Vanilla, c, 1)
	if err != nil {
		t.Fatalf("could not create cheetah: %v", err)
	}
	if !step.First() {
		t.Fatalf("first step has type %v", step.StepType)
	}
	return ch
}

func TestStepObservations(t *testing.T) {
	ch := newTestCheetah(t, Config{EpisodeLength: 1000, Discount: 0.99})
	defer ch.Close()

	if l := ch.CurrentTimeStep().Observation.Len(); l != ObservationDims {
		t.Fatalf("observation length: want(%v) have(%v)", ObservationDims, l)
	}

	action := mat.NewVecDense(ActionDims, []float64{1, -1, 0.5, -0.5, 0.2, 0})
	for i := 0; i < 20; i++ {
		step, last, err := ch.Step(action)
		if err != nil {
			t.Fatalf("step %v: %v", i, err)
		}
		if last {
			t.Fatalf("episode ended early at step %v", i)
		}
		if step.Number != i+1 {
			t.Errorf("step number: want(%v) have(%v)", i+1, step.Number)
		}
		for j := 0; j < step.Observation.Len(); j++ {
			if v := step.Observation.AtVec(j); math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite observation %v at step %v", j, i)
			}
		}
		if step.Info.Morphology != Vanilla {
			t.Errorf("info morphology: want(%v) have(%v)", Vanilla,
				step.Info.Morphology)
		}
	}
}

func TestEpisodeTimeout(t *testing.T) {
	ch := newTestCheetah(t, Config{EpisodeLength: 5, Discount: 0.99})
	defer ch.Close()

	action := mat.NewVecDense(ActionDims, nil)
	var step ts.TimeStep
	var last bool
	var err error
	for i := 0; i < 5; i++ {
		step, last, err = ch.Step(action)
		if err != nil {
			t.Fatal(err)
		}
	}
	if !last || !step.TimeoutEnd() {
		t.Errorf("want timeout at step 5, have %v", step)
	}
}

func TestSetMorphology(t *testing.T) {
	ch := newTestCheetah(t, Config{EpisodeLength: 1000, Discount: 0.99})
	defer ch.Close()

	action := mat.NewVecDense(ActionDims, nil)
	for i := 0; i < 3; i++ {
		if _, _, err := ch.Step(action); err != nil {
			t.Fatal(err)
		}
	}

	if err := ch.SetMorphology(BigLeg); err != nil {
		t.Fatalf("could not set morphology: %v", err)
	}
	if ch.Morphology() != BigLeg {
		t.Errorf("morphology: want(%v) have(%v)", BigLeg, ch.Morphology())
	}

	step := ch.CurrentTimeStep()
	if !step.First() || !step.Info.ImplicitReset {
		t.Errorf("morphology swap should report an implicit reset, have %v",
			step)
	}

	// Longer back leg lifts the torso
	back, _ := BigLegMorphology().legLength()
	if h := step.Observation.AtVec(heightIndex); h < back {
		t.Errorf("torso height %v below back leg length %v", h, back)
	}

	if _, _, err := ch.Step(action); err != nil {
		t.Errorf("could not step after swap: %v", err)
	}

	if s, _ := ch.Reset(); s.Info.ImplicitReset {
		t.Errorf("explicit reset reported as implicit")
	}
}

func TestInvalidMorphology(t *testing.T) {
	ch := newTestCheetah(t, Config{EpisodeLength: 1000, Discount: 0.99})
	defer ch.Close()

	err := ch.SetMorphology("nope")
	if !errors.Is(err, environment.ErrInvalidMorphology) {
		t.Fatalf("want ErrInvalidMorphology, have %v", err)
	}
	if ch.Morphology() != Vanilla {
		t.Errorf("failed swap changed morphology to %v", ch.Morphology())
	}

	if _, _, err := New("nope", Config{}, 1); !errors.Is(err,
		environment.ErrInvalidMorphology) {
		t.Errorf("want ErrInvalidMorphology from New, have %v", err)
	}
}

func TestLoadMorphologyFromDir(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`{
		"Torso": {"Length": 1.0, "Radius": 0.05, "Density": 50},
		"Back": [
			{"Length": 0.3, "Radius": 0.05, "Density": 50, "Lower": -0.5, "Upper": 1.0, "MaxTorque": 100},
			{"Length": 0.3, "Radius": 0.05, "Density": 50, "Lower": -0.5, "Upper": 0.5, "MaxTorque": 80},
			{"Length": 0.2, "Radius": 0.05, "Density": 50, "Lower": -0.4, "Upper": 0.7, "MaxTorque": 50}
		],
		"Front": [
			{"Length": 0.3, "Radius": 0.05, "Density": 50, "Lower": -1.0, "Upper": 0.7, "MaxTorque": 100},
			{"Length": 0.2, "Radius": 0.05, "Density": 50, "Lower": -1.2, "Upper": 0.8, "MaxTorque": 50},
			{"Length": 0.1, "Radius": 0.05, "Density": 50, "Lower": -0.5, "Upper": 0.5, "MaxTorque": 20}
		],
		"Friction": 0.5
	}`)
	if err := os.WriteFile(filepath.Join(dir, "stubby.json"), data,
		0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadMorphology(dir, "stubby")
	if err != nil {
		t.Fatalf("could not load morphology: %v", err)
	}
	if m.Name != "stubby" || m.Front[2].Length != 0.1 {
		t.Errorf("unexpected morphology %+v", m)
	}

	bad := []byte(`{"Torso": {"Length": -1}}`)
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), bad,
		0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMorphology(dir, "bad"); !errors.Is(err,
		environment.ErrInvalidMorphology) {
		t.Errorf("want ErrInvalidMorphology for invalid file, have %v", err)
	}
}

func TestRender(t *testing.T) {
	ch := newTestCheetah(t, Config{EpisodeLength: 1000, Discount: 0.99})
	defer ch.Close()

	filename := filepath.Join(t.TempDir(), "cheetah.png")
	if err := ch.Render(filename); err != nil {
		t.Fatalf("could not render: %v", err)
	}
	if _, err := os.Stat(filename); err != nil {
		t.Errorf("rendered file missing: %v", err)
	}
}
