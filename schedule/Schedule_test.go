package schedule

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samuelfneumann/anchorppo/anchor"
	"github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/policy"
	G "gorgonia.org/gorgonia"
)

// switcher records morphology switches
type switcher struct {
	morphology string
	switches   []int
	timestep   int
	known      map[string]bool
}

func (s *switcher) SetMorphology(id string) error {
	if s.known != nil && !s.known[id] {
		return fmt.Errorf("setMorphology: %w %q",
			environment.ErrInvalidMorphology, id)
	}
	s.morphology = id
	s.switches = append(s.switches, s.timestep)
	return nil
}

func TestValidate(t *testing.T) {
	tests := map[string][]Entry{
		"empty":         {},
		"nonzero start": {{10, "vanilla"}},
		"unsorted":      {{0, "vanilla"}, {20, "bigleg"}, {10, "vanilla"}},
		"duplicate":     {{0, "vanilla"}, {0, "bigleg"}},
		"no morphology": {{0, "vanilla"}, {10, ""}},
	}
	for name, entries := range tests {
		if _, err := New(entries); err == nil {
			t.Errorf("%v: want error", name)
		}
	}

	if _, err := New([]Entry{{0, "vanilla"}, {5, "bigleg"}}); err != nil {
		t.Errorf("valid schedule: %v", err)
	}
}

func TestTwoTaskSchedule(t *testing.T) {
	const (
		threshold = 10_000_000
		total     = 20_000_000
		horizon   = 512
	)

	s, err := New([]Entry{{0, "vanilla"}, {threshold, "bigleg"}})
	if err != nil {
		t.Fatal(err)
	}

	arch := policy.Architecture{
		RootHiddenSizes:  []int{4},
		RootBiases:       []bool{true},
		RootActivations:  []*network.Activation{network.TanH()},
		LeafHiddenSizes:  [][]int{{}, {}},
		LeafBiases:       [][]bool{{}, {}},
		LeafActivations:  [][]*network.Activation{{}, {}},
		ValueHiddenSizes: []int{},
		ValueBiases:      []bool{},
		ValueActivations: []*network.Activation{},
	}
	net, err := policy.NewNetwork(2, 1, 1, arch, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	weights := net.Weights()

	schedule, err := anchor.NewConstant(0.1)
	if err != nil {
		t.Fatal(err)
	}
	m, err := anchor.NewManager(anchor.Config{
		Distance: policy.KLDivergence,
		Schedule: schedule,
	})
	if err != nil {
		t.Fatal(err)
	}

	env := &switcher{morphology: s.Initial().Morphology}
	var refreshes []int
	for timestep := 0; timestep < total; timestep += horizon {
		env.timestep = timestep
		refresh := func() error {
			refreshes = append(refreshes, timestep)
			return m.Refresh(net, timestep)
		}
		if _, err := s.Update(timestep, env, refresh); err != nil {
			t.Fatal(err)
		}
	}

	if len(env.switches) != 1 || len(refreshes) != 1 || m.Refreshes() != 1 {
		t.Fatalf("want one switch and one refresh, have %v and %v",
			env.switches, refreshes)
	}
	if at := env.switches[0]; at < threshold || at >= threshold+horizon {
		t.Errorf("switch at %v, want within one horizon of %v", at, threshold)
	}
	if refreshes[0] != env.switches[0] {
		t.Errorf("refresh at %v but switch at %v", refreshes[0],
			env.switches[0])
	}
	if env.morphology != "bigleg" || !s.Exhausted() || s.TaskIndex() != 1 {
		t.Errorf("unexpected final state: morphology %v, task %v",
			env.morphology, s.TaskIndex())
	}
	if !net.Weights().Equal(weights) {
		t.Errorf("task switch changed the network parameters")
	}
}

func TestOneSwitchPerUpdate(t *testing.T) {
	s, err := New([]Entry{{0, "a"}, {10, "b"}, {20, "c"}})
	if err != nil {
		t.Fatal(err)
	}
	env := &switcher{}

	// Both thresholds have passed, but only one switch happens per call
	for i, want := range []string{"b", "c"} {
		switched, err := s.Update(100, env, nil)
		if err != nil || !switched {
			t.Fatalf("update %v: want switch, have (%v, %v)", i, switched, err)
		}
		if env.morphology != want {
			t.Errorf("morphology: want(%v) have(%v)", want, env.morphology)
		}
	}

	switched, err := s.Update(1000, env, nil)
	if err != nil || switched {
		t.Errorf("exhausted schedule switched: (%v, %v)", switched, err)
	}
}

func TestUpdateErrors(t *testing.T) {
	s, err := New([]Entry{{0, "vanilla"}, {10, "nope"}})
	if err != nil {
		t.Fatal(err)
	}
	env := &switcher{known: map[string]bool{"vanilla": true}}

	refreshed := false
	_, err = s.Update(10, env, func() error {
		refreshed = true
		return nil
	})
	if !errors.Is(err, environment.ErrInvalidMorphology) {
		t.Errorf("want ErrInvalidMorphology, have %v", err)
	}
	if refreshed || s.TaskIndex() != 0 {
		t.Errorf("failed switch refreshed or advanced the schedule")
	}

	env.known["nope"] = true
	errRefresh := errors.New("refresh failed")
	if _, err := s.Update(10, env, func() error {
		return errRefresh
	}); !errors.Is(err, errRefresh) {
		t.Errorf("want refresh error, have %v", err)
	}
	if s.TaskIndex() != 0 {
		t.Errorf("failed refresh advanced the schedule")
	}
	if env.morphology != "vanilla" {
		t.Errorf("failed refresh left env on %v", env.morphology)
	}

	// The switch back can fail too
	env.known["vanilla"] = false
	if _, err := s.Update(10, env, func() error {
		return errRefresh
	}); !errors.Is(err, errRefresh) || env.morphology != "nope" {
		t.Errorf("want refresh error with env on nope, have %v on %v", err,
			env.morphology)
	}
}

func TestRestore(t *testing.T) {
	s, err := New([]Entry{{0, "a"}, {10, "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(1); err != nil {
		t.Fatal(err)
	}
	if !s.Exhausted() || s.Task().Morphology != "b" {
		t.Errorf("restore did not set the task")
	}
	if err := s.Restore(2); err == nil {
		t.Errorf("want error restoring out of range task")
	}
}
