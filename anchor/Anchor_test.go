package anchor

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"math"
	"testing"

	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/policy"
	G "gorgonia.org/gorgonia"
)

const (
	features   = 3
	actionDims = 2
)

var obs = []float64{
	0.1, 0.2, 0.3,
	-1.0, 0.5, 2.0,
	0.0, 0.0, 0.0,
	4.0, -3.0, 1.0,
}

func newNetwork(t *testing.T) *policy.Network {
	t.Helper()
	arch := policy.Architecture{
		RootHiddenSizes: []int{6},
		RootBiases:      []bool{true},
		RootActivations: []*network.Activation{network.TanH()},

		LeafHiddenSizes: [][]int{{}, {}},
		LeafBiases:      [][]bool{{}, {}},
		LeafActivations: [][]*network.Activation{{}, {}},

		ValueHiddenSizes: []int{6},
		ValueBiases:      []bool{true},
		ValueActivations: []*network.Activation{network.ReLU()},
	}
	net, err := policy.NewNetwork(features, actionDims, 1, arch,
		G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	return net
}

func newManager(t *testing.T, d policy.Distance) *Manager {
	t.Helper()
	schedule, err := NewConstant(0.1)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(Config{Distance: d, Schedule: schedule})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// current returns the distributions of net in each observation
func current(t *testing.T, net *policy.Network) []policy.Gaussian {
	t.Helper()
	eval, err := policy.NewEvaluator(net, len(obs)/features)
	if err != nil {
		t.Fatal(err)
	}
	defer eval.Close()

	dists, err := eval.Distribution(obs)
	if err != nil {
		t.Fatal(err)
	}
	return dists
}

func perturb(t *testing.T, net *policy.Network) {
	t.Helper()
	weights := net.Weights()
	for i := range weights {
		for j := range weights[i].Data {
			weights[i].Data[j] += 0.05 * float64(j%3+1)
		}
	}
	if err := net.SetWeights(weights); err != nil {
		t.Fatal(err)
	}
}

func TestNoAnchor(t *testing.T) {
	net := newNetwork(t)
	m := newManager(t, policy.KLDivergence)

	if m.Active() || m.Snapshot() != nil || m.Refreshes() != 0 {
		t.Fatalf("new manager should have no anchor")
	}
	if w := m.Weight(1000); w != 0 {
		t.Errorf("weight without anchor: want(0) have(%v)", w)
	}

	penalty, err := m.Penalty(obs, current(t, net))
	if err != nil || penalty != 0 {
		t.Errorf("penalty without anchor: want(0, nil) have(%v, %v)",
			penalty, err)
	}

	if _, _, ok, err := m.Reference(obs); ok || err != nil {
		t.Errorf("reference without anchor: want(false, nil) have(%v, %v)",
			ok, err)
	}
}

func TestPenalty(t *testing.T) {
	for _, d := range []policy.Distance{policy.KLDivergence,
		policy.ParameterL2} {
		t.Run(string(d), func(t *testing.T) {
			net := newNetwork(t)
			m := newManager(t, d)

			if err := m.Refresh(net, 500); err != nil {
				t.Fatal(err)
			}
			if !m.Active() || m.Refreshes() != 1 {
				t.Fatalf("refresh did not set the anchor")
			}

			penalty, err := m.Penalty(obs, current(t, net))
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(penalty) > 1e-12 || penalty < 0 {
				t.Errorf("penalty after refresh: want(0) have(%v)", penalty)
			}

			// Changing the network does not change the anchor
			before := m.Snapshot().Weights()
			perturb(t, net)
			if !before.Equal(m.Snapshot().Weights()) {
				t.Fatalf("snapshot changed with the network")
			}

			penalty, err = m.Penalty(obs, current(t, net))
			if err != nil {
				t.Fatal(err)
			}
			if penalty <= 0 {
				t.Errorf("penalty after update: want(> 0) have(%v)", penalty)
			}

			mean, std, ok, err := m.Reference(obs)
			if err != nil || !ok {
				t.Fatalf("could not get reference: %v", err)
			}
			if len(mean) != len(obs)/features*actionDims ||
				len(std) != len(mean) {
				t.Errorf("reference length: want(%v) have(%v, %v)",
					len(obs)/features*actionDims, len(mean), len(std))
			}
		})
	}
}

func TestRefreshReplaces(t *testing.T) {
	net := newNetwork(t)
	m := newManager(t, policy.KLDivergence)

	if err := m.Refresh(net, 10); err != nil {
		t.Fatal(err)
	}
	first := m.Snapshot()

	perturb(t, net)
	if err := m.Refresh(net, 20); err != nil {
		t.Fatal(err)
	}

	if m.Snapshot() == first || m.Refreshes() != 2 {
		t.Errorf("refresh did not replace the anchor")
	}
	if m.Snapshot().Timestep() != 20 {
		t.Errorf("anchor timestep: want(20) have(%v)",
			m.Snapshot().Timestep())
	}
	if !m.Snapshot().Weights().Equal(net.Weights()) {
		t.Errorf("anchor weights differ from the network")
	}
}

func TestRefreshWeights(t *testing.T) {
	net := newNetwork(t)
	m := newManager(t, policy.ParameterL2)
	if m.Source() != CurrentPolicy {
		t.Errorf("default source: want(%v) have(%v)", CurrentPolicy,
			m.Source())
	}

	stored := net.Weights()
	perturb(t, net)
	if err := m.RefreshWeights(net, stored, 5); err != nil {
		t.Fatal(err)
	}
	if !m.Snapshot().Weights().Equal(stored) {
		t.Errorf("anchor weights differ from the given weights")
	}
	if m.Snapshot().Weights().Equal(net.Weights()) {
		t.Errorf("anchor took the network weights")
	}

	if err := m.RefreshWeights(net, stored[1:], 6); err == nil {
		t.Errorf("want error for missing weights")
	}
	if m.Refreshes() != 1 || m.Snapshot().Timestep() != 5 {
		t.Errorf("failed refresh replaced the anchor")
	}
}

func TestRestore(t *testing.T) {
	net := newNetwork(t)
	m := newManager(t, policy.KLDivergence)
	if err := m.Refresh(net, 10); err != nil {
		t.Fatal(err)
	}

	snapshot, err := NewSnapshot(net, 30)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Restore(snapshot, 4); err != nil {
		t.Fatalf("could not restore: %v", err)
	}
	if m.Snapshot() != snapshot || m.Refreshes() != 4 {
		t.Errorf("restore did not set the anchor")
	}

	if err := m.Restore(nil, 0); err != nil || m.Active() {
		t.Errorf("restoring nil should remove the anchor, have %v", err)
	}
}

func TestSourceValidate(t *testing.T) {
	for _, s := range []Source{"", CurrentPolicy, LatestGoodPolicy} {
		if err := s.Validate(); err != nil {
			t.Errorf("%q: %v", s, err)
		}
	}
	if err := Source("oldest").Validate(); err == nil {
		t.Errorf("want error for unknown source")
	}
}

func TestSnapshotGob(t *testing.T) {
	net := newNetwork(t)
	snapshot, err := NewSnapshot(net, 1234)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		t.Fatalf("could not encode: %v", err)
	}
	var decoded Snapshot
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("could not decode: %v", err)
	}

	if decoded.Timestep() != 1234 {
		t.Errorf("timestep: want(1234) have(%v)", decoded.Timestep())
	}

	want, err := snapshot.Distribution(obs)
	if err != nil {
		t.Fatal(err)
	}
	have, err := decoded.Distribution(obs)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		for j := range want[i].Mean {
			if want[i].Mean[j] != have[i].Mean[j] ||
				want[i].Std[j] != have[i].Std[j] {
				t.Errorf("distribution %v: want(%v) have(%v)", i, want[i],
					have[i])
			}
		}
	}
}

func TestWeight(t *testing.T) {
	net := newNetwork(t)
	schedule, err := NewLinearDecay(1.0, 0.0, 100)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(Config{Distance: policy.KLDivergence,
		Schedule: schedule})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Refresh(net, 1000); err != nil {
		t.Fatal(err)
	}
	for timestep, want := range map[int]float64{1000: 1, 1050: 0.5,
		1100: 0, 5000: 0} {
		if w := m.Weight(timestep); math.Abs(w-want) > 1e-12 {
			t.Errorf("weight at %v: want(%v) have(%v)", timestep, want, w)
		}
	}
}

func TestSchedules(t *testing.T) {
	exp, err := NewExponentialDecay(1.0, 0.2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if w := exp.At(10); math.Abs(w-0.6) > 1e-12 {
		t.Errorf("exponential decay after one half life: want(0.6) have(%v)",
			w)
	}
	if w := exp.At(0); w != 1.0 {
		t.Errorf("exponential decay at 0: want(1) have(%v)", w)
	}

	if _, err := NewConstant(-1); err == nil {
		t.Errorf("want error for negative weight")
	}
	if _, err := NewExponentialDecay(1, 0, 0); err == nil {
		t.Errorf("want error for zero half life")
	}
	if _, err := NewLinearDecay(1, 0, -5); err == nil {
		t.Errorf("want error for negative duration")
	}
}

func TestScheduleJSON(t *testing.T) {
	data := []byte(`{"Type": "ExponentialDecay",
		"Config": {"Initial": 0.5, "Final": 0.1, "HalfLife": 1000}}`)

	var s WeightSchedule
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("could not unmarshal: %v", err)
	}
	if s.Type != ExponentialDecay || s.At(0) != 0.5 {
		t.Errorf("unexpected schedule %+v", s)
	}

	encoded, err := json.Marshal(&s)
	if err != nil {
		t.Fatal(err)
	}
	var again WeightSchedule
	if err := json.Unmarshal(encoded, &again); err != nil {
		t.Fatalf("could not unmarshal %s: %v", encoded, err)
	}
	if again.At(1000) != s.At(1000) {
		t.Errorf("schedule changed by marshalling")
	}

	for _, bad := range []string{
		`{"Type": "Cosine", "Config": {}}`,
		`{"Type": "Constant", "Config": {"Weight": -0.1}}`,
	} {
		if err := json.Unmarshal([]byte(bad), &s); err == nil {
			t.Errorf("want error unmarshalling %v", bad)
		}
	}
}
