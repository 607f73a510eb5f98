package rollout

import (
	"testing"
)

func fill(t *testing.T, r *Rollout, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f := float64(i)
		err := r.Add(Transition{
			Observation: []float64{f, -f},
			Action:      []float64{10 * f},
			LogProb:     -f,
			Reward:      f,
			Done:        i%2 == 1,
			Value:       2 * f,
		})
		if err != nil {
			t.Fatalf("could not add transition %v: %v", i, err)
		}
	}
}

func TestAdd(t *testing.T) {
	r, err := New(2, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	fill(t, r, 3)

	if !r.Full() || r.Len() != 3 {
		t.Fatalf("rollout should be full, have length %v", r.Len())
	}
	if err := r.Add(Transition{Observation: []float64{0, 0},
		Action: []float64{0}}); err == nil {
		t.Errorf("want error adding to a full rollout")
	}

	tr := r.At(2)
	if tr.Observation[1] != -2 || tr.Action[0] != 20 || tr.Value != 4 ||
		tr.Done {
		t.Errorf("unexpected transition %+v", tr)
	}

	// Transitions are copies
	tr.Observation[0] = 100
	if r.At(2).Observation[0] != 2 {
		t.Errorf("mutating a returned transition changed the rollout")
	}
	obs := r.Observations()
	obs[0] = 100
	if r.Observations()[0] != 0 {
		t.Errorf("mutating returned observations changed the rollout")
	}
}

func TestAddInvalid(t *testing.T) {
	r, err := New(2, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range []Transition{
		{Observation: []float64{1}, Action: []float64{1}},
		{Observation: []float64{1, 2}, Action: []float64{1, 2}},
	} {
		if err := r.Add(tr); err == nil {
			t.Errorf("want error adding %+v", tr)
		}
	}
	if r.Len() != 0 {
		t.Errorf("invalid transitions were added")
	}

	if _, err := New(0, 1, 1); err == nil {
		t.Errorf("want error for zero observation dimensions")
	}
}

func TestGather(t *testing.T) {
	r, err := New(2, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	fill(t, r, 4)

	m, err := r.Gather([]int{3, 1})
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Fatalf("length: want(2) have(%v)", m.Len())
	}

	wantObs := []float64{3, -3, 1, -1}
	for i := range wantObs {
		if m.Observations[i] != wantObs[i] {
			t.Errorf("observations: want(%v) have(%v)", wantObs,
				m.Observations)
			break
		}
	}
	if m.Actions[0] != 30 || m.LogProbs[1] != -1 || m.Values[0] != 6 {
		t.Errorf("unexpected minibatch %+v", m)
	}

	if g := Gather([]float64{5, 6, 7}, []int{2, 0}); g[0] != 7 || g[1] != 5 {
		t.Errorf("gather: want([7 5]) have(%v)", g)
	}

	if _, err := r.Gather([]int{4}); err == nil {
		t.Errorf("want error gathering out of range index")
	}
}
