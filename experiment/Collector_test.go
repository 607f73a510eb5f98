package experiment

import (
	"math"
	"testing"

	env "github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/environment/box2d/cheetah"
	"github.com/samuelfneumann/anchorppo/initwfn"
	"github.com/samuelfneumann/anchorppo/policy"
	ts "github.com/samuelfneumann/anchorppo/timestep"
	"gonum.org/v1/gonum/mat"
)

// recordingEnv records the actions taken in an environment
type recordingEnv struct {
	env.Environment
	actions [][]float64
}

func (r *recordingEnv) Step(action *mat.VecDense) (ts.TimeStep, bool,
	error) {
	r.actions = append(r.actions, mat.Col(nil, 0, action))
	return r.Environment.Step(action)
}

// stepRecorder records every non-first TimeStep
type stepRecorder struct {
	steps []ts.TimeStep
}

func (s *stepRecorder) Track(step ts.TimeStep) {
	if !step.First() {
		s.steps = append(s.steps, step)
	}
}

func (s *stepRecorder) Save() error { return nil }

func TestCollect(t *testing.T) {
	const horizon = 12
	const gamma = 0.9

	ch, _, err := cheetah.New(cheetah.Vanilla, cheetah.Config{
		EpisodeLength: 5,
		Discount:      0.99,
	}, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()
	e := &recordingEnv{Environment: ch}

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	ac, err := policy.NewActorCritic(cheetah.ObservationDims,
		cheetah.ActionDims, smallArchitecture(), init.InitWFn(), 5)
	if err != nil {
		t.Fatal(err)
	}
	defer ac.Close()

	recorder := &stepRecorder{}
	c, err := NewCollector(e, ac, gamma, recorder)
	if err != nil {
		t.Fatal(err)
	}

	ctx := NewContext()
	r, lastValue, err := c.Collect(ctx, horizon)
	if err != nil {
		t.Fatalf("could not collect: %v", err)
	}

	if r.Len() != horizon || ctx.Timestep != horizon {
		t.Fatalf("collected %v steps, context at %v, want %v", r.Len(),
			ctx.Timestep, horizon)
	}
	if len(recorder.steps) != horizon || len(e.actions) != horizon {
		t.Fatalf("tracked %v steps and %v actions, want %v",
			len(recorder.steps), len(e.actions), horizon)
	}

	outside := false
	for i := 0; i < horizon; i++ {
		tr := r.At(i)
		step := recorder.steps[i]

		// Taken actions are the clipped stored actions
		for j, a := range tr.Action {
			want := math.Max(cheetah.MinAction, math.Min(cheetah.MaxAction, a))
			if e.actions[i][j] != want {
				t.Errorf("step %v action %v: want(%v) have(%v)", i, j, want,
					e.actions[i][j])
			}
			outside = outside || a != want
		}

		if tr.Done != step.Last() {
			t.Errorf("step %v: done %v for step type %v", i, tr.Done,
				step.StepType)
		}

		want := step.Reward
		if step.TimeoutEnd() {
			v, err := ac.Value(step.ObservationSlice())
			if err != nil {
				t.Fatal(err)
			}
			want += gamma * v
		}
		if math.Abs(tr.Reward-want) > 1e-9 {
			t.Errorf("step %v reward: want(%v) have(%v)", i, want, tr.Reward)
		}
	}
	if !outside {
		t.Errorf("no sampled action was outside of the action bounds")
	}

	// Episodes of length 5 end at steps 5 and 10
	if !r.At(4).Done || !r.At(9).Done || r.At(11).Done {
		t.Errorf("unexpected episode ends %v", r.Dones())
	}

	// The rollout ends mid-episode, two steps after a reset
	if cur := c.step; cur.Number != 2 {
		t.Errorf("current step number: want(2) have(%v)", cur.Number)
	}
	v, err := ac.Value(c.step.ObservationSlice())
	if err != nil {
		t.Fatal(err)
	}
	if v != lastValue {
		t.Errorf("last value: want(%v) have(%v)", v, lastValue)
	}
}
