package cheetah

import (
	"math"

	"github.com/samuelfneumann/anchorppo/environment"
	ts "github.com/samuelfneumann/anchorppo/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// Run is the task of running forward as fast as possible while using
// as little control effort as possible.
//
// Starting states sampled by the task are velocity perturbations: the
// torso linear velocity (x, y) followed by the angular velocity of
// the torso and of each leg segment.
type Run struct {
	environment.Starter
	enders []environment.Ender

	forwardWeight float64
	ctrlWeight    float64
}

// NewRun returns a new Run task. Episodes are cut off after
// episodeLength steps. If flipLimit > 0, episodes also end when the
// torso angle leaves [-flipLimit, flipLimit].
func NewRun(episodeLength int, flipLimit, noise float64,
	seed uint64) (*Run, error) {
	bounds := make([]r1.Interval, startDims)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -noise, Max: noise}
	}

	// Terminal ends are checked before timeouts
	var enders []environment.Ender
	if flipLimit > 0 {
		flip, err := environment.NewIntervalLimit(
			[]r1.Interval{{Min: -flipLimit, Max: flipLimit}},
			[]int{angleIndex},
			ts.TerminalStateReached,
		)
		if err != nil {
			return nil, err
		}
		enders = append(enders, flip)
	}
	enders = append(enders, environment.NewStepLimit(episodeLength))

	return &Run{
		Starter:       environment.NewUniformStarter(bounds, seed),
		enders:        enders,
		forwardWeight: ForwardRewardWeight,
		ctrlWeight:    CtrlCostWeight,
	}, nil
}

// GetReward returns the reward for moving the torso from xBefore to
// xAfter over dt seconds using action
func (r *Run) GetReward(xBefore, xAfter, dt float64,
	action mat.Vector) float64 {
	forward := r.forwardWeight * (xAfter - xBefore) / dt

	ctrl := 0.0
	for i := 0; i < action.Len(); i++ {
		ctrl += math.Pow(action.AtVec(i), 2)
	}

	return forward - r.ctrlWeight*ctrl
}

// End determines whether the episode should end
func (r *Run) End(t *ts.TimeStep) bool {
	for _, ender := range r.enders {
		if ender.End(t) {
			return true
		}
	}
	return false
}
