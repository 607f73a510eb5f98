package experiment

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/buffer/rollout"
	env "github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/experiment/trackers"
	"github.com/samuelfneumann/anchorppo/policy"
	ts "github.com/samuelfneumann/anchorppo/timestep"
	"github.com/samuelfneumann/anchorppo/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// Collector collects fixed-length rollouts with a behaviour policy.
// Episodes are continued across calls to Collect, and the environment
// is reset whenever an episode ends.
type Collector struct {
	env   env.Environment
	ac    *policy.ActorCritic
	gamma float64

	low, high        mat.Vector // Action bounds
	obsDims, actDims int

	trackers []trackers.Tracker
	step     ts.TimeStep
}

// NewCollector returns a new Collector that selects actions in e with
// ac. Each TimeStep seen is passed to the trackers. Rewards of
// transitions cut off by a timeout are bootstrapped using discount
// gamma.
func NewCollector(e env.Environment, ac *policy.ActorCritic, gamma float64,
	t ...trackers.Tracker) (*Collector, error) {
	actionSpec := e.ActionSpec()
	obsDims := e.ObservationSpec().Shape.Len()
	actDims := actionSpec.Shape.Len()

	if net := ac.Network(); net.Features() != obsDims ||
		net.ActionDims() != actDims {
		return nil, fmt.Errorf("newCollector: policy does not match "+
			"environment\n\twant(%v, %v)\n\thave(%v, %v)", obsDims, actDims,
			net.Features(), net.ActionDims())
	}

	c := &Collector{
		env:      e,
		ac:       ac,
		gamma:    gamma,
		low:      actionSpec.LowerBound,
		high:     actionSpec.UpperBound,
		obsDims:  obsDims,
		actDims:  actDims,
		trackers: t,
	}
	c.Restart()
	return c, nil
}

// Restart continues collection from the current TimeStep of the
// environment. It must be called after the environment is changed
// outside of the Collector, for example by a morphology switch.
func (c *Collector) Restart() {
	c.step = c.env.CurrentTimeStep()
	if c.step.First() {
		c.track(c.step)
	}
}

// Collect takes horizon steps in the environment and returns the
// resulting rollout along with the estimated value of the state after
// the final transition. Each step increments ctx.Timestep.
//
// Sampled actions are clipped to the bounds of the action space before
// they are taken, but the rollout stores the unclipped actions so that
// their log probabilities are consistent with the policy.
func (c *Collector) Collect(ctx *Context, horizon int) (*rollout.Rollout,
	float64, error) {
	r, err := rollout.New(c.obsDims, c.actDims, horizon)
	if err != nil {
		return nil, 0, fmt.Errorf("collect: %v", err)
	}

	for !r.Full() {
		obs := c.step.ObservationSlice()
		action, logProb, value, err := c.ac.Act(obs)
		if err != nil {
			return nil, 0, fmt.Errorf("collect: %v", err)
		}

		clipped := mat.NewVecDense(len(action), nil)
		clipped.CopyVec(mat.NewVecDense(len(action), action))
		matutils.VecClipBounds(clipped, c.low, c.high)

		step, last, err := c.env.Step(clipped)
		if err != nil {
			return nil, 0, fmt.Errorf("collect: %v", err)
		}
		ctx.Timestep++
		c.track(step)

		reward := step.Reward
		if step.TimeoutEnd() {
			next, err := c.ac.Value(step.ObservationSlice())
			if err != nil {
				return nil, 0, fmt.Errorf("collect: could not bootstrap "+
					"timeout: %v", err)
			}
			reward += c.gamma * next
		}

		err = r.Add(rollout.Transition{
			Observation: obs,
			Action:      action,
			LogProb:     logProb,
			Reward:      reward,
			Done:        last,
			Value:       value,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("collect: %v", err)
		}

		c.step = step
		if last {
			if c.step, err = c.env.Reset(); err != nil {
				return nil, 0, fmt.Errorf("collect: could not reset: %v", err)
			}
			c.track(c.step)
		}
	}

	lastValue, err := c.ac.Value(c.step.ObservationSlice())
	if err != nil {
		return nil, 0, fmt.Errorf("collect: %v", err)
	}
	return r, lastValue, nil
}

// track passes step to each tracker
func (c *Collector) track(step ts.TimeStep) {
	for _, t := range c.trackers {
		t.Track(step)
	}
}
