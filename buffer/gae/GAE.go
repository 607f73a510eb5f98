// Package gae implements generalized advantage estimation, GAE(λ),
// following https://arxiv.org/abs/1506.02438
package gae

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/buffer/rollout"
	"github.com/samuelfneumann/anchorppo/utils/matutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Batch holds the advantage and return estimates of each transition of
// a rollout
type Batch struct {
	Advantages []float64
	Returns    []float64
}

// Len returns the number of transitions in the Batch
func (b *Batch) Len() int {
	return len(b.Advantages)
}

// Estimate computes GAE(λ) advantages and λ-returns for each transition
// of r using the backward recursion
//
//	δ_t = r_t + ℽ V(s_{t+1}) (1 - d_t) - V(s_t)
//	A_t = δ_t + ℽλ A_{t+1} (1 - d_t)
//
// The value of the state after the final transition is lastValue,
// unless the final transition ends an episode, in which case it is 0.
// Returns are A_t + V(s_t).
func Estimate(r *rollout.Rollout, lastValue, gamma, lambda float64) (*Batch,
	error) {
	if r.Len() == 0 {
		return nil, fmt.Errorf("estimate: empty rollout")
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("estimate: discount must be in [0, 1], "+
			"have(%v)", gamma)
	}
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("estimate: λ must be in [0, 1], have(%v)",
			lambda)
	}

	rewards := r.Rewards()
	values := r.Values()
	dones := r.Dones()

	advantages := make([]float64, r.Len())
	returns := make([]float64, r.Len())

	var nextAdvantage float64
	nextValue := lastValue
	for t := r.Len() - 1; t >= 0; t-- {
		nonTerminal := 1.0
		if dones[t] {
			nonTerminal = 0.0
		}

		delta := rewards[t] + gamma*nextValue*nonTerminal - values[t]
		advantages[t] = delta + gamma*lambda*nextAdvantage*nonTerminal
		returns[t] = advantages[t] + values[t]

		nextAdvantage = advantages[t]
		nextValue = values[t]
	}

	return &Batch{Advantages: advantages, Returns: returns}, nil
}

// Normalize standardizes the advantages of the Batch in place to
// mean 0 and (sample) standard deviation 1
func (b *Batch) Normalize() {
	adv := mat.NewVecDense(len(b.Advantages), b.Advantages)
	ones := matutils.VecOnes(adv.Len())
	mean := stat.Mean(b.Advantages, nil)
	std := stat.StdDev(b.Advantages, nil) + 1e-8

	adv.AddScaledVec(adv, -mean, ones)
	adv.ScaleVec(1/std, adv)
}
