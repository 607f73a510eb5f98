package ppo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Losses holds the terms of the PPO-DPA loss
type Losses struct {
	Policy  float64 // Clipped surrogate, negated
	Value   float64
	Entropy float64 // Negative mean entropy
	Anchor  float64 // Mean distance from the anchor policy
	Total   float64
}

// LossInputs holds per-transition quantities of a minibatch from which
// the loss is computed
type LossInputs struct {
	// Under the current parameters
	LogProbs []float64
	Values   []float64
	Entropy  []float64

	// Distance from the anchor policy in each state, or nil if there
	// is no anchor
	Divergence []float64

	// Recorded when the rollout was collected
	OldLogProbs []float64
	OldValues   []float64

	Advantages []float64
	Returns    []float64
}

// Loss computes the PPO-DPA loss numerically:
//
//	L = L_clip + c_v L_value + c_e L_entropy + w L_anchor
//
// The loss optimized by PPO.Update is built identically on a
// computational graph.
func Loss(c Config, in LossInputs, anchorWeight float64) (Losses, error) {
	n := len(in.LogProbs)
	if n == 0 {
		return Losses{}, fmt.Errorf("loss: no transitions")
	}
	for _, s := range [][]float64{in.Values, in.Entropy, in.OldLogProbs,
		in.OldValues, in.Advantages, in.Returns} {
		if len(s) != n {
			return Losses{}, fmt.Errorf("loss: inconsistent lengths"+
				"\n\twant(%v) \n\thave(%v)", n, len(s))
		}
	}
	if in.Divergence != nil && len(in.Divergence) != n {
		return Losses{}, fmt.Errorf("loss: invalid divergence length"+
			"\n\twant(%v) \n\thave(%v)", n, len(in.Divergence))
	}

	var l Losses
	sqErr := make([]float64, n)
	negEntropy := make([]float64, n)
	surrogate := make([]float64, n)
	for i := 0; i < n; i++ {
		ratio := math.Exp(in.LogProbs[i] - in.OldLogProbs[i])
		clipped := math.Max(1-c.ClipEpsilon, math.Min(ratio, 1+c.ClipEpsilon))
		surrogate[i] = math.Min(ratio*in.Advantages[i],
			clipped*in.Advantages[i])

		pred := in.Values[i]
		if c.ValueClip > 0 {
			diff := pred - in.OldValues[i]
			pred = in.OldValues[i] +
				math.Max(-c.ValueClip, math.Min(diff, c.ValueClip))
		}
		sqErr[i] = (in.Returns[i] - pred) * (in.Returns[i] - pred)
		negEntropy[i] = -in.Entropy[i]
	}

	l.Policy = -stat.Mean(surrogate, nil)
	l.Value = stat.Mean(sqErr, nil)
	l.Entropy = stat.Mean(negEntropy, nil)
	if in.Divergence != nil {
		l.Anchor = stat.Mean(in.Divergence, nil)
	}

	l.Total = l.Policy + c.ValueCoef*l.Value + c.EntropyCoef*l.Entropy +
		anchorWeight*l.Anchor
	return l, nil
}

// approxKL estimates KL(old ‖ new) from probability ratios as
// E[(r - 1) - log r], which is non-negative and unbiased
func approxKL(ratios []float64) float64 {
	var kl float64
	for _, r := range ratios {
		kl += (r - 1) - math.Log(r)
	}
	return kl / float64(len(ratios))
}

// clipFraction returns the fraction of ratios outside [1-ε, 1+ε]
func clipFraction(ratios []float64, epsilon float64) float64 {
	var clipped float64
	for _, r := range ratios {
		if math.Abs(r-1) > epsilon {
			clipped++
		}
	}
	return clipped / float64(len(ratios))
}

// explainedVariance returns 1 - Var[returns - values] / Var[returns],
// which is NaN if the returns have no variance
func explainedVariance(values, returns []float64) float64 {
	varReturns := stat.Variance(returns, nil)
	if varReturns == 0 {
		return math.NaN()
	}

	residuals := make([]float64, len(returns))
	for i := range returns {
		residuals[i] = returns[i] - values[i]
	}
	return 1 - stat.Variance(residuals, nil)/varReturns
}
