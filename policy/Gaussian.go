package policy

import (
	"fmt"
	"math"
)

// StdOffset is added to the standard deviation predicted by the network
// to keep it away from 0
const StdOffset float64 = 1e-3

// Gaussian is a diagonal Gaussian distribution over actions
type Gaussian struct {
	Mean []float64
	Std  []float64
}

// Dims returns the dimensionality of the distribution
func (g Gaussian) Dims() int {
	return len(g.Mean)
}

// LogProb returns the log density of action
func (g Gaussian) LogProb(action []float64) float64 {
	if len(action) != g.Dims() {
		panic(fmt.Sprintf("logProb: invalid action dimensions \n\twant(%v) "+
			"\n\thave(%v)", g.Dims(), len(action)))
	}

	var logProb float64
	for i := range action {
		z := (action[i] - g.Mean[i]) / g.Std[i]
		logProb += -0.5*z*z - math.Log(g.Std[i]) - 0.5*math.Log(2*math.Pi)
	}
	return logProb
}

// Entropy returns the differential entropy of the distribution
func (g Gaussian) Entropy() float64 {
	var entropy float64
	for _, std := range g.Std {
		entropy += 0.5 + 0.5*math.Log(2*math.Pi) + math.Log(std)
	}
	return entropy
}

// String implements the fmt.Stringer interface
func (g Gaussian) String() string {
	return fmt.Sprintf("N(μ=%.4f, σ=%.4f)", g.Mean, g.Std)
}

// KL returns KL(p ‖ q)
func KL(p, q Gaussian) float64 {
	mustMatch(p, q)

	var kl float64
	for i := range p.Mean {
		diff := p.Mean[i] - q.Mean[i]
		kl += math.Log(q.Std[i]) - math.Log(p.Std[i]) +
			(p.Std[i]*p.Std[i]+diff*diff)/(2*q.Std[i]*q.Std[i]) - 0.5
	}
	return kl
}

// L2 returns the squared Euclidean distance between the parameters
// (μ, log σ) of p and q
func L2(p, q Gaussian) float64 {
	mustMatch(p, q)

	var dist float64
	for i := range p.Mean {
		meanDiff := p.Mean[i] - q.Mean[i]
		logStdDiff := math.Log(p.Std[i]) - math.Log(q.Std[i])
		dist += meanDiff*meanDiff + logStdDiff*logStdDiff
	}
	return dist
}

func mustMatch(p, q Gaussian) {
	if p.Dims() != q.Dims() {
		panic(fmt.Sprintf("distributions have different dimensions "+
			"\n\twant(%v) \n\thave(%v)", p.Dims(), q.Dims()))
	}
}

// split splits flattened batches of means and standard deviations into
// one Gaussian per row
func split(means, stds []float64, dims int) []Gaussian {
	batch := len(means) / dims
	dists := make([]Gaussian, batch)
	for i := 0; i < batch; i++ {
		dists[i] = Gaussian{
			Mean: append([]float64(nil), means[i*dims:(i+1)*dims]...),
			Std:  append([]float64(nil), stds[i*dims:(i+1)*dims]...),
		}
	}
	return dists
}
