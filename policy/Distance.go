package policy

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/utils/op"
	G "gorgonia.org/gorgonia"
)

// Distance determines how far the current policy is from a reference
// policy in a given state. The anchoring penalty is the batch mean of
// the Distance, so the Distance also determines the units of the
// penalty.
type Distance string

const (
	// KLDivergence is KL(reference ‖ current), summed over action
	// dimensions
	KLDivergence Distance = "kl"

	// ParameterL2 is the squared distance between (μ, log σ) of the
	// reference and current policies, summed over action dimensions
	ParameterL2 Distance = "l2"
)

// Validate returns an error if d is not a known Distance
func (d Distance) Validate() error {
	switch d {
	case KLDivergence, ParameterL2:
		return nil
	}
	return fmt.Errorf("validate: unknown distance %q", string(d))
}

// Between returns the distance from the reference distribution ref to
// the distribution current
func (d Distance) Between(ref, current Gaussian) float64 {
	switch d {
	case ParameterL2:
		return L2(ref, current)
	default:
		return KL(ref, current)
	}
}

// node adds the distance between each row of the reference and current
// batches of distributions to the graph of the current distribution
func (d Distance) node(refMean, refStd, mean, std *G.Node) (*G.Node, error) {
	switch d {
	case KLDivergence:
		return op.GaussianKL(refMean, refStd, mean, std), nil
	case ParameterL2:
		return op.GaussianL2(refMean, refStd, mean, std), nil
	}
	return nil, d.Validate()
}
