package policy

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/network"
)

// Architecture describes the hidden layers of a Network. The actor is
// a tree MLP with a shared root network and two leaf networks, the
// first predicting the mean and the second the log standard deviation
// of the policy. The critic is a separate MLP reading the same input.
//
// Each leaf and the critic end with a linear layer that is added
// automatically.
type Architecture struct {
	RootHiddenSizes []int
	RootBiases      []bool
	RootActivations []*network.Activation

	LeafHiddenSizes [][]int
	LeafBiases      [][]bool
	LeafActivations [][]*network.Activation

	ValueHiddenSizes []int
	ValueBiases      []bool
	ValueActivations []*network.Activation
}

// DefaultArchitecture returns two tanh layers of 64 units for both the
// actor and the critic, with linear leaves
func DefaultArchitecture() Architecture {
	return Architecture{
		RootHiddenSizes: []int{64, 64},
		RootBiases:      []bool{true, true},
		RootActivations: []*network.Activation{network.TanH(),
			network.TanH()},

		LeafHiddenSizes: [][]int{{}, {}},
		LeafBiases:      [][]bool{{}, {}},
		LeafActivations: [][]*network.Activation{{}, {}},

		ValueHiddenSizes: []int{64, 64},
		ValueBiases:      []bool{true, true},
		ValueActivations: []*network.Activation{network.TanH(),
			network.TanH()},
	}
}

// Validate returns an error if the Architecture cannot be built
func (a Architecture) Validate() error {
	if len(a.RootHiddenSizes) == 0 {
		return fmt.Errorf("validate: actor root network must have at " +
			"least one hidden layer")
	}
	if len(a.RootHiddenSizes) != len(a.RootBiases) ||
		len(a.RootHiddenSizes) != len(a.RootActivations) {
		return fmt.Errorf("validate: root network has %v layers, %v biases, "+
			"and %v activations", len(a.RootHiddenSizes), len(a.RootBiases),
			len(a.RootActivations))
	}

	if len(a.LeafHiddenSizes) != 2 || len(a.LeafBiases) != 2 ||
		len(a.LeafActivations) != 2 {
		return fmt.Errorf("validate: gaussian policy requires 2 leaf " +
			"networks only")
	}
	for i := range a.LeafHiddenSizes {
		if len(a.LeafHiddenSizes[i]) != len(a.LeafBiases[i]) ||
			len(a.LeafHiddenSizes[i]) != len(a.LeafActivations[i]) {
			return fmt.Errorf("validate: leaf network %v has %v layers, %v "+
				"biases, and %v activations", i, len(a.LeafHiddenSizes[i]),
				len(a.LeafBiases[i]), len(a.LeafActivations[i]))
		}
	}

	if len(a.ValueHiddenSizes) != len(a.ValueBiases) ||
		len(a.ValueHiddenSizes) != len(a.ValueActivations) {
		return fmt.Errorf("validate: value network has %v layers, %v "+
			"biases, and %v activations", len(a.ValueHiddenSizes),
			len(a.ValueBiases), len(a.ValueActivations))
	}

	return nil
}
