package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// TreeMLP is an MLP whose input is processed by a shared root network.
// The root's output feeds any number of leaf networks, each of which
// predicts its own output node:
//
//	              ╭─→ leaf 0 ─→ Prediction()[0]
//	input ─→ root ┼─→ leaf 1 ─→ Prediction()[1]
//	              ╰─→ ...
//
// Gaussian policies use one leaf for the mean and one for the log
// standard deviation, so that both share a state representation.
type TreeMLP struct {
	root   *multiHeadMLP
	leaves []*multiHeadMLP

	learnables G.Nodes
	model      []G.ValueGrad
}

// stack describes the hidden layers of one sub-network
type stack struct {
	sizes       []int
	biases      []bool
	activations []*Activation
}

func (s stack) validate(name string) error {
	if len(s.sizes) != len(s.activations) {
		return fmt.Errorf("%v: invalid number of activations"+
			"\n\twant(%d) \n\thave(%d)", name, len(s.sizes),
			len(s.activations))
	}
	if len(s.sizes) != len(s.biases) {
		return fmt.Errorf("%v: invalid number of biases"+
			"\n\twant(%d) \n\thave(%d)", name, len(s.sizes), len(s.biases))
	}
	for i, size := range s.sizes {
		if size <= 0 {
			return fmt.Errorf("%v: layer %v must have positive size, "+
				"have %v", name, i, size)
		}
	}
	return nil
}

// withLinear returns a copy of the stack with a final linear layer of
// outputs units and a bias
func (s stack) withLinear(outputs int) stack {
	return stack{
		sizes:  append(append([]int(nil), s.sizes...), outputs),
		biases: append(append([]bool(nil), s.biases...), true),
		activations: append(append([]*Activation(nil), s.activations...),
			Identity()),
	}
}

// NewTreeMLP returns a TreeMLP on g taking batch inputs of features
// features.
//
// Layer i of the root has rootHiddenSizes[i] units, a bias if
// rootBiases[i], and activation rootActivations[i]. The root needs at
// least one layer. There is one leaf per element of leafHiddenSizes,
// described in the same way by leafHiddenSizes[j], leafBiases[j], and
// leafActivations[j]. A linear layer with outputs units is appended to
// every leaf, so an empty leaf description gives a linear head:
//
//	leafHiddenSizes = [][]int{{}, {}} // two linear heads
func NewTreeMLP(features, batch, outputs int, g *G.ExprGraph,
	rootHiddenSizes []int, rootBiases []bool, rootActivations []*Activation,
	leafHiddenSizes [][]int, leafBiases [][]bool,
	leafActivations [][]*Activation, init G.InitWFn) (NeuralNet, error) {
	if len(rootHiddenSizes) == 0 {
		return nil, fmt.Errorf("newTreeMLP: root network must have at " +
			"least one hidden layer")
	}
	if outputs <= 0 {
		return nil, fmt.Errorf("newTreeMLP: leaves must have positive "+
			"outputs, have %v", outputs)
	}
	n := len(leafHiddenSizes)
	if n == 0 || len(leafBiases) != n || len(leafActivations) != n {
		return nil, fmt.Errorf("newTreeMLP: need at least one leaf with "+
			"sizes, biases and activations, have (%v, %v, %v)", n,
			len(leafBiases), len(leafActivations))
	}

	root, err := newMultiHeadMLPFromInput([]*G.Node{newInput(g, batch,
		features)}, rootHiddenSizes[len(rootHiddenSizes)-1], g,
		rootHiddenSizes, rootBiases, init, rootActivations, "Root", "", false)
	if err != nil {
		return nil, fmt.Errorf("newTreeMLP: root: %v", err)
	}

	t := &TreeMLP{root: root, leaves: make([]*multiHeadMLP, n)}
	for i := range t.leaves {
		t.leaves[i], err = newMultiHeadMLPFromInput(root.Prediction(),
			outputs, g, leafHiddenSizes[i], leafBiases[i], init,
			leafActivations[i], fmt.Sprintf("Leaf%d", i), "", true)
		if err != nil {
			return nil, fmt.Errorf("newTreeMLP: leaf %v: %v", i, err)
		}
	}
	return t, nil
}

func (t *TreeMLP) Input() *G.Node {
	return t.root.input
}

// Set sets the weights of the TreeMLP to be equal to the weights of
// another NeuralNet
func (t *TreeMLP) Set(source NeuralNet) error {
	return Set(t, source)
}

// SetInput sets the observations input to the root network
func (t *TreeMLP) SetInput(input []float64) error {
	return setInput(t.root.input, input)
}

// Outputs returns the number of outputs of each leaf
func (t *TreeMLP) Outputs() []int {
	outputs := make([]int, len(t.leaves))
	for i, leaf := range t.leaves {
		outputs[i] = leaf.numOutputs
	}
	return outputs
}

// OutputLayers returns the number of leaves
func (t *TreeMLP) OutputLayers() int {
	return len(t.leaves)
}

func (t *TreeMLP) Graph() *G.ExprGraph {
	return t.root.g
}

func (t *TreeMLP) Features() []int {
	return t.root.Features()
}

func (t *TreeMLP) BatchSize() int {
	return t.root.batchSize
}

func (t *TreeMLP) Clone() (NeuralNet, error) {
	return t.CloneWithBatch(t.BatchSize())
}

// CloneWithBatch clones the TreeMLP onto a new graph with a new input
// batch size. The weights of the clone are copies of those of t.
func (t *TreeMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	g := G.NewGraph()
	return t.cloneWithInputTo(-1, []*G.Node{newInput(g, batchSize,
		t.root.numInputs)}, g)
}

func (t *TreeMLP) cloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	input, err := joinInputs(axis, inputs, graph)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}

	root, err := t.root.cloneTo(graph, input)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: root: %v", err)
	}

	clone := &TreeMLP{root: root, leaves: make([]*multiHeadMLP,
		len(t.leaves))}
	for i, leaf := range t.leaves {
		if clone.leaves[i], err = leaf.cloneTo(graph,
			root.prediction); err != nil {
			return nil, fmt.Errorf("cloneWithInputTo: leaf %v: %v", i, err)
		}
	}
	return clone, nil
}

// Output returns the values predicted by each leaf in the last run of
// a VM on the graph
func (t *TreeMLP) Output() []G.Value {
	out := make([]G.Value, len(t.leaves))
	for i, leaf := range t.leaves {
		out[i] = leaf.predVal
	}
	return out
}

// Prediction returns the prediction node of each leaf
func (t *TreeMLP) Prediction() []*G.Node {
	pred := make([]*G.Node, len(t.leaves))
	for i, leaf := range t.leaves {
		pred[i] = leaf.prediction
	}
	return pred
}

func (t *TreeMLP) Model() []G.ValueGrad {
	if t.model == nil {
		t.model = valueGrads(t.Learnables())
	}
	return t.model
}

// Learnables returns the learnable nodes of the root network followed
// by those of each leaf network
func (t *TreeMLP) Learnables() G.Nodes {
	if t.learnables == nil {
		t.learnables = append(G.Nodes(nil), t.root.Learnables()...)
		for _, leaf := range t.leaves {
			t.learnables = append(t.learnables, leaf.Learnables()...)
		}
	}
	return t.learnables
}
