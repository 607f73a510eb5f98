package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// multiHeadMLP is a stack of fully connected layers with a single
// prediction node of numOutputs columns. It is the building block of
// both the root and leaves of a TreeMLP and of standalone critics.
type multiHeadMLP struct {
	g          *G.ExprGraph
	layers     []Layer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	prefix string
	suffix string

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMultiHeadMLPFromInput adds an MLP to the graph of the given input
// nodes, which are concatenated along the feature dimension if there
// are more than one.
//
// The prefix and suffix are added to the names of all learnable nodes
// and must make these names unique within the graph. If addFinalLayer
// is true, a final linear layer with a bias unit and outputs units is
// added. Otherwise, the last hidden layer must have outputs units.
func NewMultiHeadMLPFromInput(inputs []*G.Node, outputs int,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix, suffix string,
	addFinalLayer bool) (NeuralNet, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: no input nodes")
	}
	net, err := newMultiHeadMLPFromInput(inputs, outputs, inputs[0].Graph(),
		hiddenSizes, biases, init, activations, prefix, suffix, addFinalLayer)
	if err != nil {
		return nil, err
	}
	return net, nil
}

func newMultiHeadMLPFromInput(inputs []*G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix, suffix string,
	addFinalLayer bool) (*multiHeadMLP, error) {
	layers := stack{sizes: hiddenSizes, biases: biases,
		activations: activations}
	if err := layers.validate("newMultiHeadMLP"); err != nil {
		return nil, err
	}

	input, err := joinInputs(1, inputs, g)
	if err != nil {
		return nil, fmt.Errorf("newMultiHeadMLP: %v", err)
	}

	if addFinalLayer {
		layers = layers.withLinear(outputs)
	} else if n := len(hiddenSizes); n == 0 || hiddenSizes[n-1] != outputs {
		return nil, fmt.Errorf("newMultiHeadMLP: final layer must have "+
			"the output size\n\twant(%v) \n\thave(%v)", outputs, hiddenSizes)
	}

	net := &multiHeadMLP{
		g:          g,
		input:      input,
		numOutputs: outputs,
		numInputs:  input.Shape()[1],
		batchSize:  input.Shape()[0],
		prefix:     prefix,
		suffix:     suffix,
	}
	net.layers = addfcLayers(g, layers.sizes, layers.biases,
		layers.activations, init, net.numInputs, prefix, suffix)

	if _, err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newMultiHeadMLP: could not compute forward "+
			"pass: %v", err)
	}
	return net, nil
}

// NewMultiHeadMLP returns an MLP on g which reads a new input node of
// batch observations with the given number of features. A final linear
// layer with outputs units and a bias is always added after the hidden
// layers.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	net, err := newMultiHeadMLPFromInput([]*G.Node{newInput(g, batch,
		features)}, outputs, g, hiddenSizes, biases, init, activations, "",
		"", true)
	if err != nil {
		return nil, err
	}
	return net, nil
}

// newInput adds a zeroed input matrix of batch rows to g
func newInput(g *G.ExprGraph, batch, features int) *G.Node {
	return G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))
}

// Graph returns the computational graph of the multiHeadMLP.
func (e *multiHeadMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones a multiHeadMLP
func (e *multiHeadMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones a multiHeadMLP onto a new graph with a new
// input batch size
func (e *multiHeadMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	g := G.NewGraph()
	clone, err := e.cloneTo(g, newInput(g, batchSize, e.numInputs))
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return clone, nil
}

func (e *multiHeadMLP) cloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	input, err := joinInputs(axis, inputs, graph)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}
	clone, err := e.cloneTo(graph, input)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}
	return clone, nil
}

// cloneTo copies the layers of the multiHeadMLP onto graph, reading
// input. The batch size of the clone is that of input.
func (e *multiHeadMLP) cloneTo(graph *G.ExprGraph,
	input *G.Node) (*multiHeadMLP, error) {
	if f := input.Shape()[1]; f != e.numInputs {
		return nil, fmt.Errorf("cloneTo: invalid number of input features"+
			"\n\twant(%v) \n\thave(%v)", e.numInputs, f)
	}

	layers := make([]Layer, len(e.layers))
	for i := range e.layers {
		layers[i] = e.layers[i].CloneTo(graph)
	}

	clone := &multiHeadMLP{
		g:          graph,
		layers:     layers,
		input:      input,
		numOutputs: e.numOutputs,
		numInputs:  e.numInputs,
		batchSize:  input.Shape()[0],
		prefix:     e.prefix,
		suffix:     e.suffix,
	}
	if _, err := clone.fwd(input); err != nil {
		return nil, fmt.Errorf("cloneTo: %v", err)
	}
	return clone, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *multiHeadMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *multiHeadMLP) Features() []int {
	return []int{e.numInputs}
}

func (e *multiHeadMLP) Outputs() []int {
	return []int{e.numOutputs}
}

func (e *multiHeadMLP) OutputLayers() int {
	return 1
}

func (e *multiHeadMLP) Input() *G.Node {
	return e.input
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *multiHeadMLP) SetInput(input []float64) error {
	return setInput(e.input, input)
}

// setInput binds data, in row-major order, to an input node without
// copying it
func setInput(node *G.Node, data []float64) error {
	if want := node.Shape().TotalSize(); len(data) != want {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", want, len(data))
	}
	return G.Let(node, tensor.New(
		tensor.WithBacking(data),
		tensor.WithShape(node.Shape()...),
	))
}

func (e *multiHeadMLP) Set(source NeuralNet) error {
	return Set(e, source)
}

// Learnables returns the weights and biases of each layer in order
func (e *multiHeadMLP) Learnables() G.Nodes {
	if e.learnables == nil {
		e.learnables = make(G.Nodes, 0, 2*len(e.layers))
		for _, l := range e.layers {
			e.learnables = append(e.learnables, l.Weights())
			if bias := l.Bias(); bias != nil {
				e.learnables = append(e.learnables, bias)
			}
		}
	}
	return e.learnables
}

// Model returns the learnables nodes with their gradients.
func (e *multiHeadMLP) Model() []G.ValueGrad {
	if e.model == nil {
		e.model = valueGrads(e.Learnables())
	}
	return e.model
}

// valueGrads converts learnable nodes to the ValueGrads taken by
// solvers
func valueGrads(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, len(learnables))
	for i, node := range learnables {
		model[i] = node
	}
	return model
}

// fwd adds the forward pass of each layer on input to the graph
func (e *multiHeadMLP) fwd(input *G.Node) (*G.Node, error) {
	if f := input.Shape()[len(input.Shape())-1]; f%e.numInputs != 0 {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, f)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: layer %v: %v", i, err)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)
	return pred, nil
}

func (e *multiHeadMLP) Output() []G.Value {
	return []G.Value{e.predVal}
}

func (e *multiHeadMLP) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}
