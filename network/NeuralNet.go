// Package network implements feed forward neural networks on Gorgonia
// computational graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// NeuralNet is a function approximator built on a Gorgonia graph.
// Each NeuralNet has a single input node and one or more prediction
// nodes. Calling SetInput followed by running a VM on the graph fills
// the values returned by Output.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() []int
	Outputs() []int
	OutputLayers() int
	Input() *G.Node
	SetInput([]float64) error
	Set(NeuralNet) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() []G.Value
	Prediction() []*G.Node

	cloneWithInputTo(axis int, inputs []*G.Node,
		graph *G.ExprGraph) (NeuralNet, error)
}

// Set sets the weights of dest to a copy of the weights of source
func Set(dest, source NeuralNet) error {
	return SetParameters(dest.Learnables(), CopyParameters(source.Learnables()))
}

// CloneWithInput clones net onto the graph of input, reading input in
// place of its own input node. This lets a network that shares the
// input of another be cloned alongside it.
func CloneWithInput(net NeuralNet, input *G.Node) (NeuralNet, error) {
	clone, err := net.cloneWithInputTo(-1, []*G.Node{input}, input.Graph())
	if err != nil {
		return nil, fmt.Errorf("cloneWithInput: %v", err)
	}
	return clone, nil
}

// joinInputs returns the single matrix node read by a network on
// graph. Multiple inputs are concatenated along axis, or along the
// feature axis if axis < 0.
func joinInputs(axis int, inputs []*G.Node, graph *G.ExprGraph) (*G.Node,
	error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("joinInputs: no input nodes")
	}
	for _, input := range inputs {
		if input.Graph() != graph {
			return nil, fmt.Errorf("joinInputs: input %v is not on the "+
				"target graph", input.Name())
		}
	}

	input := inputs[0]
	if len(inputs) > 1 {
		if axis < 0 {
			axis = 1
		}
		var err error
		if input, err = G.Concat(axis, inputs...); err != nil {
			return nil, fmt.Errorf("joinInputs: %v", err)
		}
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("joinInputs: input must be a matrix, have "+
			"shape %v", input.Shape())
	}
	return input, nil
}
