// Package policy implements Gaussian actor-critic networks for
// continuous control.
package policy

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network is a twin-headed policy-value network on a single
// computational graph. The actor predicts the mean μ and log standard
// deviation of a diagonal Gaussian policy, and σ = exp(log σ) + 1e-3.
// The critic predicts the state value. Both read the same input node.
//
// Network only builds the graph. Running it requires a VM, which is
// owned by whoever extends the graph: an ActorCritic, an Evaluator, or
// an optimizer building a loss.
type Network struct {
	actor  network.NeuralNet
	critic network.NeuralNet
	arch   Architecture

	features   int
	actionDims int

	mean   *G.Node
	logStd *G.Node
	std    *G.Node
	value  *G.Node

	meanVal  G.Value
	stdVal   G.Value
	valueVal G.Value
}

// NewNetwork returns a new Network for the given number of observation
// features and action dimensions which takes batch observations as
// input
func NewNetwork(features, actionDims, batch int, arch Architecture,
	init G.InitWFn) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, fmt.Errorf("newNetwork: %v", err)
	}
	if features <= 0 || actionDims <= 0 || batch <= 0 {
		return nil, fmt.Errorf("newNetwork: features, action dimensions, "+
			"and batch size must be positive, have (%v, %v, %v)", features,
			actionDims, batch)
	}

	actor, err := network.NewTreeMLP(
		features,
		batch,
		actionDims,
		G.NewGraph(),
		arch.RootHiddenSizes,
		arch.RootBiases,
		arch.RootActivations,
		arch.LeafHiddenSizes,
		arch.LeafBiases,
		arch.LeafActivations,
		init,
	)
	if err != nil {
		return nil, fmt.Errorf("newNetwork: could not create actor: %v", err)
	}

	critic, err := network.NewMultiHeadMLPFromInput(
		[]*G.Node{actor.Input()},
		1,
		arch.ValueHiddenSizes,
		arch.ValueBiases,
		init,
		arch.ValueActivations,
		"Value",
		"",
		true,
	)
	if err != nil {
		return nil, fmt.Errorf("newNetwork: could not create critic: %v", err)
	}

	return assemble(actor, critic, arch, features, actionDims), nil
}

// assemble adds the outputs of the policy and value heads to the graph
// shared by actor and critic
func assemble(actor, critic network.NeuralNet, arch Architecture,
	features, actionDims int) *Network {
	n := &Network{
		actor:      actor,
		critic:     critic,
		arch:       arch,
		features:   features,
		actionDims: actionDims,
	}

	n.mean = actor.Prediction()[0]
	n.logStd = actor.Prediction()[1]

	// Offset the standard deviation for numerical stability
	offset := G.NewConstant(StdOffset)
	n.std = G.Must(G.Exp(n.logStd))
	n.std = G.Must(G.Add(n.std, offset))

	n.value = G.Must(G.Reshape(critic.Prediction()[0],
		tensor.Shape{actor.BatchSize()}))

	G.Read(n.mean, &n.meanVal)
	G.Read(n.std, &n.stdVal)
	G.Read(n.value, &n.valueVal)

	return n
}

// CloneWithBatch returns a copy of the Network on a new graph which
// takes batch observations as input. Cloning copies the weight values.
func (n *Network) CloneWithBatch(batch int) (*Network, error) {
	actor, err := n.actor.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: actor: %v", err)
	}
	critic, err := network.CloneWithInput(n.critic, actor.Input())
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: critic: %v", err)
	}

	return assemble(actor, critic, n.arch, n.features, n.actionDims), nil
}

// Graph returns the computational graph of the Network
func (n *Network) Graph() *G.ExprGraph {
	return n.actor.Graph()
}

// BatchSize returns the number of observations input to the Network
func (n *Network) BatchSize() int {
	return n.actor.BatchSize()
}

// Features returns the number of features of a single observation
func (n *Network) Features() int {
	return n.features
}

// ActionDims returns the dimensionality of actions
func (n *Network) ActionDims() int {
	return n.actionDims
}

// Architecture returns the hidden layer description of the Network
func (n *Network) Architecture() Architecture {
	return n.arch
}

// SetInput sets the observations input to the Network. The
// observations should be flattened in row-major order.
func (n *Network) SetInput(obs []float64) error {
	return n.actor.SetInput(obs)
}

// Mean returns the node holding the policy mean, of shape
// (batch, actions)
func (n *Network) Mean() *G.Node {
	return n.mean
}

// Std returns the node holding the policy standard deviation, of shape
// (batch, actions)
func (n *Network) Std() *G.Node {
	return n.std
}

// Value returns the node holding the state values, of shape (batch)
func (n *Network) Value() *G.Node {
	return n.value
}

// LogProb adds the log probability of actions to the graph. The
// actions node must have shape (batch, actions).
func (n *Network) LogProb(actions *G.Node) *G.Node {
	return op.GaussianLogPdf(n.mean, n.std, actions)
}

// Entropy adds the entropy of the policy in each input state to the
// graph
func (n *Network) Entropy() *G.Node {
	return op.GaussianEntropy(n.std)
}

// Divergence adds the Distance from a reference distribution, given as
// nodes of shape (batch, actions), to the policy in each input state
func (n *Network) Divergence(refMean, refStd *G.Node,
	d Distance) (*G.Node, error) {
	if refMean.Graph() != n.Graph() || refStd.Graph() != n.Graph() {
		return nil, fmt.Errorf("divergence: reference nodes must be on the " +
			"network's graph")
	}
	div, err := d.node(refMean, refStd, n.mean, n.std)
	if err != nil {
		return nil, fmt.Errorf("divergence: %v", err)
	}
	return div, nil
}

// Learnables returns the learnable nodes of the actor followed by those
// of the critic
func (n *Network) Learnables() G.Nodes {
	learnables := make(G.Nodes, 0, len(n.actor.Learnables())+
		len(n.critic.Learnables()))
	learnables = append(learnables, n.actor.Learnables()...)
	return append(learnables, n.critic.Learnables()...)
}

// Model returns the learnable nodes with their gradients
func (n *Network) Model() []G.ValueGrad {
	learnables := n.Learnables()
	model := make([]G.ValueGrad, len(learnables))
	for i := range learnables {
		model[i] = learnables[i]
	}
	return model
}

// Weights returns a detached copy of the weights of the Network
func (n *Network) Weights() network.Parameters {
	return network.CopyParameters(n.Learnables())
}

// SetWeights sets the weights of the Network to a copy of params
func (n *Network) SetWeights(params network.Parameters) error {
	if err := network.SetParameters(n.Learnables(), params); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}
	return nil
}

// Set sets the weights of the Network to those of src
func (n *Network) Set(src *Network) error {
	return n.SetWeights(src.Weights())
}

// outputs returns copies of the values computed by the last run of a
// VM on the Network's graph
func (n *Network) outputs() (mean, std, value []float64) {
	return data(n.meanVal), data(n.stdVal), data(n.valueVal)
}

// data returns a copy of the backing data of a value
func data(v G.Value) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return append([]float64(nil), d...)
	case float64:
		return []float64{d}
	default:
		panic(fmt.Sprintf("data: unsupported value type %T", d))
	}
}
