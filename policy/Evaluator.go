package policy

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Evaluator scores batches of observations and actions under a fixed
// set of weights. Evaluation is deterministic.
type Evaluator struct {
	net *Network
	vm  G.VM

	actions    *G.Node
	logProb    *G.Node
	entropy    *G.Node
	logProbVal G.Value
	entropyVal G.Value
}

// NewEvaluator returns an Evaluator of batch observations holding a
// copy of the weights of src
func NewEvaluator(src *Network, batch int) (*Evaluator, error) {
	net, err := src.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("newEvaluator: %v", err)
	}

	actions := G.NewMatrix(
		net.Graph(),
		tensor.Float64,
		G.WithName("InputActions"),
		G.WithShape(batch, net.ActionDims()),
		G.WithInit(G.Zeroes()),
	)

	e := &Evaluator{
		net:     net,
		actions: actions,
		logProb: net.LogProb(actions),
		entropy: net.Entropy(),
	}
	G.Read(e.logProb, &e.logProbVal)
	G.Read(e.entropy, &e.entropyVal)

	e.vm = G.NewTapeMachine(net.Graph())
	return e, nil
}

// run runs the Evaluator's VM on observations obs and actions
func (e *Evaluator) run(obs, actions []float64) error {
	if err := e.net.SetInput(obs); err != nil {
		return fmt.Errorf("run: could not set observations: %v", err)
	}

	if actions != nil {
		if len(actions) != e.net.BatchSize()*e.net.ActionDims() {
			return fmt.Errorf("run: invalid number of actions \n\twant(%v) "+
				"\n\thave(%v)", e.net.BatchSize()*e.net.ActionDims(),
				len(actions))
		}
		actionsTensor := tensor.NewDense(
			tensor.Float64,
			[]int{e.net.BatchSize(), e.net.ActionDims()},
			tensor.WithBacking(append([]float64(nil), actions...)),
		)
		if err := G.Let(e.actions, actionsTensor); err != nil {
			return fmt.Errorf("run: could not set actions: %v", err)
		}
	}

	if err := e.vm.RunAll(); err != nil {
		return fmt.Errorf("run: could not run VM: %v", err)
	}
	return nil
}

// Evaluate returns the log probability of each action in the
// corresponding observation along with the state values and policy
// entropy in each observation
func (e *Evaluator) Evaluate(obs, actions []float64) (logProbs, values,
	entropy []float64, err error) {
	if actions == nil {
		return nil, nil, nil, fmt.Errorf("evaluate: no actions")
	}
	if err := e.run(obs, actions); err != nil {
		return nil, nil, nil, fmt.Errorf("evaluate: %v", err)
	}
	defer e.vm.Reset()

	_, _, values = e.net.outputs()
	return data(e.logProbVal), values, data(e.entropyVal), nil
}

// Distribution returns the policy in each observation
func (e *Evaluator) Distribution(obs []float64) ([]Gaussian, error) {
	if err := e.run(obs, nil); err != nil {
		return nil, fmt.Errorf("distribution: %v", err)
	}
	defer e.vm.Reset()

	mean, std, _ := e.net.outputs()
	return split(mean, std, e.net.ActionDims()), nil
}

// Sync copies the weights of src into the Evaluator
func (e *Evaluator) Sync(src *Network) error {
	if err := e.net.Set(src); err != nil {
		return fmt.Errorf("sync: %v", err)
	}
	return nil
}

// BatchSize returns the number of observations evaluated at once
func (e *Evaluator) BatchSize() int {
	return e.net.BatchSize()
}

// Close releases the resources of the Evaluator's VM
func (e *Evaluator) Close() error {
	return e.vm.Close()
}
