// Package ppo implements Proximal Policy Optimization with an optional
// anchoring penalty towards a frozen reference policy.
//
// The clipped surrogate objective is adapted from:
//
// https://arxiv.org/abs/1707.06347
// https://spinningup.openai.com/en/latest/algorithms/ppo.html
package ppo

import (
	"errors"
	"fmt"
	"math"

	"github.com/samuelfneumann/anchorppo/buffer/gae"
	"github.com/samuelfneumann/anchorppo/buffer/rollout"
	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/policy"
	"github.com/samuelfneumann/anchorppo/utils/floatutils"
	"github.com/samuelfneumann/anchorppo/utils/op"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrNumericalInstability is returned when the loss becomes
// non-finite during an update
var ErrNumericalInstability = errors.New("numerical instability")

// Anchor provides the reference policy that updates are regularized
// towards
type Anchor interface {
	// Reference returns the means and standard deviations of the
	// reference policy in each observation, flattened in row-major
	// order. If there is no reference policy, ok is false.
	Reference(obs []float64) (mean, std []float64, ok bool, err error)

	// Weight returns the weight of the anchoring penalty at timestep
	Weight(timestep int) float64
}

// Metrics summarizes an update. Losses are averaged over all
// minibatches used in the update.
type Metrics struct {
	PolicyLoss    float64
	ValueLoss     float64
	EntropyLoss   float64
	AnchorPenalty float64
	AnchorWeight  float64
	TotalLoss     float64

	ApproxKL          float64
	ClipFraction      float64
	ExplainedVariance float64

	Std          float64 // Mean policy standard deviation
	Updates      int     // Gradient steps taken
	EpochsRun    int
	EarlyStopped bool
}

// String implements the fmt.Stringer interface
func (m Metrics) String() string {
	return fmt.Sprintf("loss=%.4f policy=%.4f value=%.4f entropy=%.4f "+
		"anchor=%.4f (w=%.3g) kl=%.4f clip=%.3f ev=%.3f std=%.3f "+
		"updates=%d", m.TotalLoss, m.PolicyLoss, m.ValueLoss, m.EntropyLoss,
		m.AnchorPenalty, m.AnchorWeight, m.ApproxKL, m.ClipFraction,
		m.ExplainedVariance, m.Std, m.Updates)
}

// PPO implements Proximal Policy Optimization. Data is collected with
// a behaviour policy, which is synchronized with the trained network
// at the end of each update.
type PPO struct {
	config Config
	rng    *rand.Rand

	behaviour *policy.ActorCritic // Has its own VM
	train     *policy.Network
	vm        G.VM
	solver    G.Solver

	// Input nodes of the loss graph
	actions      *G.Node
	oldLogProbs  *G.Node
	advantages   *G.Node
	returns      *G.Node
	oldValues    *G.Node
	refMean      *G.Node
	refStd       *G.Node
	anchorWeight *G.Node

	// Output nodes of the loss graph
	logProb     *G.Node
	ratio       *G.Node
	policyLoss  *G.Node
	valueLoss   *G.Node
	entropyLoss *G.Node
	penalty     *G.Node
	loss        *G.Node

	ratioVal       G.Value
	logProbVal     G.Value
	policyLossVal  G.Value
	valueLossVal   G.Value
	entropyLossVal G.Value
	penaltyVal     G.Value
	lossVal        G.Value
	stdVal         G.Value
}

// New creates and returns a new PPO agent for observations with
// features features and actions with actionDims dimensions
func New(features, actionDims int, c Config, seed uint64) (*PPO, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	behaviour, err := policy.NewActorCritic(features, actionDims,
		c.Architecture, c.InitWFn.InitWFn(), seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour policy: %v",
			err)
	}

	train, err := behaviour.Network().CloneWithBatch(c.MinibatchSize())
	if err != nil {
		return nil, fmt.Errorf("new: could not create training network: %v",
			err)
	}

	p := &PPO{
		config:    c,
		rng:       rand.New(rand.NewSource(seed)),
		behaviour: behaviour,
		train:     train,
		solver:    c.Solver.Reset().Solver,
	}
	if err := p.buildLoss(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	if _, err := G.Grad(p.loss, train.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}
	p.vm = G.NewTapeMachine(train.Graph(),
		G.BindDualValues(train.Learnables()...))

	return p, nil
}

// buildLoss adds the input nodes and the loss to the graph of the
// training network
func (p *PPO) buildLoss() error {
	g := p.train.Graph()
	batch := p.train.BatchSize()
	dims := p.train.ActionDims()
	c := p.config

	matrix := func(name string, init G.InitWFn) *G.Node {
		return G.NewMatrix(g, tensor.Float64, G.WithShape(batch, dims),
			G.WithName(name), G.WithInit(init))
	}
	vector := func(name string) *G.Node {
		return G.NewVector(g, tensor.Float64, G.WithShape(batch),
			G.WithName(name), G.WithInit(G.Zeroes()))
	}

	p.actions = matrix("Actions", G.Zeroes())
	p.refMean = matrix("AnchorMean", G.Zeroes())
	p.refStd = matrix("AnchorStd", G.Ones())
	p.oldLogProbs = vector("OldLogProbs")
	p.advantages = vector("Advantages")
	p.returns = vector("Returns")
	p.oldValues = vector("OldValues")
	p.anchorWeight = G.NewScalar(g, tensor.Float64, G.WithName("AnchorWeight"),
		G.WithValue(0.0))

	// Clipped surrogate objective
	p.logProb = p.train.LogProb(p.actions)
	p.ratio = G.Must(G.Exp(G.Must(G.Sub(p.logProb, p.oldLogProbs))))

	clippedRatio, err := op.Clip(p.ratio, 1-c.ClipEpsilon, 1+c.ClipEpsilon)
	if err != nil {
		return fmt.Errorf("buildLoss: could not clip ratio: %v", err)
	}
	surrogate, err := op.Min(
		G.Must(G.HadamardProd(p.ratio, p.advantages)),
		G.Must(G.HadamardProd(clippedRatio, p.advantages)),
	)
	if err != nil {
		return fmt.Errorf("buildLoss: could not compute surrogate: %v", err)
	}
	p.policyLoss = G.Must(G.Neg(G.Must(G.Mean(surrogate))))

	// Value loss, optionally clipped around the old values
	prediction := p.train.Value()
	if c.ValueClip > 0 {
		diff := G.Must(G.Sub(prediction, p.oldValues))
		if diff, err = op.Clip(diff, -c.ValueClip, c.ValueClip); err != nil {
			return fmt.Errorf("buildLoss: could not clip values: %v", err)
		}
		prediction = G.Must(G.Add(p.oldValues, diff))
	}
	p.valueLoss = G.Must(G.Sub(p.returns, prediction))
	p.valueLoss = G.Must(G.Mean(G.Must(G.Square(p.valueLoss))))

	p.entropyLoss = G.Must(G.Neg(G.Must(G.Mean(p.train.Entropy()))))

	// Anchoring penalty
	divergence, err := p.train.Divergence(p.refMean, p.refStd, c.Distance)
	if err != nil {
		return fmt.Errorf("buildLoss: %v", err)
	}
	p.penalty = G.Must(G.Mean(divergence))

	p.loss = G.Must(G.Add(p.policyLoss,
		G.Must(G.Mul(G.NewConstant(c.ValueCoef), p.valueLoss))))
	p.loss = G.Must(G.Add(p.loss,
		G.Must(G.Mul(G.NewConstant(c.EntropyCoef), p.entropyLoss))))
	p.loss = G.Must(G.Add(p.loss,
		G.Must(G.Mul(p.anchorWeight, p.penalty))))

	G.Read(p.ratio, &p.ratioVal)
	G.Read(p.logProb, &p.logProbVal)
	G.Read(p.policyLoss, &p.policyLossVal)
	G.Read(p.valueLoss, &p.valueLossVal)
	G.Read(p.entropyLoss, &p.entropyLossVal)
	G.Read(p.penalty, &p.penaltyVal)
	G.Read(p.loss, &p.lossVal)
	G.Read(p.train.Std(), &p.stdVal)

	return nil
}

// Behaviour returns the policy used to collect data
func (p *PPO) Behaviour() *policy.ActorCritic {
	return p.behaviour
}

// Network returns the network being trained
func (p *PPO) Network() *policy.Network {
	return p.train
}

// Config returns the configuration of the agent
func (p *PPO) Config() Config {
	return p.config
}

// Weights returns a copy of the trained weights
func (p *PPO) Weights() network.Parameters {
	return p.train.Weights()
}

// SetWeights sets the weights of both the trained network and the
// behaviour policy
func (p *PPO) SetWeights(params network.Parameters) error {
	if err := p.train.SetWeights(params); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}
	if err := p.behaviour.Sync(p.train); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}
	return nil
}

// minibatchResult holds the graph outputs of a single minibatch
type minibatchResult struct {
	losses Losses
	ratios []float64
	std    float64
	weight float64 // Anchor weight, 0 without an anchor
}

// feed binds data to an input node of the loss graph
type feed struct {
	node *G.Node
	data []float64
}

// run computes the loss on the minibatch of r and advantages at
// indices. The VM is not reset so that a solver may step with the
// computed gradients.
func (p *PPO) run(r *rollout.Rollout, advantages *gae.Batch, indices []int,
	anchor Anchor, timestep int) (minibatchResult, error) {
	mb, err := r.Gather(indices)
	if err != nil {
		return minibatchResult{}, fmt.Errorf("run: %v", err)
	}
	if err := p.train.SetInput(mb.Observations); err != nil {
		return minibatchResult{}, fmt.Errorf("run: %v", err)
	}

	// Without an anchor, the reference policy is N(0, 1) with weight 0
	n := p.train.BatchSize() * p.train.ActionDims()
	refMean, refStd := make([]float64, n), floatutils.Ones(n)
	var weight float64
	var active bool
	if anchor != nil {
		mean, std, ok, err := anchor.Reference(mb.Observations)
		if err != nil {
			return minibatchResult{}, fmt.Errorf("run: %v", err)
		}
		if ok {
			refMean, refStd = mean, std
			weight = anchor.Weight(timestep)
			active = true
		}
	}

	feeds := []feed{
		{p.actions, mb.Actions},
		{p.oldLogProbs, mb.LogProbs},
		{p.oldValues, mb.Values},
		{p.advantages, rollout.Gather(advantages.Advantages, indices)},
		{p.returns, rollout.Gather(advantages.Returns, indices)},
		{p.refMean, refMean},
		{p.refStd, refStd},
	}
	for _, f := range feeds {
		t := tensor.NewDense(
			tensor.Float64,
			f.node.Shape(),
			tensor.WithBacking(f.data),
		)
		if err := G.Let(f.node, t); err != nil {
			return minibatchResult{}, fmt.Errorf("run: could not set %v: %v",
				f.node.Name(), err)
		}
	}
	if err := G.Let(p.anchorWeight, G.NewF64(weight)); err != nil {
		return minibatchResult{}, fmt.Errorf("run: could not set anchor "+
			"weight: %v", err)
	}

	if err := p.vm.RunAll(); err != nil {
		return minibatchResult{}, fmt.Errorf("run: could not run VM: %v", err)
	}

	res := minibatchResult{
		losses: Losses{
			Policy:  scalar(p.policyLossVal),
			Value:   scalar(p.valueLossVal),
			Entropy: scalar(p.entropyLossVal),
			Total:   scalar(p.lossVal),
		},
		ratios: floats(p.ratioVal),
		std:    stat.Mean(floats(p.stdVal), nil),
		weight: weight,
	}
	if active {
		res.losses.Anchor = scalar(p.penaltyVal)
	}
	return res, nil
}

// Update updates the policy and value function from a rollout r of
// length Horizon and its advantages. Advantages are normalized over the
// rollout before use. If anchor is non-nil, updates are regularized
// towards the anchor's reference policy using the weight of the anchor
// at timestep.
func (p *PPO) Update(r *rollout.Rollout, advantages *gae.Batch,
	anchor Anchor, timestep int) (Metrics, error) {
	if r.Len() != p.config.Horizon {
		return Metrics{}, fmt.Errorf("update: invalid rollout length"+
			"\n\twant(%v) \n\thave(%v)", p.config.Horizon, r.Len())
	}
	if advantages.Len() != r.Len() {
		return Metrics{}, fmt.Errorf("update: invalid number of advantages"+
			"\n\twant(%v) \n\thave(%v)", r.Len(), advantages.Len())
	}

	normalized := &gae.Batch{
		Advantages: append([]float64(nil), advantages.Advantages...),
		Returns:    advantages.Returns,
	}
	normalized.Normalize()

	var m Metrics
	var runs int
	mbSize := p.config.MinibatchSize()

epochs:
	for epoch := 0; epoch < p.config.Epochs; epoch++ {
		m.EpochsRun++
		perm := p.rng.Perm(r.Len())

		for start := 0; start < len(perm); start += mbSize {
			res, err := p.run(r, normalized, perm[start:start+mbSize], anchor,
				timestep)
			if err != nil {
				p.vm.Reset()
				return Metrics{}, fmt.Errorf("update: %v", err)
			}
			if math.IsNaN(res.losses.Total) || math.IsInf(res.losses.Total, 0) {
				p.vm.Reset()
				return Metrics{}, fmt.Errorf("update: %w: loss is %v at epoch "+
					"%v", ErrNumericalInstability, res.losses.Total, epoch)
			}

			runs++
			kl := approxKL(res.ratios)
			m.PolicyLoss += res.losses.Policy
			m.ValueLoss += res.losses.Value
			m.EntropyLoss += res.losses.Entropy
			m.AnchorPenalty += res.losses.Anchor
			m.TotalLoss += res.losses.Total
			m.ApproxKL += kl
			m.ClipFraction += clipFraction(res.ratios, p.config.ClipEpsilon)
			m.AnchorWeight = res.weight
			m.Std = res.std

			if p.config.TargetKL > 0 && kl > 1.5*p.config.TargetKL {
				p.vm.Reset()
				m.EarlyStopped = true
				break epochs
			}

			if err := p.solver.Step(p.train.Model()); err != nil {
				p.vm.Reset()
				return Metrics{}, fmt.Errorf("update: could not step "+
					"solver: %v", err)
			}
			p.vm.Reset()
			m.Updates++
		}
	}

	n := float64(runs)
	m.PolicyLoss /= n
	m.ValueLoss /= n
	m.EntropyLoss /= n
	m.AnchorPenalty /= n
	m.TotalLoss /= n
	m.ApproxKL /= n
	m.ClipFraction /= n
	m.ExplainedVariance = explainedVariance(r.Values(), advantages.Returns)

	// Update behaviour policy
	if err := p.behaviour.Sync(p.train); err != nil {
		return Metrics{}, fmt.Errorf("update: %v", err)
	}
	return m, nil
}

// Close releases the resources of the agent's VMs
func (p *PPO) Close() error {
	if err := p.vm.Close(); err != nil {
		return err
	}
	return p.behaviour.Close()
}

// floats returns a copy of the backing data of a value
func floats(v G.Value) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return append([]float64(nil), d...)
	case float64:
		return []float64{d}
	default:
		panic(fmt.Sprintf("floats: unsupported value type %T", d))
	}
}

// scalar returns the single float held by a value
func scalar(v G.Value) float64 {
	f := floats(v)
	if len(f) != 1 {
		panic(fmt.Sprintf("scalar: value holds %v floats", len(f)))
	}
	return f[0]
}
