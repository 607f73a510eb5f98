package policy

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
)

// ActorCritic is the behaviour policy used to interact with an
// environment. It takes a single observation as input.
//
// Given a network prediction of the mean μ and standard deviation σ of
// the Gaussian policy, actions are selected by sampling from the
// standard normal ɛ ~ N(0, 1) and computing action := μ + σ * ɛ.
type ActorCritic struct {
	net *Network
	vm  G.VM

	normal *distmv.Normal
	seed   uint64
}

// NewActorCritic returns a new ActorCritic whose weights are
// initialized with init. The seed determines the action sampler.
func NewActorCritic(features, actionDims int, arch Architecture,
	init G.InitWFn, seed uint64) (*ActorCritic, error) {
	net, err := NewNetwork(features, actionDims, 1, arch, init)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}

	a := &ActorCritic{
		net: net,
		vm:  G.NewTapeMachine(net.Graph()),
	}
	if err := a.Seed(seed); err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}
	return a, nil
}

// Seed reseeds the action sampler. Calls to Act after seeding with the
// same seed select the same actions for the same observations.
func (a *ActorCritic) Seed(seed uint64) error {
	dims := a.net.ActionDims()
	means := make([]float64, dims)
	stds := mat.NewDiagDense(dims, floatutils.Ones(dims))

	normal, ok := distmv.NewNormal(means, stds, rand.NewSource(seed))
	if !ok {
		return fmt.Errorf("seed: could not create standard normal for " +
			"action selection")
	}
	a.normal = normal
	a.seed = seed
	return nil
}

// forward runs the network on a single observation
func (a *ActorCritic) forward(obs []float64) (Gaussian, float64, error) {
	if err := a.net.SetInput(obs); err != nil {
		return Gaussian{}, 0, fmt.Errorf("forward: cannot set input: %v", err)
	}

	if err := a.vm.RunAll(); err != nil {
		return Gaussian{}, 0, fmt.Errorf("forward: could not run policy "+
			"VM: %v", err)
	}
	defer a.vm.Reset()

	mean, std, value := a.net.outputs()
	return Gaussian{Mean: mean, Std: std}, value[0], nil
}

// Act samples an action in the state with features obs. It returns the
// action, its log probability, and the estimated value of the state.
func (a *ActorCritic) Act(obs []float64) ([]float64, float64, float64,
	error) {
	dist, value, err := a.forward(obs)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("act: %v", err)
	}

	eps := a.normal.Rand(nil)
	action := make([]float64, dist.Dims())
	for i := range action {
		action[i] = dist.Mean[i] + dist.Std[i]*eps[i]
	}

	return action, dist.LogProb(action), value, nil
}

// Value returns the estimated value of the state with features obs
func (a *ActorCritic) Value(obs []float64) (float64, error) {
	_, value, err := a.forward(obs)
	if err != nil {
		return 0, fmt.Errorf("value: %v", err)
	}
	return value, nil
}

// Distribution returns the policy in the state with features obs
func (a *ActorCritic) Distribution(obs []float64) (Gaussian, error) {
	dist, _, err := a.forward(obs)
	if err != nil {
		return Gaussian{}, fmt.Errorf("distribution: %v", err)
	}
	return dist, nil
}

// Sync copies the weights of src into the ActorCritic
func (a *ActorCritic) Sync(src *Network) error {
	if err := a.net.Set(src); err != nil {
		return fmt.Errorf("sync: %v", err)
	}
	return nil
}

// Network returns the network of the ActorCritic
func (a *ActorCritic) Network() *Network {
	return a.net
}

// Close releases the resources of the ActorCritic's VM
func (a *ActorCritic) Close() error {
	return a.vm.Close()
}
