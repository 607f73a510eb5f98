package anchor

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/policy"
	G "gorgonia.org/gorgonia"
)

// Snapshot is a frozen copy of a policy. A Snapshot owns its weights
// and graph, so later updates to the policy it was taken from do not
// change it.
type Snapshot struct {
	timestep int
	weights  network.Parameters
	net      *policy.Network

	// Evaluators are created lazily, one per batch size
	evaluators map[int]*policy.Evaluator
}

// NewSnapshot returns a Snapshot of net taken at timestep
func NewSnapshot(net *policy.Network, timestep int) (*Snapshot, error) {
	return newSnapshot(net.Features(), net.ActionDims(), net.Architecture(),
		net.Weights(), timestep)
}

func newSnapshot(features, actionDims int, arch policy.Architecture,
	weights network.Parameters, timestep int) (*Snapshot, error) {
	net, err := policy.NewNetwork(features, actionDims, 1, arch, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("newSnapshot: %v", err)
	}
	if err := net.SetWeights(weights); err != nil {
		return nil, fmt.Errorf("newSnapshot: %v", err)
	}

	return &Snapshot{
		timestep:   timestep,
		weights:    net.Weights(),
		net:        net,
		evaluators: make(map[int]*policy.Evaluator),
	}, nil
}

// Timestep returns the timestep at which the Snapshot was taken
func (s *Snapshot) Timestep() int {
	return s.timestep
}

// Weights returns a copy of the weights of the Snapshot
func (s *Snapshot) Weights() network.Parameters {
	return s.net.Weights()
}

// Features returns the number of features in a single observation
func (s *Snapshot) Features() int {
	return s.net.Features()
}

// Distribution returns the frozen policy in each observation of obs,
// which should be flattened in row-major order
func (s *Snapshot) Distribution(obs []float64) ([]policy.Gaussian, error) {
	features := s.net.Features()
	if len(obs) == 0 || len(obs)%features != 0 {
		return nil, fmt.Errorf("distribution: invalid observation length "+
			"%v for %v features", len(obs), features)
	}
	batch := len(obs) / features

	eval, ok := s.evaluators[batch]
	if !ok {
		var err error
		if eval, err = policy.NewEvaluator(s.net, batch); err != nil {
			return nil, fmt.Errorf("distribution: %v", err)
		}
		s.evaluators[batch] = eval
	}

	return eval.Distribution(obs)
}

// Close releases the resources held by the Snapshot
func (s *Snapshot) Close() error {
	for batch, eval := range s.evaluators {
		if err := eval.Close(); err != nil {
			return fmt.Errorf("close: %v", err)
		}
		delete(s.evaluators, batch)
	}
	return nil
}

type snapshotGob struct {
	Timestep     int
	Features     int
	ActionDims   int
	Architecture policy.Architecture
	Weights      network.Parameters
}

// GobEncode implements the gob.GobEncoder interface
func (s *Snapshot) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshotGob{
		Timestep:     s.timestep,
		Features:     s.net.Features(),
		ActionDims:   s.net.ActionDims(),
		Architecture: s.net.Architecture(),
		Weights:      s.weights,
	})
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (s *Snapshot) GobDecode(in []byte) error {
	var decoded snapshotGob
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&decoded); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	snapshot, err := newSnapshot(decoded.Features, decoded.ActionDims,
		decoded.Architecture, decoded.Weights, decoded.Timestep)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	*s = *snapshot
	return nil
}
