// Package rollout implements fixed-horizon on-policy rollout buffers
package rollout

import (
	"fmt"
)

// Transition is a single step of interaction with an environment
type Transition struct {
	Observation []float64
	Action      []float64
	LogProb     float64 // Log probability of Action under the behaviour policy
	Reward      float64
	Done        bool // Whether the episode ended after this step
	Value       float64
}

// Rollout stores a fixed number of transitions collected under a
// single policy. Transitions cannot be changed once added.
type Rollout struct {
	obsSize    int
	actionSize int
	maxSize    int
	currentPos int

	obsBuffer     []float64
	actBuffer     []float64
	logProbBuffer []float64
	rewBuffer     []float64
	valBuffer     []float64
	doneBuffer    []bool
}

// New creates and returns a new Rollout holding size transitions of
// obsDim dimensional observations and actDim dimensional actions
func New(obsDim, actDim, size int) (*Rollout, error) {
	if obsDim <= 0 || actDim <= 0 || size <= 0 {
		return nil, fmt.Errorf("new: dimensions and size must be positive, "+
			"have (%v, %v, %v)", obsDim, actDim, size)
	}

	return &Rollout{
		obsSize:       obsDim,
		actionSize:    actDim,
		maxSize:       size,
		obsBuffer:     make([]float64, size*obsDim),
		actBuffer:     make([]float64, size*actDim),
		logProbBuffer: make([]float64, size),
		rewBuffer:     make([]float64, size),
		valBuffer:     make([]float64, size),
		doneBuffer:    make([]bool, size),
	}, nil
}

// Add adds a transition to the Rollout
func (r *Rollout) Add(t Transition) error {
	if r.currentPos >= r.maxSize {
		return fmt.Errorf("add: cannot add new transition, rollout at " +
			"maximum capacity")
	}
	if len(t.Observation) != r.obsSize {
		return fmt.Errorf("add: illegal obs length \n\twant(%v)\n\thave(%v)",
			r.obsSize, len(t.Observation))
	}
	if len(t.Action) != r.actionSize {
		return fmt.Errorf("add: illegal act length \n\twant(%v)\n\thave(%v)",
			r.actionSize, len(t.Action))
	}

	start := r.currentPos * r.obsSize
	copy(r.obsBuffer[start:start+r.obsSize], t.Observation)

	start = r.currentPos * r.actionSize
	copy(r.actBuffer[start:start+r.actionSize], t.Action)

	r.logProbBuffer[r.currentPos] = t.LogProb
	r.rewBuffer[r.currentPos] = t.Reward
	r.valBuffer[r.currentPos] = t.Value
	r.doneBuffer[r.currentPos] = t.Done
	r.currentPos++

	return nil
}

// Len returns the number of transitions in the Rollout
func (r *Rollout) Len() int {
	return r.currentPos
}

// Cap returns the number of transitions the Rollout can hold
func (r *Rollout) Cap() int {
	return r.maxSize
}

// Full returns whether the Rollout is at capacity
func (r *Rollout) Full() bool {
	return r.currentPos == r.maxSize
}

// ObservationDims returns the dimensionality of observations
func (r *Rollout) ObservationDims() int {
	return r.obsSize
}

// ActionDims returns the dimensionality of actions
func (r *Rollout) ActionDims() int {
	return r.actionSize
}

// At returns a copy of transition i
func (r *Rollout) At(i int) Transition {
	if i < 0 || i >= r.currentPos {
		panic(fmt.Sprintf("at: index out of range [%v] with length %v", i,
			r.currentPos))
	}

	return Transition{
		Observation: copyFloats(r.obsBuffer[i*r.obsSize : (i+1)*r.obsSize]),
		Action: copyFloats(r.actBuffer[i*r.actionSize : (i+1)*
			r.actionSize]),
		LogProb: r.logProbBuffer[i],
		Reward:  r.rewBuffer[i],
		Done:    r.doneBuffer[i],
		Value:   r.valBuffer[i],
	}
}

// Observations returns the observations of all transitions, flattened
// in row-major order
func (r *Rollout) Observations() []float64 {
	return copyFloats(r.obsBuffer[:r.currentPos*r.obsSize])
}

// Actions returns the actions of all transitions, flattened in
// row-major order
func (r *Rollout) Actions() []float64 {
	return copyFloats(r.actBuffer[:r.currentPos*r.actionSize])
}

// LogProbs returns the behaviour log probability of each action
func (r *Rollout) LogProbs() []float64 {
	return copyFloats(r.logProbBuffer[:r.currentPos])
}

// Rewards returns the reward of each transition
func (r *Rollout) Rewards() []float64 {
	return copyFloats(r.rewBuffer[:r.currentPos])
}

// Values returns the value estimate of each transition
func (r *Rollout) Values() []float64 {
	return copyFloats(r.valBuffer[:r.currentPos])
}

// Dones returns the done flag of each transition
func (r *Rollout) Dones() []bool {
	return append([]bool(nil), r.doneBuffer[:r.currentPos]...)
}

// Minibatch is a subset of the transitions of a Rollout, with
// observations and actions flattened in row-major order
type Minibatch struct {
	Indices      []int
	Observations []float64
	Actions      []float64
	LogProbs     []float64
	Values       []float64
}

// Len returns the number of transitions in the Minibatch
func (m Minibatch) Len() int {
	return len(m.Indices)
}

// Gather returns the Minibatch of transitions at indices
func (r *Rollout) Gather(indices []int) (Minibatch, error) {
	m := Minibatch{
		Indices:      append([]int(nil), indices...),
		Observations: make([]float64, 0, len(indices)*r.obsSize),
		Actions:      make([]float64, 0, len(indices)*r.actionSize),
		LogProbs:     make([]float64, 0, len(indices)),
		Values:       make([]float64, 0, len(indices)),
	}

	for _, i := range indices {
		if i < 0 || i >= r.currentPos {
			return Minibatch{}, fmt.Errorf("gather: index %v out of range "+
				"for rollout of length %v", i, r.currentPos)
		}
		m.Observations = append(m.Observations,
			r.obsBuffer[i*r.obsSize:(i+1)*r.obsSize]...)
		m.Actions = append(m.Actions,
			r.actBuffer[i*r.actionSize:(i+1)*r.actionSize]...)
		m.LogProbs = append(m.LogProbs, r.logProbBuffer[i])
		m.Values = append(m.Values, r.valBuffer[i])
	}

	return m, nil
}

// Gather returns the elements of values at indices
func Gather(values []float64, indices []int) []float64 {
	gathered := make([]float64, len(indices))
	for i, index := range indices {
		gathered[i] = values[index]
	}
	return gathered
}

func copyFloats(f []float64) []float64 {
	return append([]float64(nil), f...)
}
