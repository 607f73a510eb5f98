// Package anchor implements policy anchoring: regularizing a policy
// towards a frozen copy taken when the task last changed.
package anchor

import (
	"fmt"

	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/policy"
)

// Source names the policy that the anchor is taken from when the task
// changes
type Source string

const (
	// CurrentPolicy anchors to the policy being trained
	CurrentPolicy Source = "current"

	// LatestGoodPolicy anchors to the most recently stored good
	// policy, falling back to the current policy if there is none
	LatestGoodPolicy Source = "good"
)

// Validate returns an error if s is not a known Source. The empty
// Source is CurrentPolicy.
func (s Source) Validate() error {
	switch s {
	case "", CurrentPolicy, LatestGoodPolicy:
		return nil
	}
	return fmt.Errorf("unknown anchor source %q", s)
}

// Config describes an anchor Manager
type Config struct {
	// Distance between the anchor and current policies
	Distance policy.Distance

	// Schedule of the anchor weight. The schedule is evaluated at the
	// number of timesteps since the last refresh.
	Schedule *WeightSchedule

	// Source of the anchor policy, CurrentPolicy if empty
	Source Source
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if err := c.Distance.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Schedule == nil || c.Schedule.ScheduleConfig == nil {
		return fmt.Errorf("validate: no anchor weight schedule")
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}

// Manager holds the anchor policy. Before the first refresh there is
// nothing to anchor to, the weight is 0, and so is the penalty.
type Manager struct {
	distance  policy.Distance
	schedule  *WeightSchedule
	source    Source
	snapshot  *Snapshot
	refreshes int
}

// NewManager returns a new Manager without an anchor
func NewManager(c Config) (*Manager, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newManager: %v", err)
	}
	source := c.Source
	if source == "" {
		source = CurrentPolicy
	}
	return &Manager{
		distance: c.Distance,
		schedule: c.Schedule,
		source:   source,
	}, nil
}

// Source returns where the anchor policy is taken from
func (m *Manager) Source() Source {
	return m.source
}

// Refresh replaces the anchor with a snapshot of net taken at
// timestep. The previous anchor is released.
func (m *Manager) Refresh(net *policy.Network, timestep int) error {
	return m.RefreshWeights(net, net.Weights(), timestep)
}

// RefreshWeights replaces the anchor with a policy that has the
// architecture of net and the given weights
func (m *Manager) RefreshWeights(net *policy.Network,
	weights network.Parameters, timestep int) error {
	snapshot, err := newSnapshot(net.Features(), net.ActionDims(),
		net.Architecture(), weights, timestep)
	if err != nil {
		return fmt.Errorf("refresh: %v", err)
	}

	if m.snapshot != nil {
		if err := m.snapshot.Close(); err != nil {
			return fmt.Errorf("refresh: could not release anchor: %v", err)
		}
	}
	m.snapshot = snapshot
	m.refreshes++
	return nil
}

// Restore sets the anchor and refresh count, for resuming from a
// checkpoint. A nil snapshot removes the anchor. The new anchor is set
// even if releasing the previous one fails.
func (m *Manager) Restore(s *Snapshot, refreshes int) error {
	var err error
	if m.snapshot != nil {
		if closeErr := m.snapshot.Close(); closeErr != nil {
			err = fmt.Errorf("restore: could not release anchor: %v",
				closeErr)
		}
	}
	m.snapshot = s
	m.refreshes = refreshes
	return err
}

// Active returns whether there is an anchor
func (m *Manager) Active() bool {
	return m.snapshot != nil
}

// Snapshot returns the anchor, or nil if there is none
func (m *Manager) Snapshot() *Snapshot {
	return m.snapshot
}

// Refreshes returns the number of times the anchor has been refreshed
func (m *Manager) Refreshes() int {
	return m.refreshes
}

// Distance returns the distance used for the anchoring penalty
func (m *Manager) Distance() policy.Distance {
	return m.distance
}

// Weight returns the anchor weight at timestep, which is 0 if there is
// no anchor
func (m *Manager) Weight(timestep int) float64 {
	if !m.Active() {
		return 0
	}
	return m.schedule.At(timestep - m.snapshot.Timestep())
}

// Reference returns the means and standard deviations of the anchor
// policy in each observation, flattened in row-major order. If there
// is no anchor, ok is false.
func (m *Manager) Reference(obs []float64) (mean, std []float64, ok bool,
	err error) {
	if !m.Active() {
		return nil, nil, false, nil
	}

	dists, err := m.snapshot.Distribution(obs)
	if err != nil {
		return nil, nil, false, fmt.Errorf("reference: %v", err)
	}

	for _, dist := range dists {
		mean = append(mean, dist.Mean...)
		std = append(std, dist.Std...)
	}
	return mean, std, true, nil
}

// Penalty returns the mean distance from the anchor to the current
// policy over the observations obs, where current[i] is the current
// policy in observation i. The penalty is 0 if there is no anchor.
func (m *Manager) Penalty(obs []float64, current []policy.Gaussian) (float64,
	error) {
	if !m.Active() {
		return 0, nil
	}

	anchors, err := m.snapshot.Distribution(obs)
	if err != nil {
		return 0, fmt.Errorf("penalty: %v", err)
	}
	if len(anchors) != len(current) {
		return 0, fmt.Errorf("penalty: invalid number of distributions "+
			"\n\twant(%v) \n\thave(%v)", len(anchors), len(current))
	}

	var penalty float64
	for i := range anchors {
		penalty += m.distance.Between(anchors[i], current[i])
	}
	penalty /= float64(len(anchors))

	// Guard against rounding below 0 for identical distributions
	if penalty < 0 {
		penalty = 0
	}
	return penalty, nil
}
