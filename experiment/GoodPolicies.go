package experiment

import (
	"github.com/samuelfneumann/anchorppo/network"
)

// GoodPolicy is a copy of the policy weights from an iteration whose
// episodes reached the good policy return threshold
type GoodPolicy struct {
	Timestep  int
	TaskIndex int
	Return    float64 // Mean return of the episodes of the iteration
	Weights   network.Parameters
}

// GoodPolicies keeps the most recent good policies
type GoodPolicies struct {
	threshold float64
	keep      int
	policies  []GoodPolicy // Most recent first
}

// NewGoodPolicies returns a GoodPolicies that keeps the keep most
// recent policies reaching a mean return of at least threshold
func NewGoodPolicies(threshold float64, keep int) *GoodPolicies {
	return &GoodPolicies{threshold: threshold, keep: keep}
}

// Add stores p if its return reaches the threshold, returning whether
// it was stored
func (g *GoodPolicies) Add(p GoodPolicy) bool {
	if g.keep <= 0 || p.Return < g.threshold {
		return false
	}

	g.policies = append([]GoodPolicy{p}, g.policies...)
	if len(g.policies) > g.keep {
		g.policies = g.policies[:g.keep]
	}
	return true
}

// Policies returns the stored policies, most recent first
func (g *GoodPolicies) Policies() []GoodPolicy {
	return append([]GoodPolicy(nil), g.policies...)
}

// Latest returns the most recently stored policy
func (g *GoodPolicies) Latest() (GoodPolicy, bool) {
	if len(g.policies) == 0 {
		return GoodPolicy{}, false
	}
	return g.policies[0], true
}

// restore replaces the stored policies, keeping at most keep
func (g *GoodPolicies) restore(policies []GoodPolicy) {
	if len(policies) > g.keep {
		policies = policies[:g.keep]
	}
	g.policies = append([]GoodPolicy(nil), policies...)
}
