package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/anchorppo/agent/ppo"
	"github.com/samuelfneumann/anchorppo/anchor"
	"github.com/samuelfneumann/anchorppo/config"
	env "github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/environment/envconfig"
	"github.com/samuelfneumann/anchorppo/experiment/checkpointer"
	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/policy"
	"github.com/samuelfneumann/anchorppo/schedule"
	"github.com/samuelfneumann/anchorppo/solver"
)

func smallArchitecture() policy.Architecture {
	return policy.Architecture{
		RootHiddenSizes: []int{8},
		RootBiases:      []bool{true},
		RootActivations: []*network.Activation{network.TanH()},

		LeafHiddenSizes: [][]int{{}, {}},
		LeafBiases:      [][]bool{{}, {}},
		LeafActivations: [][]*network.Activation{{}, {}},

		ValueHiddenSizes: []int{8},
		ValueBiases:      []bool{true},
		ValueActivations: []*network.Activation{network.TanH()},
	}
}

// testConfig returns a configuration that switches from vanilla to
// bigleg after 64 of total timesteps, collecting 32 steps per iteration
func testConfig(t *testing.T, dir string, total int) config.Config {
	t.Helper()

	s, err := solver.NewAdam(1e-3, 1e-8, 0.9, 0.999, 1, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	weight, err := anchor.NewConstant(0.5)
	if err != nil {
		t.Fatal(err)
	}

	agent := ppo.DefaultConfig()
	agent.Horizon = 32
	agent.Minibatches = 2
	agent.Epochs = 2
	agent.Solver = s
	agent.Architecture = smallArchitecture()

	c := config.Default()
	c.ExptID = "test"
	c.TotalTimesteps = total
	c.Environment = envconfig.Config{
		Backend:       envconfig.Box2D,
		Morphology:    "vanilla",
		EpisodeLength: 20,
		Discount:      0.99,
	}
	c.Schedule = []schedule.Entry{
		{Threshold: 0, Morphology: "vanilla"},
		{Threshold: 64, Morphology: "bigleg"},
	}
	c.Agent = agent
	c.Anchor = anchor.Config{Distance: policy.KLDivergence, Schedule: weight}
	c.Checkpoint = config.Checkpoint{
		Dir:   filepath.Join(dir, "checkpoints"),
		Every: 1,
	}
	c.OutputDir = filepath.Join(dir, "results")
	c.GoodPolicies = 2
	c.GoodPolicyThreshold = -1e9
	return c
}

func newDriver(t *testing.T, c config.Config) (*Driver, env.Morphable) {
	t.Helper()
	e, err := c.Environment.Create(c.Seed)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDriver(c, e, c.Seed)
	if err != nil {
		e.Close()
		t.Fatalf("could not create driver: %v", err)
	}
	return d, e
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir, 128)
	d, e := newDriver(t, c)
	defer e.Close()
	defer d.Close()

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("could not run: %v", err)
	}

	ctx := d.Context()
	if ctx.Timestep != 128 || ctx.Iteration != 4 {
		t.Errorf("progress: want(128, 4) have(%v, %v)", ctx.Timestep,
			ctx.Iteration)
	}
	if ctx.TaskIndex != 1 || ctx.LastSwitch != 64 {
		t.Errorf("switch: want(task 1 at 64) have(task %v at %v)",
			ctx.TaskIndex, ctx.LastSwitch)
	}
	if e.Morphology() != "bigleg" {
		t.Errorf("morphology: want(bigleg) have(%v)", e.Morphology())
	}

	a := d.Anchor()
	if a.Refreshes() != 1 || !a.Active() || a.Snapshot().Timestep() != 64 {
		t.Errorf("anchor: want one refresh at 64, have %v refreshes",
			a.Refreshes())
	}

	if d.Returns().Episodes() == 0 {
		t.Errorf("no episodes finished")
	}
	if n := len(d.GoodPolicies().Policies()); n != 2 {
		t.Errorf("good policies: want(2) have(%v)", n)
	}

	for _, name := range []string{"test-returns.bin", "test-lengths.bin"} {
		if _, err := os.Stat(filepath.Join(c.OutputDir, name)); err != nil {
			t.Errorf("tracker data not saved: %v", err)
		}
	}

	// One checkpoint per iteration and a final one
	_, counter, err := checkpointer.Latest(c.Checkpoint.Dir, c.ExptID,
		CheckpointExt)
	if err != nil {
		t.Fatal(err)
	}
	if counter != 5 {
		t.Errorf("checkpoints: want(5) have(%v)", counter)
	}
}

func TestResume(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir, 96)
	d, e := newDriver(t, c)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("could not run: %v", err)
	}
	weights := d.Agent().Weights()
	anchorWeights := d.Anchor().Snapshot().Weights()
	d.Close()
	e.Close()

	c.TotalTimesteps = 160
	c.Checkpoint.Resume = true
	resumed, e := newDriver(t, c)
	defer e.Close()
	defer resumed.Close()

	ctx := resumed.Context()
	if ctx.Timestep != 96 || ctx.Iteration != 3 || ctx.TaskIndex != 1 {
		t.Fatalf("resumed at %v", &ctx)
	}
	if e.Morphology() != "bigleg" {
		t.Errorf("morphology: want(bigleg) have(%v)", e.Morphology())
	}
	if !resumed.Agent().Weights().Equal(weights) {
		t.Errorf("agent weights not restored")
	}
	a := resumed.Anchor()
	if !a.Active() || a.Refreshes() != 1 ||
		!a.Snapshot().Weights().Equal(anchorWeights) {
		t.Errorf("anchor not restored")
	}

	if err := resumed.Run(context.Background()); err != nil {
		t.Fatalf("could not run: %v", err)
	}
	if ctx := resumed.Context(); ctx.Timestep != 160 {
		t.Errorf("timestep: want(160) have(%v)", ctx.Timestep)
	}
	if a.Refreshes() != 1 {
		t.Errorf("resumed run refreshed the anchor again")
	}

	// Checkpoint numbering continues after the resumed checkpoint
	_, counter, err := checkpointer.Latest(c.Checkpoint.Dir, c.ExptID,
		CheckpointExt)
	if err != nil {
		t.Fatal(err)
	}
	if counter != 4+3 {
		t.Errorf("checkpoints: want(7) have(%v)", counter)
	}
}

func TestRunCheckpointsWhenSaveFails(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir, 32)

	// A file in place of the output directory makes tracker saves fail
	c.OutputDir = filepath.Join(dir, "blocked")
	if err := os.WriteFile(c.OutputDir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	d, e := newDriver(t, c)
	defer e.Close()
	defer d.Close()

	if err := d.Run(context.Background()); err == nil {
		t.Fatalf("want error from tracker save")
	}
	_, counter, err := checkpointer.Latest(c.Checkpoint.Dir, c.ExptID,
		CheckpointExt)
	if err != nil {
		t.Fatalf("no final checkpoint: %v", err)
	}
	if counter != 2 {
		t.Errorf("checkpoints: want(2) have(%v)", counter)
	}
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	c := testConfig(t, t.TempDir(), 64)
	c.Checkpoint.Resume = true
	d, e := newDriver(t, c)
	defer e.Close()
	defer d.Close()

	if ctx := d.Context(); ctx.Timestep != 0 || ctx.Iteration != 0 {
		t.Errorf("want fresh start, have %v", &ctx)
	}
}

func TestCancel(t *testing.T) {
	c := testConfig(t, t.TempDir(), 128)
	d, e := newDriver(t, c)
	defer e.Close()
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, have %v", err)
	}
	if d.Context().Iteration != 0 {
		t.Errorf("iterated after cancellation")
	}
	if _, _, err := checkpointer.Latest(c.Checkpoint.Dir, c.ExptID,
		CheckpointExt); err != nil {
		t.Errorf("no checkpoint after cancellation: %v", err)
	}
}

func TestNewDriverInvalidConfig(t *testing.T) {
	c := testConfig(t, t.TempDir(), 128)
	e, err := c.Environment.Create(0)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	c.Schedule[1].Threshold = 0
	if _, err := NewDriver(c, e, 0); !errors.Is(err,
		config.ErrConfiguration) {
		t.Errorf("want ErrConfiguration, have %v", err)
	}
}

func TestAnchorToGoodPolicy(t *testing.T) {
	c := testConfig(t, t.TempDir(), 96)
	c.Anchor.Source = anchor.LatestGoodPolicy
	c.GoodPolicyThreshold = 1e9
	d, e := newDriver(t, c)
	defer e.Close()
	defer d.Close()

	// Nothing trained reaches the threshold, so the planted policy is
	// the latest good one at the switch
	planted := d.Agent().Weights()
	planted[0].Data[0] += 1
	if !d.GoodPolicies().Add(GoodPolicy{Return: 2e9, Weights: planted}) {
		t.Fatal("could not store good policy")
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("could not run: %v", err)
	}
	a := d.Anchor()
	if a.Refreshes() != 1 || !a.Snapshot().Weights().Equal(planted) {
		t.Errorf("anchor not taken from the latest good policy")
	}
	if a.Snapshot().Weights().Equal(d.Agent().Weights()) {
		t.Errorf("anchor equals the trained policy")
	}
}

func TestAnchorToGoodPolicyFallback(t *testing.T) {
	c := testConfig(t, t.TempDir(), 96)
	c.Anchor.Source = anchor.LatestGoodPolicy
	c.GoodPolicyThreshold = 1e9
	d, e := newDriver(t, c)
	defer e.Close()
	defer d.Close()

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("could not run: %v", err)
	}
	if len(d.GoodPolicies().Policies()) != 0 {
		t.Fatalf("stored a policy below the threshold")
	}
	if a := d.Anchor(); a.Refreshes() != 1 || a.Snapshot().Timestep() != 64 {
		t.Errorf("want the current policy anchored at 64")
	}
}

func TestGoodPolicies(t *testing.T) {
	g := NewGoodPolicies(1.0, 2)
	if g.Add(GoodPolicy{Timestep: 1, Return: 0.5}) {
		t.Errorf("stored policy below threshold")
	}
	for i, ret := range []float64{2, 5, 3} {
		if !g.Add(GoodPolicy{Timestep: i + 2, Return: ret}) {
			t.Errorf("policy %v not stored", i)
		}
	}

	policies := g.Policies()
	if len(policies) != 2 || policies[0].Timestep != 4 ||
		policies[1].Timestep != 3 {
		t.Errorf("want the two most recent policies, have %+v", policies)
	}
	if latest, ok := g.Latest(); !ok || latest.Timestep != 4 {
		t.Errorf("latest: want(timestep 4) have(%+v)", latest)
	}
	if _, ok := NewGoodPolicies(0, 1).Latest(); ok {
		t.Errorf("latest policy reported with none stored")
	}
}
