package experiment

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/anchorppo/agent/ppo"
	"github.com/samuelfneumann/anchorppo/anchor"
	"github.com/samuelfneumann/anchorppo/buffer/gae"
	"github.com/samuelfneumann/anchorppo/config"
	env "github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/experiment/checkpointer"
	"github.com/samuelfneumann/anchorppo/experiment/trackers"
	"github.com/samuelfneumann/anchorppo/network"
	"github.com/samuelfneumann/anchorppo/schedule"
	"github.com/samuelfneumann/anchorppo/utils/progressbar"
	"gonum.org/v1/gonum/stat"
)

// CheckpointExt is the file extension of checkpoints
const CheckpointExt = ".ckpt"

// State is the training state saved in a checkpoint
type State struct {
	Context      Context
	Weights      network.Parameters
	Anchor       *anchor.Snapshot // nil before the first task switch
	Refreshes    int
	GoodPolicies []GoodPolicy
}

// Driver runs a training experiment. Each iteration it performs any
// scheduled task switch, collects a rollout, estimates advantages, and
// updates the agent. A Driver is not safe for concurrent use.
type Driver struct {
	cfg config.Config
	env env.Morphable

	agent     *ppo.PPO
	anchor    *anchor.Manager
	scheduler *schedule.Scheduler
	collector *Collector
	good      *GoodPolicies
	ctx       *Context

	returns *trackers.Return
	lengths *trackers.EpisodeLength

	nextCheckpoint func() string
	checkpointer   checkpointer.Checkpointer // nil if not checkpointing
	progress       *progressbar.ManualProgressBar
}

// NewDriver returns a new Driver training in e, which should have the
// initial morphology of the schedule. If the configuration asks to
// resume, the newest checkpoint of the experiment is restored. If there
// is no checkpoint, training starts from scratch.
func NewDriver(cfg config.Config, e env.Morphable, seed uint64) (*Driver,
	error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("newDriver: %w", err)
	}

	scheduler, err := schedule.New(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("newDriver: %w", err)
	}
	if initial := scheduler.Initial().Morphology; e.Morphology() != initial {
		if err := e.SetMorphology(initial); err != nil {
			return nil, fmt.Errorf("newDriver: %w", err)
		}
	}

	features := e.ObservationSpec().Shape.Len()
	actionDims := e.ActionSpec().Shape.Len()
	agent, err := ppo.New(features, actionDims, cfg.Agent, seed)
	if err != nil {
		return nil, fmt.Errorf("newDriver: %w", err)
	}

	manager, err := anchor.NewManager(cfg.Anchor)
	if err != nil {
		return nil, fmt.Errorf("newDriver: %w", err)
	}

	prefix := filepath.Join(cfg.OutputDir, cfg.ExptID)
	returns := trackers.NewReturn(prefix + "-returns.bin")
	lengths := trackers.NewEpisodeLength(prefix + "-lengths.bin")

	collector, err := NewCollector(e, agent.Behaviour(), cfg.Agent.Gamma,
		returns, lengths)
	if err != nil {
		return nil, fmt.Errorf("newDriver: %v", err)
	}

	d := &Driver{
		cfg:       cfg,
		env:       e,
		agent:     agent,
		anchor:    manager,
		scheduler: scheduler,
		collector: collector,
		good:      NewGoodPolicies(cfg.GoodPolicyThreshold, cfg.GoodPolicies),
		ctx:       NewContext(),
		returns:   returns,
		lengths:   lengths,
	}

	if err := d.setupCheckpoints(); err != nil {
		return nil, fmt.Errorf("newDriver: %w", err)
	}

	if cfg.ProgressBar {
		d.progress = progressbar.NewManualProgressBar(os.Stderr, 50,
			cfg.TotalTimesteps)
		d.progress.Set(d.ctx.Timestep)
	}
	return d, nil
}

// setupCheckpoints creates the checkpointer and, if needed, resumes
// from the newest checkpoint
func (d *Driver) setupCheckpoints() error {
	c := d.cfg.Checkpoint
	if c.Dir == "" {
		return nil
	}

	start := 0
	if c.Resume {
		filename, counter, err := checkpointer.Latest(c.Dir, d.cfg.ExptID,
			CheckpointExt)
		switch {
		case errors.Is(err, checkpointer.ErrNoCheckpoint):
			log.Printf("no checkpoint for %v in %v, starting from scratch",
				d.cfg.ExptID, c.Dir)
		case err != nil:
			return fmt.Errorf("setupCheckpoints: %v", err)
		default:
			if err := checkpointer.Load(filename, d); err != nil {
				return fmt.Errorf("setupCheckpoints: %v", err)
			}
			start = counter
			log.Printf("resumed from %v: %v", filename, d.ctx)
		}
	}

	d.nextCheckpoint = checkpointer.FilenameEnumerator(start,
		filepath.Join(c.Dir, d.cfg.ExptID+"-"), CheckpointExt)
	if c.Every > 0 {
		var err error
		d.checkpointer, err = checkpointer.NewNStep(c.Every, d,
			d.nextCheckpoint)
		if err != nil {
			return fmt.Errorf("setupCheckpoints: %v", err)
		}
	}
	return nil
}

// Context returns the progress of the run
func (d *Driver) Context() Context {
	return *d.ctx
}

// Agent returns the agent being trained
func (d *Driver) Agent() *ppo.PPO {
	return d.agent
}

// Anchor returns the anchor Manager of the agent
func (d *Driver) Anchor() *anchor.Manager {
	return d.anchor
}

// GoodPolicies returns the good policies found so far
func (d *Driver) GoodPolicies() *GoodPolicies {
	return d.good
}

// Returns returns the episode return tracker
func (d *Driver) Returns() *trackers.Return {
	return d.returns
}

// Run trains until the configured number of timesteps is reached. The
// last iteration may run past the limit to complete its rollout.
//
// Cancelling ctx stops training between iterations. The training state
// is then checkpointed and an error wrapping ctx.Err() is returned.
func (d *Driver) Run(ctx context.Context) error {
	for d.ctx.Timestep < d.cfg.TotalTimesteps {
		select {
		case <-ctx.Done():
			if _, err := d.Checkpoint(); err != nil {
				log.Printf("could not checkpoint: %v", err)
			}
			return fmt.Errorf("run: stopped at %v: %w", d.ctx, ctx.Err())
		default:
		}

		if err := d.Iterate(); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}

	if d.progress != nil {
		fmt.Fprintln(os.Stderr)
	}
	saveErr := d.Save()
	if _, err := d.Checkpoint(); err != nil {
		if saveErr != nil {
			log.Printf("could not save trackers: %v", saveErr)
		}
		return fmt.Errorf("run: %v", err)
	}
	if saveErr != nil {
		return fmt.Errorf("run: %v", saveErr)
	}
	return nil
}

// refreshAnchor takes a new anchor from the configured source
func (d *Driver) refreshAnchor() error {
	net := d.agent.Network()
	if d.anchor.Source() == anchor.LatestGoodPolicy {
		if p, ok := d.good.Latest(); ok {
			log.Printf("timestep %d: anchoring to good policy from timestep "+
				"%d with return %.2f", d.ctx.Timestep, p.Timestep, p.Return)
			return d.anchor.RefreshWeights(net, p.Weights, d.ctx.Timestep)
		}
	}
	return d.anchor.Refresh(net, d.ctx.Timestep)
}

// Iterate runs a single training iteration
func (d *Driver) Iterate() error {
	switched, err := d.scheduler.Update(d.ctx.Timestep, d.env,
		d.refreshAnchor)
	if err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	if switched {
		d.ctx.TaskIndex = d.scheduler.TaskIndex()
		d.ctx.LastSwitch = d.ctx.Timestep
		d.collector.Restart()
		log.Printf("timestep %d: switched to task %d (%v), anchor refreshed",
			d.ctx.Timestep, d.ctx.TaskIndex, d.scheduler.Task().Morphology)
	}

	episodes := d.returns.Episodes()
	r, lastValue, err := d.collector.Collect(d.ctx, d.cfg.Agent.Horizon)
	if err != nil {
		return fmt.Errorf("iterate: %w", err)
	}

	batch, err := gae.Estimate(r, lastValue, d.cfg.Agent.Gamma,
		d.cfg.Agent.Lambda)
	if err != nil {
		return fmt.Errorf("iterate: %w", err)
	}

	metrics, err := d.agent.Update(r, batch, d.anchor, d.ctx.Timestep)
	if err != nil {
		return fmt.Errorf("iterate: timestep %d: %w", d.ctx.Timestep, err)
	}
	d.ctx.Iteration++

	finished := d.returns.Returns(episodes)
	if len(finished) > 0 {
		meanReturn := stat.Mean(finished, nil)
		stored := d.good.Add(GoodPolicy{
			Timestep:  d.ctx.Timestep,
			TaskIndex: d.ctx.TaskIndex,
			Return:    meanReturn,
			Weights:   d.agent.Weights(),
		})
		if stored {
			log.Printf("timestep %d: stored good policy with return %.2f",
				d.ctx.Timestep, meanReturn)
		}
	}

	if d.cfg.LogInterval > 0 && d.ctx.Iteration%d.cfg.LogInterval == 0 {
		var meanReturn float64
		if len(finished) > 0 {
			meanReturn = stat.Mean(finished, nil)
		}
		log.Printf("iteration %d timestep %d task %d episodes %d return "+
			"%.2f: %v", d.ctx.Iteration, d.ctx.Timestep, d.ctx.TaskIndex,
			len(finished), meanReturn, metrics)
	}

	if d.checkpointer != nil {
		if _, err := d.checkpointer.Checkpoint(d.ctx.Iteration); err != nil {
			return fmt.Errorf("iterate: %v", err)
		}
	}

	if d.progress != nil {
		d.progress.Set(d.ctx.Timestep)
		d.progress.Display()
	}
	return nil
}

// Checkpoint saves the training state, returning the name of the file
// written. If no checkpoint directory is configured, nothing is saved.
func (d *Driver) Checkpoint() (string, error) {
	if d.nextCheckpoint == nil {
		return "", nil
	}

	filename := d.nextCheckpoint()
	if err := checkpointer.Save(filename, d); err != nil {
		return "", fmt.Errorf("checkpoint: %v", err)
	}
	return filename, nil
}

// Save saves the data of all trackers
func (d *Driver) Save() error {
	if err := d.returns.Save(); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := d.lengths.Save(); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Close releases the resources of the Driver. The environment is not
// closed.
func (d *Driver) Close() error {
	return d.agent.Close()
}

// GobEncode implements the gob.GobEncoder interface
func (d *Driver) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(State{
		Context:      *d.ctx,
		Weights:      d.agent.Weights(),
		Anchor:       d.anchor.Snapshot(),
		Refreshes:    d.anchor.Refreshes(),
		GoodPolicies: d.good.Policies(),
	})
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The Driver is
// restored to the decoded State, including the morphology of the
// environment.
func (d *Driver) GobDecode(in []byte) error {
	var s State
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&s); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	if err := d.agent.SetWeights(s.Weights); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if err := d.scheduler.Restore(s.Context.TaskIndex); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	morphology := d.scheduler.Task().Morphology
	if d.env.Morphology() != morphology {
		if err := d.env.SetMorphology(morphology); err != nil {
			return fmt.Errorf("gobDecode: %w", err)
		}
	}
	d.collector.Restart()

	if err := d.anchor.Restore(s.Anchor, s.Refreshes); err != nil {
		log.Printf("gobDecode: %v", err)
	}
	d.good.restore(s.GoodPolicies)

	ctx := s.Context
	d.ctx = &ctx
	return nil
}
