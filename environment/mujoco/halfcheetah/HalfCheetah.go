//go:build mujoco
// +build mujoco

// Package halfcheetah implements the MuJoCo half cheetah, whose model
// can be swapped for another model while training.
package halfcheetah

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/anchorppo/environment"
	"github.com/samuelfneumann/anchorppo/environment/envconfig"
	"github.com/samuelfneumann/anchorppo/environment/mujoco/internal/mujocoenv"
	ts "github.com/samuelfneumann/anchorppo/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	FrameSkip           int     = 5
	ForwardRewardWeight float64 = 1.0
	CtrlCostWeight      float64 = 0.1
	ResetNoise          float64 = 0.1
)

// DefaultAssetDir holds the model XML files when no asset directory is
// configured
const DefaultAssetDir = "assets"

func init() {
	envconfig.Register(envconfig.MuJoCo, create)
}

func create(c envconfig.Config, seed uint64) (environment.Morphable, error) {
	dir := c.AssetDir
	if dir == "" {
		dir = DefaultAssetDir
	}
	h, _, err := New(dir, c.Morphology, c.EpisodeLength, c.Discount, seed)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// HalfCheetah is the MuJoCo half cheetah. Each morphology id names the
// model file <id>.xml in the asset directory.
type HalfCheetah struct {
	*mujocoenv.MujocoEnv

	assetDir   string
	morphology string
	discount   float64
	seed       uint64

	stepLimit environment.Ender
	starter   environment.Starter

	currentTimeStep ts.TimeStep
}

// New returns a new HalfCheetah using the model of morphology id,
// along with the first TimeStep of the first episode
func New(assetDir, id string, episodeLength int, discount float64,
	seed uint64) (*HalfCheetah, ts.TimeStep, error) {
	m, err := load(assetDir, id)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %w", err)
	}

	h := &HalfCheetah{
		MujocoEnv:  m,
		assetDir:   assetDir,
		morphology: id,
		discount:   discount,
		seed:       seed,
		stepLimit:  environment.NewStepLimit(episodeLength),
	}
	h.starter = newStarter(m, seed)

	step, err := h.Reset()
	if err != nil {
		h.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return h, step, nil
}

// load loads the model of morphology id
func load(assetDir, id string) (*mujocoenv.MujocoEnv, error) {
	filename := filepath.Join(assetDir, id+".xml")
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("load: %w %q: %v",
			environment.ErrInvalidMorphology, id, err)
	}
	return mujocoenv.NewMujocoEnv(filename, FrameSkip)
}

// newStarter returns a Starter sampling positions and velocities
// uniformly around the initial state of the model
func newStarter(m *mujocoenv.MujocoEnv, seed uint64) environment.Starter {
	bounds := make([]r1.Interval, m.Nq+m.Nv)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -ResetNoise, Max: ResetNoise}
	}
	return environment.NewUniformStarter(bounds, seed)
}

// Morphology returns the id of the current model
func (h *HalfCheetah) Morphology() string {
	return h.morphology
}

// SetMorphology swaps the model for that of morphology id. If both
// models have the same number of generalized coordinates, the current
// state is copied to the new model and the episode continues.
// Otherwise a new episode begins.
func (h *HalfCheetah) SetMorphology(id string) error {
	m, err := load(h.assetDir, id)
	if err != nil {
		return fmt.Errorf("setMorphology: %w", err)
	}

	old := h.MujocoEnv
	qpos, qvel := old.QPos(), old.QVel()
	sameShape := m.Nq == old.Nq && m.Nv == old.Nv && m.Nu == old.Nu

	h.MujocoEnv = m
	h.morphology = id
	old.Close()

	if !sameShape {
		h.starter = newStarter(m, h.seed)
		if _, err := h.Reset(); err != nil {
			return fmt.Errorf("setMorphology: %v", err)
		}
		h.currentTimeStep.Info.ImplicitReset = true
		return nil
	}

	if err := h.SetState(qpos, qvel); err != nil {
		return fmt.Errorf("setMorphology: %v", err)
	}
	h.currentTimeStep.Observation = h.getObs()
	h.currentTimeStep.Info.Morphology = id
	return nil
}

// CurrentTimeStep returns the last TimeStep of the environment
func (h *HalfCheetah) CurrentTimeStep() ts.TimeStep {
	return h.currentTimeStep
}

// Reset begins a new episode
func (h *HalfCheetah) Reset() (ts.TimeStep, error) {
	h.MujocoEnv.Reset()

	noise := h.starter.Start().RawVector().Data
	qpos := make([]float64, h.Nq)
	qvel := make([]float64, h.Nv)
	for i := range qpos {
		qpos[i] = h.InitQPos.AtVec(i) + noise[i]
	}
	for i := range qvel {
		qvel[i] = h.InitQVel.AtVec(i) + noise[h.Nq+i]
	}
	if err := h.SetState(qpos, qvel); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	step := ts.New(ts.First, 0, h.discount, h.getObs(), 0)
	step.Info.Morphology = h.morphology
	h.currentTimeStep = step
	return step, nil
}

// Step takes action in the environment
func (h *HalfCheetah) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	xBefore := h.QPos()[0]
	if err := h.DoSimulation(action, h.FrameSkip); err != nil {
		return ts.TimeStep{}, false, fmt.Errorf("step: %v", err)
	}
	xAfter := h.QPos()[0]

	ctrl := 0.0
	for i := 0; i < action.Len(); i++ {
		ctrl += math.Pow(action.AtVec(i), 2)
	}
	reward := ForwardRewardWeight*(xAfter-xBefore)/h.Dt() - CtrlCostWeight*ctrl

	step := ts.New(ts.Mid, reward, h.discount, h.getObs(),
		h.currentTimeStep.Number+1)
	step.Info.Morphology = h.morphology
	last := h.stepLimit.End(&step)
	h.currentTimeStep = step

	return step, last, nil
}

// getObs returns the positions without the x coordinate of the torso,
// followed by the velocities
func (h *HalfCheetah) getObs() *mat.VecDense {
	pos := h.QPos()
	return mat.NewVecDense(h.Nq-1+h.Nv, append(pos[1:], h.QVel()...))
}

// ObservationSpec returns the observation specification of the
// environment
func (h *HalfCheetah) ObservationSpec() environment.Spec {
	return environment.NewUnboundedSpec(h.Nq-1+h.Nv, environment.Observation)
}

// DiscountSpec returns the discount specification of the environment
func (h *HalfCheetah) DiscountSpec() environment.Spec {
	return environment.NewDiscountSpec(h.discount)
}

// Close releases the simulation
func (h *HalfCheetah) Close() error {
	return h.MujocoEnv.Close()
}
