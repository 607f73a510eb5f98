//go:build mujoco
// +build mujoco

// Package mujocoenv wraps MuJoCo models and data for environments
// simulated with MuJoCo. Building with the mujoco tag requires the
// MuJoCo headers and library to be visible to cgo, for example through
// CGO_CFLAGS and CGO_LDFLAGS.
package mujocoenv

// #cgo LDFLAGS: -lmujoco
// #include <mujoco/mujoco.h>
// #include <stdlib.h>
//
// void setQPos(mjData* data, double* positions, int len) {
// 	for (int i = 0; i < len; i++) {
// 		data->qpos[i] = positions[i];
// 	}
// }
//
// void setQVel(mjData* data, double* velocities, int len) {
// 	for (int i = 0; i < len; i++) {
// 		data->qvel[i] = velocities[i];
// 	}
// }
//
// void setCtrl(mjData* data, double* ctrl, int len) {
// 	for (int i = 0; i < len; i++) {
// 		data->ctrl[i] = ctrl[i];
// 	}
// }
import "C"

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/samuelfneumann/anchorppo/environment"
	"gonum.org/v1/gonum/mat"
)

// MujocoEnv holds a MuJoCo model and its simulation data
type MujocoEnv struct {
	FrameSkip int
	Model     *C.mjModel
	Data      *C.mjData

	InitQPos *mat.VecDense
	InitQVel *mat.VecDense

	Nu, Nv, Nq int
}

// NewMujocoEnv loads the model described by the XML file at xmlPath.
// Each step of the environment simulates frameSkip MuJoCo steps.
func NewMujocoEnv(xmlPath string, frameSkip int) (*MujocoEnv, error) {
	if frameSkip <= 0 {
		return nil, fmt.Errorf("newMujocoEnv: frame skip must be positive")
	}
	if _, err := os.Stat(xmlPath); err != nil {
		return nil, fmt.Errorf("newMujocoEnv: %v", err)
	}

	model, data, err := loadXML(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("newMujocoEnv: could not load XML: %v", err)
	}

	nq := int(model.nq)
	nv := int(model.nv)
	initQPos := F64SliceC2Go(data.qpos, nq)
	initQVel := F64SliceC2Go(data.qvel, nv)

	return &MujocoEnv{
		FrameSkip: frameSkip,
		Model:     model,
		Data:      data,
		Nu:        int(model.nu),
		Nv:        nv,
		Nq:        nq,
		InitQPos:  mat.NewVecDense(nq, initQPos),
		InitQVel:  mat.NewVecDense(nv, initQVel),
	}, nil
}

// Reset resets the simulation data to the model defaults
func (m *MujocoEnv) Reset() {
	C.mj_resetData(m.Model, m.Data)
}

// QPos returns a copy of the generalized positions
func (m *MujocoEnv) QPos() []float64 {
	return F64SliceC2Go(m.Data.qpos, m.Nq)
}

// QVel returns a copy of the generalized velocities
func (m *MujocoEnv) QVel() []float64 {
	return F64SliceC2Go(m.Data.qvel, m.Nv)
}

// SetState sets the generalized positions and velocities
func (m *MujocoEnv) SetState(qpos, qvel []float64) error {
	if len(qpos) != m.Nq {
		return fmt.Errorf("setState: invalid position dimensions \n\t"+
			"want(%v) \n\thave(%v)", m.Nq, len(qpos))
	}
	if len(qvel) != m.Nv {
		return fmt.Errorf("setState: invalid velocity dimensions \n\t"+
			"want(%v) \n\thave(%v)", m.Nv, len(qvel))
	}

	C.setQPos(m.Data, (*C.double)(unsafe.Pointer(&qpos[0])), C.int(len(qpos)))
	C.setQVel(m.Data, (*C.double)(unsafe.Pointer(&qvel[0])), C.int(len(qvel)))

	C.mj_forward(m.Model, m.Data)
	return nil
}

// Dt returns the simulated time of a single environment step
func (m *MujocoEnv) Dt() float64 {
	return float64(m.Model.opt.timestep) * float64(m.FrameSkip)
}

// DoSimulation applies control for nFrames MuJoCo steps
func (m *MujocoEnv) DoSimulation(control mat.Vector, nFrames int) error {
	if control.Len() != m.Nu {
		return fmt.Errorf("doSimulation: invalid control dimensions \n\t"+
			"want(%v) \n\thave(%v)", m.Nu, control.Len())
	}

	action := make([]float64, control.Len())
	for i := range action {
		action[i] = control.AtVec(i)
	}
	C.setCtrl(m.Data, (*C.double)(unsafe.Pointer(&action[0])),
		C.int(len(action)))

	for i := 0; i < nFrames; i++ {
		C.mj_step(m.Model, m.Data)
	}
	return nil
}

// ActionSpec returns the action specification given by the actuator
// control ranges of the model
func (m *MujocoEnv) ActionSpec() environment.Spec {
	bounds := F64SliceC2Go(m.Model.actuator_ctrlrange, m.Nu*2)

	low := make([]float64, m.Nu)
	high := make([]float64, m.Nu)
	for i := 0; i < m.Nu; i++ {
		low[i] = bounds[2*i]
		high[i] = bounds[2*i+1]
	}

	return environment.NewSpec(mat.NewVecDense(m.Nu, nil), environment.Action,
		mat.NewVecDense(m.Nu, low), mat.NewVecDense(m.Nu, high),
		environment.Continuous)
}

// Close releases the model and data
func (m *MujocoEnv) Close() error {
	C.mj_deleteData(m.Data)
	C.mj_deleteModel(m.Model)
	m.Data, m.Model = nil, nil
	return nil
}
