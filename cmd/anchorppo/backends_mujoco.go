//go:build mujoco
// +build mujoco

package main

import (
	_ "github.com/samuelfneumann/anchorppo/environment/mujoco/halfcheetah"
)
