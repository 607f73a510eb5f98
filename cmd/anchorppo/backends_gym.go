//go:build gym
// +build gym

package main

import (
	_ "github.com/samuelfneumann/anchorppo/environment/gym"
)
