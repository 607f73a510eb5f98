package cheetah

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/anchorppo/environment"
)

// Built-in morphologies
const (
	Vanilla = "vanilla"
	BigLeg  = "bigleg"
)

// Segment describes a single rigid body of the cheetah. For leg
// segments, Lower, Upper, and MaxTorque describe the revolute joint
// attaching the segment to its parent.
type Segment struct {
	Length  float64
	Radius  float64
	Density float64

	Lower     float64
	Upper     float64
	MaxTorque float64
}

// validate ensures the segment can be simulated
func (s Segment) validate(name string, joint bool) error {
	if s.Length <= 0 || s.Radius <= 0 || s.Density <= 0 {
		return fmt.Errorf("segment %v: length, radius, and density must be "+
			"positive", name)
	}
	if joint && s.Lower >= s.Upper {
		return fmt.Errorf("segment %v: lower joint limit %v must be "+
			"below upper joint limit %v", name, s.Lower, s.Upper)
	}
	if joint && s.MaxTorque <= 0 {
		return fmt.Errorf("segment %v: maximum torque must be positive", name)
	}
	return nil
}

// Morphology describes the body of a cheetah. Back and Front hold the
// thigh, shin, and foot of each leg in that order.
type Morphology struct {
	Name     string
	Torso    Segment
	Back     [3]Segment
	Front    [3]Segment
	Friction float64
}

// Validate returns an error if the Morphology cannot be simulated
func (m Morphology) Validate() error {
	if err := m.Torso.validate("torso", false); err != nil {
		return err
	}
	for i := range m.Back {
		if err := m.Back[i].validate(segmentNames[i], true); err != nil {
			return err
		}
		if err := m.Front[i].validate(segmentNames[i+3], true); err != nil {
			return err
		}
	}
	if m.Friction < 0 {
		return fmt.Errorf("friction must be non-negative")
	}
	return nil
}

// segment returns the leg segment actuated by joint i
func (m Morphology) segment(i int) Segment {
	if i < 3 {
		return m.Back[i]
	}
	return m.Front[i-3]
}

// legLength returns the total length of the back and front legs
func (m Morphology) legLength() (float64, float64) {
	var back, front float64
	for i := range m.Back {
		back += m.Back[i].Length
		front += m.Front[i].Length
	}
	return back, front
}

var segmentNames = [ActionDims]string{
	"bthigh", "bshin", "bfoot", "fthigh", "fshin", "ffoot",
}

// VanillaMorphology returns the default half cheetah body. Dimensions
// and joint ranges follow the MuJoCo half cheetah.
func VanillaMorphology() Morphology {
	return Morphology{
		Name:  Vanilla,
		Torso: Segment{Length: 1.0, Radius: 0.046, Density: 70},
		Back: [3]Segment{
			{Length: 0.29, Radius: 0.046, Density: 70, Lower: -0.52,
				Upper: 1.05, MaxTorque: 120},
			{Length: 0.30, Radius: 0.046, Density: 70, Lower: -0.785,
				Upper: 0.785, MaxTorque: 90},
			{Length: 0.188, Radius: 0.046, Density: 70, Lower: -0.4,
				Upper: 0.785, MaxTorque: 60},
		},
		Front: [3]Segment{
			{Length: 0.266, Radius: 0.046, Density: 70, Lower: -1.0,
				Upper: 0.7, MaxTorque: 120},
			{Length: 0.212, Radius: 0.046, Density: 70, Lower: -1.2,
				Upper: 0.87, MaxTorque: 60},
			{Length: 0.14, Radius: 0.046, Density: 70, Lower: -0.5,
				Upper: 0.5, MaxTorque: 30},
		},
		Friction: 0.4,
	}
}

// BigLegMorphology returns a half cheetah whose back thigh and shin
// are 1.5 times longer than those of the vanilla body.
func BigLegMorphology() Morphology {
	m := VanillaMorphology()
	m.Name = BigLeg
	m.Back[0].Length *= 1.5
	m.Back[1].Length *= 1.5
	return m
}

// LoadMorphology returns the Morphology with the given id. Built-in
// morphologies are checked first, then <dir>/<id>.json if dir is not
// empty. An unknown id results in an error wrapping
// environment.ErrInvalidMorphology.
func LoadMorphology(dir, id string) (Morphology, error) {
	switch id {
	case Vanilla:
		return VanillaMorphology(), nil
	case BigLeg:
		return BigLegMorphology(), nil
	}

	if dir == "" {
		return Morphology{}, fmt.Errorf("loadMorphology: %w: %q",
			environment.ErrInvalidMorphology, id)
	}

	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if os.IsNotExist(err) {
		return Morphology{}, fmt.Errorf("loadMorphology: %w: %q",
			environment.ErrInvalidMorphology, id)
	} else if err != nil {
		return Morphology{}, fmt.Errorf("loadMorphology: could not read "+
			"morphology %q: %v", id, err)
	}

	var m Morphology
	if err := json.Unmarshal(data, &m); err != nil {
		return Morphology{}, fmt.Errorf("loadMorphology: %w: could not "+
			"decode %q: %v", environment.ErrInvalidMorphology, id, err)
	}
	if err := m.Validate(); err != nil {
		return Morphology{}, fmt.Errorf("loadMorphology: %w: %q: %v",
			environment.ErrInvalidMorphology, id, err)
	}
	m.Name = id

	return m, nil
}
