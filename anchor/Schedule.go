package anchor

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// ScheduleType describes the different anchor weight schedules that
// are available
type ScheduleType string

// Available schedule types
const (
	Constant         ScheduleType = "Constant"
	ExponentialDecay ScheduleType = "ExponentialDecay"
	LinearDecay      ScheduleType = "LinearDecay"
)

// ScheduleConfig describes how the anchor weight changes with the
// number of timesteps since the anchor was last refreshed
type ScheduleConfig interface {
	// At returns the anchor weight elapsed timesteps after the last
	// refresh
	At(elapsed int) float64

	Validate() error

	// ValidType returns whether a specific schedule type can be
	// created with the config
	ValidType(ScheduleType) bool
}

// WeightSchedule wraps a ScheduleConfig so that it can be JSON
// marshalled and unmarshalled
type WeightSchedule struct {
	Type ScheduleType
	ScheduleConfig
}

func newWeightSchedule(t ScheduleType, c ScheduleConfig) (*WeightSchedule,
	error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newWeightSchedule: invalid schedule type %v "+
			"for configuration %T", t, c)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newWeightSchedule: %v", err)
	}
	return &WeightSchedule{Type: t, ScheduleConfig: c}, nil
}

// MarshalJSON implements the json.Marshaler interface
func (w *WeightSchedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   ScheduleType
		Config ScheduleConfig
	}{w.Type, w.ScheduleConfig})
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (w *WeightSchedule) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	var typeName ScheduleType
	if err := json.Unmarshal(m["Type"], &typeName); err != nil {
		return fmt.Errorf("unmarshalJSON: invalid schedule type: %v", err)
	}

	types := map[ScheduleType]reflect.Type{
		Constant:         reflect.TypeOf(ConstantConfig{}),
		ExponentialDecay: reflect.TypeOf(ExponentialDecayConfig{}),
		LinearDecay:      reflect.TypeOf(LinearDecayConfig{}),
	}
	ty, ok := types[typeName]
	if !ok {
		return fmt.Errorf("unmarshalJSON: unknown schedule type %q", typeName)
	}

	value := reflect.New(ty).Interface()
	if config, ok := m["Config"]; ok {
		if err := json.Unmarshal(config, value); err != nil {
			return fmt.Errorf("unmarshalJSON: %v", err)
		}
	}
	config := reflect.ValueOf(value).Elem().Interface().(ScheduleConfig)

	schedule, err := newWeightSchedule(typeName, config)
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	*w = *schedule
	return nil
}

// ConstantConfig keeps the anchor weight fixed
type ConstantConfig struct {
	Weight float64
}

// NewConstant returns a schedule which always uses weight
func NewConstant(weight float64) (*WeightSchedule, error) {
	return newWeightSchedule(Constant, ConstantConfig{Weight: weight})
}

// At implements the ScheduleConfig interface
func (c ConstantConfig) At(int) float64 {
	return c.Weight
}

// Validate implements the ScheduleConfig interface
func (c ConstantConfig) Validate() error {
	if c.Weight < 0 {
		return fmt.Errorf("validate: weight must be non-negative")
	}
	return nil
}

// ValidType implements the ScheduleConfig interface
func (c ConstantConfig) ValidType(t ScheduleType) bool {
	return t == Constant
}

// ExponentialDecayConfig decays the anchor weight from Initial towards
// Final, halving the difference every HalfLife timesteps
type ExponentialDecayConfig struct {
	Initial  float64
	Final    float64
	HalfLife float64
}

// NewExponentialDecay returns a schedule which decays the anchor
// weight exponentially
func NewExponentialDecay(initial, final, halfLife float64) (*WeightSchedule,
	error) {
	return newWeightSchedule(ExponentialDecay, ExponentialDecayConfig{
		Initial:  initial,
		Final:    final,
		HalfLife: halfLife,
	})
}

// At implements the ScheduleConfig interface
func (e ExponentialDecayConfig) At(elapsed int) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	decay := math.Exp2(-float64(elapsed) / e.HalfLife)
	return e.Final + (e.Initial-e.Final)*decay
}

// Validate implements the ScheduleConfig interface
func (e ExponentialDecayConfig) Validate() error {
	if e.Initial < 0 || e.Final < 0 {
		return fmt.Errorf("validate: weights must be non-negative")
	}
	if e.HalfLife <= 0 {
		return fmt.Errorf("validate: half life must be positive")
	}
	return nil
}

// ValidType implements the ScheduleConfig interface
func (e ExponentialDecayConfig) ValidType(t ScheduleType) bool {
	return t == ExponentialDecay
}

// LinearDecayConfig moves the anchor weight linearly from Initial to
// Final over Duration timesteps, after which it stays at Final
type LinearDecayConfig struct {
	Initial  float64
	Final    float64
	Duration int
}

// NewLinearDecay returns a schedule which decays the anchor weight
// linearly
func NewLinearDecay(initial, final float64, duration int) (*WeightSchedule,
	error) {
	return newWeightSchedule(LinearDecay, LinearDecayConfig{
		Initial:  initial,
		Final:    final,
		Duration: duration,
	})
}

// At implements the ScheduleConfig interface
func (l LinearDecayConfig) At(elapsed int) float64 {
	if elapsed <= 0 {
		return l.Initial
	}
	if elapsed >= l.Duration {
		return l.Final
	}
	frac := float64(elapsed) / float64(l.Duration)
	return l.Initial + frac*(l.Final-l.Initial)
}

// Validate implements the ScheduleConfig interface
func (l LinearDecayConfig) Validate() error {
	if l.Initial < 0 || l.Final < 0 {
		return fmt.Errorf("validate: weights must be non-negative")
	}
	if l.Duration <= 0 {
		return fmt.Errorf("validate: duration must be positive")
	}
	return nil
}

// ValidType implements the ScheduleConfig interface
func (l LinearDecayConfig) ValidType(t ScheduleType) bool {
	return t == LinearDecay
}
