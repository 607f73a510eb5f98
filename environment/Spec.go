package environment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match upper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// NewUnboundedSpec returns a continuous Spec of the given length whose
// bounds are ±∞
func NewUnboundedSpec(length int, t SpecType) Spec {
	low := make([]float64, length)
	high := make([]float64, length)
	for i := range high {
		low[i] = math.Inf(-1)
		high[i] = math.Inf(1)
	}

	return NewSpec(mat.NewVecDense(length, nil), t,
		mat.NewVecDense(length, low), mat.NewVecDense(length, high),
		Continuous)
}

// NewDiscountSpec returns the Spec of a constant discount
func NewDiscountSpec(discount float64) Spec {
	bounds := mat.NewVecDense(1, []float64{discount})

	return NewSpec(mat.NewVecDense(1, nil), Discount, bounds, bounds,
		Continuous)
}
