// Package matutils implements utility function for working with mat.Matrix
// structs
package matutils

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Format formats a matrix for printing
func Format(X mat.Matrix) string {
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	return fmt.Sprintf("%v", fa)
}

// VecClip performs an element-wise clipping of a vector's values such
// that each value is at least min and at most max
func VecClip(a *mat.VecDense, min, max float64) {
	for i := 0; i < a.Len(); i++ {
		value := a.AtVec(i)

		if value < min {
			a.SetVec(i, min)
		} else if value > max {
			a.SetVec(i, max)
		}
	}
}

// VecClipBounds performs an element-wise clipping of a vector's values
// such that each value a[i] is in [low[i], high[i]]
func VecClipBounds(a *mat.VecDense, low, high mat.Vector) {
	if a.Len() != low.Len() || a.Len() != high.Len() {
		panic(fmt.Sprintf("vecClipBounds: bounds of length (%v, %v) for "+
			"vector of length %v", low.Len(), high.Len(), a.Len()))
	}
	for i := 0; i < a.Len(); i++ {
		value := a.AtVec(i)

		if value < low.AtVec(i) {
			a.SetVec(i, low.AtVec(i))
		} else if value > high.AtVec(i) {
			a.SetVec(i, high.AtVec(i))
		}
	}
}

// VecOnes returns a vector of 1.0's
func VecOnes(length int) *mat.VecDense {
	oneSlice := make([]float64, length)
	for i := 0; i < length; i++ {
		oneSlice[i] = 1.0
	}
	return mat.NewVecDense(length, oneSlice)
}
