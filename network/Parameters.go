package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Parameter is a detached copy of the value of a learnable node
type Parameter struct {
	Name  string
	Shape []int
	Data  []float64
}

// Parameters is a detached copy of the values of a set of learnable
// nodes. Parameters are gob and JSON serializable.
type Parameters []Parameter

// CopyParameters returns a copy of the values of the given learnables
func CopyParameters(learnables G.Nodes) Parameters {
	params := make(Parameters, len(learnables))
	for i, learnable := range learnables {
		data := learnable.Value().Data().([]float64)

		params[i] = Parameter{
			Name:  learnable.Name(),
			Shape: append([]int(nil), learnable.Shape()...),
			Data:  append([]float64(nil), data...),
		}
	}
	return params
}

// SetParameters sets the values of learnables to copies of params. The
// learnables and params must agree in number and shape.
func SetParameters(learnables G.Nodes, params Parameters) error {
	if len(learnables) != len(params) {
		return fmt.Errorf("setParameters: invalid number of parameters "+
			"\n\twant(%v) \n\thave(%v)", len(learnables), len(params))
	}

	for i, learnable := range learnables {
		if !learnable.Shape().Eq(tensor.Shape(params[i].Shape)) {
			return fmt.Errorf("setParameters: invalid shape for parameter "+
				"%v \n\twant(%v) \n\thave(%v)", learnable.Name(),
				learnable.Shape(), params[i].Shape)
		}

		value := tensor.New(
			tensor.WithShape(params[i].Shape...),
			tensor.WithBacking(append([]float64(nil), params[i].Data...)),
		)
		if err := G.Let(learnable, value); err != nil {
			return fmt.Errorf("setParameters: could not set parameter %v: %v",
				learnable.Name(), err)
		}
	}
	return nil
}

// Equal returns whether two sets of parameters hold identical values
func (p Parameters) Equal(other Parameters) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if len(p[i].Data) != len(other[i].Data) {
			return false
		}
		for j := range p[i].Data {
			if p[i].Data[j] != other[i].Data[j] {
				return false
			}
		}
	}
	return true
}
