package environment

import (
	"fmt"

	ts "github.com/samuelfneumann/anchorppo/timestep"
	"gonum.org/v1/gonum/spatial/r1"
)

// IntervalLimit implements the Ender interface to end episodes
// whenever a single feature in an observation leaves some interval
type IntervalLimit struct {
	intervals []r1.Interval
	indices   []int
	endType   ts.EndType
}

// NewIntervalLimit creates and returns a new inteval limit. The endType
// argument determines what the episode end should be considered as.
func NewIntervalLimit(limits []r1.Interval, obsIndices []int,
	endType ts.EndType) (*IntervalLimit, error) {
	if len(limits) != len(obsIndices) {
		return nil, fmt.Errorf("newIntervalLimit: limits should have same "+
			"length as observation indices \n\twant(%v) \n\thave(%v)",
			len(obsIndices), len(limits))
	}

	return &IntervalLimit{limits, obsIndices, endType}, nil
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode temrination. If the episode
// should be ended End() will modify the timestep so that it is the
// last in the episode with the IntervalLimit's end type.
func (i *IntervalLimit) End(t *ts.TimeStep) bool {
	for index := range i.indices {
		featureIndex := i.indices[index]
		interval := i.intervals[index]

		value := t.Observation.AtVec(featureIndex)
		if value > interval.Max || value < interval.Min {
			t.SetEnd(i.endType)
			return true
		}
	}
	return false
}
