// Package schedule implements a fixed schedule of tasks, where each
// task is a morphology of the environment that becomes active once the
// global timestep reaches the task's threshold.
package schedule

import (
	"fmt"
)

// Entry is a single task of a schedule
type Entry struct {
	Threshold  int    // Timestep at which the task starts
	Morphology string // Morphology of the environment for the task
}

// Switcher is an environment whose morphology can be switched
type Switcher interface {
	SetMorphology(id string) error
}

// Scheduler steps through a fixed list of tasks as the global timestep
// advances. Once the final task is reached, the schedule is exhausted
// and no further switches occur.
type Scheduler struct {
	entries []Entry
	current int
}

// New returns a new Scheduler starting at the first entry. Entries
// must be sorted by strictly increasing threshold, and the first entry
// must start at timestep 0.
func New(entries []Entry) (*Scheduler, error) {
	if err := Validate(entries); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return &Scheduler{entries: append([]Entry(nil), entries...)}, nil
}

// Validate returns an error if entries do not form a valid schedule
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("validate: schedule has no entries")
	}
	if entries[0].Threshold != 0 {
		return fmt.Errorf("validate: first task must start at timestep 0"+
			"\n\twant(0) \n\thave(%v)", entries[0].Threshold)
	}
	for i, e := range entries {
		if e.Morphology == "" {
			return fmt.Errorf("validate: entry %v has no morphology", i)
		}
		if i > 0 && e.Threshold <= entries[i-1].Threshold {
			return fmt.Errorf("validate: thresholds must be strictly "+
				"increasing, entry %v at %v follows %v", i, e.Threshold,
				entries[i-1].Threshold)
		}
	}
	return nil
}

// Initial returns the first task
func (s *Scheduler) Initial() Entry {
	return s.entries[0]
}

// Task returns the current task
func (s *Scheduler) Task() Entry {
	return s.entries[s.current]
}

// TaskIndex returns the index of the current task
func (s *Scheduler) TaskIndex() int {
	return s.current
}

// Len returns the number of tasks in the schedule
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the schedule
func (s *Scheduler) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Exhausted returns whether the final task has been reached
func (s *Scheduler) Exhausted() bool {
	return s.current == len(s.entries)-1
}

// Next returns the next task, if there is one
func (s *Scheduler) Next() (Entry, bool) {
	if s.Exhausted() {
		return Entry{}, false
	}
	return s.entries[s.current+1], true
}

// Update switches to the next task if timestep has reached its
// threshold. Switching first sets the morphology of env and then calls
// refresh, so that refresh sees the parameters as they were before the
// switch. At most one switch happens per call.
//
// If either step fails, the task index is not advanced. A failed
// refresh switches env back to the morphology of the current task, so
// that env and schedule agree on the task.
func (s *Scheduler) Update(timestep int, env Switcher,
	refresh func() error) (bool, error) {
	next, ok := s.Next()
	if !ok || timestep < next.Threshold {
		return false, nil
	}

	if err := env.SetMorphology(next.Morphology); err != nil {
		return false, fmt.Errorf("update: could not switch to task %v at "+
			"timestep %v: %w", s.current+1, timestep, err)
	}
	if refresh != nil {
		if err := refresh(); err != nil {
			revertErr := env.SetMorphology(s.Task().Morphology)
			if revertErr != nil {
				return false, fmt.Errorf("update: could not refresh after "+
					"switching to task %v: %w (could not switch back: %v)",
					s.current+1, err, revertErr)
			}
			return false, fmt.Errorf("update: could not refresh after "+
				"switching to task %v: %w", s.current+1, err)
		}
	}

	s.current++
	return true, nil
}

// Restore sets the current task, for resuming from a checkpoint. The
// environment is not changed.
func (s *Scheduler) Restore(taskIndex int) error {
	if taskIndex < 0 || taskIndex >= len(s.entries) {
		return fmt.Errorf("restore: task index %v out of range [0, %v)",
			taskIndex, len(s.entries))
	}
	s.current = taskIndex
	return nil
}
