// Package experiment implements the training loop: collecting
// trajectories with the behaviour policy, updating the agent, and
// switching tasks on schedule.
package experiment

import (
	"fmt"

	"github.com/google/uuid"
)

// Context is the progress of a single training run. It is updated in
// place by the Collector and the Driver and is saved with each
// checkpoint.
type Context struct {
	RunID      string
	Timestep   int // Environment steps taken
	TaskIndex  int // Index of the current task in the schedule
	Iteration  int // Completed collect/update iterations
	LastSwitch int // Timestep of the latest task switch
}

// NewContext returns the Context of a new run with a random run id
func NewContext() *Context {
	return &Context{RunID: uuid.NewString()}
}

func (c *Context) String() string {
	return fmt.Sprintf("run=%v iteration=%d timestep=%d task=%d",
		c.RunID, c.Iteration, c.Timestep, c.TaskIndex)
}
