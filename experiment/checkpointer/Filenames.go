package checkpointer

import (
	"fmt"
	"time"
)

// FilenameEnumerator returns a naming function for checkpoints. The
// n-th call of the returned function returns filename, followed by
// start + n, followed by extension. The filename should include the
// path of the checkpoint directory.
func FilenameEnumerator(start int, filename, extension string) func() string {
	i := start
	return func() string {
		i++
		return fmt.Sprintf("%v%v%v", filename, i, extension)
	}
}

// FileTimer returns a naming function for checkpoints which appends to
// filename the number of nanoseconds since January 1, 1970.
func FileTimer(filename, extension string) func() string {
	return func() string {
		return fmt.Sprintf("%v-%v%v", filename, time.Now().UnixNano(),
			extension)
	}
}
