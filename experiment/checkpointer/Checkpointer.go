// Package checkpointer implements periodic saving of training state
// so that training can be resumed after an external restart.
package checkpointer

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoCheckpoint is returned when no checkpoint could be found
var ErrNoCheckpoint = errors.New("no checkpoint")

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Checkpointer checkpoints/saves serializable objects based on the
// number of completed training iterations
type Checkpointer interface {
	// Checkpoint saves the tracked object if needed after iteration,
	// returning the name of the file written or "" if nothing was
	// written
	Checkpoint(iteration int) (string, error)
}

// Save gob encodes object to filename. The file is written completely
// before replacing any existing file with the same name.
func Save(filename string, object gob.GobEncoder) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save: could not create directory: %v", err)
		}
	}

	tmp := filename + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}

	if err := gob.NewEncoder(file).Encode(object); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("save: could not encode: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save: %v", err)
	}

	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load decodes the contents of filename, previously written by Save,
// into object
func Load(filename string, object gob.GobDecoder) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("load: could not open checkpoint: %v", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(object); err != nil {
		return fmt.Errorf("load: could not decode %v: %v", filename, err)
	}
	return nil
}

// Latest returns the newest checkpoint in dir written with a naming
// function from FilenameEnumerator or FileTimer with the given
// filename prefix and extension. The returned counter is the
// enumeration or time suffix of the newest checkpoint, and can be used
// to continue an enumeration with FilenameEnumerator.
//
// If no checkpoint exists, an error wrapping ErrNoCheckpoint is
// returned.
func Latest(dir, prefix, extension string) (string, int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*"+extension))
	if err != nil {
		return "", 0, fmt.Errorf("latest: %v", err)
	}

	newest, counter := "", -1
	for _, match := range matches {
		suffix := strings.TrimPrefix(filepath.Base(match), prefix)
		suffix = strings.TrimPrefix(suffix, "-")
		suffix = strings.TrimSuffix(suffix, extension)

		n, err := strconv.Atoi(suffix)
		if err != nil || n < 0 {
			continue
		}
		if n > counter {
			newest, counter = match, n
		}
	}

	if newest == "" {
		return "", 0, fmt.Errorf("latest: %w in %v", ErrNoCheckpoint, dir)
	}
	return newest, counter, nil
}
