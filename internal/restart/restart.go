// Package restart replaces the running process with a fresh copy of its executable.
package restart

import (
	"fmt"
	"os"
)

// Exec restarts the current executable with the original arguments and environment.
type Exec struct {
	// Path overrides the executable to start. Empty means os.Executable.
	Path string
	Args []string

	exec func(path string, args []string, env []string) error
}

// New returns an Exec for the running process.
func New() *Exec {
	return &Exec{Args: os.Args, exec: execProcess}
}

// Restart does not return on success.
func (e *Exec) Restart() error {
	path := e.Path
	if path == "" {
		p, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve executable: %w", err)
		}

		path = p
	}

	args := e.Args
	if len(args) == 0 {
		args = []string{path}
	}

	run := e.exec
	if run == nil {
		run = execProcess
	}

	if err := run(path, args, os.Environ()); err != nil {
		return fmt.Errorf("failed to restart %s: %w", path, err)
	}

	return nil
}
