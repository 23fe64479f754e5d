//go:build windows

package restart

import (
	"os"
	"os/exec"
)

// Windows cannot replace a running image, so the new process is started and
// the current one exits.
func execProcess(path string, args []string, env []string) error {
	cmd := exec.Command(path, args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	os.Exit(0)

	return nil
}
