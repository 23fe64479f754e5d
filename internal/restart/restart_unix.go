//go:build !windows

package restart

import "syscall"

func execProcess(path string, args []string, env []string) error {
	return syscall.Exec(path, args, env)
}
