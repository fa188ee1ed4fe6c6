// Package osexec implements subprocess execution helpers shared by the
// local executor and the Slurm dispatcher.
package osexec

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Execute runs cmd and returns its combined stdout/stderr. The child is
// placed in its own process group so an interrupt delivered to this
// process does not also stop it.
func Execute(cmd string, args []string, env []string) ([]byte, error) {
	execCmd := exec.Command(cmd, args...)

	if env != nil {
		execCmd.Env = append(os.Environ(), env...)
	}

	execCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	return execCmd.CombinedOutput()
}

// ExecuteContext is Execute bound to ctx: the child is killed if ctx is
// cancelled before it exits.
func ExecuteContext(ctx context.Context, cmd string, args []string, env []string) ([]byte, error) {
	execCmd := exec.CommandContext(ctx, cmd, args...)

	if env != nil {
		execCmd.Env = append(os.Environ(), env...)
	}

	execCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	return execCmd.CombinedOutput()
}

// ExecuteWithTimeout is Execute bound to a timeout in seconds; a
// non-positive timeout means no deadline.
func ExecuteWithTimeout(cmd string, args []string, timeout int, env []string) ([]byte, error) {
	ctx := context.Background()

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
		defer cancel()
	}

	return ExecuteContext(ctx, cmd, args, env)
}
