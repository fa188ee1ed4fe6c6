//go:build !unix

package wrapper

import (
	"fmt"
	"os/exec"

	"github.com/gourd-go/gourd/pkg/model"
)

// waitForChild falls back to cmd.Wait on platforms without a wait4-style
// syscall; per §4.8 the rusage half of the measurement is simply omitted
// there.
func waitForChild(cmd *exec.Cmd) (exitCode int, rusage *model.RUsage, err error) {
	waitErr := cmd.Wait()
	if cmd.ProcessState == nil {
		return -1, nil, fmt.Errorf("waiting for child: %w", waitErr)
	}

	return cmd.ProcessState.ExitCode(), nil, waitErr
}
