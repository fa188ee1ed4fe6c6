//go:build unix

package wrapper

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gourd-go/gourd/pkg/model"
)

// waitForChild waits for cmd's process directly through unix.Wait4 (rather
// than cmd.Wait, which discards the rusage half of the syscall) so the
// 16-field resource-usage record in §4.8 can be recovered.
func waitForChild(cmd *exec.Cmd) (exitCode int, rusage *model.RUsage, err error) {
	var (
		ws  unix.WaitStatus
		ru  unix.Rusage
	)

	_, err = unix.Wait4(cmd.Process.Pid, &ws, 0, &ru)
	if err != nil {
		return -1, nil, fmt.Errorf("wait4: %w", err)
	}

	switch {
	case ws.Exited():
		exitCode = ws.ExitStatus()
	case ws.Signaled():
		exitCode = 128 + int(ws.Signal())
		err = &exitSignalError{signal: ws.Signal()}
	default:
		exitCode = -1
	}

	return exitCode, toModelRUsage(ru), err
}

func toModelRUsage(ru unix.Rusage) *model.RUsage {
	return &model.RUsage{
		UTime:    time.Duration(ru.Utime.Nano()),
		STime:    time.Duration(ru.Stime.Nano()),
		MaxRSS:   int64(ru.Maxrss),
		IXRSS:    int64(ru.Ixrss),
		IDRSS:    int64(ru.Idrss),
		ISRSS:    int64(ru.Isrss),
		MinFlt:   int64(ru.Minflt),
		MajFlt:   int64(ru.Majflt),
		NSwap:    int64(ru.Nswap),
		InBlock:  int64(ru.Inblock),
		OuBlock:  int64(ru.Oublock),
		MsgSnd:   int64(ru.Msgsnd),
		MsgRcv:   int64(ru.Msgrcv),
		NSignals: int64(ru.Nsignals),
		NVCSw:    int64(ru.Nvcsw),
		NIVCSw:   int64(ru.Nivcsw),
	}
}

// exitSignalError reports that the child was killed by a signal rather
// than exiting normally.
type exitSignalError struct {
	signal syscall.Signal
}

func (e *exitSignalError) Error() string {
	return fmt.Sprintf("child killed by signal %s", e.signal)
}
