// Package local implements the local executor (C6): spawning wrapper
// processes concurrently up to a task ceiling, using a WaitGroup/mutex
// fan-out over a bounded worker set.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/gourd-go/gourd/internal/common"
	"github.com/gourd-go/gourd/internal/osexec"
)

// MaxConcurrent is the hard-coded task ceiling: invocations beyond this
// count in a single batch fail the whole batch rather than queueing, per
// §4.6.
const MaxConcurrent = 64

// ErrTooManyInvocations is returned when a batch exceeds MaxConcurrent.
var ErrTooManyInvocations = errors.New("batch exceeds local executor task ceiling")

// Invocation is one wrapper process to spawn: the wrapper binary and its
// positional arguments (experiment path, chunk id, job id).
type Invocation struct {
	Binary string
	Args   []string
}

// result is the outcome of one invocation, collected under resultLock.
type result struct {
	invocation Invocation
	output     []byte
	err        error
}

var resultLock sync.Mutex

// Run executes every invocation concurrently and waits for all of them.
// A non-zero exit from any wrapper surfaces as a joined error that
// includes the failing wrapper's combined output; ordering among
// invocations is not guaranteed.
func Run(ctx context.Context, logger log.Logger, invocations []Invocation) error {
	defer common.TimeTrack(time.Now(), "local batch", logger)

	if len(invocations) > MaxConcurrent {
		return fmt.Errorf("%w: %d invocations, ceiling %d", ErrTooManyInvocations, len(invocations), MaxConcurrent)
	}

	var (
		wg      sync.WaitGroup
		results []result
	)

	wg.Add(len(invocations))

	for _, inv := range invocations {
		go func(inv Invocation) {
			defer wg.Done()

			out, err := osexec.ExecuteContext(ctx, inv.Binary, inv.Args, nil)

			resultLock.Lock()
			results = append(results, result{invocation: inv, output: out, err: err})
			resultLock.Unlock()
		}(inv)
	}

	wg.Wait()

	var errs error

	for _, r := range results {
		if r.err != nil {
			level.Error(logger).Log(
				"msg", "wrapper invocation failed",
				"args", fmt.Sprint(r.invocation.Args),
				"output", string(r.output),
				"err", r.err,
			)

			errs = errors.Join(errs, fmt.Errorf("wrapper %v: %w: %s", r.invocation.Args, r.err, r.output))
		}
	}

	return errs
}
