// Package wrapper implements the child-facing supervisor (C8): it
// resolves its positional arguments through the experiment lockfile to a
// single run, spawns the run's binary, captures wall-clock time and OS
// resource usage, and writes the metrics file atomically.
package wrapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/gourd-go/gourd/pkg/experiment"
	"github.com/gourd-go/gourd/pkg/model"
)

// Errors returned while resolving the wrapper's positional arguments.
var (
	ErrChunkIndex = errors.New("chunk index out of range")
	ErrJobIndex   = errors.New("job index out of range for chunk")
)

// Args is the wrapper's parsed positional-argument contract:
// "<experiment_path> <chunk_id> <job_id>". JobID is the run's position
// within the chunk: the Slurm batch script passes $SLURM_ARRAY_TASK_ID
// there, and the local executor passes the position itself.
type Args struct {
	ExperimentPath string
	ChunkID        int
	JobID          int
}

// ParseArgs parses the three positional arguments the wrapper is invoked
// with.
func ParseArgs(argv []string) (Args, error) {
	if len(argv) < 3 {
		return Args{}, fmt.Errorf("expected <experiment_path> <chunk_id> <job_id>, got %v", argv)
	}

	chunkID, err := strconv.Atoi(argv[1])
	if err != nil {
		return Args{}, fmt.Errorf("parsing chunk id %q: %w", argv[1], err)
	}

	jobID, err := strconv.Atoi(argv[2])
	if err != nil {
		return Args{}, fmt.Errorf("parsing job id %q: %w", argv[2], err)
	}

	return Args{ExperimentPath: argv[0], ChunkID: chunkID, JobID: jobID}, nil
}

// Resolve dereferences experiment.chunks[chunk_id][job_id] to a run.
func Resolve(exp *model.Experiment, a Args) (*model.Run, error) {
	if a.ChunkID < 0 || a.ChunkID >= len(exp.Chunks) {
		return nil, fmt.Errorf("%w: %d", ErrChunkIndex, a.ChunkID)
	}

	c := exp.Chunks[a.ChunkID]

	if a.JobID < 0 || a.JobID >= len(c.RunIDs) {
		return nil, fmt.Errorf("%w: %d", ErrJobIndex, a.JobID)
	}

	runID := c.RunIDs[a.JobID]

	run, ok := exp.RunByID(runID)
	if !ok {
		return nil, fmt.Errorf("chunk %d job %d references unknown run %d", a.ChunkID, a.JobID, runID)
	}

	return run, nil
}

// Execute runs the full wrapper protocol (§4.8) for one run: write the
// NotCompleted sentinel, spawn the user binary, wait for it, capture
// rusage, and write the final Done measurement. The exit code returned is
// the child's own exit code, distinct from a wrapper-level error.
func Execute(ctx context.Context, program model.Program, run *model.Run) (int, error) {
	if err := verifyArch(program.Binary); err != nil {
		return -1, fmt.Errorf("architecture check failed for %s: %w", program.Binary, err)
	}

	if err := os.MkdirAll(run.WorkDir, 0o755); err != nil {
		return -1, fmt.Errorf("creating work dir %s: %w", run.WorkDir, err)
	}

	if err := writeMeasurement(run.Metrics, model.Measurement{Tag: model.NotCompleted}); err != nil {
		return -1, fmt.Errorf("writing NotCompleted sentinel: %w", err)
	}

	stdin, err := openStdin(run.Stdin)
	if err != nil {
		return -1, fmt.Errorf("opening stdin: %w", err)
	}
	defer stdin.Close()

	stdout, err := os.Create(run.Stdout)
	if err != nil {
		return -1, fmt.Errorf("creating stdout file: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.Create(run.Stderr)
	if err != nil {
		return -1, fmt.Errorf("creating stderr file: %w", err)
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, program.Binary, run.Args...)
	cmd.Dir = run.WorkDir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()

	runErr := cmd.Start()
	if runErr != nil {
		return -1, fmt.Errorf("spawning %s: %w", program.Binary, runErr)
	}

	exitCode, rusage, waitErr := waitForChild(cmd)
	wall := time.Since(start)

	measurement := model.Measurement{
		Tag:        model.Done,
		WallMicros: wall.Microseconds(),
		ExitCode:   exitCode,
		RUsage:     rusage,
	}

	if err := writeMeasurement(run.Metrics, measurement); err != nil {
		return exitCode, fmt.Errorf("writing Done measurement: %w", err)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return exitCode, fmt.Errorf("waiting for %s: %w", program.Binary, waitErr)
		}
	}

	return exitCode, nil
}

func openStdin(path string) (io.ReadCloser, error) {
	if path == "" {
		return os.Open(os.DevNull)
	}

	return os.Open(path)
}

// writeMeasurement serializes m to a temp file next to path and renames it
// into place, keeping metrics writes as atomic as the lockfile's own
// write-then-rename discipline.
func writeMeasurement(path string, m model.Measurement) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		return err
	}

	return nil
}

// ReadMeasurement reads the metrics file at path, returning
// (nil, false, nil) when the file does not exist.
func ReadMeasurement(path string) (*model.Measurement, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, err
	}

	m := new(model.Measurement)
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, false, err
	}

	return m, true, nil
}

// LoadExperiment loads the lockfile named by a wrapper's first positional
// argument.
func LoadExperiment(path string) (*model.Experiment, error) {
	return experiment.LoadPath(path)
}
