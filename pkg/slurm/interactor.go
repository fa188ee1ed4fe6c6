// Package slurm implements the Slurm dispatcher (C7): batch script
// generation, submission, array-id bookkeeping, and accounting queries.
// Interaction with the cluster is hidden behind the Interactor capability
// interface so that tests can supply a double that never shells out.
package slurm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gourd-go/gourd/internal/osexec"
	"github.com/gourd-go/gourd/pkg/model"
)

// Version is a two-component Slurm CLI version, e.g. [21, 8].
type Version [2]uint64

// SupportedVersions lists the Slurm CLI versions this dispatcher has been
// validated against.
var SupportedVersions = []Version{{21, 8}, {22, 5}, {23, 2}, {24, 5}}

// Interactor is the capability a Slurm dispatcher needs: everything that
// actually shells out to the cluster, isolated so tests can substitute a
// fake cluster.
type Interactor interface {
	GetVersion(ctx context.Context) (Version, error)
	GetPartitions(ctx context.Context) ([]string, error)
	ScheduleChunk(ctx context.Context, script string) (batchID string, err error)
	GetAccountingData(ctx context.Context, jobIDs []string) ([]model.SlurmStatus, error)
	CancelJobs(ctx context.Context, jobIDs []string) error
}

// CLI is the Interactor implementation that shells out to sinfo, sbatch,
// sacct and scancel, grounded on gourd's interactor.rs and on
// internal/osexec for subprocess execution.
type CLI struct{}

var _ Interactor = CLI{}

// GetVersion runs "sinfo --version" and parses its numeric components.
func (CLI) GetVersion(ctx context.Context) (Version, error) {
	out, err := osexec.ExecuteContext(ctx, "sinfo", []string{"--version"}, nil)
	if err != nil {
		return Version{}, fmt.Errorf("running sinfo --version: %w", err)
	}

	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return Version{}, fmt.Errorf("unexpected sinfo --version output: %q", out)
	}

	numeric := strings.FieldsFunc(fields[1], func(r rune) bool { return r < '0' || r > '9' })
	if len(numeric) < 2 {
		return Version{}, fmt.Errorf("could not parse sinfo version from %q", fields[1])
	}

	major, err := strconv.ParseUint(numeric[0], 10, 64)
	if err != nil {
		return Version{}, fmt.Errorf("parsing sinfo major version: %w", err)
	}

	minor, err := strconv.ParseUint(numeric[1], 10, 64)
	if err != nil {
		return Version{}, fmt.Errorf("parsing sinfo minor version: %w", err)
	}

	return Version{major, minor}, nil
}

// IsVersionSupported reports whether v appears in SupportedVersions.
func IsVersionSupported(v Version) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}

	return false
}

// GetPartitions runs "sinfo -o '%P %a'" and returns the partition names
// reported as available.
func (CLI) GetPartitions(ctx context.Context) ([]string, error) {
	out, err := osexec.ExecuteContext(ctx, "sinfo", []string{"-o", "%P %a"}, nil)
	if err != nil {
		return nil, fmt.Errorf("running sinfo: %w", err)
	}

	var partitions []string

	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 1 || fields[0] == "PARTITION" {
			continue
		}

		partitions = append(partitions, strings.TrimSuffix(fields[0], "*"))
	}

	return partitions, nil
}

// ScheduleChunk writes script to a temp file and submits it with
// "sbatch --parsable", returning the batch id sbatch printed.
func (CLI) ScheduleChunk(ctx context.Context, script string) (string, error) {
	dir, err := os.MkdirTemp("", "gourd-slurm-*")
	if err != nil {
		return "", fmt.Errorf("creating batch script temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "batch.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("writing batch script: %w", err)
	}

	out, err := osexec.ExecuteContext(ctx, "sbatch", []string{"--parsable", scriptPath}, nil)
	if err != nil {
		return "", fmt.Errorf("sbatch failed: %w: %s", err, out)
	}

	return strings.TrimSpace(string(out)), nil
}

// CancelJobs runs "scancel" against the given job/batch ids.
func (CLI) CancelJobs(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	_, err := osexec.ExecuteContext(ctx, "scancel", jobIDs, nil)
	if err != nil {
		return fmt.Errorf("scancel failed: %w", err)
	}

	return nil
}

// GetAccountingData runs sacct for the given job ids and parses its
// output (§4.7, §6), expanding array notation "<batch>_[lo-hi]" into
// individual task statuses.
func (CLI) GetAccountingData(ctx context.Context, jobIDs []string) ([]model.SlurmStatus, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	args := []string{"-p", "--format=jobid,jobname,state,exitcode", "--jobs=" + strings.Join(jobIDs, ",")}

	out, err := osexec.ExecuteContext(ctx, "sacct", args, nil)
	if err != nil {
		return nil, fmt.Errorf("running sacct: %w", err)
	}

	return ParseSacct(string(out))
}

// ParseSacct parses the "|"-delimited sacct output of
// "-p --format=jobid,jobname,state,exitcode", expanding array notation.
func ParseSacct(output string) ([]model.SlurmStatus, error) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) <= 1 {
		return nil, nil
	}

	var statuses []model.SlurmStatus

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(strings.TrimSuffix(line, "|"), "|")
		if len(fields) < 4 {
			continue
		}

		jobIDs, err := expandArrayNotation(fields[0])
		if err != nil {
			return nil, err
		}

		exitCodes := strings.SplitN(fields[3], ":", 2)

		slurmExit, _ := strconv.Atoi(exitCodes[0])

		programExit := 0
		if len(exitCodes) > 1 {
			programExit, _ = strconv.Atoi(exitCodes[1])
		}

		state := parseState(fields[2])

		for _, id := range jobIDs {
			statuses = append(statuses, model.SlurmStatus{
				JobID:           id,
				JobName:         fields[1],
				State:           state,
				SlurmExitCode:   slurmExit,
				ProgramExitCode: programExit,
			})
		}
	}

	return statuses, nil
}

// expandArrayNotation turns "12345_[0-3]" into ["12345_0", ..., "12345_3"];
// any other job id form is returned as a single-element slice unchanged.
func expandArrayNotation(jobID string) ([]string, error) {
	open := strings.IndexByte(jobID, '[')
	if open < 0 {
		return []string{jobID}, nil
	}

	closeIdx := strings.IndexByte(jobID, ']')
	if closeIdx < open {
		return nil, fmt.Errorf("malformed array job id %q", jobID)
	}

	batch := jobID[:open]
	rangeStr := jobID[open+1 : closeIdx]

	parts := strings.SplitN(rangeStr, "-", 2)
	if len(parts) != 2 {
		return []string{jobID}, nil
	}

	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("parsing array range %q: %w", rangeStr, err)
	}

	hi, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("parsing array range %q: %w", rangeStr, err)
	}

	ids := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		ids = append(ids, fmt.Sprintf("%s_%d", batch, i))
	}

	return ids, nil
}

// parseState maps a sacct state code, long or abbreviated, to the 12-state
// tagged enum (§4.7, §9).
func parseState(code string) model.SlurmStateKind {
	code = strings.TrimSpace(code)
	// Some states carry a trailing cancelled-by-user suffix e.g. "CANCELLED by 1000".
	code = strings.Fields(code)[0]

	switch code {
	case "BOOT_FAIL", "BF":
		return model.SlurmBootFail
	case "CANCELLED", "CA":
		return model.SlurmCancelled
	case "COMPLETED", "CD":
		return model.SlurmCompleted
	case "DEADLINE", "DL":
		return model.SlurmDeadline
	case "NODE_FAIL", "NF":
		return model.SlurmNodeFail
	case "OUT_OF_MEMORY", "OOM":
		return model.SlurmOutOfMemory
	case "PENDING", "PD":
		return model.SlurmPending
	case "PREEMPTED", "PR":
		return model.SlurmPreempted
	case "RUNNING", "R":
		return model.SlurmRunning
	case "SUSPENDED", "S":
		return model.SlurmSuspended
	case "TIMEOUT", "TO":
		return model.SlurmTimeout
	default:
		return model.SlurmFail
	}
}
