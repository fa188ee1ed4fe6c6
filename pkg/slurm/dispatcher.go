package slurm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gourd-go/gourd/pkg/chunk"
	"github.com/gourd-go/gourd/pkg/model"
)

// Errors returned by Dispatcher preflight checks.
var (
	ErrUnsupportedVersion = errors.New("unsupported slurm cluster version")
	ErrPartitionNotFound  = errors.New("partition not found on cluster")
)

// Dispatcher submits experiment chunks to Slurm as array jobs through an
// Interactor, and parses accounting queries back into per-run status.
type Dispatcher struct {
	Interactor Interactor
}

// NewDispatcher returns a Dispatcher backed by the real Slurm CLI.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{Interactor: CLI{}}
}

// Preflight verifies the cluster's Slurm version is supported and that
// the configured partition exists, per §4.7.
func (d *Dispatcher) Preflight(ctx context.Context, cfg model.SlurmConfig) error {
	version, err := d.Interactor.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("querying slurm version: %w", err)
	}

	if !IsVersionSupported(version) {
		return fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, version[0], version[1])
	}

	partitions, err := d.Interactor.GetPartitions(ctx)
	if err != nil {
		return fmt.Errorf("querying slurm partitions: %w", err)
	}

	if !slices.Contains(partitions, cfg.Partition) {
		return fmt.Errorf("%w: %q", ErrPartitionNotFound, cfg.Partition)
	}

	return nil
}

// SubmitChunk renders and submits the batch script for the chunk at
// chunkIdx and, on success, marks it scheduled in exp.
func (d *Dispatcher) SubmitChunk(ctx context.Context, exp *model.Experiment, chunkIdx int, experimentPath string) error {
	c := exp.Chunks[chunkIdx]

	limits := c.Limits
	if exp.Slurm != nil && limits.ArraySizeLimit == 0 {
		limits.ArraySizeLimit = exp.Slurm.ArraySizeLimit
	}

	if exp.Slurm != nil && limits.Partition == "" {
		limits.Partition = exp.Slurm.Partition
	}

	if exp.Slurm != nil && limits.Account == "" {
		limits.Account = exp.Slurm.Account
	}

	var slurmCfg model.SlurmConfig
	if exp.Slurm != nil {
		slurmCfg = *exp.Slurm
	}

	script := BatchScript(exp.Name, exp.Wrapper, experimentPath, chunkIdx, len(c.RunIDs), limits, slurmCfg)

	batchID, err := d.Interactor.ScheduleChunk(ctx, script)
	if err != nil {
		return fmt.Errorf("submitting chunk %d: %w", chunkIdx, err)
	}

	chunk.MarkScheduled(exp, chunkIdx, batchID)

	return nil
}

// Accounting returns the current Slurm accounting status for every run in
// exp that has a Slurm id, keyed by run id.
func (d *Dispatcher) Accounting(ctx context.Context, exp *model.Experiment) (map[int]model.SlurmStatus, error) {
	idToRun := make(map[string]int)

	var batchIDs []string

	for _, run := range exp.Runs {
		if run.SlurmID == "" {
			continue
		}

		idToRun[run.SlurmID] = run.ID

		batch := batchIDOf(run.SlurmID)
		if !slices.Contains(batchIDs, batch) {
			batchIDs = append(batchIDs, batch)
		}
	}

	if len(batchIDs) == 0 {
		return nil, nil
	}

	statuses, err := d.Interactor.GetAccountingData(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("querying slurm accounting: %w", err)
	}

	result := make(map[int]model.SlurmStatus, len(statuses))

	for _, st := range statuses {
		if runID, ok := idToRun[st.JobID]; ok {
			result[runID] = st
		}
	}

	return result, nil
}

// batchIDOf returns the array batch id portion of a "<batch>_<task>" id.
func batchIDOf(slurmID string) string {
	for i := 0; i < len(slurmID); i++ {
		if slurmID[i] == '_' {
			return slurmID[:i]
		}
	}

	return slurmID
}
