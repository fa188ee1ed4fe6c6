// Package chunk implements the chunking scheduler (C5): grouping
// unscheduled runs into Slurm array batches bounded by cluster limits and
// grouped by identical resource limits.
package chunk

import (
	"errors"
	"sort"
	"strconv"

	"github.com/gourd-go/gourd/internal/common"
	"github.com/gourd-go/gourd/pkg/model"
)

// ErrNoRunsToSchedule is returned when no run is eligible for scheduling.
var ErrNoRunsToSchedule = errors.New("no runs left to schedule")

// Status reports, per run id, whether that run is already scheduled or
// completed, so NextChunks can compute eligibility without re-deriving it
// from the filesystem itself.
type Status struct {
	Scheduled bool
	Completed bool
}

// NextChunks groups eligible runs (unscheduled, not completed, no Slurm
// id, and whose parent, if any, has completed) into at most howMany
// chunks, each holding at most chunkLen runs of identical resource limits,
// largest and heaviest chunks first.
func NextChunks(exp *model.Experiment, statuses map[int]Status, chunkLen int, howMany int) ([]model.Chunk, error) {
	eligible := eligibleRuns(exp, statuses)
	if len(eligible) == 0 {
		return nil, ErrNoRunsToSchedule
	}

	groups := partitionByLimits(exp, eligible)

	var chunks []model.Chunk

	for _, g := range groups {
		for start := 0; start < len(g); start += chunkLen {
			end := start + chunkLen
			if end > len(g) {
				end = len(g)
			}

			runIDs := append([]int(nil), g[start:end]...)
			chunks = append(chunks, model.Chunk{
				RunIDs: runIDs,
				Limits: exp.Runs[runIDs[0]].Limits,
				Status: model.ChunkStatus{Tag: model.ChunkPending},
			})
		}
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if len(chunks[i].RunIDs) != len(chunks[j].RunIDs) {
			return len(chunks[i].RunIDs) > len(chunks[j].RunIDs)
		}

		return heavier(chunks[i].Limits, chunks[j].Limits)
	})

	if howMany < len(chunks) {
		chunks = chunks[:howMany]
	}

	return chunks, nil
}

// eligibleRuns returns run ids, in run-id order, that satisfy the
// scheduling predicate of §4.5 step 1.
func eligibleRuns(exp *model.Experiment, statuses map[int]Status) []int {
	var ids []int

	for _, run := range exp.Runs {
		st := statuses[run.ID]

		if st.Scheduled || st.Completed || run.SlurmID != "" {
			continue
		}

		if run.Parent != nil {
			parentStatus := statuses[*run.Parent]
			if !parentStatus.Completed {
				continue
			}
		}

		ids = append(ids, run.ID)
	}

	return ids
}

// partitionByLimits splits ids (assumed already in ascending run-id order)
// into maximal contiguous subsequences that share identical resource
// limits.
func partitionByLimits(exp *model.Experiment, ids []int) [][]int {
	var groups [][]int

	var current []int

	for i, id := range ids {
		if i == 0 {
			current = []int{id}

			continue
		}

		if limitKey(exp.Runs[id].Limits) == limitKey(exp.Runs[ids[i-1]].Limits) {
			current = append(current, id)
		} else {
			groups = append(groups, current)
			current = []int{id}
		}
	}

	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

// limitKey collapses a resource-limit struct to a stable grouping key so
// partitionByLimits can compare runs by a single integer instead of a
// field-by-field struct comparison.
func limitKey(l model.ResourceLimits) uint64 {
	return common.HashStrings(
		l.Time.String(), strconv.Itoa(l.CPUs), strconv.Itoa(l.MemPerCPU),
		l.Partition, l.Account, strconv.Itoa(l.ArraySizeLimit),
	)
}

// heavier orders resource limits for the "heaviest first" tiebreak: CPU
// count, then memory per CPU, then wall time.
func heavier(a, b model.ResourceLimits) bool {
	if a.CPUs != b.CPUs {
		return a.CPUs > b.CPUs
	}

	if a.MemPerCPU != b.MemPerCPU {
		return a.MemPerCPU > b.MemPerCPU
	}

	return a.Time > b.Time
}

// RegisterChunk appends c to the experiment's chunk list and returns its
// index.
func RegisterChunk(exp *model.Experiment, c model.Chunk) int {
	exp.Chunks = append(exp.Chunks, c)

	return len(exp.Chunks) - 1
}

// MarkScheduled sets the experiment's chunk chunkIdx to Scheduled with the
// given batch id, and sets each contained run's Slurm id to
// "<batch>_<task_index>" by its position within the chunk's run list.
func MarkScheduled(exp *model.Experiment, chunkIdx int, batchID string) {
	c := &exp.Chunks[chunkIdx]
	c.Status = model.ChunkStatus{Tag: model.ChunkScheduled, BatchID: batchID}

	for taskIdx, runID := range c.RunIDs {
		exp.Runs[runID].SlurmID = slurmTaskID(batchID, taskIdx)
	}
}

func slurmTaskID(batchID string, taskIdx int) string {
	return batchID + "_" + strconv.Itoa(taskIdx)
}
