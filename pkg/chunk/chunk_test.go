package chunk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gourd-go/gourd/pkg/model"
)

func buildExperiment(n int, heavy model.ResourceLimits, light model.ResourceLimits, heavyCount int) *model.Experiment {
	exp := &model.Experiment{}

	for i := 0; i < n; i++ {
		limits := light
		if i < heavyCount {
			limits = heavy
		}

		exp.Runs = append(exp.Runs, model.Run{ID: i, Limits: limits})
	}

	return exp
}

func TestNextChunksGroupsByLimitsHeaviestFirst(t *testing.T) {
	heavy := model.ResourceLimits{CPUs: 8, Time: 2 * time.Hour}
	light := model.ResourceLimits{CPUs: 1, Time: time.Minute}

	exp := buildExperiment(250, heavy, light, 150)

	chunks, err := NextChunks(exp, map[int]Status{}, 64, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// The 150 heavy runs fill two 64-run chunks (plus one of 22); the third
	// 64-run chunk comes from the 100 light runs and sorts after them.
	want := []model.ResourceLimits{heavy, heavy, light}

	for i, c := range chunks {
		require.Len(t, c.RunIDs, 64)
		require.Equal(t, want[i], c.Limits)
	}
}

func TestNextChunksSkipsScheduledAndCompleted(t *testing.T) {
	exp := buildExperiment(3, model.ResourceLimits{}, model.ResourceLimits{}, 0)

	statuses := map[int]Status{
		0: {Scheduled: true},
		1: {Completed: true},
	}

	chunks, err := NextChunks(exp, statuses, 64, 1)
	require.NoError(t, err)
	require.Equal(t, []int{2}, chunks[0].RunIDs)
}

func TestNextChunksRespectsParentCompletion(t *testing.T) {
	parentID := 0
	exp := &model.Experiment{
		Runs: []model.Run{
			{ID: 0},
			{ID: 1, Parent: &parentID},
		},
	}

	_, err := NextChunks(exp, map[int]Status{}, 64, 5)
	require.NoError(t, err)

	chunks, err := NextChunks(exp, map[int]Status{0: {Completed: true}}, 64, 5)
	require.NoError(t, err)
	require.Contains(t, chunks[0].RunIDs, 1)
}

func TestNextChunksFailsWhenNothingEligible(t *testing.T) {
	exp := buildExperiment(1, model.ResourceLimits{}, model.ResourceLimits{}, 0)

	_, err := NextChunks(exp, map[int]Status{0: {Completed: true}}, 64, 1)
	require.ErrorIs(t, err, ErrNoRunsToSchedule)
}

func TestNextChunksHowManyZeroReturnsEmpty(t *testing.T) {
	exp := buildExperiment(5, model.ResourceLimits{}, model.ResourceLimits{}, 0)

	chunks, err := NextChunks(exp, map[int]Status{}, 64, 0)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestMarkScheduledSetsPositionalSlurmIDs(t *testing.T) {
	exp := &model.Experiment{
		Runs:   []model.Run{{ID: 41}, {ID: 42}, {ID: 43}},
		Chunks: []model.Chunk{{RunIDs: []int{0, 1, 2}}},
	}

	MarkScheduled(exp, 0, "12345")

	require.Equal(t, "12345_0", exp.Runs[0].SlurmID)
	require.Equal(t, "12345_1", exp.Runs[1].SlurmID)
	require.Equal(t, "12345_2", exp.Runs[2].SlurmID)
	require.Equal(t, model.ChunkScheduled, exp.Chunks[0].Status.Tag)
}

func TestRegisterChunkReturnsIndex(t *testing.T) {
	exp := &model.Experiment{}

	idx := RegisterChunk(exp, model.Chunk{RunIDs: []int{0}})
	require.Equal(t, 0, idx)

	idx = RegisterChunk(exp, model.Chunk{RunIDs: []int{1}})
	require.Equal(t, 1, idx)
}
