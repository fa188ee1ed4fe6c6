package wrapper

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gourd-go/gourd/pkg/model"
)

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs([]string{"/tmp/0.lock", "3", "2"})
	require.NoError(t, err)
	require.Equal(t, Args{ExperimentPath: "/tmp/0.lock", ChunkID: 3, JobID: 2}, args)
}

func TestParseArgsRejectsTooFew(t *testing.T) {
	_, err := ParseArgs([]string{"/tmp/0.lock", "3"})
	require.Error(t, err)
}

func TestResolveDereferencesChunk(t *testing.T) {
	exp := &model.Experiment{
		Runs:   []model.Run{{ID: 0}, {ID: 1}, {ID: 2}},
		Chunks: []model.Chunk{{RunIDs: []int{2, 1}}},
	}

	run, err := Resolve(exp, Args{ChunkID: 0, JobID: 1})
	require.NoError(t, err)
	require.Equal(t, 1, run.ID)
}

func TestResolveRejectsOutOfRangeChunk(t *testing.T) {
	exp := &model.Experiment{Chunks: []model.Chunk{{RunIDs: []int{0}}}}

	_, err := Resolve(exp, Args{ChunkID: 5, JobID: 0})
	require.ErrorIs(t, err, ErrChunkIndex)
}

func TestResolveRejectsOutOfRangeJob(t *testing.T) {
	exp := &model.Experiment{Chunks: []model.Chunk{{RunIDs: []int{0}}}}

	_, err := Resolve(exp, Args{ChunkID: 0, JobID: 5})
	require.ErrorIs(t, err, ErrJobIndex)
}

func TestReadMeasurementMissingFile(t *testing.T) {
	m, ok, err := ReadMeasurement(filepath.Join(t.TempDir(), "metrics"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, m)
}

func TestExecuteWritesDoneMeasurement(t *testing.T) {
	binary, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no 'true' binary on PATH")
	}

	dir := t.TempDir()

	run := &model.Run{
		ID:      0,
		WorkDir: dir,
		Stdout:  filepath.Join(dir, "stdout"),
		Stderr:  filepath.Join(dir, "stderr"),
		Metrics: filepath.Join(dir, "metrics"),
	}

	program := model.Program{Binary: binary}

	exitCode, err := Execute(context.Background(), program, run)
	require.NoError(t, err)
	require.Equal(t, 0, exitCode)

	m, ok, err := ReadMeasurement(run.Metrics)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Done, m.Tag)
	require.Equal(t, 0, m.ExitCode)

	_, statErr := os.Stat(run.Stdout)
	require.NoError(t, statErr)
}

func TestExecuteCapturesNonZeroExit(t *testing.T) {
	binary, err := exec.LookPath("false")
	if err != nil {
		t.Skip("no 'false' binary on PATH")
	}

	dir := t.TempDir()

	run := &model.Run{
		ID:      0,
		WorkDir: dir,
		Stdout:  filepath.Join(dir, "stdout"),
		Stderr:  filepath.Join(dir, "stderr"),
		Metrics: filepath.Join(dir, "metrics"),
	}

	exitCode, err := Execute(context.Background(), model.Program{Binary: binary}, run)
	require.NoError(t, err)
	require.Equal(t, 1, exitCode)

	m, ok, err := ReadMeasurement(run.Metrics)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, m.ExitCode)
}
