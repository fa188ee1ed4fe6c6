package cli

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/gourd-go/gourd/pkg/experiment"
	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/wrapper"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "config.toml")
	body := `
name = "demo"
output_dir = "` + dir + `/out"
experiments_dir = "` + dir + `"
wrapper = "gourd-wrapper"

[programs.fib]
binary = "/bin/fib"

[inputs.ten]
arguments = ["10"]
`

	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestInitExperimentWritesLockfile(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)

	env := &environment{
		logger:     log.NewNopLogger(),
		configPath: configPath,
		dir:        dir,
	}

	require.NoError(t, env.initExperiment(context.Background()))

	seq, err := experiment.Discover(dir)
	require.NoError(t, err)
	require.Equal(t, 0, seq)

	exp, err := experiment.Load(dir, seq)
	require.NoError(t, err)
	require.Len(t, exp.Runs, 1)
	require.Equal(t, model.Local, exp.Environment)
}

func TestInitExperimentDryRunWritesNoLockfile(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)

	env := &environment{
		logger:     log.NewNopLogger(),
		configPath: configPath,
		dir:        dir,
		dry:        true,
	}

	require.NoError(t, env.initExperiment(context.Background()))

	_, err := experiment.Discover(dir)
	require.ErrorIs(t, err, experiment.ErrNoExperiments)
}

func TestChunkStatusesOfMarksScheduledAndCompleted(t *testing.T) {
	exp := &model.Experiment{
		Runs: []model.Run{
			{ID: 0, SlurmID: "1_0"},
			{ID: 1},
		},
		Chunks: []model.Chunk{
			{RunIDs: []int{0}, Status: model.ChunkStatus{Tag: model.ChunkScheduled}},
		},
	}

	out := chunkStatusesOf(exp)
	require.True(t, out[0].Scheduled)
	require.False(t, out[1].Scheduled)
}

// TestRunLocalPassesResolvableLockfileToWrapper exercises the wrapper
// contract end to end: the spawned wrapper's first positional argument
// must be a path that, loaded as a lockfile, already contains the chunk
// its other two positional arguments index into.
func TestRunLocalPassesResolvableLockfileToWrapper(t *testing.T) {
	dir := t.TempDir()
	captured := filepath.Join(dir, "captured-args")

	script := filepath.Join(dir, "fake-wrapper.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$1 $2 $3\" > \""+captured+"\"\n"), 0o755))

	exp := &model.Experiment{
		Seq:     7,
		Wrapper: script,
		Programs: map[string]model.Program{
			"fib": {Name: "fib", Binary: "/bin/fib"},
		},
		Runs: []model.Run{
			{ID: 0, Program: model.FieldRef{Name: "fib"}},
		},
	}
	require.NoError(t, experiment.Save(dir, exp))

	env := &environment{logger: log.NewNopLogger(), dir: dir}

	require.NoError(t, env.runLocal(context.Background(), 64, 8))

	data, err := os.ReadFile(captured)
	require.NoError(t, err)

	fields := strings.Fields(string(data))
	require.Len(t, fields, 3)
	require.Equal(t, filepath.Join(dir, experiment.LockFileName(7)), fields[0])

	loaded, err := experiment.LoadPath(fields[0])
	require.NoError(t, err)

	chunkID, err := strconv.Atoi(fields[1])
	require.NoError(t, err)
	jobID, err := strconv.Atoi(fields[2])
	require.NoError(t, err)

	run, err := wrapper.Resolve(loaded, wrapper.Args{ExperimentPath: fields[0], ChunkID: chunkID, JobID: jobID})
	require.NoError(t, err)
	require.Equal(t, 0, run.ID)
}

func TestRerunAppliesLimitOverrideFromFile(t *testing.T) {
	dir := t.TempDir()

	exp := &model.Experiment{
		Seq: 0,
		Programs: map[string]model.Program{
			"fib": {Name: "fib", Binary: "/bin/fib", Limits: model.ResourceLimits{CPUs: 1}},
		},
		Runs: []model.Run{
			{ID: 0, Program: model.FieldRef{Name: "fib"}, Limits: model.ResourceLimits{CPUs: 1},
				Metrics: filepath.Join(dir, "metrics-0")},
		},
	}
	require.NoError(t, experiment.Save(dir, exp))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "metrics-0"),
		[]byte("tag = 1\nexit_code = 1\n"), 0o644))

	limitsPath := filepath.Join(dir, "limits.toml")
	require.NoError(t, os.WriteFile(limitsPath, []byte(`
[fib]
cpus = 4
`), 0o644))

	env := &environment{logger: log.NewNopLogger(), dir: dir, script: true}

	require.NoError(t, env.rerun([]int{0}, limitsPath))

	reloaded, err := experiment.Load(dir, 0)
	require.NoError(t, err)
	require.Len(t, reloaded.Runs, 2)
	require.Equal(t, 4, reloaded.Runs[1].Limits.CPUs)
	require.NotNil(t, reloaded.Runs[0].Rerun)
}
