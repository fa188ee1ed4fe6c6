package rerun

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/status"
)

func TestClassifyFailedExitCode(t *testing.T) {
	exp := &model.Experiment{
		Runs: []model.Run{{ID: 0}},
	}

	st := status.Status{
		RunID: 0,
		FS: status.FSStatus{
			Completion:  status.Completed,
			Measurement: &model.Measurement{Tag: model.Done, ExitCode: 7},
		},
	}

	c := Classify(exp, st)
	require.Equal(t, FailedExitCode, c.Kind)
	require.Equal(t, 7, c.ExitCode)
	require.True(t, c.IsFailed())
}

func TestClassifyAlreadyRerun(t *testing.T) {
	rerunID := 3
	exp := &model.Experiment{
		Runs: []model.Run{{ID: 0, Rerun: &rerunID}},
	}

	c := Classify(exp, status.Status{RunID: 0})
	require.Equal(t, RerunAs, c.Kind)
	require.Equal(t, 3, c.RerunID)
}

func TestSelectScriptExplicit(t *testing.T) {
	exp := &model.Experiment{Runs: []model.Run{{ID: 0}, {ID: 1}}}
	ids := SelectScript(exp, nil, []int{1})
	require.Equal(t, []int{1}, ids)
}

func TestSelectInteractiveBelowThreshold(t *testing.T) {
	confirm := StdioConfirm(strings.NewReader("y\nn\n"), &strings.Builder{})

	out, err := SelectInteractive([]int{0, 1}, []int{0, 1}, confirm, nil)
	require.NoError(t, err)
	require.Equal(t, []int{0}, out)
}

func TestNewRejectsAlreadyRerun(t *testing.T) {
	rerunID := 1
	exp := &model.Experiment{Runs: []model.Run{{ID: 0, Rerun: &rerunID}}}

	_, err := New(exp, &exp.Runs[0], model.ResourceLimits{})
	require.ErrorIs(t, err, ErrAlreadyRerun)
}

func TestNewBuildsSupersedingRun(t *testing.T) {
	exp := &model.Experiment{
		OutputDir: "/tmp/out",
		Programs:  map[string]model.Program{"fib": {Name: "fib"}},
		Runs:      []model.Run{{ID: 0, Program: model.FieldRef{Name: "fib"}, Input: "in0"}},
	}

	run, err := New(exp, &exp.Runs[0], model.ResourceLimits{CPUs: 2})
	require.NoError(t, err)
	require.Equal(t, 1, run.ID)
	require.Equal(t, 0, *run.RerunOf)
	require.Equal(t, 1, run.RerunSeq)
	require.Equal(t, "in0", run.Input)
	require.Contains(t, run.WorkDir, "fib")
}

func TestLimitOverridesFallsBackWhenAbsent(t *testing.T) {
	overrides := LimitOverrides{"fib": {CPUs: 4}}

	require.Equal(t, model.ResourceLimits{CPUs: 4}, overrides.For("fib", model.ResourceLimits{CPUs: 1}))
	require.Equal(t, model.ResourceLimits{CPUs: 1}, overrides.For("other", model.ResourceLimits{CPUs: 1}))
}
