package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResourceLimitsEqual(t *testing.T) {
	a := ResourceLimits{CPUs: 4, Time: time.Hour, Partition: "batch"}
	b := ResourceLimits{CPUs: 4, Time: time.Hour, Partition: "batch"}
	c := ResourceLimits{CPUs: 8, Time: time.Hour, Partition: "batch"}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestFieldKindString(t *testing.T) {
	require.Equal(t, "regular", Regular.String())
	require.Equal(t, "postprocess", Postprocess.String())
}

func TestSlurmStateKindIsFailure(t *testing.T) {
	failures := []SlurmStateKind{
		SlurmBootFail, SlurmCancelled, SlurmDeadline, SlurmNodeFail,
		SlurmOutOfMemory, SlurmPreempted, SlurmSuspended, SlurmTimeout, SlurmFail,
	}
	for _, k := range failures {
		require.True(t, k.IsFailure(), k.String())
		require.True(t, k.IsTerminal(), k.String())
	}

	require.False(t, SlurmRunning.IsFailure())
	require.False(t, SlurmPending.IsFailure())
	require.False(t, SlurmRunning.IsTerminal())

	require.True(t, SlurmCompleted.IsTerminal())
	require.False(t, SlurmCompleted.IsFailure())
}

func TestSlurmStateKindString(t *testing.T) {
	cases := map[SlurmStateKind]string{
		SlurmRunning:     "RUNNING",
		SlurmPending:     "PENDING",
		SlurmCompleted:   "COMPLETED",
		SlurmBootFail:    "BOOT_FAIL",
		SlurmCancelled:   "CANCELLED",
		SlurmDeadline:    "DEADLINE",
		SlurmNodeFail:    "NODE_FAIL",
		SlurmOutOfMemory: "OUT_OF_MEMORY",
		SlurmPreempted:   "PREEMPTED",
		SlurmSuspended:   "SUSPENDED",
		SlurmTimeout:     "TIMEOUT",
		SlurmFail:        "SLURM_FAIL",
	}

	for k, want := range cases {
		require.Equal(t, want, k.String())
	}
}

func TestExperimentProgramByRef(t *testing.T) {
	exp := &Experiment{Programs: map[string]Program{"fib": {Name: "fib"}}}

	p, ok := exp.ProgramByRef(FieldRef{Name: "fib"})
	require.True(t, ok)
	require.Equal(t, "fib", p.Name)

	_, ok = exp.ProgramByRef(FieldRef{Name: "missing"})
	require.False(t, ok)
}

func TestExperimentRunByID(t *testing.T) {
	exp := &Experiment{Runs: []Run{{ID: 0}, {ID: 1}}}

	run, ok := exp.RunByID(1)
	require.True(t, ok)
	require.Equal(t, 1, run.ID)

	_, ok = exp.RunByID(2)
	require.False(t, ok)

	_, ok = exp.RunByID(-1)
	require.False(t, ok)
}
