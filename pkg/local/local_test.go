package local

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestRunSucceedsForAllInvocations(t *testing.T) {
	invocations := []Invocation{
		{Binary: "true"},
		{Binary: "true"},
	}

	err := Run(context.Background(), log.NewNopLogger(), invocations)
	require.NoError(t, err)
}

func TestRunReportsFailingInvocation(t *testing.T) {
	invocations := []Invocation{
		{Binary: "true"},
		{Binary: "false"},
	}

	err := Run(context.Background(), log.NewNopLogger(), invocations)
	require.Error(t, err)
}

func TestRunRejectsBatchOverCeiling(t *testing.T) {
	invocations := make([]Invocation, MaxConcurrent+1)
	for i := range invocations {
		invocations[i] = Invocation{Binary: "true"}
	}

	err := Run(context.Background(), log.NewNopLogger(), invocations)
	require.ErrorIs(t, err, ErrTooManyInvocations)
}
