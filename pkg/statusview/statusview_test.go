package statusview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gourd-go/gourd/pkg/chunk"
	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/status"
)

func TestRenderIncludesRunRow(t *testing.T) {
	exp := &model.Experiment{
		Runs: []model.Run{{ID: 0, Program: model.FieldRef{Name: "fib"}, Input: "in0"}},
	}

	statuses := []status.Status{{RunID: 0}}

	var buf strings.Builder
	Render(&buf, exp, statuses)

	out := buf.String()
	require.Contains(t, out, "fib")
	require.Contains(t, out, "in0")
	require.Contains(t, out, "pending")
}

func TestProgressBarUpdate(t *testing.T) {
	var buf strings.Builder

	bar := NewProgressBar(&buf, 10)
	bar.Update(5, 10)

	require.Contains(t, buf.String(), "5/10")
}

func TestFormatProgressCountsScheduled(t *testing.T) {
	exp := &model.Experiment{Seq: 4, Runs: []model.Run{{ID: 0}, {ID: 1}, {ID: 2}}}

	statuses := map[int]chunk.Status{
		0: {Scheduled: true},
		1: {Scheduled: false},
		2: {Scheduled: true},
	}

	out := FormatProgress(exp, statuses)
	require.Contains(t, out, "3 total runs")
	require.Contains(t, out, "2 scheduled")
	require.Contains(t, out, "1 unscheduled")
}
