package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorSetRunCounts(t *testing.T) {
	c := NewCollector()

	c.SetRunCounts(map[string]int{"completed": 3, "failed": 1})

	require.InDelta(t, 3, testutil.ToFloat64(c.RunsTotal.WithLabelValues("completed")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(c.RunsTotal.WithLabelValues("failed")), 0)
}

func TestCollectorSetChunkCounts(t *testing.T) {
	c := NewCollector()

	c.SetChunkCounts(map[string]int{"scheduled": 2})

	require.InDelta(t, 2, testutil.ToFloat64(c.ChunksTotal.WithLabelValues("scheduled")), 0)
}
