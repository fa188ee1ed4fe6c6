package acct

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/gourd-go/gourd/pkg/model"
)

func TestCachePutGet(t *testing.T) {
	dir := t.TempDir()

	cache, err := Open(filepath.Join(dir, "acct.db"), log.NewNopLogger())
	require.NoError(t, err)

	defer cache.Close()

	ctx := context.Background()

	_, ok := cache.Get(ctx, "123_0")
	require.False(t, ok)

	status := model.SlurmStatus{JobID: "123_0", JobName: "fib", State: model.SlurmCompleted}
	require.NoError(t, cache.Put(ctx, status))

	got, ok := cache.Get(ctx, "123_0")
	require.True(t, ok)
	require.Equal(t, status.JobName, got.JobName)
	require.Equal(t, model.SlurmCompleted, got.State)
}
