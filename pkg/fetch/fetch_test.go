package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestFetchDownloadsAndCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "cache", "resource")

	path, err := NewClient().Fetch(context.Background(), log.NewNopLogger(), srv.URL, dest)
	require.NoError(t, err)
	require.Equal(t, dest, path)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestFetchFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient().Fetch(context.Background(), log.NewNopLogger(), srv.URL, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
}
