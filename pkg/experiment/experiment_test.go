package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gourd-go/gourd/pkg/model"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	exp := &model.Experiment{
		Seq:  2,
		Name: "demo",
		Runs: []model.Run{{ID: 0, Input: "in0"}},
	}

	require.NoError(t, Save(dir, exp))

	loaded, err := Load(dir, 2)
	require.NoError(t, err)
	require.Equal(t, exp.Name, loaded.Name)
	require.Len(t, loaded.Runs, 1)
}

func TestDiscoverReturnsMaxSeq(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"0.lock", "3.lock", "1.lock", "notalock.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(""), 0o644))
	}

	seq, err := Discover(dir)
	require.NoError(t, err)
	require.Equal(t, 3, seq)
}

func TestDiscoverEmptyFolder(t *testing.T) {
	_, err := Discover(t.TempDir())
	require.ErrorIs(t, err, ErrNoExperiments)
}

func TestNextSeqStartsAtZero(t *testing.T) {
	seq, err := NextSeq(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 0, seq)
}

func TestNextSeqIncrements(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, &model.Experiment{Seq: 5}))

	seq, err := NextSeq(dir)
	require.NoError(t, err)
	require.Equal(t, 6, seq)
}

func TestSaveRewritesAtomically(t *testing.T) {
	dir := t.TempDir()
	exp := &model.Experiment{Seq: 1, Name: "first"}
	require.NoError(t, Save(dir, exp))

	exp.Name = "second"
	require.NoError(t, Save(dir, exp))

	loaded, err := Load(dir, 1)
	require.NoError(t, err)
	require.Equal(t, "second", loaded.Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp files after a successful save")
}
