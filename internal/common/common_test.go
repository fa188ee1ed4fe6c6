package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Name string `toml:"name"`
}

func TestMakeConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`name = "demo"`), 0o644))

	cfg, err := MakeConfig[sampleConfig](path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)

	_, err = MakeConfig[sampleConfig]("")
	require.Error(t, err)
}

func TestTimeTrack(t *testing.T) {
	TimeTrack(time.Now(), "noop", log.NewNopLogger())
}

func TestHashStrings(t *testing.T) {
	a := HashStrings("x", "y")
	b := HashStrings("x", "y")
	c := HashStrings("xy")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
