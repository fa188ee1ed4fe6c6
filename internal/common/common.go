// Package common provides small utility helpers shared across packages:
// generic config loading, timing, and stable hashing.
package common

import (
	"errors"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/zeebo/xxh3"

	"github.com/BurntSushi/toml"
)

// MakeConfig reads the TOML file at filePath and decodes it into a new
// instance of T.
func MakeConfig[T any](filePath string) (*T, error) {
	config := new(T)

	if filePath == "" {
		return config, errors.New("config file path missing")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return config, err
	}

	if _, err := toml.Decode(string(data), config); err != nil {
		return config, err
	}

	return config, nil
}

// TimeTrack logs the elapsed time since start under name at debug level.
func TimeTrack(start time.Time, name string, logger log.Logger) {
	level.Debug(logger).Log("msg", name, "duration", time.Since(start))
}

// HashStrings returns a stable 64-bit hash of the given strings, each
// followed by a 0x1f unit-separator byte, used to derive chunk-grouping
// keys from a resource-limit string encoding and fetch-cache file names.
func HashStrings(parts ...string) uint64 {
	h := xxh3.New()

	for _, p := range parts {
		h.WriteString(p)
		h.WriteString("\x1f")
	}

	return h.Sum64()
}
