// Package experiment implements the on-disk lockfile: reading, atomic
// writing, and discovery of the latest experiment sequence id in a folder,
// grounded on the TOML read pattern internal/common.MakeConfig uses for
// config files, extended with write-then-rename semantics for saving.
package experiment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/gourd-go/gourd/pkg/model"
)

// ErrNoExperiments is returned by Discover when a folder has no "<seq>.lock"
// entries.
var ErrNoExperiments = errors.New("no experiments found")

// LockFileName returns the file name an experiment with the given sequence
// id is stored under.
func LockFileName(seq int) string {
	return strconv.Itoa(seq) + ".lock"
}

// Discover returns the largest sequence id found among "<seq>.lock" entries
// in dir, or ErrNoExperiments if none parse as integers.
func Discover(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading experiments folder %s: %w", dir, err)
	}

	found := false

	max := 0

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".lock") {
			continue
		}

		seqStr := strings.TrimSuffix(name, ".lock")

		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			continue
		}

		if !found || seq > max {
			max = seq
			found = true
		}
	}

	if !found {
		return 0, ErrNoExperiments
	}

	return max, nil
}

// Load reads and parses the experiment with the given sequence id from dir.
func Load(dir string, seq int) (*model.Experiment, error) {
	path := filepath.Join(dir, LockFileName(seq))

	return LoadPath(path)
}

// LoadPath reads and parses the experiment lockfile at path.
func LoadPath(path string) (*model.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment lockfile %s: %w", path, err)
	}

	exp := new(model.Experiment)
	if err := toml.Unmarshal(data, exp); err != nil {
		return nil, fmt.Errorf("parsing experiment lockfile %s: %w", path, err)
	}

	return exp, nil
}

// Save serializes exp and rewrites its lockfile atomically: the new content
// is written to a uniquely named temp file in the same directory, then
// renamed over the target path, so that concurrent readers never observe a
// partially written file.
func Save(dir string, exp *model.Experiment) error {
	path := filepath.Join(dir, LockFileName(exp.Seq))

	data, err := toml.Marshal(exp)
	if err != nil {
		return fmt.Errorf("serializing experiment %d: %w", exp.Seq, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%d.lock.%s.tmp", exp.Seq, uuid.NewString()))

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp lockfile for experiment %d: %w", exp.Seq, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("renaming lockfile for experiment %d: %w", exp.Seq, err)
	}

	return nil
}

// NextSeq returns the sequence id a newly created experiment in dir should
// use: one past the current maximum, or 0 if the folder is empty.
func NextSeq(dir string) (int, error) {
	seq, err := Discover(dir)
	if err != nil {
		if errors.Is(err, ErrNoExperiments) {
			return 0, nil
		}

		return 0, err
	}

	return seq + 1, nil
}
