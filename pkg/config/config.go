// Package config implements the configuration loader (C1) and the glob and
// parameter expander (C2): parsing the declarative experiment description,
// validating it, and resolving globs and parameter grids into concrete,
// named inputs.
package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/gourd-go/gourd/pkg/model"
)

// Reserved markers internal expansion uses to synthesize input names; a
// user-supplied input or parameter name containing one is rejected so that
// generated names never collide with user ones.
const (
	globMarker      = "_glob_"
	parameterMarker = "_parameter"
)

var reservedNameRegex = regexp.MustCompile(globMarker + `|` + parameterMarker)

// Errors returned by Parse and Validate.
var (
	ErrUnknownField   = errors.New("unknown configuration field")
	ErrReservedName   = errors.New("name uses an internally reserved marker")
	ErrNoProgram      = errors.New("no programs defined")
	ErrBadParameter   = errors.New("parameter must have exactly one of values or sub")
	ErrSubParamLength = errors.New("subparameter value lists must have equal length")
)

// UserParameter is one entry of the optional [parameters] table: either a
// flat value list or a map of correlated subparameters.
type UserParameter struct {
	Values []string                 `toml:"values,omitempty"`
	Sub    map[string]UserSubParam  `toml:"sub,omitempty"`
}

// UserSubParam is one named subparameter's flat value list.
type UserSubParam struct {
	Values []string `toml:"values"`
}

// UserInput is a configuration-file input before expansion: its
// "arguments" field may contain glob|, param| and subparam| tokens.
type UserInput struct {
	Stdin     string   `toml:"stdin,omitempty"`
	Arguments []string `toml:"arguments,omitempty"`
}

// UserProgram is a configuration-file program before expansion.
type UserProgram struct {
	Binary         string              `toml:"binary"`
	ArgumentPrefix []string            `toml:"argument_prefix,omitempty"`
	Afterscript    string              `toml:"afterscript,omitempty"`
	Limits         *model.ResourceLimits `toml:"limits,omitempty"`
	Next           []string            `toml:"next,omitempty"`
	Postprocess    bool                `toml:"postprocess,omitempty"`
}

// UserConfig is the parsed, but not yet expanded, experiment configuration.
type UserConfig struct {
	Name           string                   `toml:"name"`
	OutputDir      string                   `toml:"output_dir"`
	MetricsDir     string                   `toml:"metrics_dir,omitempty"`
	ExperimentsDir string                   `toml:"experiments_dir"`
	Wrapper        string                   `toml:"wrapper"`
	DefaultLimits  *model.ResourceLimits    `toml:"default_limits,omitempty"`
	PostprocessLimits *model.ResourceLimits `toml:"postprocess_default_limits,omitempty"`
	Slurm          *model.SlurmConfig       `toml:"slurm,omitempty"`
	WarnOnLabelOverlap bool                 `toml:"warn_on_label_overlap,omitempty"`
	Labels         []model.Label            `toml:"labels,omitempty"`
	Parameters     map[string]UserParameter `toml:"parameters,omitempty"`
	Programs       map[string]UserProgram   `toml:"programs"`
	Inputs         map[string]UserInput     `toml:"inputs"`
}

// Parse parses raw TOML bytes into a UserConfig, rejecting unknown fields.
func Parse(data []byte) (*UserConfig, error) {
	cfg := new(UserConfig)

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, undecoded[0].String())
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field combinations and reserved-name rules; Parse calls
// it after decoding and returns its error.
func Validate(cfg *UserConfig) error {
	if len(cfg.Programs) == 0 {
		return ErrNoProgram
	}

	for name := range cfg.Inputs {
		if reservedNameRegex.MatchString(name) {
			return fmt.Errorf("%w: input %q", ErrReservedName, name)
		}
	}

	for name, param := range cfg.Parameters {
		if reservedNameRegex.MatchString(name) {
			return fmt.Errorf("%w: parameter %q", ErrReservedName, name)
		}

		hasValues := len(param.Values) > 0
		hasSub := len(param.Sub) > 0
		if hasValues == hasSub {
			return fmt.Errorf("%w: parameter %q", ErrBadParameter, name)
		}

		if hasSub {
			size := -1
			for subName, sub := range param.Sub {
				if size == -1 {
					size = len(sub.Values)
				} else if len(sub.Values) != size {
					return fmt.Errorf("%w: parameter %q subparameter %q", ErrSubParamLength, name, subName)
				}
			}
		}
	}

	return nil
}
