package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validConfig = `
name = "demo"
output_dir = "/tmp/out"
experiments_dir = "/tmp/experiments"
wrapper = "gourd-wrapper"

[programs.fib]
binary = "/bin/fib"

[inputs.ten]
arguments = ["10"]
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.Name)
	require.Contains(t, cfg.Programs, "fib")
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(validConfig + "\nbogus_field = true\n"))
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestParseRejectsNoPrograms(t *testing.T) {
	_, err := Parse([]byte(`
name = "demo"
output_dir = "/tmp/out"
experiments_dir = "/tmp/experiments"
wrapper = "gourd-wrapper"
`))
	require.ErrorIs(t, err, ErrNoProgram)
}

func TestParseRejectsReservedInputName(t *testing.T) {
	_, err := Parse([]byte(validConfig + "\n[inputs.ten_glob_0]\narguments = [\"1\"]\n"))
	require.ErrorIs(t, err, ErrReservedName)
}

func TestValidateRejectsBadParameter(t *testing.T) {
	cfg := &UserConfig{
		Programs: map[string]UserProgram{"fib": {Binary: "/bin/fib"}},
		Parameters: map[string]UserParameter{
			"n": {Values: []string{"1"}, Sub: map[string]UserSubParam{"x": {Values: []string{"1"}}}},
		},
	}

	err := Validate(cfg)
	require.ErrorIs(t, err, ErrBadParameter)
}

func TestValidateRejectsMismatchedSubParamLengths(t *testing.T) {
	cfg := &UserConfig{
		Programs: map[string]UserProgram{"fib": {Binary: "/bin/fib"}},
		Parameters: map[string]UserParameter{
			"n": {Sub: map[string]UserSubParam{
				"a": {Values: []string{"1", "2"}},
				"b": {Values: []string{"1"}},
			}},
		},
	}

	err := Validate(cfg)
	require.ErrorIs(t, err, ErrSubParamLength)
}
