package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"

	"github.com/gourd-go/gourd/internal/common"
	"github.com/gourd-go/gourd/pkg/fetch"
	"github.com/gourd-go/gourd/pkg/model"
)

const (
	globPrefix     = "glob|"
	paramPrefix    = "param|"
	subParamPrefix = "subparam|"
	fetchPrefix    = "fetch|"
)

// Errors returned by the expander.
var (
	errNoGlobMatch = fmt.Errorf("glob pattern matched no files")
)

// expandedInput is a named argument vector plus an optional stdin path,
// produced by glob or parameter expansion before it becomes a model.Input.
type expandedInput struct {
	name       string
	arguments  []string
	stdin      string
	globParent string
	fetched    bool
}

// ExpandGlobs resolves "glob|" prefixed arguments into the cartesian
// product of their filesystem matches, renaming each resulting input
// "<original>_glob_<index>". Inputs with no glob-prefixed argument pass
// through unchanged.
func ExpandGlobs(inputs map[string]UserInput, globFn func(pattern string) ([]string, error)) (map[string]expandedInput, error) {
	result := make(map[string]expandedInput, len(inputs))

	names := sortedKeys(inputs)

	for _, name := range names {
		input := inputs[name]

		globPositions := []int{}

		for i, arg := range input.Arguments {
			if strings.HasPrefix(arg, globPrefix) {
				globPositions = append(globPositions, i)
			}
		}

		if len(globPositions) == 0 {
			result[name] = expandedInput{name: name, arguments: input.Arguments, stdin: input.Stdin}

			continue
		}

		matchSets := make([][]string, len(globPositions))

		for i, pos := range globPositions {
			pattern := strings.TrimPrefix(input.Arguments[pos], globPrefix)

			matches, err := globFn(pattern)
			if err != nil {
				return nil, fmt.Errorf("expanding glob %q for input %q: %w", pattern, name, err)
			}

			if len(matches) == 0 {
				return nil, fmt.Errorf("%w: %q (input %q)", errNoGlobMatch, pattern, name)
			}

			sort.Strings(matches)

			canon := make([]string, len(matches))
			for j, m := range matches {
				abs, err := filepath.Abs(m)
				if err != nil {
					return nil, fmt.Errorf("canonicalizing glob match %q: %w", m, err)
				}

				canon[j] = abs
			}

			matchSets[i] = canon
		}

		combos := cartesianStrings(matchSets)

		for idx, combo := range combos {
			args := append([]string(nil), input.Arguments...)
			for i, pos := range globPositions {
				args[pos] = combo[i]
			}

			genName := fmt.Sprintf("%s%s%d", name, globMarker, idx)
			result[genName] = expandedInput{name: genName, arguments: args, stdin: input.Stdin, globParent: name}
		}
	}

	return result, nil
}

// ExpandParameters rewrites "param|X" and "subparam|X.Y" argument tokens
// using the values and sub tables in parameters, producing the cartesian
// product of choices across all parameters used by a given input.
// Subparameters of the same parameter are expanded correlated: the i-th
// choice of each subparameter is taken together.
func ExpandParameters(inputs map[string]expandedInput, parameters map[string]UserParameter) (map[string]expandedInput, error) {
	result := make(map[string]expandedInput, len(inputs))

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		input := inputs[name]

		used, err := usedParameters(input.arguments)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}

		if len(used) == 0 {
			result[name] = input

			continue
		}

		type variant struct {
			suffix string
			args   []string
		}

		variants := []variant{{suffix: "", args: append([]string(nil), input.arguments...)}}

		paramNames := make([]string, 0, len(used))
		for p := range used {
			paramNames = append(paramNames, p)
		}

		sort.Strings(paramNames)

		for _, paramName := range paramNames {
			positions := used[paramName]

			param, ok := parameters[paramName]
			if !ok {
				return nil, fmt.Errorf("input %q references undefined parameter %q", name, paramName)
			}

			isSub := positions[0].sub != ""

			var choices int

			if isSub {
				for _, sub := range param.Sub {
					choices = len(sub.Values)

					break
				}
			} else {
				choices = len(param.Values)
			}

			next := make([]variant, 0, len(variants)*choices)

			for _, v := range variants {
				for i := 0; i < choices; i++ {
					args := append([]string(nil), v.args...)

					for _, pos := range positions {
						if isSub {
							sub, ok := param.Sub[pos.sub]
							if !ok {
								return nil, fmt.Errorf("input %q: unknown subparameter %q.%q", name, paramName, pos.sub)
							}

							args[pos.index] = sub.Values[i]
						} else {
							args[pos.index] = param.Values[i]
						}
					}

					next = append(next, variant{
						suffix: fmt.Sprintf("%s_%s_%d", v.suffix, paramName, i),
						args:   args,
					})
				}
			}

			variants = next
		}

		for _, v := range variants {
			genName := name + v.suffix + parameterMarker
			result[genName] = expandedInput{name: genName, arguments: v.args, stdin: input.stdin, globParent: input.globParent}
		}
	}

	return result, nil
}

type paramUse struct {
	index int
	sub   string
}

// usedParameters scans an argument vector for param| and subparam| tokens,
// returning, per parameter name, every position it appears at (and, for
// subparameters, which subparameter name was referenced there).
func usedParameters(args []string) (map[string][]paramUse, error) {
	used := make(map[string][]paramUse)

	for i, arg := range args {
		switch {
		case strings.HasPrefix(arg, subParamPrefix):
			rest := strings.TrimPrefix(arg, subParamPrefix)

			dot := strings.IndexByte(rest, '.')
			if dot < 0 {
				return nil, fmt.Errorf("%w: %q", errBadSubParamSyntax, arg)
			}

			paramName, subName := rest[:dot], rest[dot+1:]
			used[paramName] = append(used[paramName], paramUse{index: i, sub: subName})
		case strings.HasPrefix(arg, paramPrefix):
			paramName := strings.TrimPrefix(arg, paramPrefix)
			used[paramName] = append(used[paramName], paramUse{index: i})
		}
	}

	return used, nil
}

var errBadSubParamSyntax = fmt.Errorf("subparameter requires the syntax param.subparam")

// ToModelInputs converts expanded inputs into the final model.Input map.
func ToModelInputs(expanded map[string]expandedInput) map[string]model.Input {
	out := make(map[string]model.Input, len(expanded))

	for name, e := range expanded {
		out[name] = model.Input{
			Name:           name,
			Stdin:          e.stdin,
			ArgumentSuffix: e.arguments,
			GlobParent:     e.globParent,
			Fetched:        e.fetched,
		}
	}

	return out
}

// ExpandFetch resolves "fetch|<url>" prefixed arguments by downloading each
// referenced URL into "<home>/.fetch_cache/<key>" (skipping the download if
// already cached) and rewriting the argument to the local path, per §4.2's
// remote-fetch rule. Inputs with no fetch-prefixed argument pass through
// unchanged.
func ExpandFetch(ctx context.Context, logger log.Logger, client *fetch.Client, inputs map[string]expandedInput, home string) (map[string]expandedInput, error) {
	result := make(map[string]expandedInput, len(inputs))

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		input := inputs[name]

		args := append([]string(nil), input.arguments...)
		fetched := input.fetched

		for i, arg := range args {
			if !strings.HasPrefix(arg, fetchPrefix) {
				continue
			}

			url := strings.TrimPrefix(arg, fetchPrefix)
			key := strconv.FormatUint(common.HashStrings(url), 16)
			dest := filepath.Join(home, ".fetch_cache", key)

			path, err := client.Fetch(ctx, logger, url, dest)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", name, err)
			}

			args[i] = path
			fetched = true
		}

		result[name] = expandedInput{name: name, arguments: args, stdin: input.stdin, globParent: input.globParent, fetched: fetched}
	}

	return result, nil
}

// ToModelPrograms converts the user-facing program table into the model
// table, resolving each program's limits against the experiment default —
// or, for a program marked postprocess, the postprocess-specific default —
// when it specifies none of its own.
func ToModelPrograms(programs map[string]UserProgram, defaultLimits, postprocessLimits *model.ResourceLimits) (map[string]model.Program, error) {
	out := make(map[string]model.Program, len(programs))

	for name, p := range programs {
		limits := model.ResourceLimits{}

		fallback := defaultLimits
		if p.Postprocess {
			fallback = postprocessLimits
		}

		switch {
		case p.Limits != nil:
			limits = *p.Limits
		case fallback != nil:
			limits = *fallback
		}

		out[name] = model.Program{
			Name:           name,
			Binary:         p.Binary,
			ArgumentPrefix: p.ArgumentPrefix,
			Afterscript:    p.Afterscript,
			Limits:         limits,
			Next:           p.Next,
			Postprocess:    p.Postprocess,
		}
	}

	return out, nil
}

func sortedKeys(m map[string]UserInput) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// cartesianStrings returns the cartesian product of the given string sets,
// each result ordered the same as the input sets.
func cartesianStrings(sets [][]string) [][]string {
	if len(sets) == 0 {
		return nil
	}

	result := [][]string{{}}

	for _, set := range sets {
		var next [][]string

		for _, combo := range result {
			for _, v := range set {
				c := append(append([]string(nil), combo...), v)
				next = append(next, c)
			}
		}

		result = next
	}

	return result
}
