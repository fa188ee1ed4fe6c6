// Package plan implements the experiment planner (C3): a non-recursive
// depth-first walk of the program dependency DAG that emits the full
// ordered list of runs with their paths, resource limits, and parent
// links.
package plan

import (
	"errors"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gourd-go/gourd/pkg/model"
)

// ErrCycle is returned when the program DAG is not acyclic.
var ErrCycle = errors.New("cycle detected in program dependency graph")

// ErrEmptyInputs is returned when expansion produced zero inputs for a root
// program: an empty run list is a planning error, not a valid experiment.
var ErrEmptyInputs = errors.New("no inputs available to plan runs from")

// Build walks programs in dependency order and returns the ordered run
// list for outputDir/seq, assigning run ids densely starting at 0 in DFS
// order.
func Build(programs map[string]model.Program, inputs map[string]model.Input, outputDir string, seq int) ([]model.Run, error) {
	next := make(map[string][]string, len(programs))
	hasIncoming := make(map[string]bool, len(programs))

	for name, p := range programs {
		next[name] = append([]string(nil), p.Next...)

		for _, child := range p.Next {
			hasIncoming[child] = true
		}
	}

	order, err := topoOrder(next)
	if err != nil {
		return nil, err
	}

	predecessors := make(map[string][]string, len(programs))

	for name, p := range programs {
		for _, child := range p.Next {
			predecessors[child] = append(predecessors[child], name)
		}
	}

	for _, preds := range predecessors {
		sort.Strings(preds)
	}

	var runs []model.Run

	runsByProgram := make(map[string][]int, len(programs))

	rootCount := 0

	for _, name := range order {
		program := programs[name]

		if !hasIncoming[name] {
			rootCount++

			inputNames := make([]string, 0, len(inputs))
			for inName := range inputs {
				inputNames = append(inputNames, inName)
			}

			sort.Strings(inputNames)

			if len(inputNames) == 0 {
				return nil, ErrEmptyInputs
			}

			for _, inName := range inputNames {
				input := inputs[inName]

				id := len(runs)
				run := newRun(id, fieldRefFor(name, program), inName, program, outputDir, seq)
				run.Stdin = input.Stdin
				run.Args = append(append([]string(nil), program.ArgumentPrefix...), input.ArgumentSuffix...)

				runs = append(runs, run)
				runsByProgram[name] = append(runsByProgram[name], id)
			}

			continue
		}

		for _, predName := range predecessors[name] {
			for _, parentID := range runsByProgram[predName] {
				parentID := parentID
				parentSnapshot := runs[parentID]

				id := len(runs)
				run := newRun(id, fieldRefFor(name, program), parentSnapshot.Input, program, outputDir, seq)
				run.Stdin = parentSnapshot.Stdout
				run.Args = append(append([]string(nil), program.ArgumentPrefix...), parentSnapshot.Args...)
				run.Parent = &parentID

				runs = append(runs, run)
				runsByProgram[name] = append(runsByProgram[name], id)

				runs[parentID].Children = append(runs[parentID].Children, id)
			}
		}
	}

	if rootCount == 0 {
		return nil, ErrEmptyInputs
	}

	return runs, nil
}

// Paths returns the standard per-run path layout:
// <output>/<seq>/<program>/<run_id>/{stdout,stderr,metrics,afterscript},
// reused by the rerun selector so resubmitted runs land in the same
// layout.
func Paths(outputDir string, seq int, programName string, id int) (workDir, stdout, stderr, metrics, afterscript string) {
	dir := filepath.Join(outputDir, strconv.Itoa(seq), programName, strconv.Itoa(id))

	return dir, filepath.Join(dir, "stdout"), filepath.Join(dir, "stderr"), filepath.Join(dir, "metrics"), filepath.Join(dir, "afterscript")
}

// fieldRefFor tags a program reference Postprocess when the program itself
// is marked as one, so the experiment's postprocess-specific resource
// limits remain distinguishable from regular programs at rerun and status
// time.
func fieldRefFor(name string, program model.Program) model.FieldRef {
	kind := model.Regular
	if program.Postprocess {
		kind = model.Postprocess
	}

	return model.FieldRef{Kind: kind, Name: name}
}

// newRun creates a run with its standard per-run path layout.
func newRun(id int, ref model.FieldRef, inputName string, program model.Program, outputDir string, seq int) model.Run {
	workDir, stdout, stderr, metrics, afterscript := Paths(outputDir, seq, ref.Name, id)

	run := model.Run{
		ID:      id,
		Program: ref,
		Input:   inputName,
		WorkDir: workDir,
		Stdout:  stdout,
		Stderr:  stderr,
		Metrics: metrics,
		Limits:  program.Limits,
	}

	if program.Afterscript != "" {
		run.Afterscript = afterscript
	}

	return run
}
