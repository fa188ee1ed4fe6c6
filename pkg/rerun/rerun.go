// Package rerun implements the rerun selector (C10): classifying runs by
// outcome, letting a user pick which failed runs to resubmit, and emitting
// the new run records that supersede them.
package rerun

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/plan"
	"github.com/gourd-go/gourd/pkg/status"
)

// InteractiveThreshold is the candidate-list size at or above which the
// interactive flow switches from per-run confirmation to a single
// {only failed, all, cancel} prompt.
const InteractiveThreshold = 10

// ClassKind names the outcome a run is classified into.
type ClassKind int

const (
	DoesNotExist ClassKind = iota
	NotFinished
	FinishedExitZero
	FinishedSuccessLabel
	FailedErrorLabel
	FailedExitCode
	RerunAs
)

// Class is the classification of one run, carrying whichever extra detail
// its kind implies.
type Class struct {
	Kind     ClassKind
	Label    *model.Label
	ExitCode int
	RerunID  int
}

// ErrAlreadyRerun is returned when a caller asks to rerun a run that
// already has a rerun link.
var ErrAlreadyRerun = errors.New("run has already been rerun")

// Classify determines the outcome class of runID within exp, given its
// reconciled status.
func Classify(exp *model.Experiment, st status.Status) Class {
	run, ok := exp.RunByID(st.RunID)
	if !ok {
		return Class{Kind: DoesNotExist}
	}

	if run.Rerun != nil {
		return Class{Kind: RerunAs, RerunID: *run.Rerun}
	}

	if !st.IsCompleted() {
		return Class{Kind: NotFinished}
	}

	if st.FS.Label != nil {
		if st.FS.Label.RerunByDefault {
			return Class{Kind: FailedErrorLabel, Label: st.FS.Label}
		}

		return Class{Kind: FinishedSuccessLabel, Label: st.FS.Label}
	}

	if st.HasFailed() {
		code := 0
		if st.FS.Measurement != nil {
			code = st.FS.Measurement.ExitCode
		}

		return Class{Kind: FailedExitCode, ExitCode: code}
	}

	return Class{Kind: FinishedExitZero}
}

// IsFailed reports whether a class represents a rerun candidate.
func (c Class) IsFailed() bool {
	return c.Kind == FailedErrorLabel || c.Kind == FailedExitCode
}

// SelectScript implements the script-mode selection: explicit, if the user
// supplied ids, otherwise every failed-classified run.
func SelectScript(exp *model.Experiment, statuses []status.Status, explicit []int) []int {
	if len(explicit) > 0 {
		return explicit
	}

	var out []int

	for _, st := range statuses {
		if Classify(exp, st).IsFailed() {
			out = append(out, st.RunID)
		}
	}

	return out
}

// Confirm is a yes/no prompt; callers supply the reader/writer pair so
// tests can drive it without a real terminal.
type Confirm func(prompt string) (bool, error)

// StdioConfirm reads a y/n answer from r, matching the line-oriented
// confirmation flows elsewhere in the pack's CLIs.
func StdioConfirm(r io.Reader, w io.Writer) Confirm {
	scanner := bufio.NewScanner(r)

	return func(prompt string) (bool, error) {
		fmt.Fprintf(w, "%s [y/N] ", prompt)

		if !scanner.Scan() {
			return false, scanner.Err()
		}

		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))

		return answer == "y" || answer == "yes", nil
	}
}

// SelectInteractive drives the interactive confirmation flow over
// candidates (already-failed run ids). Below InteractiveThreshold it
// confirms each one individually; at or above it, it offers a single
// {only failed, all, cancel} choice via choose.
func SelectInteractive(candidates, all []int, confirm Confirm, choose func(prompt string, options []string) (string, error)) ([]int, error) {
	if len(candidates) < InteractiveThreshold {
		var out []int

		for _, id := range candidates {
			ok, err := confirm(fmt.Sprintf("rerun run %d?", id))
			if err != nil {
				return nil, err
			}

			if ok {
				out = append(out, id)
			}
		}

		return out, nil
	}

	choice, err := choose("rerun which runs?", []string{"only failed", "all", "cancel"})
	if err != nil {
		return nil, err
	}

	switch choice {
	case "only failed":
		return candidates, nil
	case "all":
		return all, nil
	default:
		return nil, nil
	}
}

// LimitOverrides holds user-supplied resource-limit bumps keyed by program
// name, loaded from an optional TOML file (rerun's --limits-file) in both
// script and interactive mode.
type LimitOverrides map[string]model.ResourceLimits

// For returns the override limits for programName, or fallback if none was
// supplied.
func (o LimitOverrides) For(programName string, fallback model.ResourceLimits) model.ResourceLimits {
	if l, ok := o[programName]; ok {
		return l
	}

	return fallback
}

// New builds the run that supersedes original: it reuses original's
// program and input references, carries limits (possibly adjusted by the
// caller), and bumps the rerun sequence counter. The caller is responsible
// for appending the result to exp.Runs and setting original.Rerun.
func New(exp *model.Experiment, original *model.Run, limits model.ResourceLimits) (model.Run, error) {
	if original.Rerun != nil {
		return model.Run{}, fmt.Errorf("%w: run %d -> %d", ErrAlreadyRerun, original.ID, *original.Rerun)
	}

	newID := len(exp.Runs)
	origID := original.ID

	workDir, stdout, stderr, metrics, afterscript := plan.Paths(exp.OutputDir, exp.Seq, original.Program.Name, newID)

	run := model.Run{
		ID:       newID,
		Program:  original.Program,
		Input:    original.Input,
		Stdin:    original.Stdin,
		Args:     append([]string(nil), original.Args...),
		WorkDir:  workDir,
		Stdout:   stdout,
		Stderr:   stderr,
		Metrics:  metrics,
		Limits:   limits,
		RerunOf:  &origID,
		RerunSeq: original.RerunSeq + 1,
	}

	if _, ok := exp.Programs[original.Program.Name]; ok && exp.Programs[original.Program.Name].Afterscript != "" {
		run.Afterscript = afterscript
	}

	return run, nil
}
