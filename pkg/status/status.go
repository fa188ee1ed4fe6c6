// Package status reconciles a run's filesystem-observed state (its metrics
// file and, if configured, its afterscript output) with its Slurm
// accounting state, producing one Status per run.
package status

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/wrapper"
)

// Completion discriminates the filesystem-observed lifecycle of a run.
type Completion int

const (
	Pending Completion = iota
	Running
	Completed
)

// FSStatus is the filesystem half of a run's reconciled status.
type FSStatus struct {
	Completion  Completion
	Measurement *model.Measurement

	// AfterscriptChecked is false when no afterscript output could be
	// read (no afterscript configured, or the file does not exist yet).
	AfterscriptChecked bool
	// Label is the highest-priority matching label, nil if the
	// afterscript output matched none.
	Label *model.Label
}

// Status is the full reconciled view of one run.
type Status struct {
	RunID       int
	FS          FSStatus
	SlurmStatus *model.SlurmStatus
}

// IsCompleted reports whether the run is done, by either view.
func (s Status) IsCompleted() bool {
	if s.FS.Completion == Completed {
		return true
	}

	return s.SlurmStatus != nil && s.SlurmStatus.State.IsTerminal()
}

// HasFailed reports whether the run ended in failure by any signal: a
// nonzero exit code, a Slurm failure kill-reason, or a matched label whose
// rerun_by_default is set.
func (s Status) HasFailed() bool {
	if s.FS.Measurement != nil && s.FS.Measurement.Tag == model.Done && s.FS.Measurement.ExitCode != 0 {
		return true
	}

	if s.SlurmStatus != nil && s.SlurmStatus.State.IsFailure() {
		return true
	}

	if s.FS.Label != nil && s.FS.Label.RerunByDefault {
		return true
	}

	return false
}

// IsScheduled reports whether Slurm accounting has a row for this run.
func (s Status) IsScheduled() bool {
	return s.SlurmStatus != nil
}

// Reconcile produces a Status for every run in exp. slurmStatuses maps run
// id to accounting status and is nil (or need not contain every id) for
// local environments.
func Reconcile(logger log.Logger, exp *model.Experiment, slurmStatuses map[int]model.SlurmStatus) []Status {
	out := make([]Status, 0, len(exp.Runs))

	for i := range exp.Runs {
		run := &exp.Runs[i]
		out = append(out, reconcileRun(logger, exp, run, slurmStatuses))
	}

	return out
}

func reconcileRun(logger log.Logger, exp *model.Experiment, run *model.Run, slurmStatuses map[int]model.SlurmStatus) Status {
	fs := fsStatus(logger, exp, run)

	st := Status{RunID: run.ID, FS: fs}

	if slurmStatuses != nil {
		if s, ok := slurmStatuses[run.ID]; ok {
			st.SlurmStatus = &s
		}
	}

	return st
}

func fsStatus(logger log.Logger, exp *model.Experiment, run *model.Run) FSStatus {
	measurement, ok, err := wrapper.ReadMeasurement(run.Metrics)
	if err != nil {
		level.Debug(logger).Log("msg", "metrics file unreadable, treating as pending", "run", run.ID, "err", err)

		return FSStatus{Completion: Pending}
	}

	fs := FSStatus{Completion: Pending}

	if ok {
		switch measurement.Tag {
		case model.NotCompleted:
			fs.Completion = Running
		case model.Done:
			fs.Completion = Completed
			fs.Measurement = measurement
		}
	}

	label, checked := afterscriptLabel(logger, exp, run)
	fs.AfterscriptChecked = checked
	fs.Label = label

	return fs
}

// afterscriptLabel implements fs_status.afterscript_completion: checked is
// false when there is nothing to report (no afterscript configured, or its
// output file does not exist yet); label is nil when the output matched no
// configured label.
func afterscriptLabel(logger log.Logger, exp *model.Experiment, run *model.Run) (label *model.Label, checked bool) {
	if run.Afterscript == "" {
		return nil, false
	}

	data, err := os.ReadFile(run.Afterscript)
	if err != nil {
		return nil, false
	}

	matches := matchingLabels(exp.Labels, data)
	if len(matches) == 0 {
		return nil, true
	}

	if len(matches) > 1 && exp.WarnOnLabelOverlap {
		level.Warn(logger).Log("msg", "afterscript output matched multiple labels", "run", run.ID,
			"chosen", matches[0].Name, "candidates", len(matches))
	}

	return &matches[0], true
}

// matchingLabels returns the labels whose regex matches output, sorted by
// decreasing priority.
func matchingLabels(labels []model.Label, output []byte) []model.Label {
	var matched []model.Label

	for _, l := range labels {
		re, err := regexp.Compile(l.Regex)
		if err != nil {
			continue
		}

		if re.Match(output) {
			matched = append(matched, l)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})

	return matched
}

// ErrNotFound is returned when a status for an unknown run id is requested.
var ErrNotFound = fmt.Errorf("run not found")

// ByRunID returns the status for a specific run id, for callers (like the
// rerun selector) that already have the full slice.
func ByRunID(statuses []Status, runID int) (Status, error) {
	for _, s := range statuses {
		if s.RunID == runID {
			return s, nil
		}
	}

	return Status{}, fmt.Errorf("%w: %d", ErrNotFound, runID)
}

// AllTerminal reports whether every run in statuses is completed, the
// condition the blocking status view polls for.
func AllTerminal(statuses []Status) bool {
	for _, s := range statuses {
		if !s.IsCompleted() {
			return false
		}
	}

	return true
}
