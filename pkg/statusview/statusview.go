// Package statusview renders experiment status as a terminal table, in the
// same jedib0t/go-pretty style the pack's own status CLIs use, plus a
// scheduling progress indicator for long-running Slurm submissions.
package statusview

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/gourd-go/gourd/pkg/chunk"
	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/status"
)

// FormatProgress summarizes how many of an experiment's runs have been
// scheduled so far, the way the original scheduling printout reported
// "N total, M scheduled, K left" before the status table itself.
func FormatProgress(exp *model.Experiment, statuses map[int]chunk.Status) string {
	total := len(exp.Runs)

	scheduled := 0

	for _, st := range statuses {
		if st.Scheduled {
			scheduled++
		}
	}

	return fmt.Sprintf("experiment %d: %d total runs, %d scheduled, %d unscheduled", exp.Seq, total, scheduled, total-scheduled)
}

// Render writes a table of one row per run to w: id, program, input,
// completion, exit code, matched label, and Slurm state when present.
func Render(w io.Writer, exp *model.Experiment, statuses []status.Status) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	style := table.Style{
		Name:    "CustomStyleLight",
		Box:     table.StyleBoxLight,
		Color:   table.ColorOptionsDefault,
		HTML:    table.DefaultHTMLOptions,
		Options: table.OptionsDefault,
		Size:    table.SizeOptionsDefault,
		Title:   table.TitleOptionsDefault,
		Format: table.FormatOptions{
			Footer: text.FormatDefault,
			Header: text.FormatUpper,
			Row:    text.FormatDefault,
		},
	}

	t.SetStyle(style)
	t.SuppressEmptyColumns()
	t.SuppressTrailingSpaces()

	t.AppendHeader(table.Row{"Run", "Program", "Input", "State", "Exit", "Label", "Slurm"})

	for _, st := range statuses {
		run, ok := exp.RunByID(st.RunID)
		if !ok {
			continue
		}

		label := "-"
		if st.FS.Label != nil {
			label = st.FS.Label.Name
		}

		exit := "-"
		if st.FS.Measurement != nil && st.FS.Measurement.Tag == model.Done {
			exit = fmt.Sprintf("%d", st.FS.Measurement.ExitCode)
		}

		slurmState := "-"
		if st.SlurmStatus != nil {
			slurmState = st.SlurmStatus.State.String()
		}

		t.AppendRow(table.Row{run.ID, run.Program.Name, run.Input, completionLabel(st), exit, label, slurmState})
	}

	t.Render()
}

func completionLabel(st status.Status) string {
	switch {
	case st.HasFailed():
		return "failed"
	case st.IsCompleted():
		return "completed"
	case st.FS.Completion == status.Running:
		return "running"
	default:
		return "pending"
	}
}

// ProgressBar renders a simple "[===>   ] N/M" line, the
// blocking status view's feedback while it polls the filesystem for
// terminal runs (§5's ≈50ms polling suspension point).
type ProgressBar struct {
	w     io.Writer
	width int
}

// NewProgressBar returns a bar of the given character width writing to w.
func NewProgressBar(w io.Writer, width int) *ProgressBar {
	if width <= 0 {
		width = 40
	}

	return &ProgressBar{w: w, width: width}
}

// Update redraws the bar in place for done out of total.
func (p *ProgressBar) Update(done, total int) {
	if total == 0 {
		total = 1
	}

	filled := p.width * done / total

	bar := make([]byte, p.width)
	for i := range bar {
		switch {
		case i < filled:
			bar[i] = '='
		case i == filled:
			bar[i] = '>'
		default:
			bar[i] = ' '
		}
	}

	fmt.Fprintf(p.w, "\r[%s] %d/%d", string(bar), done, total)
}

// Finish terminates the progress line with a newline.
func (p *ProgressBar) Finish() {
	fmt.Fprintln(p.w)
}

// Poll blocks, calling check at the given interval and updating the bar,
// until check reports every run terminal.
func Poll(p *ProgressBar, interval time.Duration, check func() (done, total int, allTerminal bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		done, total, complete := check()
		p.Update(done, total)

		if complete {
			p.Finish()

			return
		}
	}
}
