// Package cli implements the gourd orchestrator's command-line surface:
// init, run, continue, status, rerun, and cancel, using kingpin for
// command/flag parsing and promlog for logging setup.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/promlog"
	"github.com/prometheus/common/promlog/flag"
	"github.com/prometheus/common/version"

	"github.com/gourd-go/gourd/internal/common"
	"github.com/gourd-go/gourd/internal/runtime"
	"github.com/gourd-go/gourd/pkg/acct"
	"github.com/gourd-go/gourd/pkg/chunk"
	"github.com/gourd-go/gourd/pkg/config"
	"github.com/gourd-go/gourd/pkg/experiment"
	"github.com/gourd-go/gourd/pkg/fetch"
	"github.com/gourd-go/gourd/pkg/local"
	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/plan"
	"github.com/gourd-go/gourd/pkg/rerun"
	"github.com/gourd-go/gourd/pkg/slurm"
	"github.com/gourd-go/gourd/pkg/status"
	"github.com/gourd-go/gourd/pkg/statusview"
)

// AppName is the kingpin application name.
const AppName = "gourd"

// App is the gourd orchestrator CLI.
type App struct {
	app *kingpin.Application
}

// NewApp builds the gourd CLI, with every subcommand registered.
func NewApp() *App {
	app := kingpin.New(AppName, "Orchestrates empirical-evaluation experiments across local and Slurm backends.")
	app.UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Version(version.Print(AppName))

	return &App{app: app}
}

// Main parses argv and dispatches to the selected subcommand.
func (a *App) Main(argv []string) error {
	var (
		configPath     = a.app.Flag("config", "Path to the experiment TOML configuration.").Required().String()
		experimentsDir = a.app.Flag("experiments-dir", "Directory holding <seq>.lock experiment files.").String()
		scriptMode     = a.app.Flag("script", "Suppress interactive prompts.").Bool()
		dryRun         = a.app.Flag("dry", "Plan without executing.").Bool()
	)

	promlogConfig := &promlog.Config{}
	flag.AddFlags(a.app, promlogConfig)

	initCmd := a.app.Command("init", "Parse the configuration and create a new experiment lockfile.")
	runCmd := a.app.Command("run", "Schedule and execute the next batch of eligible runs.")
	runLocal := runCmd.Command("local", "Run eligible runs through the local executor.")
	runSlurm := runCmd.Command("slurm", "Submit eligible runs to Slurm as array jobs.")
	continueCmd := a.app.Command("continue", "Resume an in-progress experiment, scheduling whatever is newly eligible.")
	statusCmd := a.app.Command("status", "Print reconciled status for an experiment.")
	rerunCmd := a.app.Command("rerun", "Select and resubmit failed runs.")
	cancelCmd := a.app.Command("cancel", "Cancel an experiment's outstanding Slurm jobs.")

	var (
		runChunkLen = runCmd.Flag("chunk-len", "Maximum runs per Slurm array chunk.").Default("64").Int()
		runHowMany  = runCmd.Flag("max-chunks", "Maximum number of chunks to schedule this invocation.").Default("8").Int()
		rerunIDs    = rerunCmd.Flag("id", "Explicit run ids to rerun (script mode); repeatable.").Ints()
		limitsFile  = rerunCmd.Flag("limits-file", "TOML file of per-program resource-limit overrides for this rerun.").String()
	)

	cmd, err := a.app.Parse(argv)
	if err != nil {
		return fmt.Errorf("parsing CLI flags: %w", err)
	}

	logger := promlog.New(promlogConfig)

	level.Info(logger).Log("msg", "starting "+AppName, "version", version.Info())
	level.Debug(logger).Log("msg", runtime.Uname())
	level.Debug(logger).Log("msg", runtime.FdLimits())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := *experimentsDir
	if dir == "" {
		dir = filepath.Dir(*configPath)
	}

	env := &environment{
		logger:     logger,
		configPath: *configPath,
		dir:        dir,
		script:     *scriptMode,
		dry:        *dryRun,
	}

	switch cmd {
	case initCmd.FullCommand():
		return env.initExperiment(ctx)
	case runLocal.FullCommand():
		return env.runLocal(ctx, *runChunkLen, *runHowMany)
	case runSlurm.FullCommand():
		return env.runSlurm(ctx, *runChunkLen, *runHowMany)
	case continueCmd.FullCommand():
		return env.runContinue(ctx, *runChunkLen, *runHowMany)
	case statusCmd.FullCommand():
		return env.printStatus(ctx)
	case rerunCmd.FullCommand():
		return env.rerun(*rerunIDs, *limitsFile)
	case cancelCmd.FullCommand():
		return env.cancel(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type environment struct {
	logger     log.Logger
	configPath string
	dir        string
	script     bool
	dry        bool
}

func (e *environment) initExperiment(ctx context.Context) error {
	data, err := os.ReadFile(e.configPath)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", e.configPath, err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}

	globbed, err := config.ExpandGlobs(cfg.Inputs, filepath.Glob)
	if err != nil {
		return err
	}

	expandedParams, err := config.ExpandParameters(globbed, cfg.Parameters)
	if err != nil {
		return err
	}

	expanded, err := config.ExpandFetch(ctx, e.logger, fetch.NewClient(), expandedParams, e.dir)
	if err != nil {
		return err
	}

	programs, err := config.ToModelPrograms(cfg.Programs, cfg.DefaultLimits, cfg.PostprocessLimits)
	if err != nil {
		return err
	}

	inputs := config.ToModelInputs(expanded)

	outputDir := cfg.OutputDir

	seq, err := experiment.NextSeq(e.dir)
	if err != nil {
		return err
	}

	runs, err := plan.Build(programs, inputs, outputDir, seq)
	if err != nil {
		return err
	}

	exp := &model.Experiment{
		Seq:                seq,
		Name:               cfg.Name,
		Environment:        model.Local,
		Home:               e.dir,
		Wrapper:            cfg.Wrapper,
		OutputDir:          outputDir,
		MetricsDir:         cfg.MetricsDir,
		DefaultLimits:      cfg.DefaultLimits,
		Slurm:              cfg.Slurm,
		WarnOnLabelOverlap: cfg.WarnOnLabelOverlap,
		Labels:             cfg.Labels,
		Programs:           programs,
		Inputs:             inputs,
		Runs:               runs,
	}

	if exp.Slurm != nil {
		exp.Environment = model.Slurm
	}

	if e.dry {
		level.Info(e.logger).Log("msg", "dry run: plan computed, not writing lockfile", "runs", len(runs))

		return nil
	}

	if err := experiment.Save(e.dir, exp); err != nil {
		return err
	}

	level.Info(e.logger).Log("msg", "experiment created", "seq", exp.Seq, "runs", len(runs))

	return nil
}

func (e *environment) loadLatest() (*model.Experiment, error) {
	seq, err := experiment.Discover(e.dir)
	if err != nil {
		return nil, err
	}

	return experiment.Load(e.dir, seq)
}

func (e *environment) runLocal(ctx context.Context, chunkLen, howMany int) error {
	exp, err := e.loadLatest()
	if err != nil {
		return err
	}

	chunkStatuses := chunkStatusesOf(exp)

	chunks, err := chunk.NextChunks(exp, chunkStatuses, chunkLen, howMany)
	if err != nil {
		if errors.Is(err, chunk.ErrNoRunsToSchedule) {
			level.Info(e.logger).Log("msg", "no eligible runs")

			return nil
		}

		return err
	}

	if e.dry {
		level.Info(e.logger).Log("msg", "dry run: would schedule locally", "chunks", len(chunks))

		return nil
	}

	lockPath := filepath.Join(e.dir, experiment.LockFileName(exp.Seq))

	indices := make([]int, len(chunks))
	for i, c := range chunks {
		indices[i] = chunk.RegisterChunk(exp, c)
	}

	// The wrapper processes spawned below load this lockfile from disk as
	// a separate process, so the chunks just registered must already be
	// on disk before any of them runs.
	if err := experiment.Save(e.dir, exp); err != nil {
		return err
	}

	for _, idx := range indices {
		c := exp.Chunks[idx]

		invocations := make([]local.Invocation, 0, len(c.RunIDs))
		for jobIdx := range c.RunIDs {
			invocations = append(invocations, local.Invocation{
				Binary: exp.Wrapper,
				Args:   []string{lockPath, strconv.Itoa(idx), strconv.Itoa(jobIdx)},
			})
		}

		if runErr := local.Run(ctx, e.logger, invocations); runErr != nil {
			level.Error(e.logger).Log("msg", "local batch had failures", "chunk", idx, "err", runErr)
		}

		exp.Chunks[idx].Status = model.ChunkStatus{Tag: model.ChunkRanLocally}
	}

	return experiment.Save(e.dir, exp)
}

func (e *environment) runSlurm(ctx context.Context, chunkLen, howMany int) error {
	exp, err := e.loadLatest()
	if err != nil {
		return err
	}

	if exp.Slurm == nil {
		return fmt.Errorf("experiment %d has no slurm configuration", exp.Seq)
	}

	dispatcher := slurm.NewDispatcher()

	if err := dispatcher.Preflight(ctx, *exp.Slurm); err != nil {
		return err
	}

	limit := chunkLen
	if exp.Slurm.ArraySizeLimit > 0 && exp.Slurm.ArraySizeLimit < limit {
		limit = exp.Slurm.ArraySizeLimit
	}

	chunkStatuses := chunkStatusesOf(exp)

	chunks, err := chunk.NextChunks(exp, chunkStatuses, limit, howMany)
	if err != nil {
		if errors.Is(err, chunk.ErrNoRunsToSchedule) {
			level.Info(e.logger).Log("msg", "no eligible runs")

			return nil
		}

		return err
	}

	if e.dry {
		level.Info(e.logger).Log("msg", "dry run: would submit to slurm", "chunks", len(chunks))

		return nil
	}

	lockPath := filepath.Join(e.dir, experiment.LockFileName(exp.Seq))

	for _, c := range chunks {
		idx := chunk.RegisterChunk(exp, c)

		if err := dispatcher.SubmitChunk(ctx, exp, idx, lockPath); err != nil {
			return err
		}
	}

	return experiment.Save(e.dir, exp)
}

func (e *environment) runContinue(ctx context.Context, chunkLen, howMany int) error {
	exp, err := e.loadLatest()
	if err != nil {
		return err
	}

	level.Info(e.logger).Log("msg", statusview.FormatProgress(exp, chunkStatusesOf(exp)))

	if exp.Environment == model.Slurm {
		return e.runSlurm(ctx, chunkLen, howMany)
	}

	return e.runLocal(ctx, chunkLen, howMany)
}

func (e *environment) printStatus(ctx context.Context) error {
	exp, err := e.loadLatest()
	if err != nil {
		return err
	}

	statuses, err := e.reconcile(ctx, exp)
	if err != nil {
		return err
	}

	level.Info(e.logger).Log("msg", statusview.FormatProgress(exp, chunkStatusesOf(exp)))

	statusview.Render(os.Stdout, exp, statuses)

	return nil
}

func (e *environment) reconcile(ctx context.Context, exp *model.Experiment) ([]status.Status, error) {
	var slurmStatuses map[int]model.SlurmStatus

	if exp.Environment == model.Slurm {
		dispatcher := slurm.NewDispatcher()

		cachePath := filepath.Join(e.dir, fmt.Sprintf(".%d.acct.db", exp.Seq))

		cache, err := acct.Open(cachePath, e.logger)
		if err == nil {
			defer cache.Close()
		}

		got, err := dispatcher.Accounting(ctx, exp)
		if err != nil {
			level.Warn(e.logger).Log("msg", "slurm accounting query failed", "err", err)
		} else {
			slurmStatuses = got

			if cache != nil {
				_ = cache.PutAll(ctx, valuesOf(got))
			}
		}
	}

	return status.Reconcile(e.logger, exp, slurmStatuses), nil
}

func (e *environment) rerun(explicitIDs []int, limitsFile string) error {
	exp, err := e.loadLatest()
	if err != nil {
		return err
	}

	var overrides rerun.LimitOverrides

	if limitsFile != "" {
		loaded, err := common.MakeConfig[rerun.LimitOverrides](limitsFile)
		if err != nil {
			return fmt.Errorf("loading limit overrides %s: %w", limitsFile, err)
		}

		overrides = *loaded
	}

	statuses := status.Reconcile(e.logger, exp, nil)

	var candidates []int

	if e.script {
		candidates = rerun.SelectScript(exp, statuses, explicitIDs)
	} else {
		var all []int

		for _, st := range statuses {
			if rerun.Classify(exp, st).IsFailed() {
				all = append(all, st.RunID)
			}
		}

		candidates, err = rerun.SelectInteractive(all, all, rerun.StdioConfirm(os.Stdin, os.Stdout), promptChoice)
		if err != nil {
			return err
		}
	}

	for _, id := range candidates {
		run, ok := exp.RunByID(id)
		if !ok {
			continue
		}

		newRun, err := rerun.New(exp, run, overrides.For(run.Program.Name, run.Limits))
		if err != nil {
			level.Warn(e.logger).Log("msg", "skipping rerun candidate", "run", id, "err", err)

			continue
		}

		exp.Runs = append(exp.Runs, newRun)
		newID := newRun.ID
		exp.Runs[id].Rerun = &newID
	}

	return experiment.Save(e.dir, exp)
}

func (e *environment) cancel(ctx context.Context) error {
	exp, err := e.loadLatest()
	if err != nil {
		return err
	}

	var batchIDs []string

	seen := make(map[string]bool)

	for _, run := range exp.Runs {
		if run.SlurmID == "" {
			continue
		}

		batch := run.SlurmID

		if idx := strings.IndexByte(batch, '_'); idx >= 0 {
			batch = batch[:idx]
		}

		if !seen[batch] {
			seen[batch] = true

			batchIDs = append(batchIDs, batch)
		}
	}

	return slurm.NewDispatcher().Interactor.CancelJobs(ctx, batchIDs)
}

func chunkStatusesOf(exp *model.Experiment) map[int]chunk.Status {
	statuses := status.Reconcile(log.NewNopLogger(), exp, nil)

	out := make(map[int]chunk.Status, len(statuses))

	for _, st := range statuses {
		out[st.RunID] = chunk.Status{Completed: st.IsCompleted()}
	}

	for _, c := range exp.Chunks {
		if c.Status.Tag == model.ChunkScheduled || c.Status.Tag == model.ChunkRanLocally {
			for _, id := range c.RunIDs {
				cs := out[id]
				cs.Scheduled = true
				out[id] = cs
			}
		}
	}

	return out
}

func valuesOf(m map[int]model.SlurmStatus) []model.SlurmStatus {
	out := make([]model.SlurmStatus, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}

	return out
}

// promptChoice is the {only failed, all, cancel} chooser for large rerun
// candidate lists; a minimal line-oriented prompt in the absence of a
// richer interactive-prompt library anywhere in the pack.
func promptChoice(prompt string, options []string) (string, error) {
	fmt.Printf("%s %v: ", prompt, options)

	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return "cancel", nil
	}

	for _, o := range options {
		if o == answer {
			return o, nil
		}
	}

	return "cancel", nil
}
