// Package model defines the data types persisted in an experiment's lockfile:
// programs, inputs, runs, chunks and the labels used to classify afterscript
// output.
package model

import "time"

// FieldKind discriminates the two namespaces a program or input key can
// live in.
type FieldKind int

const (
	// Regular identifies a user-defined program or input.
	Regular FieldKind = iota
	// Postprocess identifies a program used only to post-process the
	// output of another program.
	Postprocess
)

func (k FieldKind) String() string {
	if k == Postprocess {
		return "postprocess"
	}

	return "regular"
}

// FieldRef is a key into the experiment's program or input table, tagged
// with the namespace it belongs to.
type FieldRef struct {
	Kind FieldKind `toml:"kind"`
	Name string    `toml:"name"`
}

// ResourceLimits bounds the wall time and hardware a run (or chunk of runs)
// may consume.
type ResourceLimits struct {
	Time       time.Duration `toml:"time"`
	CPUs       int           `toml:"cpus"`
	MemPerCPU  int           `toml:"mem_per_cpu_mb"`
	Partition  string        `toml:"partition"`
	Account    string        `toml:"account"`
	ArraySizeLimit int       `toml:"array_size_limit,omitempty"`
}

// Equal reports whether two resource limits are bitwise identical, the
// equality the chunker groups runs by.
func (r ResourceLimits) Equal(o ResourceLimits) bool {
	return r == o
}

// Program is the canonical, already-expanded description of one binary to
// invoke.
type Program struct {
	Name          string         `toml:"name"`
	Binary        string         `toml:"binary"`
	ArgumentPrefix []string      `toml:"argument_prefix,omitempty"`
	Afterscript   string         `toml:"afterscript,omitempty"`
	Limits        ResourceLimits `toml:"limits"`
	Next          []string       `toml:"next,omitempty"`
	Postprocess   bool           `toml:"postprocess,omitempty"`
}

// Input is the canonical, already-expanded description of one argument
// vector / stdin pairing fed to a program.
type Input struct {
	Name           string   `toml:"name"`
	Stdin          string   `toml:"stdin,omitempty"`
	ArgumentSuffix []string `toml:"argument_suffix,omitempty"`
	GlobParent     string   `toml:"glob_parent,omitempty"`
	Fetched        bool     `toml:"fetched,omitempty"`
}

// Label assigns a name to a regex matched against afterscript output.
type Label struct {
	Name            string `toml:"name"`
	Regex           string `toml:"regex"`
	Priority        int    `toml:"priority"`
	RerunByDefault  bool   `toml:"rerun_by_default"`
}

// RUsage mirrors the 16 fields reported by a wait4-style syscall at child
// exit. On platforms where rusage could not be collected,
// Measurement.RUsage is nil instead.
type RUsage struct {
	UTime    time.Duration `toml:"utime"`
	STime    time.Duration `toml:"stime"`
	MaxRSS   int64         `toml:"maxrss"`
	IXRSS    int64         `toml:"ixrss"`
	IDRSS    int64         `toml:"idrss"`
	ISRSS    int64         `toml:"isrss"`
	MinFlt   int64         `toml:"minflt"`
	MajFlt   int64         `toml:"majflt"`
	NSwap    int64         `toml:"nswap"`
	InBlock  int64         `toml:"inblock"`
	OuBlock  int64         `toml:"oublock"`
	MsgSnd   int64         `toml:"msgsnd"`
	MsgRcv   int64         `toml:"msgrcv"`
	NSignals int64         `toml:"nsignals"`
	NVCSw    int64         `toml:"nvcsw"`
	NIVCSw   int64         `toml:"nivcsw"`
}

// MeasurementTag discriminates the metrics-file states (§ metrics file
// format): absent is represented by the file not existing at all and is
// never a value of this type.
type MeasurementTag int

const (
	// NotCompleted is the sentinel written before the child is spawned.
	NotCompleted MeasurementTag = iota
	// Done is the final measurement written once the child exits.
	Done
)

// Measurement is the tagged union written to a run's metrics file.
type Measurement struct {
	Tag        MeasurementTag `toml:"tag"`
	WallMicros int64          `toml:"wall_micros,omitempty"`
	ExitCode   int            `toml:"exit_code,omitempty"`
	RUsage     *RUsage        `toml:"rusage,omitempty"`
}

// ChunkStatusTag discriminates the lifecycle of a chunk.
type ChunkStatusTag int

const (
	// ChunkPending has not been submitted anywhere.
	ChunkPending ChunkStatusTag = iota
	// ChunkRanLocally executed through the local executor.
	ChunkRanLocally
	// ChunkScheduled was submitted to Slurm with the given batch id.
	ChunkScheduled
)

// ChunkStatus is the tagged status of a Chunk.
type ChunkStatus struct {
	Tag     ChunkStatusTag `toml:"tag"`
	BatchID string         `toml:"batch_id,omitempty"`
}

// Run is a single scheduled or scheduleable execution.
type Run struct {
	ID        int      `toml:"id"`
	Program   FieldRef `toml:"program"`
	Input     string   `toml:"input"`
	Stdin     string   `toml:"stdin,omitempty"`
	Args      []string `toml:"args,omitempty"`
	Stdout    string   `toml:"stdout"`
	Stderr    string   `toml:"stderr"`
	Metrics   string   `toml:"metrics"`
	WorkDir   string   `toml:"work_dir"`
	Afterscript string `toml:"afterscript,omitempty"`
	Limits    ResourceLimits `toml:"limits"`
	SlurmID   string   `toml:"slurm_id,omitempty"`
	Parent    *int     `toml:"parent,omitempty"`
	Children  []int    `toml:"children,omitempty"`
	Rerun     *int     `toml:"rerun,omitempty"`
	RerunOf   *int     `toml:"rerun_of,omitempty"`
	RerunSeq  int      `toml:"rerun_seq,omitempty"`
}

// Chunk is a Slurm array batch: an ordered group of runs sharing identical
// resource limits.
type Chunk struct {
	RunIDs []int          `toml:"run_ids"`
	Limits ResourceLimits `toml:"limits"`
	Status ChunkStatus    `toml:"status"`
}

// SlurmStateKind is the 12-variant tagged Slurm state (§4.7, §9).
type SlurmStateKind int

const (
	SlurmRunning SlurmStateKind = iota
	SlurmPending
	SlurmCompleted
	SlurmBootFail
	SlurmCancelled
	SlurmDeadline
	SlurmNodeFail
	SlurmOutOfMemory
	SlurmPreempted
	SlurmSuspended
	SlurmTimeout
	SlurmFail
)

// IsFailure reports whether the state is one of the nine kill-reason
// variants.
func (k SlurmStateKind) IsFailure() bool {
	switch k {
	case SlurmBootFail, SlurmCancelled, SlurmDeadline, SlurmNodeFail,
		SlurmOutOfMemory, SlurmPreempted, SlurmSuspended, SlurmTimeout, SlurmFail:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state will never change on its own.
func (k SlurmStateKind) IsTerminal() bool {
	return k == SlurmCompleted || k.IsFailure()
}

// String names the state the way sacct's long-form state codes do.
func (k SlurmStateKind) String() string {
	switch k {
	case SlurmRunning:
		return "RUNNING"
	case SlurmPending:
		return "PENDING"
	case SlurmCompleted:
		return "COMPLETED"
	case SlurmBootFail:
		return "BOOT_FAIL"
	case SlurmCancelled:
		return "CANCELLED"
	case SlurmDeadline:
		return "DEADLINE"
	case SlurmNodeFail:
		return "NODE_FAIL"
	case SlurmOutOfMemory:
		return "OUT_OF_MEMORY"
	case SlurmPreempted:
		return "PREEMPTED"
	case SlurmSuspended:
		return "SUSPENDED"
	case SlurmTimeout:
		return "TIMEOUT"
	default:
		return "SLURM_FAIL"
	}
}

// SlurmStatus is one accounting row for one Slurm task id.
type SlurmStatus struct {
	JobID            string
	JobName          string
	State            SlurmStateKind
	SlurmExitCode    int
	ProgramExitCode  int
}

// Environment selects the execution backend an experiment targets.
type Environment string

const (
	Local Environment = "local"
	Slurm Environment = "slurm"
)

// SlurmConfig holds the cluster-facing settings needed by the dispatcher.
type SlurmConfig struct {
	Partition      string `toml:"partition"`
	Account        string `toml:"account,omitempty"`
	ArraySizeLimit int    `toml:"array_size_limit"`
	Begin          string `toml:"begin,omitempty"`
	MailType       string `toml:"mail_type,omitempty"`
	MailUser       string `toml:"mail_user,omitempty"`
}

// Experiment is the root aggregate persisted as "<seq>.lock".
type Experiment struct {
	Seq         int               `toml:"seq"`
	Name        string            `toml:"name"`
	CreatedAt   time.Time         `toml:"created_at"`
	Environment Environment       `toml:"environment"`
	Home        string            `toml:"home"`
	Wrapper     string            `toml:"wrapper"`
	OutputDir   string            `toml:"output_dir"`
	MetricsDir  string            `toml:"metrics_dir"`
	AfterscriptDir string         `toml:"afterscript_dir,omitempty"`
	DefaultLimits *ResourceLimits `toml:"default_limits,omitempty"`
	Slurm       *SlurmConfig      `toml:"slurm,omitempty"`
	WarnOnLabelOverlap bool       `toml:"warn_on_label_overlap"`
	Labels      []Label           `toml:"labels,omitempty"`
	Programs    map[string]Program `toml:"programs"`
	Inputs      map[string]Input   `toml:"inputs"`
	Runs        []Run             `toml:"runs"`
	Chunks      []Chunk           `toml:"chunks"`
}

// ProgramByRef looks up a program by the name in ref; ref.Kind is not
// consulted.
func (e *Experiment) ProgramByRef(ref FieldRef) (Program, bool) {
	p, ok := e.Programs[ref.Name]

	return p, ok
}

// RunByID returns the run with the given id, or false if out of range.
func (e *Experiment) RunByID(id int) (*Run, bool) {
	if id < 0 || id >= len(e.Runs) {
		return nil, false
	}

	return &e.Runs[id], true
}
