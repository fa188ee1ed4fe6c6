// Package acct caches parsed Slurm accounting rows: a short-TTL in-process
// memo sits in front of a sqlite-backed table that persists across
// orchestrator invocations. The package only stores and returns rows; it
// never runs sacct itself.
package acct

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/go-kit/log"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jellydator/ttlcache/v3"

	"github.com/gourd-go/gourd/internal/structset"
	"github.com/gourd-go/gourd/pkg/model"
)

// MemoTTL bounds how long a fresh accounting row is trusted before the
// cache considers it stale and worth re-querying.
const MemoTTL = 30 * time.Second

// jobRow is the sqlite row shape for one job's last known accounting
// status.
type jobRow struct {
	JobID           string `sql:"job_id"`
	JobName         string `sql:"job_name"`
	State           int    `sql:"state"`
	SlurmExitCode   int    `sql:"slurm_exit_code"`
	ProgramExitCode int    `sql:"program_exit_code"`
	UpdatedAt       int64  `sql:"updated_at"`
}

// Cache stores Slurm accounting rows behind a short-TTL in-process memo
// and a sqlite table for durability across orchestrator invocations.
type Cache struct {
	db    *sql.DB
	memo  *ttlcache.Cache[string, model.SlurmStatus]
	logger log.Logger
}

// Open opens (creating if absent) the sqlite accounting cache at path and
// applies its schema.
func Open(path string, logger log.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening accounting cache %s: %w", path, err)
	}

	mig, err := newMigrator(logger)
	if err != nil {
		db.Close()

		return nil, err
	}

	if err := mig.apply(db); err != nil {
		db.Close()

		return nil, err
	}

	memo := ttlcache.New[string, model.SlurmStatus](ttlcache.WithTTL[string, model.SlurmStatus](MemoTTL))

	go memo.Start()

	return &Cache{db: db, memo: memo, logger: logger}, nil
}

// Close releases the underlying sqlite connection and stops the memo's
// background eviction loop.
func (c *Cache) Close() error {
	c.memo.Stop()

	return c.db.Close()
}

// Get returns a cached status for jobID, preferring the in-process memo
// and falling back to sqlite; the second return is false on a full miss.
func (c *Cache) Get(ctx context.Context, jobID string) (model.SlurmStatus, bool) {
	if item := c.memo.Get(jobID); item != nil {
		return item.Value(), true
	}

	row, ok, err := c.queryRow(ctx, jobID)
	if err != nil || !ok {
		return model.SlurmStatus{}, false
	}

	status := rowToStatus(row)
	c.memo.Set(jobID, status, ttlcache.DefaultTTL)

	return status, true
}

// Put records the latest known status for a job, in both the memo and
// sqlite, replacing any row already stored for that job id.
func (c *Cache) Put(ctx context.Context, status model.SlurmStatus) error {
	c.memo.Set(status.JobID, status, ttlcache.DefaultTTL)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO slurm_jobs (job_id, job_name, state, slurm_exit_code, program_exit_code, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			job_name = excluded.job_name,
			state = excluded.state,
			slurm_exit_code = excluded.slurm_exit_code,
			program_exit_code = excluded.program_exit_code,
			updated_at = excluded.updated_at
	`, status.JobID, status.JobName, int(status.State), status.SlurmExitCode, status.ProgramExitCode, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("caching status for job %s: %w", status.JobID, err)
	}

	return nil
}

// PutAll stores every status returned by one accounting query.
func (c *Cache) PutAll(ctx context.Context, statuses []model.SlurmStatus) error {
	for _, s := range statuses {
		if err := c.Put(ctx, s); err != nil {
			return err
		}
	}

	return nil
}

func (c *Cache) queryRow(ctx context.Context, jobID string) (jobRow, bool, error) {
	columns := []string{"job_id", "job_name", "state", "slurm_exit_code", "program_exit_code", "updated_at"}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM slurm_jobs WHERE job_id = ?", joinColumns(columns)), jobID)
	if err != nil {
		return jobRow{}, false, fmt.Errorf("querying accounting cache: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return jobRow{}, false, nil
	}

	var row jobRow

	indexes := structset.CachedFieldIndexes(reflect.TypeOf(row))
	if err := structset.ScanRow(rows, columns, indexes, &row); err != nil {
		return jobRow{}, false, fmt.Errorf("scanning accounting cache row: %w", err)
	}

	return row, true, nil
}

func rowToStatus(row jobRow) model.SlurmStatus {
	return model.SlurmStatus{
		JobID:           row.JobID,
		JobName:         row.JobName,
		State:           model.SlurmStateKind(row.State),
		SlurmExitCode:   row.SlurmExitCode,
		ProgramExitCode: row.ProgramExitCode,
	}
}

func joinColumns(columns []string) string {
	out := columns[0]
	for _, c := range columns[1:] {
		out += ", " + c
	}

	return out
}
