package acct

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator applies the cache schema using an iofs-source golang-migrate
// wiring.
type migrator struct {
	logger    log.Logger
	srcDriver source.Driver
}

func newMigrator(logger log.Logger) (*migrator, error) {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}

	return &migrator{logger: logger, srcDriver: d}, nil
}

func (m *migrator) apply(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite3 migration instance: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", m.srcDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	if version, dirty, err := mig.Version(); err == nil {
		level.Debug(m.logger).Log("msg", "accounting cache schema", "version", version, "dirty", dirty)
	}

	return nil
}
