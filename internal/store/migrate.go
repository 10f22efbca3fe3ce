package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/workbook/internal/store/migrations"
	"go.uber.org/zap"
)

// ErrDirtySchema means an earlier migration stopped halfway. The database
// has to be repaired by hand before the daemon will use it.
var ErrDirtySchema = errors.New("store: schema is dirty")

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	From    uint
	Version uint
	Changed bool
}

// Migrate brings the schema up to the newest embedded migration and logs
// the outcome. logger may be nil.
func (db *DB) Migrate(logger *zap.Logger) (*MigrateResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return nil, fmt.Errorf("schema version: %w", err)
	case dirty:
		return nil, fmt.Errorf("%w at version %d", ErrDirtySchema, from)
	}

	changed := true
	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		changed = false
	} else if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	res := &MigrateResult{From: from, Version: version, Changed: changed}
	if changed {
		logger.Info("migrations applied",
			zap.String("path", db.path), zap.Uint("from", from), zap.Uint("version", version))
	} else {
		logger.Debug("schema up to date", zap.String("path", db.path), zap.Uint("version", version))
	}
	return res, nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}
