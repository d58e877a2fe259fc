package infra

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

var mutex = &sync.Mutex{} // nolint

// Migrate brings the schema at connStr up to the latest version in source.
// Runs are serialized within the process.
func Migrate(source string, connStr string) error {
	mutex.Lock()
	defer mutex.Unlock()

	zap.S().Infof("migrating from %s", source)

	mg, err := migrate.New(source, connStr)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}

	if dirty {
		target := forceTarget(version)
		zap.S().Warnf("schema dirty at version %d, forcing back to %d", version, target)
		if err := mg.Force(target); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	zap.S().Info("migration done")
	return nil
}

// forceTarget is the version a schema left dirty at version goes back to.
// The first migration has no predecessor, so it goes back to no version.
func forceTarget(version uint) int {
	if version <= 1 {
		return database.NilVersion
	}
	return int(version) - 1
}
