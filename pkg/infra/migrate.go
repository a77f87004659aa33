// Package infra holds shared process-level plumbing: schema migration and
// the datastore wrappers in its subpackages.
package infra

import (
	"sync"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// IMigrateTool migrates schema from the current version to latest.
type IMigrateTool interface {
	Migrate(source string, connStr string) error
}

type migrateTool struct{}

var (
	once      sync.Once
	mutex     = &sync.Mutex{}
	singleton IMigrateTool
)

// GetMigrateTool returns the singleton migrate tool.
func GetMigrateTool() IMigrateTool {
	once.Do(func() {
		singleton = &migrateTool{}
	})
	return singleton
}

// Migrate runs pending migrations serially. A dirty version is forced back
// one step and re-applied.
func (mt *migrateTool) Migrate(source string, connStr string) error {
	mutex.Lock()
	defer mutex.Unlock()

	zap.S().Info("migrating...")
	mg, err := migrate.New(source, connStr)
	if err != nil {
		zap.S().Errorf("create migration fail: %v", err)
		return err
	}
	defer mg.Close() // nolint

	version, dirty, err := mg.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return err
	}
	if dirty {
		if err := mg.Force(int(version) - 1); err != nil {
			return err
		}
	}

	if err := mg.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	zap.S().Info("migration done")
	return nil
}
