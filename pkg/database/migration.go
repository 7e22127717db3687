package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// Migrator applies the SQL migrations backing the reference Postgres
// adapters (provenance, source archive, review queue, source records).
type Migrator struct {
	config MigrationConfig
	logger ectologger.Logger
}

type MigrationConfig struct {
	// FolderPath holds the migration SQL files, absolute or relative to the
	// working directory.
	FolderPath string
	// TargetVersion pins the schema to a version. Zero migrates to the
	// latest version on disk.
	TargetVersion uint
	// ForceVersion stamps the schema version before migrating, clearing a
	// dirty flag left by an interrupted run. Zero skips the stamp.
	ForceVersion int
	// RollbackOnFailure reverts a dirty schema to the version that was
	// current before the run. The migration error is still returned.
	RollbackOnFailure bool
}

func NewMigrator(logger ectologger.Logger, config MigrationConfig) *Migrator {
	return &Migrator{
		config: config,
		logger: logger,
	}
}

// Run migrates databaseName to the configured target version, or to the
// latest version on disk when no target is set.
func (m *Migrator) Run(databaseName string, driver database.Driver) error {
	folder, err := m.folder()
	if err != nil {
		return err
	}

	runner, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		return errors.Wrap(err, "creating migrate instance")
	}
	runner.Log = migrateLogger{m.logger}

	if m.config.ForceVersion != 0 {
		if err := runner.Force(m.config.ForceVersion); err != nil {
			return errors.Wrapf(err, "forcing schema to version %d", m.config.ForceVersion)
		}
	}

	before, _, versionErr := runner.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		m.logger.WithError(versionErr).Warn("Could not read current schema version")
	}

	started := time.Now()
	if m.config.TargetVersion != 0 {
		err = runner.Migrate(m.config.TargetVersion)
	} else {
		err = runner.Up()
	}

	switch {
	case err == nil:
		m.logger.Infof("Schema migrations applied in %v", time.Since(started))
		return nil
	case err == migrate.ErrNoChange:
		m.logger.Info("Schema already up to date")
		return nil
	}

	return m.recover(runner, folder, err, before)
}

// recover handles the two failure shapes worth repairing in place: a schema
// version ahead of the files on disk (a rolled-back deploy), and a dirty
// version flag left by an interrupted migration.
func (m *Migrator) recover(runner *migrate.Migrate, folder string, runErr error, before uint) error {
	if strings.Contains(runErr.Error(), "no migration found for version") {
		latest, err := latestVersionOnDisk(folder)
		if err != nil {
			return errors.Wrap(runErr, "schema version has no matching migration file")
		}
		m.logger.Warnf("Schema version has no migration file on disk, stamping version %d", latest)
		if err := runner.Force(latest); err != nil {
			return errors.Wrapf(err, "forcing schema to version %d", latest)
		}
		return nil
	}

	version, dirty, versionErr := runner.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		m.logger.WithError(versionErr).Error("Could not read schema version after failed migration")
		return runErr
	}

	if dirty && m.config.RollbackOnFailure {
		if before == 0 && version > 0 {
			before = version - 1
		}
		m.logger.WithError(runErr).Warnf("Schema is dirty at version %d, reverting to version %d", version, before)
		if err := runner.Force(int(before)); err != nil {
			return errors.Wrapf(err, "reverting schema to version %d", before)
		}
		// the revert clears the dirty flag; the migration itself still failed
		return runErr
	}

	m.logger.WithError(runErr).Errorf("Migrations failed at version %d (dirty=%t)", version, dirty)
	return runErr
}

// folder resolves the configured migration folder, trying the path as given
// and then relative to the working directory.
func (m *Migrator) folder() (string, error) {
	path := m.config.FolderPath
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if wd, err := os.Getwd(); err == nil {
		joined := filepath.Join(wd, path)
		if _, err := os.Stat(joined); err == nil {
			return joined, nil
		}
	}
	return "", fmt.Errorf("migration folder %q not found", path)
}

var migrationFileRe = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// latestVersionOnDisk reports the highest-numbered up migration in folder.
func latestVersionOnDisk(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	latest := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFileRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if version > latest {
			latest = version
		}
	}

	if latest == 0 {
		return 0, fmt.Errorf("no migration files in %s", folder)
	}
	return latest, nil
}

// migrateLogger routes golang-migrate's progress output through ectologger.
type migrateLogger struct {
	logger ectologger.Logger
}

var _ migrate.Logger = migrateLogger{}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return false
}
