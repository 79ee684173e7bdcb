// Package migrate applies the SQL schema in migrations/ via
// golang-migrate, the same library (if not the same driver plumbing) the
// teacher pack's encoredev-encore daemon uses to bring a Postgres cluster
// up to date before serving traffic.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// Up applies every pending migration in sourceDir against db. Returns nil
// (and logs) if the schema was already current.
func Up(db *sql.DB, sourceDir string, log zerolog.Logger) error {
	m, err := newMigrator(db, sourceDir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("database already up to date")
			return nil
		}
		return fmt.Errorf("migrate: up: %w", err)
	}
	log.Info().Msg("migration completed")
	return nil
}

// Down rolls back the single most recently applied migration.
func Down(db *sql.DB, sourceDir string, log zerolog.Logger) error {
	m, err := newMigrator(db, sourceDir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("nothing to roll back")
			return nil
		}
		return fmt.Errorf("migrate: down: %w", err)
	}
	log.Info().Msg("rolled back one migration")
	return nil
}

func newMigrator(db *sql.DB, sourceDir string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate: build postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+sourceDir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate: build migrator: %w", err)
	}
	return m, nil
}
