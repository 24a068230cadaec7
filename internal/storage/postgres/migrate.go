package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies any pending schema migrations through a database/sql
// handle borrowed from the pool.
func Migrate(pool *pgxpool.Pool) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	dbDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		// The driver holds a pooled connection until closed.
		_ = dbDriver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	return applyMigrations(m)
}

// migrator is the part of *migrate.Migrate that applyMigrations drives.
type migrator interface {
	Up() error
	Close() (source error, database error)
}

// applyMigrations runs every pending migration and always closes m, which
// hands the driver's connection back to the pool.
func applyMigrations(m migrator) (err error) {
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			if closeErr := errors.Join(srcErr, dbErr); closeErr != nil {
				err = fmt.Errorf("close migrator: %w", closeErr)
			}
		}
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
