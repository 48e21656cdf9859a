// Package migrations owns the history schema. Migration files are embedded
// so a dt binary always knows the schema version it expects.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

var (
	// ErrUnversioned means the history database was never migrated.
	ErrUnversioned = errors.New("history database has no schema version")
	// ErrDirty means a previous migration stopped half way.
	ErrDirty = errors.New("history database schema is dirty")
	// ErrBehind means the database predates this binary's schema.
	ErrBehind = errors.New("history database schema is behind")
	// ErrAhead means the database was written by a newer dt.
	ErrAhead = errors.New("history database schema is ahead of this dt binary")
)

// Latest returns the newest schema version embedded in the binary.
func Latest() (uint, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return 0, fmt.Errorf("reading migrations: %w", err)
	}
	defer src.Close()

	latest, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading migrations: %w", err)
	}
	for {
		next, err := src.Next(latest)
		if err != nil {
			return latest, nil
		}
		latest = next
	}
}

// Check compares the schema version of db with Latest and returns one of the
// sentinel errors if they differ.
func Check(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	// Closing m would close db, which the caller owns.

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return ErrUnversioned
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	case dirty:
		return fmt.Errorf("%w at version %d", ErrDirty, version)
	}

	latest, err := Latest()
	if err != nil {
		return err
	}
	if version < latest {
		return fmt.Errorf("%w: at version %d, want %d", ErrBehind, version, latest)
	}
	if version > latest {
		return fmt.Errorf("%w: at version %d, binary knows %d", ErrAhead, version, latest)
	}
	return nil
}

// Up applies every pending migration. An up-to-date database is not an error.
func Up(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating history database: %w", err)
	}
	return nil
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("opening migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("opening migrations: %w", err)
	}
	return m, nil
}
