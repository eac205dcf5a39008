package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/fynovel/fyctl/internal/log"
)

//go:embed sql/*.sql
var files embed.FS

// Schema applies the embedded task history and search cache migrations.
type Schema struct {
	db     *sql.DB
	logger log.Logger
}

// NewSchema returns a schema migrator over an open SQLite database.
func NewSchema(db *sql.DB, logger log.Logger) (*Schema, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Schema{db: db, logger: logger.WithValues(log.Kv{"svc": "storage.SQLiteSchema"})}, nil
}

// Migrate brings the schema to the latest version and returns it.
func (s *Schema) Migrate() (uint, error) {
	var version uint
	err := s.with(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not run migrations: %w", err)
		}
		v, _, err := m.Version()
		if err != nil {
			return fmt.Errorf("could not get schema version: %w", err)
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debugf("Schema at version %d", version)
	return version, nil
}

// Version returns the current schema version and if the last migration left it dirty.
// A database without migrations returns version 0.
func (s *Schema) Version() (version uint, dirty bool, err error) {
	err = s.with(func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty, err = 0, false, nil
		}
		return err
	})
	return version, dirty, err
}

// Reset reverts all the migrations.
func (s *Schema) Reset() error {
	return s.with(func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not revert migrations: %w", err)
		}
		return nil
	})
}

func (s *Schema) with(f func(m *migrate.Migrate) error) error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(files, "sql")
	if err != nil {
		return fmt.Errorf("could not create migration source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warningf("could not close migration source: %s", err)
		}
	}()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	return f(m)
}
