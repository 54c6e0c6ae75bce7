package migrate

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

var ErrUnsupportedURL = errors.New("unsupported database url")

// MigrateDb applies all pending migrations for the database addressed by dbURI.
// Supported schemes are postgresql:// (postgres://) and sqlite://
func MigrateDb(dbURI string) error {
	dir, target, err := resolve(dbURI)
	if err != nil {
		return err
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, dir)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		return err
	}
	return up(m)
}

// MigrateFromSource applies migrations read from sourceURL (e.g. file:///migrations)
func MigrateFromSource(sourceURL, dbURI string) error {
	_, target, err := resolve(dbURI)
	if err != nil {
		return err
	}
	m, err := migrate.New(sourceURL, target)
	if err != nil {
		return err
	}
	return up(m)
}

func up(m *migrate.Migrate) error {
	defer m.Close()
	err := m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// resolve returns the migration directory and the url understood by the
// golang-migrate database drivers
func resolve(dbURI string) (dir, target string, err error) {
	switch {
	case strings.HasPrefix(dbURI, "postgresql://"):
		return "postgres", strings.Replace(dbURI, "postgresql://", "pgx5://", 1), nil
	case strings.HasPrefix(dbURI, "postgres://"):
		return "postgres", strings.Replace(dbURI, "postgres://", "pgx5://", 1), nil
	case strings.HasPrefix(dbURI, "sqlite://"):
		return "sqlite", dbURI, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedURL, dbURI)
	}
}
