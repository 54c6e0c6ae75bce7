// Package storage opens the snapshot archive configured by a database url.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/openf1-insights/pkg/archive"
	"github.com/mpapenbr/openf1-insights/pkg/db/migrate"
	"github.com/mpapenbr/openf1-insights/pkg/db/postgres"
	"github.com/mpapenbr/openf1-insights/pkg/repository"
	"github.com/mpapenbr/openf1-insights/pkg/repository/snapshot"
	"github.com/mpapenbr/openf1-insights/pkg/storage/sqlite"
)

var (
	// ErrDisabled is returned for an empty url
	ErrDisabled       = errors.New("storage disabled")
	ErrUnsupportedURL = errors.New("unsupported storage url")
)

type pgStore struct {
	archive.Store
	pool *pgxpool.Pool
}

func (s *pgStore) Close() error {
	err := s.Store.Close()
	s.pool.Close()
	return err
}

// Open returns the archive store for url. postgresql:// urls are migrated
// before use, sqlite://<path> urls are migrated by the sqlite store.
//
//nolint:whitespace // editor/linter issue
func Open(
	ctx context.Context, url string, opts ...postgres.PoolConfigOption,
) (archive.Store, error) {
	switch {
	case url == "":
		return nil, ErrDisabled
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.New(strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		if err := migrate.MigrateDb(url); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		pool, err := postgres.InitWithURL(ctx, url, opts...)
		if err != nil {
			return nil, err
		}
		return &pgStore{
			Store: snapshot.NewSnapshotRepository(repository.NewDBFromPool(pool)),
			pool:  pool,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, url)
	}
}
