//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/openf1-insights/pkg/db/migrate"
	database "github.com/mpapenbr/openf1-insights/pkg/db/postgres"
)

// SetupTestDB starts (or reuses) the postgres test container and returns a
// pool on the migrated database
func SetupTestDB(ctx context.Context) (*pgxpool.Pool, error) {
	container, err := SetupPostgres(ctx, WithName("openf1-insights-test"))
	if err != nil {
		return nil, err
	}
	dbURL, err := container.URL(ctx)
	if err != nil {
		return nil, err
	}
	if err = migrate.MigrateDb(dbURL); err != nil {
		return nil, err
	}
	return database.InitWithURL(ctx, dbURL)
}

func ClearSnapshotTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from snapshot")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearSnapshotTable(pool)
}
