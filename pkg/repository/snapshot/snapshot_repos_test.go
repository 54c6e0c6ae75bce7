//nolint:funlen // ok for tests
package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/openf1-insights/pkg/archive"
	"github.com/mpapenbr/openf1-insights/pkg/repository"
	"github.com/mpapenbr/openf1-insights/testsupport/tcpostgres"
)

func setup(t *testing.T) (*pgxpool.Pool, archive.Store) {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	pool, err := tcpostgres.SetupTestDB(context.Background())
	require.NoError(t, err)
	tcpostgres.ClearAllTables(pool)
	t.Cleanup(pool.Close)
	return pool, NewSnapshotRepository(repository.NewDBFromPool(pool))
}

func newSnapshot(t *testing.T, sessionKey int, created time.Time) *archive.Snapshot {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return &archive.Snapshot{
		ID:         id,
		SessionKey: sessionKey,
		Mode:       "live",
		Created:    created,
		Data:       []byte(`{"sessionKey": 9158}`),
	}
}

func TestSaveLatest(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()
	base := time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)

	_, err := r.Latest(ctx, 9158)
	assert.ErrorIs(t, err, archive.ErrNotFound)

	first := newSnapshot(t, 9158, base)
	second := newSnapshot(t, 9158, base.Add(10*time.Second))
	require.NoError(t, r.Save(ctx, first, 0))
	require.NoError(t, r.Save(ctx, second, 0))

	got, err := r.Latest(ctx, 9158)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.True(t, second.Created.Equal(got.Created))
	assert.JSONEq(t, string(second.Data), string(got.Data))

	all, err := r.List(ctx, 9158, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRetentionAndDelete(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()
	base := time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)

	var last *archive.Snapshot
	for i := 0; i < 4; i++ {
		last = newSnapshot(t, 1, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, r.Save(ctx, last, 3))
	}
	require.NoError(t, r.Save(ctx, newSnapshot(t, 2, base), 3))

	all, err := r.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID)

	sessions, err := r.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, sessions)

	n, err := r.DeleteSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSaveWithinTransaction(t *testing.T) {
	pool, r := setup(t)
	ctx := context.Background()
	tm := repository.NewTransactionManager(repository.NewDBFromPool(pool))

	snap := newSnapshot(t, 3, time.Now().UTC())
	err := tm.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.Save(ctx, snap, 0); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = r.Latest(ctx, 3)
	assert.ErrorIs(t, err, archive.ErrNotFound)
}
