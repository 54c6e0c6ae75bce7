package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/openf1-insights/pkg/archive"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(t *testing.T, sessionKey int, created time.Time) *archive.Snapshot {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return &archive.Snapshot{
		ID:         id,
		SessionKey: sessionKey,
		Mode:       "historical",
		Created:    created,
		Data:       []byte(`{"sessionKey":1}`),
	}
}

func TestSaveAndLatest(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)

	_, err := s.Latest(ctx, 1)
	assert.ErrorIs(t, err, archive.ErrNotFound)

	first := snapshot(t, 1, base)
	second := snapshot(t, 1, base.Add(time.Minute))
	require.NoError(t, s.Save(ctx, first, 0))
	require.NoError(t, s.Save(ctx, second, 0))

	got, err := s.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, second.Created, got.Created)
	assert.Equal(t, second.Data, got.Data)
	assert.Equal(t, "historical", got.Mode)

	all, err := s.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[1].ID)
}

func TestRetention(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)

	var last *archive.Snapshot
	for i := 0; i < 5; i++ {
		last = snapshot(t, 7, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Save(ctx, last, 2))
	}
	other := snapshot(t, 8, base)
	require.NoError(t, s.Save(ctx, other, 2))

	all, err := s.List(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, last.ID, all[0].ID)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8}, sessions)

	n, err := s.DeleteSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sessions, err = s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, sessions)
}
