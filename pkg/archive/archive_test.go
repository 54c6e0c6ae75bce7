package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/openf1-insights/pkg/presenter"
)

type memStore struct {
	saved []*Snapshot
	keep  int
	err   error
}

func (m *memStore) Save(ctx context.Context, snap *Snapshot, keep int) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snap)
	m.keep = keep
	return nil
}

func (m *memStore) Latest(ctx context.Context, sessionKey int) (*Snapshot, error) {
	return nil, ErrNotFound
}

func (m *memStore) List(ctx context.Context, sessionKey, limit int) ([]*Snapshot, error) {
	return m.saved, nil
}

func (m *memStore) Sessions(ctx context.Context) ([]int, error) {
	return nil, nil
}

func (m *memStore) DeleteSession(ctx context.Context, sessionKey int) (int, error) {
	return 0, nil
}

func (m *memStore) Close() error {
	return nil
}

func TestNewSnapshot(t *testing.T) {
	generated := time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)
	doc := &presenter.Document{SessionKey: 9158, Mode: "live", Generated: generated}
	snap, err := NewSnapshot(doc)
	require.NoError(t, err)
	assert.False(t, snap.ID.IsNil())
	assert.Equal(t, 9158, snap.SessionKey)
	assert.Equal(t, "live", snap.Mode)
	assert.Equal(t, generated, snap.Created)

	got, err := snap.Document()
	require.NoError(t, err)
	assert.Equal(t, doc.SessionKey, got.SessionKey)
	assert.Equal(t, doc.Generated, got.Generated)
}

func TestSink(t *testing.T) {
	store := &memStore{}
	sink := NewSink(store, WithRetention(5))
	require.NoError(t, sink.Publish(context.Background(), &presenter.Document{SessionKey: 1}))
	require.Len(t, store.saved, 1)
	assert.Equal(t, 5, store.keep)

	store.err = errors.New("db down")
	assert.Error(t, sink.Publish(context.Background(), &presenter.Document{SessionKey: 1}))
}
