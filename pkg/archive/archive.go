package archive

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/presenter"
)

var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a persisted rendered document
type Snapshot struct {
	ID         uuid.UUID
	SessionKey int
	Mode       string
	Created    time.Time
	Data       []byte // json encoded presenter.Document
}

// Document decodes the stored document
func (s *Snapshot) Document() (*presenter.Document, error) {
	var doc presenter.Document
	if err := json.Unmarshal(s.Data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Store persists snapshots. List and Latest return the newest entries first.
type Store interface {
	// Save stores snap. If keep > 0 only the newest keep snapshots of the
	// session are retained.
	Save(ctx context.Context, snap *Snapshot, keep int) error
	Latest(ctx context.Context, sessionKey int) (*Snapshot, error)
	List(ctx context.Context, sessionKey, limit int) ([]*Snapshot, error)
	Sessions(ctx context.Context) ([]int, error)
	DeleteSession(ctx context.Context, sessionKey int) (int, error)
	Close() error
}

// NewSnapshot creates a snapshot of doc with a new id
func NewSnapshot(doc *presenter.Document) (*Snapshot, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:         id,
		SessionKey: doc.SessionKey,
		Mode:       doc.Mode,
		Created:    doc.Generated,
		Data:       data,
	}, nil
}

type SinkOption func(*Sink)

// WithRetention keeps at most n snapshots per session
func WithRetention(n int) SinkOption {
	return func(s *Sink) {
		s.keep = n
	}
}

// Sink stores every published document
type Sink struct {
	store Store
	keep  int
	l     *log.Logger
}

func NewSink(store Store, opts ...SinkOption) *Sink {
	ret := &Sink{store: store, l: log.Default().Named("archive")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *Sink) Publish(ctx context.Context, doc *presenter.Document) error {
	snap, err := NewSnapshot(doc)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, snap, s.keep); err != nil {
		return err
	}
	s.l.Debug("snapshot stored",
		log.Int("sessionKey", snap.SessionKey),
		log.String("id", snap.ID.String()),
		log.Int("size", len(snap.Data)))
	return nil
}
