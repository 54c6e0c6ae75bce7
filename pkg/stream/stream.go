package stream

import (
	"context"
	"errors"

	"github.com/mpapenbr/openf1-insights/pkg/model"
)

var (
	ErrAlreadyConnected = errors.New("stream already connected")
	ErrNotConnected     = errors.New("stream not connected")
)

// Sink receives live records
type Sink interface {
	Append(cat model.Category, rec model.Record) bool
}

// Source delivers records to a sink between Connect and Disconnect.
// After Disconnect returns no more records are passed to the sink.
type Source interface {
	Connect(ctx context.Context) error
	Disconnect() error
}
