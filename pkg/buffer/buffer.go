package buffer

import (
	"context"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

// Capacity is the default number of records kept per category
const Capacity = 500

type (
	Option       func(*TopicBuffers)
	TopicBuffers struct {
		mu       sync.Mutex
		capacity int
		buffers  map[model.Category][]model.Record
		appended map[model.Category]int64
		evicted  map[model.Category]int64
		closed   bool
		name     string
		mp       metric.MeterProvider
		reg      metric.Registration
		l        *log.Logger
	}
)

func WithCapacity(n int) Option {
	return func(b *TopicBuffers) {
		if n > 0 {
			b.capacity = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *TopicBuffers) {
		b.l = l
	}
}

// WithTelemetry registers observable gauges for this buffer set.
// name is used as attribute to distinguish multiple buffer sets.
func WithTelemetry(name string) Option {
	return func(b *TopicBuffers) {
		b.name = name
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(b *TopicBuffers) {
		b.mp = mp
	}
}

func New(opts ...Option) *TopicBuffers {
	ret := &TopicBuffers{
		capacity: Capacity,
		buffers:  make(map[model.Category][]model.Record),
		appended: make(map[model.Category]int64),
		evicted:  make(map[model.Category]int64),
		l:        log.Default().Named("buffer"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.name != "" {
		ret.setupMetrics()
	}
	return ret
}

// Append adds rec to the buffer of cat. The oldest records are dropped once the
// buffer holds more than capacity entries. Returns false if the record was not
// stored (buffers closed or unknown category).
func (b *TopicBuffers) Append(cat model.Category, rec model.Record) bool {
	if !cat.Valid() {
		b.l.Debug("ignoring record for unknown category", log.String("category", string(cat)))
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	buf := append(b.buffers[cat], rec)
	if excess := len(buf) - b.capacity; excess > 0 {
		copy(buf, buf[excess:])
		clear(buf[b.capacity:])
		buf = buf[:b.capacity]
		b.evicted[cat] += int64(excess)
	}
	b.buffers[cat] = buf
	b.appended[cat]++
	return true
}

// Snapshot returns a copy of the current contents of cat in insertion order.
// Unknown or empty categories yield an empty (non-nil) slice.
func (b *TopicBuffers) Snapshot(cat model.Category) []model.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot(cat)
}

// SnapshotAll returns a copy of every category taken under a single lock.
func (b *TopicBuffers) SnapshotAll() model.Collections {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := make(model.Collections, len(model.AllCategories()))
	for _, cat := range model.AllCategories() {
		ret[cat] = b.snapshot(cat)
	}
	return ret
}

func (b *TopicBuffers) snapshot(cat model.Category) []model.Record {
	buf, ok := b.buffers[cat]
	if !ok {
		return []model.Record{}
	}
	return slices.Clone(buf)
}

func (b *TopicBuffers) Len(cat model.Category) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers[cat])
}

// Close stops accepting records. Existing contents stay readable.
func (b *TopicBuffers) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.reg != nil {
		if err := b.reg.Unregister(); err != nil {
			b.l.Warn("could not unregister metrics", log.ErrorField(err))
		}
		b.reg = nil
	}
	b.l.Info("buffers closed", log.Any("appended", b.appended))
}

func (b *TopicBuffers) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

//nolint:funlen // readability
func (b *TopicBuffers) setupMetrics() {
	mp := b.mp
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("f1i.buffer")
	length, err1 := meter.Int64ObservableGauge("f1i.buffer.len",
		metric.WithDescription("Number of records in buffer"),
		metric.WithUnit("{count}"))
	appended, err2 := meter.Int64ObservableGauge("f1i.buffer.appended",
		metric.WithDescription("Number of appended records"),
		metric.WithUnit("{count}"))
	evicted, err3 := meter.Int64ObservableGauge("f1i.buffer.evicted",
		metric.WithDescription("Number of evicted records"),
		metric.WithUnit("{count}"))
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			b.l.Error("failed to create metric", log.ErrorField(err))
			return
		}
	}
	reg, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, cat := range model.AllCategories() {
				attrs := metric.WithAttributes(
					attribute.String("name", b.name),
					attribute.String("category", string(cat)),
				)
				o.ObserveInt64(length, int64(len(b.buffers[cat])), attrs)
				o.ObserveInt64(appended, b.appended[cat], attrs)
				o.ObserveInt64(evicted, b.evicted[cat], attrs)
			}
			return nil
		}, length, appended, evicted)
	if err != nil {
		b.l.Error("failed to register metric callback", log.ErrorField(err))
		return
	}
	b.reg = reg
}
