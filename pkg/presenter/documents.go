package presenter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/drivers"
	"github.com/mpapenbr/openf1-insights/pkg/insights"
	"github.com/mpapenbr/openf1-insights/pkg/metrics"
)

// Sink receives rendered documents
type Sink interface {
	Publish(ctx context.Context, doc *Document) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, doc *Document) error

func (f SinkFunc) Publish(ctx context.Context, doc *Document) error {
	return f(ctx, doc)
}

type namedSink struct {
	name string
	sink Sink
}

// Sinks passes a document to all registered sinks. Each sink is called even if
// a previous one failed.
type Sinks struct {
	sinks []namedSink
	l     *log.Logger
}

func NewSinks() *Sinks {
	return &Sinks{l: log.Default().Named("presenter")}
}

func (s *Sinks) Add(name string, sink Sink) *Sinks {
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
	return s
}

func (s *Sinks) Len() int {
	return len(s.sinks)
}

func (s *Sinks) Publish(ctx context.Context, doc *Document) error {
	var errs []error
	for _, item := range s.sinks {
		if err := item.sink.Publish(ctx, doc); err != nil {
			metrics.PresenterErrors.WithLabelValues(item.name).Inc()
			s.l.Warn("sink failed",
				log.String("sink", item.name),
				log.Int("sessionKey", doc.SessionKey),
				log.ErrorField(err))
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
	}
	return errors.Join(errs...)
}

// DirectoryFunc provides the driver directory of the current session
type DirectoryFunc func() *drivers.Directory

// Documents renders the insights with the current directory and passes the
// document to sink.
func Documents(dir DirectoryFunc, sink Sink, opts ...RenderOption) Presenter {
	return Func(func(ctx context.Context, sessionKey int, ins *insights.Insights) error {
		var d *drivers.Directory
		if dir != nil {
			d = dir()
		}
		return sink.Publish(ctx, Render(sessionKey, ins, d, opts...))
	})
}

// Latest keeps the most recent document per session
type Latest struct {
	mu   sync.RWMutex
	docs map[int]*Document
}

func NewLatest() *Latest {
	return &Latest{docs: map[int]*Document{}}
}

func (l *Latest) Publish(_ context.Context, doc *Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[doc.SessionKey] = doc
	return nil
}

func (l *Latest) Get(sessionKey int) (*Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[sessionKey]
	return doc, ok
}

// Forget removes the document of sessionKey
func (l *Latest) Forget(sessionKey int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.docs, sessionKey)
}
