package presenter

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/insights"
	"github.com/mpapenbr/openf1-insights/pkg/metrics"
)

// Presenter receives the insights computed for a session
type Presenter interface {
	Present(ctx context.Context, sessionKey int, ins *insights.Insights) error
}

// Func adapts a function to a Presenter
type Func func(ctx context.Context, sessionKey int, ins *insights.Insights) error

//nolint:whitespace // editor/linter issue
func (f Func) Present(
	ctx context.Context, sessionKey int, ins *insights.Insights,
) error {
	return f(ctx, sessionKey, ins)
}

type named struct {
	name string
	p    Presenter
}

// Multi forwards insights to all registered presenters. A failing presenter
// does not prevent the others from receiving the insights.
type Multi struct {
	presenters []named
	l          *log.Logger
}

func NewMulti() *Multi {
	return &Multi{l: log.Default().Named("presenter")}
}

func (m *Multi) Add(name string, p Presenter) *Multi {
	m.presenters = append(m.presenters, named{name: name, p: p})
	return m
}

func (m *Multi) Len() int {
	return len(m.presenters)
}

//nolint:whitespace // editor/linter issue
func (m *Multi) Present(
	ctx context.Context, sessionKey int, ins *insights.Insights,
) error {
	var errs []error
	for _, item := range m.presenters {
		if err := m.presentOne(ctx, item, sessionKey, ins); err != nil {
			metrics.PresenterErrors.WithLabelValues(item.name).Inc()
			m.l.Warn("presenter failed",
				log.String("presenter", item.name),
				log.Int("sessionKey", sessionKey),
				log.ErrorField(err))
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
	}
	return errors.Join(errs...)
}

//nolint:whitespace // editor/linter issue
func (m *Multi) presentOne(
	ctx context.Context, item named, sessionKey int, ins *insights.Insights,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return item.p.Present(ctx, sessionKey, ins)
}
