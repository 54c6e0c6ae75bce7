package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/insights"
	"github.com/mpapenbr/openf1-insights/pkg/metrics"
	"github.com/mpapenbr/openf1-insights/pkg/model"
	"github.com/mpapenbr/openf1-insights/pkg/presenter"
)

// DefaultInterval is the time between two refresh iterations
const DefaultInterval = 10 * time.Second

var ErrAlreadyRunning = errors.New("refresh loop already running")

type State int

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshotter provides the current raw collections
type Snapshotter interface {
	SnapshotAll() model.Collections
}

type Option func(*Loop)

func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithSessionKey(key int) Option {
	return func(l *Loop) {
		l.sessionKey = key
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Loop) {
		l.l = logger
	}
}

func WithInsightsOptions(opts ...insights.Option) Option {
	return func(l *Loop) {
		l.insightOpts = append(l.insightOpts, opts...)
	}
}

// Loop periodically computes live insights from the buffers and hands them to
// the presenter.
type Loop struct {
	source      Snapshotter
	presenter   presenter.Presenter
	sessionKey  int
	interval    time.Duration
	insightOpts []insights.Option
	l           *log.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	ticks    atomic.Int64
	failures atomic.Int64
}

func New(source Snapshotter, p presenter.Presenter, opts ...Option) *Loop {
	ret := &Loop{
		source:    source,
		presenter: p,
		interval:  DefaultInterval,
		l:         log.Default().Named("refresh"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Start begins polling. Non-blocking.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StatePolling {
		return ErrAlreadyRunning
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.state = StatePolling
	l.l.Info("starting refresh loop",
		log.Int("sessionKey", l.sessionKey),
		log.Duration("interval", l.interval))
	go l.run(ctx, l.done)
	return nil
}

// Stop halts the loop. When Stop returns no further iteration will start.
// An iteration in progress is completed before Stop returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state != StatePolling {
		l.mu.Unlock()
		return
	}
	l.cancel()
	done := l.done
	l.state = StateIdle
	l.mu.Unlock()

	<-done
	l.l.Info("refresh loop stopped",
		log.Int("sessionKey", l.sessionKey),
		log.Int64("ticks", l.ticks.Load()),
		log.Int64("failures", l.failures.Load()))
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Running() bool {
	return l.State() == StatePolling
}

// Stats returns the number of iterations and failed iterations so far
func (l *Loop) Stats() (ticks, failures int64) {
	return l.ticks.Load(), l.failures.Load()
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer l.exited(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may have been called while the ticker fired
			if ctx.Err() != nil {
				return
			}
			// errors are logged and counted in Tick
			_ = l.Tick(context.WithoutCancel(ctx))
		}
	}
}

// exited returns the loop to idle if it ended because the parent context was
// cancelled. A Stop or a newer Start already owns the state otherwise.
func (l *Loop) exited(done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != done || l.state != StatePolling {
		return
	}
	l.state = StateIdle
	l.l.Info("refresh loop ended by context",
		log.Int("sessionKey", l.sessionKey),
		log.Int64("ticks", l.ticks.Load()),
		log.Int64("failures", l.failures.Load()))
}

// Tick runs one iteration: snapshot all buffers, compute live insights and
// present them. Failures (including panics) are logged and returned.
func (l *Loop) Tick(ctx context.Context) (err error) {
	start := time.Now()
	l.ticks.Add(1)
	metrics.RefreshTicks.Inc()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh iteration panicked: %v", r)
		}
		if err != nil {
			l.failures.Add(1)
			metrics.RefreshFailures.Inc()
			l.l.Error("refresh iteration failed",
				log.Int("sessionKey", l.sessionKey),
				log.ErrorField(err))
		}
		metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	raw := l.source.SnapshotAll()
	ins := insights.Generate(raw, model.ModeLive, l.insightOpts...)
	l.l.Debug("presenting insights",
		log.Int("sessionKey", l.sessionKey),
		log.Strings("views", ins.Names()))
	return l.presenter.Present(ctx, l.sessionKey, ins)
}
