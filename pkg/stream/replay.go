package stream

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

// gaps between two records are capped to this duration (before speed is applied)
const maxReplayGap = 30 * time.Second

type (
	ReplayOption func(*Replay)
	// Replay feeds a historical batch into a sink in timestamp order.
	Replay struct {
		items []replayItem
		sink  Sink
		speed float64
		l     *log.Logger

		mu     sync.Mutex
		cancel context.CancelFunc
		wg     sync.WaitGroup
		done   chan struct{}
	}
	replayItem struct {
		cat model.Category
		rec model.Record
		ts  time.Time
	}
)

// WithSpeed sets the replay speed. 1 replays in real time, 0 (default) sends
// all records without delay.
func WithSpeed(speed float64) ReplayOption {
	return func(r *Replay) {
		if speed >= 0 {
			r.speed = speed
		}
	}
}

func WithReplayLogger(l *log.Logger) ReplayOption {
	return func(r *Replay) {
		r.l = l
	}
}

func NewReplay(data model.Collections, sink Sink, opts ...ReplayOption) *Replay {
	ret := &Replay{
		items: orderByTime(data),
		sink:  sink,
		l:     log.Default().Named("replay"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// orderByTime merges all categories. Records are ordered by their date (or
// date_start) field, records without a timestamp keep their position relative
// to the preceding record of the same category.
func orderByTime(data model.Collections) []replayItem {
	ret := []replayItem{}
	for _, cat := range model.AllCategories() {
		var last time.Time
		for _, rec := range data[cat] {
			ts, ok := rec.Time("date")
			if !ok {
				ts, ok = rec.Time("date_start")
			}
			if !ok {
				ts = last
			}
			last = ts
			ret = append(ret, replayItem{cat: cat, rec: rec, ts: ts})
		}
	}
	slices.SortStableFunc(ret, func(a, b replayItem) int {
		return a.ts.Compare(b.ts)
	})
	return ret
}

func (r *Replay) Len() int {
	return len(r.items)
}

func (r *Replay) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyConnected
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.done)
		r.run(ctx)
	}()
	return nil
}

// Done is closed once all records have been sent or the replay was stopped
func (r *Replay) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Replay) Disconnect() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return ErrNotConnected
	}
	r.cancel()
	r.cancel = nil
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

func (r *Replay) run(ctx context.Context) {
	r.l.Info("starting replay", log.Int("records", len(r.items)), log.Float64("speed", r.speed))
	var prev time.Time
	sent := 0
	for _, item := range r.items {
		if r.speed > 0 && !prev.IsZero() && item.ts.After(prev) {
			wait := min(item.ts.Sub(prev), maxReplayGap)
			select {
			case <-ctx.Done():
				r.l.Info("replay stopped", log.Int("sent", sent))
				return
			case <-time.After(time.Duration(float64(wait) / r.speed)):
			}
		}
		if ctx.Err() != nil {
			r.l.Info("replay stopped", log.Int("sent", sent))
			return
		}
		if !item.ts.IsZero() {
			prev = item.ts
		}
		r.sink.Append(item.cat, item.rec)
		sent++
	}
	r.l.Info("replay finished", log.Int("sent", sent))
}
