package session

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mpapenbr/openf1-insights/pkg/insights"
	"github.com/mpapenbr/openf1-insights/pkg/model"
	"github.com/mpapenbr/openf1-insights/pkg/presenter"
	"github.com/mpapenbr/openf1-insights/pkg/stream"
	"github.com/mpapenbr/openf1-insights/pkg/track"
)

type fakeClient struct {
	mu       sync.Mutex
	roster   map[int][]model.Record
	batch    model.Collections
	noToken  bool
	fetches  map[string]int
	fetchErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		roster: map[int][]model.Record{
			9158: {
				{"driver_number": 1.0, "full_name": "Max Verstappen", "team_name": "Red Bull Racing"},
				{"driver_number": 44.0},
			},
			9165: {{"driver_number": 16.0, "full_name": "Charles Leclerc", "team_name": "Ferrari"}},
		},
		batch: model.Collections{
			model.CategoryPit: {
				{"driver_number": 3.0}, {"driver_number": 7.0}, {"driver_number": 3.0},
			},
		},
		fetches: map[string]int{},
	}
}

//nolint:whitespace // editor/linter issue
func (c *fakeClient) Fetch(
	ctx context.Context, endpoint string, params url.Values,
) ([]model.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches[endpoint]++
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	switch endpoint {
	case "drivers":
		key, _ := strconv.Atoi(params.Get("session_key"))
		return c.roster[key], nil
	case "sessions":
		return []model.Record{{"circuit_short_name": "Singapore"}}, nil
	}
	return nil, nil
}

//nolint:whitespace // editor/linter issue
func (c *fakeClient) FetchSession(
	ctx context.Context, sessionKey int, cats ...model.Category,
) (model.Collections, error) {
	return c.batch, nil
}

func (c *fakeClient) Token(ctx context.Context) (*oauth2.Token, error) {
	if c.noToken {
		return nil, errors.New("no credentials")
	}
	return &oauth2.Token{AccessToken: "secret"}, nil
}

func (c *fakeClient) count(endpoint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches[endpoint]
}

type fakeSource struct {
	sink         stream.Sink
	records      []model.Record
	connected    bool
	disconnected bool
}

func (s *fakeSource) Connect(ctx context.Context) error {
	s.connected = true
	for _, r := range s.records {
		s.sink.Append(model.CategoryPit, r)
	}
	return nil
}

func (s *fakeSource) Disconnect() error {
	s.disconnected = true
	return nil
}

type collector struct {
	mu   sync.Mutex
	seen []*insights.Insights
}

//nolint:whitespace // editor/linter issue
func (c *collector) Present(
	ctx context.Context, sessionKey int, ins *insights.Insights,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, ins)
	return nil
}

func (c *collector) last() *insights.Insights {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seen) == 0 {
		return nil
	}
	return c.seen[len(c.seen)-1]
}

func TestSwitch(t *testing.T) {
	client := newFakeClient()
	m := NewManager(client)
	ctx := context.Background()

	assert.Nil(t, m.Current())
	assert.Nil(t, m.Directory())

	s, err := m.Switch(ctx, 9158, 1219)
	require.NoError(t, err)
	assert.Equal(t, 9158, s.Key())
	assert.Equal(t, 1219, s.MeetingKey())
	assert.Equal(t, "Max Verstappen", s.Directory().Name(1))
	assert.Equal(t, "Driver 44", s.Directory().Name(44))
	assert.Same(t, s, m.Current())

	s2, err := m.Switch(ctx, 9165, 0)
	require.NoError(t, err)
	assert.Equal(t, "Charles Leclerc", m.Directory().Name(16))
	assert.Equal(t, "#1", s2.Directory().Name(1))
}

func TestSwitchFailureLeavesNoSession(t *testing.T) {
	client := newFakeClient()
	m := NewManager(client)
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)

	client.fetchErr = errors.New("unavailable")
	_, err = m.Switch(ctx, 9165, 0)
	require.Error(t, err)
	assert.Nil(t, m.Current())

	_, err = m.LoadHistorical(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, m.StartLive(ctx), ErrNoSession)
	assert.ErrorIs(t, m.StopLive(), ErrNoSession)
}

func TestLoadHistorical(t *testing.T) {
	coll := &collector{}
	m := NewManager(newFakeClient(), WithPresenter(coll))
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)

	ins, err := m.LoadHistorical(ctx)
	require.NoError(t, err)
	assert.Equal(t, insights.PitCounts{3: 2, 7: 1}, ins.Pits)
	assert.Same(t, ins, coll.last())
}

func TestLoadHistoricalIgnoresPresenterErrors(t *testing.T) {
	failing := presenter.Func(func(context.Context, int, *insights.Insights) error {
		return errors.New("render failed")
	})
	m := NewManager(newFakeClient(), WithPresenter(failing))
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)
	_, err = m.LoadHistorical(ctx)
	assert.NoError(t, err)
}

func TestLive(t *testing.T) {
	coll := &collector{}
	var src *fakeSource
	factory := func(ctx context.Context, tok *oauth2.Token, sink stream.Sink) (stream.Source, error) {
		assert.Equal(t, "secret", tok.AccessToken)
		src = &fakeSource{sink: sink, records: []model.Record{
			{"driver_number": 3.0, "lap_number": 10.0},
			{"driver_number": 7.0, "lap_number": 11.0},
		}}
		return src, nil
	}
	m := NewManager(newFakeClient(),
		WithPresenter(coll),
		WithSourceFactory(factory),
		WithRefreshInterval(10*time.Millisecond))
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, m.StopLive(), ErrNotLive)
	require.NoError(t, m.StartLive(ctx))
	assert.ErrorIs(t, m.StartLive(ctx), ErrAlreadyLive)
	s := m.Current()
	assert.True(t, s.Live())
	buffers := s.Buffers()
	require.NotNil(t, buffers)
	assert.Equal(t, 2, buffers.Len(model.CategoryPit))

	require.Eventually(t, func() bool { return coll.last() != nil },
		time.Second, 5*time.Millisecond)
	ins := coll.last()
	assert.Equal(t, model.ModeLive, ins.Mode)
	pits, ok := ins.Pits.(insights.RecentPits)
	require.True(t, ok)
	assert.Len(t, pits, 2)

	require.NoError(t, m.StopLive())
	assert.True(t, src.disconnected)
	assert.False(t, s.Live())
	assert.Nil(t, s.Buffers())
	assert.True(t, buffers.Closed())
}

func TestSwitchStopsLive(t *testing.T) {
	var src *fakeSource
	factory := func(ctx context.Context, tok *oauth2.Token, sink stream.Sink) (stream.Source, error) {
		src = &fakeSource{sink: sink}
		return src, nil
	}
	client := newFakeClient()
	lookup := track.NewLookup(client)
	m := NewManager(client,
		WithPresenter(&collector{}),
		WithSourceFactory(factory),
		WithTrackLookup(lookup))
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)
	require.NoError(t, m.StartLive(ctx))

	tr, err := m.Track(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Singapore", tr.Circuit.Name)
	_, err = m.Track(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, client.count("sessions"), "track is memoized")

	_, err = m.Switch(ctx, 9158, 0)
	require.NoError(t, err)
	assert.True(t, src.disconnected)
	assert.False(t, m.Current().Live())

	_, err = m.Track(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, client.count("sessions"), "switch invalidates the track")
}

type forgetRecorder struct {
	mu   sync.Mutex
	keys []int
}

func (f *forgetRecorder) Forget(sessionKey int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, sessionKey)
}

func TestSwitchForgetsPreviousSession(t *testing.T) {
	latest := presenter.NewLatest()
	rec := &forgetRecorder{}
	m := NewManager(newFakeClient(),
		WithPresenter(presenter.Documents(nil, latest)),
		WithForgetter(latest),
		WithForgetter(rec))
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)
	_, err = m.LoadHistorical(ctx)
	require.NoError(t, err)
	_, ok := latest.Get(9158)
	require.True(t, ok)

	_, err = m.Switch(ctx, 9165, 0)
	require.NoError(t, err)
	_, ok = latest.Get(9158)
	assert.False(t, ok, "document of the previous session is dropped")
	assert.Equal(t, []int{9158}, rec.keys)
}

func TestLiveEndsWithContext(t *testing.T) {
	var mu sync.Mutex
	var sources []*fakeSource
	factory := func(ctx context.Context, tok *oauth2.Token, sink stream.Sink) (stream.Source, error) {
		mu.Lock()
		defer mu.Unlock()
		src := &fakeSource{sink: sink}
		sources = append(sources, src)
		return src, nil
	}
	m := NewManager(newFakeClient(),
		WithPresenter(&collector{}),
		WithSourceFactory(factory),
		WithRefreshInterval(time.Millisecond))
	_, err := m.Switch(context.Background(), 9158, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.StartLive(ctx))
	s := m.Current()
	assert.True(t, s.Live())
	cancel()
	require.Eventually(t, func() bool { return !s.Live() }, time.Second, time.Millisecond)

	require.NoError(t, m.StartLive(context.Background()))
	assert.True(t, s.Live())
	require.NoError(t, m.StopLive())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sources, 2)
	assert.True(t, sources[0].disconnected, "ended stream is closed on restart")
}

func TestRefresh(t *testing.T) {
	coll := &collector{}
	factory := func(ctx context.Context, tok *oauth2.Token, sink stream.Sink) (stream.Source, error) {
		return &fakeSource{sink: sink, records: []model.Record{{"driver_number": 3.0}}}, nil
	}
	m := NewManager(newFakeClient(),
		WithPresenter(coll),
		WithSourceFactory(factory),
		WithRefreshInterval(time.Hour))
	ctx := context.Background()
	assert.ErrorIs(t, m.Refresh(ctx), ErrNoSession)
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Refresh(ctx), ErrNotLive)

	require.NoError(t, m.StartLive(ctx))
	defer m.StopLive()
	require.NoError(t, m.Refresh(ctx))
	ins := coll.last()
	require.NotNil(t, ins)
	assert.Equal(t, model.ModeLive, ins.Mode)
	pits, ok := ins.Pits.(insights.RecentPits)
	require.True(t, ok)
	assert.Len(t, pits, 1)
}

func TestStartLiveRequiresToken(t *testing.T) {
	client := newFakeClient()
	client.noToken = true
	m := NewManager(client, WithSourceFactory(
		func(context.Context, *oauth2.Token, stream.Sink) (stream.Source, error) {
			t.Fatal("factory must not be called")
			return nil, nil
		}))
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)
	assert.Error(t, m.StartLive(ctx))
	assert.False(t, m.Current().Live())
}

func TestStartLiveWithoutStream(t *testing.T) {
	m := NewManager(newFakeClient())
	ctx := context.Background()
	_, err := m.Switch(ctx, 9158, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, m.StartLive(ctx), ErrNoStream)
}
