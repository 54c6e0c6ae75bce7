package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/buffer"
	"github.com/mpapenbr/openf1-insights/pkg/drivers"
	"github.com/mpapenbr/openf1-insights/pkg/insights"
	"github.com/mpapenbr/openf1-insights/pkg/model"
	"github.com/mpapenbr/openf1-insights/pkg/presenter"
	"github.com/mpapenbr/openf1-insights/pkg/refresh"
	"github.com/mpapenbr/openf1-insights/pkg/stream"
	"github.com/mpapenbr/openf1-insights/pkg/track"
)

var (
	ErrNoSession   = errors.New("no session selected")
	ErrNotLive     = errors.New("session is not live")
	ErrAlreadyLive = errors.New("session is already live")
	ErrNoStream    = errors.New("no live stream configured")
)

// Client is the part of the OpenF1 client used by the manager
type Client interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]model.Record, error)
	FetchSession(ctx context.Context, sessionKey int, cats ...model.Category) (model.Collections, error)
	Token(ctx context.Context) (*oauth2.Token, error)
}

// SourceFactory creates the live stream for a session. The token is the
// OpenF1 access token required by the broker.
type SourceFactory func(ctx context.Context, token *oauth2.Token, sink stream.Sink) (stream.Source, error)

// Session holds everything derived for one session key. A Session is replaced
// as a whole when another session is selected.
type Session struct {
	key        int
	meetingKey int
	directory  *drivers.Directory

	mu      sync.Mutex
	buffers *buffer.TopicBuffers
	source  stream.Source
	loop    *refresh.Loop
}

func (s *Session) Key() int {
	return s.key
}

func (s *Session) MeetingKey() int {
	return s.meetingKey
}

func (s *Session) Directory() *drivers.Directory {
	return s.directory
}

// Live reports whether the live stream is active. A loop ended by its
// context is not live.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil && s.loop.Running()
}

// Buffers returns the live buffers or nil if the session is not live
func (s *Session) Buffers() *buffer.TopicBuffers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers
}

type Option func(*Manager)

func WithPresenter(p presenter.Presenter) Option {
	return func(m *Manager) {
		m.presenter = p
	}
}

// Forgetter drops state kept for a session, e.g. its latest document
type Forgetter interface {
	Forget(sessionKey int)
}

// WithForgetter registers state that is dropped when a session is discarded
func WithForgetter(f Forgetter) Option {
	return func(m *Manager) {
		m.forgetters = append(m.forgetters, f)
	}
}

func WithSourceFactory(f SourceFactory) Option {
	return func(m *Manager) {
		m.sourceFactory = f
	}
}

func WithTrackLookup(t *track.Lookup) Option {
	return func(m *Manager) {
		m.tracks = t
	}
}

func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.interval = d
	}
}

// WithCategories sets the categories fetched in historical mode
func WithCategories(cats ...model.Category) Option {
	return func(m *Manager) {
		m.categories = cats
	}
}

func WithInsightsOptions(opts ...insights.Option) Option {
	return func(m *Manager) {
		m.insightOpts = append(m.insightOpts, opts...)
	}
}

func WithBufferOptions(opts ...buffer.Option) Option {
	return func(m *Manager) {
		m.bufferOpts = append(m.bufferOpts, opts...)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.l = l
	}
}

// Manager owns the current session. All operations act on the current
// session, switching discards everything of the previous one.
type Manager struct {
	client        Client
	presenter     presenter.Presenter
	sourceFactory SourceFactory
	tracks        *track.Lookup
	forgetters    []Forgetter
	interval      time.Duration
	categories    []model.Category
	insightOpts   []insights.Option
	bufferOpts    []buffer.Option
	l             *log.Logger

	switchMu sync.Mutex
	mu       sync.Mutex
	current  *Session
}

func NewManager(client Client, opts ...Option) *Manager {
	m := &Manager{
		client:   client,
		interval: refresh.DefaultInterval,
		l:        log.Default().Named("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.presenter == nil {
		m.presenter = presenter.NewLogPresenter(nil)
	}
	return m
}

// Current returns the selected session or nil
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Directory returns the driver directory of the current session or nil
func (m *Manager) Directory() *drivers.Directory {
	if s := m.Current(); s != nil {
		return s.directory
	}
	return nil
}

// Switch selects sessionKey. The previous session is stopped and discarded
// and its cached track is invalidated. The roster of the new session is
// loaded. If loading fails no session is selected.
func (m *Manager) Switch(ctx context.Context, sessionKey, meetingKey int) (*Session, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	// a refresh in flight still resolves drivers of prev while it is stopped
	if prev := m.Current(); prev != nil {
		m.discard(ctx, prev)
		m.setCurrent(nil)
	}
	dir, err := drivers.Load(ctx, m.client, sessionKey)
	if err != nil {
		return nil, err
	}
	s := &Session{key: sessionKey, meetingKey: meetingKey, directory: dir}
	m.setCurrent(s)
	m.l.Info("session selected",
		log.Int("sessionKey", sessionKey),
		log.Int("meetingKey", meetingKey),
		log.Int("drivers", dir.Len()))
	return s, nil
}

func (m *Manager) setCurrent(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}

func (m *Manager) discard(ctx context.Context, s *Session) {
	if err := s.stopLive(); err != nil && !errors.Is(err, ErrNotLive) {
		m.l.Warn("stopping live session", log.Int("sessionKey", s.key), log.ErrorField(err))
	}
	if m.tracks != nil {
		m.tracks.Invalidate(ctx, s.key)
	}
	for _, f := range m.forgetters {
		f.Forget(s.key)
	}
	m.l.Debug("session discarded", log.Int("sessionKey", s.key))
}

// LoadHistorical fetches the batch of the current session, derives the
// historical insights and hands them to the presenter. Presentation errors
// are logged only.
func (m *Manager) LoadHistorical(ctx context.Context) (*insights.Insights, error) {
	s := m.Current()
	if s == nil {
		return nil, ErrNoSession
	}
	raw, err := m.client.FetchSession(ctx, s.key, m.categories...)
	if err != nil {
		return nil, err
	}
	ins := insights.Generate(raw, model.ModeHistorical, m.insightOpts...)
	m.l.Info("historical insights computed",
		log.Int("sessionKey", s.key),
		log.Strings("views", ins.Names()))
	if err := m.presenter.Present(ctx, s.key, ins); err != nil {
		m.l.Warn("presenting historical insights", log.ErrorField(err))
	}
	return ins, nil
}

// StartLive connects the live stream to fresh buffers and starts the refresh
// loop. Credentials are required. The loop ends with StopLive, Switch or when
// ctx is done.
func (m *Manager) StartLive(ctx context.Context) error {
	s := m.Current()
	if s == nil {
		return ErrNoSession
	}
	if m.sourceFactory == nil {
		return ErrNoStream
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		if s.loop.Running() {
			return ErrAlreadyLive
		}
		// the previous loop ended with its context
		if err := s.stopLocked(); err != nil {
			m.l.Warn("closing ended live stream", log.Int("sessionKey", s.key), log.ErrorField(err))
		}
	}
	token, err := m.client.Token(ctx)
	if err != nil {
		return fmt.Errorf("live mode requires a token: %w", err)
	}
	buffers := buffer.New(m.bufferOpts...)
	src, err := m.sourceFactory(ctx, token, buffers)
	if err != nil {
		buffers.Close()
		return err
	}
	if err := src.Connect(ctx); err != nil {
		buffers.Close()
		return fmt.Errorf("connecting live stream: %w", err)
	}
	loop := refresh.New(buffers, m.presenter,
		refresh.WithInterval(m.interval),
		refresh.WithSessionKey(s.key),
		refresh.WithInsightsOptions(m.insightOpts...))
	if err := loop.Start(ctx); err != nil {
		//nolint:errcheck // already failing
		src.Disconnect()
		buffers.Close()
		return err
	}
	s.buffers, s.source, s.loop = buffers, src, loop
	m.l.Info("live mode started", log.Int("sessionKey", s.key))
	return nil
}

// Refresh runs one refresh iteration of the live session immediately
func (m *Manager) Refresh(ctx context.Context) error {
	s := m.Current()
	if s == nil {
		return ErrNoSession
	}
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()
	if loop == nil {
		return ErrNotLive
	}
	return loop.Tick(ctx)
}

// StopLive disconnects the stream, stops the loop and discards the buffers.
// A refresh in progress completes with the snapshot it has already taken.
func (m *Manager) StopLive() error {
	s := m.Current()
	if s == nil {
		return ErrNoSession
	}
	return s.stopLive()
}

func (s *Session) stopLive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	if s.loop == nil {
		return ErrNotLive
	}
	err := s.source.Disconnect()
	s.loop.Stop()
	s.buffers.Close()
	s.buffers, s.source, s.loop = nil, nil, nil
	return err
}

// Track returns the track of the current session
func (m *Manager) Track(ctx context.Context) (*model.Track, error) {
	s := m.Current()
	if s == nil {
		return nil, ErrNoSession
	}
	if m.tracks == nil {
		return nil, errors.New("no track lookup configured")
	}
	return m.tracks.Get(ctx, s.key)
}

// Close stops the current session
func (m *Manager) Close() {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	if s := m.Current(); s != nil {
		//nolint:errcheck // by design
		s.stopLive()
	}
}
