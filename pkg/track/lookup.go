package track

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/model"
	"github.com/mpapenbr/openf1-insights/pkg/utils/cache"
	"github.com/mpapenbr/openf1-insights/pkg/utils/cache/loadercache"
)

const (
	UnknownCircuit = "Unknown"

	ReasonUnknownCircuit = "Unknown circuit"
	ReasonNoMapping      = "No matching GeoJSON file"
	ReasonNoGeoJSON      = "No GeoJSON found"
)

// Fetcher retrieves records of an OpenF1 endpoint
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]model.Record, error)
}

type Option func(*Lookup)

func WithResolver(r *Resolver) Option {
	return func(l *Lookup) {
		l.resolver = r
	}
}

func WithGeometrySource(s GeometrySource) Option {
	return func(l *Lookup) {
		l.source = s
	}
}

// WithExpiration limits the lifetime of cached tracks (default: no expiry)
func WithExpiration(d time.Duration) Option {
	return func(l *Lookup) {
		l.expiration = d
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Lookup) {
		l.l = logger
	}
}

// Lookup resolves the track of a session. Results are memoized per session key
// until they are invalidated.
type Lookup struct {
	fetcher    Fetcher
	resolver   *Resolver
	source     GeometrySource
	expiration time.Duration
	cache      cache.Cache[int, model.Track]
	l          *log.Logger
}

func NewLookup(f Fetcher, opts ...Option) *Lookup {
	ret := &Lookup{
		fetcher: f,
		l:       log.Default().Named("track"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.resolver == nil {
		ret.resolver = DefaultResolver()
	}
	ret.cache = loadercache.New(
		loadercache.WithExpiration[int, model.Track](ret.expiration),
		loadercache.WithLogger[int, model.Track](ret.l),
		loadercache.WithLoader[int, model.Track](ret.load),
	)
	return ret
}

// Get returns the track of sessionKey. Errors are returned if the session or
// the geojson file could not be fetched; those are not memoized. Missing or
// unusable geometry is reported via Track.Reason.
func (l *Lookup) Get(ctx context.Context, sessionKey int) (*model.Track, error) {
	return l.cache.Get(ctx, sessionKey)
}

func (l *Lookup) Invalidate(ctx context.Context, sessionKey int) {
	l.cache.Invalidate(ctx, sessionKey)
}

// InvalidateAll drops all cached tracks, used after the circuit mapping changed
func (l *Lookup) InvalidateAll(ctx context.Context) {
	l.cache.InvalidateAll(ctx)
}

func (l *Lookup) load(ctx context.Context, sessionKey int) (*model.Track, error) {
	c, err := LoadCircuit(ctx, l.fetcher, sessionKey)
	if err != nil {
		return nil, err
	}
	ret := &model.Track{Circuit: c}
	if c.Name == UnknownCircuit {
		ret.Reason = ReasonUnknownCircuit
		return ret, nil
	}
	file, ok := l.resolver.Resolve(c.Name, c.Location)
	if !ok {
		l.l.Info("no geojson mapping",
			log.Int("sessionKey", sessionKey),
			log.String("circuit", c.Name))
		ret.Reason = ReasonNoMapping
		return ret, nil
	}
	if l.source == nil {
		ret.Reason = ReasonNoGeoJSON
		return ret, nil
	}
	data, err := l.source.Geometry(ctx, file)
	if err != nil {
		if !errors.Is(err, ErrGeometryNotFound) {
			return nil, fmt.Errorf("loading geojson %s: %w", file, err)
		}
		l.l.Info("geojson not found", log.String("file", file))
		ret.Reason = ReasonNoGeoJSON
		return ret, nil
	}
	geo, err := ParseGeometry(data)
	if err != nil {
		l.l.Warn("geojson not usable",
			log.String("file", file),
			log.ErrorField(err))
		ret.Reason = ReasonNoGeoJSON
		return ret, nil
	}
	if geo.Country == "" {
		geo.Country = c.Country
	}
	if geo.Location == "" {
		geo.Location = c.Location
	}
	ret.Geometry = geo
	return ret, nil
}

// LoadCircuit reads the circuit attributes from the session record
func LoadCircuit(ctx context.Context, f Fetcher, sessionKey int) (model.Circuit, error) {
	ret := model.Circuit{SessionKey: sessionKey, Name: UnknownCircuit}
	params := url.Values{}
	params.Set("session_key", strconv.Itoa(sessionKey))
	records, err := f.Fetch(ctx, "sessions", params)
	if err != nil {
		return ret, fmt.Errorf("loading circuit for session %d: %w", sessionKey, err)
	}
	if len(records) == 0 {
		return ret, nil
	}
	r := records[0]
	if v, ok := r.Int("meeting_key"); ok {
		ret.MeetingKey = v
	}
	if v, ok := r.Int("circuit_key"); ok {
		ret.CircuitKey = v
	}
	ret.Name = r.StringOr("circuit_short_name", UnknownCircuit)
	ret.Location = r.StringOr("location", "")
	ret.Country = r.StringOr("country_name", "")
	return ret, nil
}
