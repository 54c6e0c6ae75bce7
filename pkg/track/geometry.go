package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

var (
	ErrGeometryNotFound = errors.New("geojson not found")
	ErrNoFeature        = errors.New("geojson has no feature")

	propertiesPath  = jp.MustParseString("$.features[0].properties")
	coordinatesPath = jp.MustParseString("$.features[0].geometry.coordinates")
)

// GeometrySource provides the raw geojson document of a file
type GeometrySource interface {
	Geometry(ctx context.Context, file string) ([]byte, error)
}

type HTTPOption func(*HTTPGeometrySource)

func WithGeometryBaseURL(u string) HTTPOption {
	return func(s *HTTPGeometrySource) {
		s.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithGeometryHTTPClient(hc *http.Client) HTTPOption {
	return func(s *HTTPGeometrySource) {
		s.client = hc
	}
}

// HTTPGeometrySource loads geojson files from a static file server
type HTTPGeometrySource struct {
	baseURL string
	client  *http.Client
	l       *log.Logger
}

func NewHTTPGeometrySource(opts ...HTTPOption) *HTTPGeometrySource {
	s := &HTTPGeometrySource{
		baseURL: "https://raw.githubusercontent.com/bacinger/f1-circuits/master/circuits",
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		l: log.Default().Named("track"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPGeometrySource) Geometry(ctx context.Context, file string) ([]byte, error) {
	u := s.baseURL + "/" + file
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", file, ErrGeometryNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: status %d", u, resp.StatusCode)
	}
	s.l.Debug("geojson fetched", log.String("url", u))
	return io.ReadAll(resp.Body)
}

// ParseGeometry extracts the properties of the first feature and the
// coordinates of its line. The center is the mean of all points.
func ParseGeometry(data []byte) (*model.TrackGeometry, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}
	props, ok := propertiesPath.First(doc).(map[string]any)
	if !ok {
		return nil, ErrNoFeature
	}
	g := &model.TrackGeometry{
		Name:     stringProp(props, "name"),
		Location: stringProp(props, "location"),
		Country:  stringProp(props, "country"),
	}
	if v, ok := numberProp(props, "altitude"); ok {
		g.Altitude = v
	}
	if v, ok := numberProp(props, "length"); ok {
		g.Length = v
	}
	g.Path = collectPoints(coordinatesPath.First(doc), nil)
	if len(g.Path) > 0 {
		var lat, lon float64
		for _, p := range g.Path {
			lon += p[0]
			lat += p[1]
		}
		g.CenterLon = lon / float64(len(g.Path))
		g.CenterLat = lat / float64(len(g.Path))
	}
	return g, nil
}

// collectPoints flattens LineString and MultiLineString coordinates
func collectPoints(v any, acc [][]float64) [][]float64 {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return acc
	}
	if _, nested := arr[0].([]any); nested {
		for _, item := range arr {
			acc = collectPoints(item, acc)
		}
		return acc
	}
	if len(arr) < 2 {
		return acc
	}
	lon, okLon := toFloat(arr[0])
	lat, okLat := toFloat(arr[1])
	if okLon && okLat {
		acc = append(acc, []float64{lon, lat})
	}
	return acc
}

// property keys differ in case between sources ("Name" vs "name")
func lookupProp(props map[string]any, key string) (any, bool) {
	if v, ok := props[key]; ok {
		return v, true
	}
	for k, v := range props {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func stringProp(props map[string]any, key string) string {
	v, ok := lookupProp(props, key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func numberProp(props map[string]any, key string) (float64, bool) {
	v, ok := lookupProp(props, key)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
