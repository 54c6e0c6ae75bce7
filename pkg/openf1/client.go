package openf1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/metrics"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

const (
	DefaultBaseURL  = "https://api.openf1.org"
	DefaultTokenURL = "https://api.openf1.org/token"
	apiVersion      = "v1"
	maxErrorBody    = 4096
)

// ErrNoCredentials is returned when a token is requested but no credentials are
// configured. Live mode is not available without credentials.
var ErrNoCredentials = errors.New("no OpenF1 credentials configured")

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openf1: %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithTokenURL(u string) Option {
	return func(c *Client) {
		c.tokenURL = u
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.l = l
	}
}

// Client accesses the OpenF1 REST api
type Client struct {
	baseURL    string
	tokenURL   string
	username   string
	password   string
	httpClient *http.Client
	l          *log.Logger

	mu sync.Mutex
	ts oauth2.TokenSource
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		tokenURL: DefaultTokenURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		l: log.Default().Named("openf1"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) HasCredentials() bool {
	return c.username != "" && c.password != ""
}

// Username returns the configured user (needed as broker login)
func (c *Client) Username() string {
	return c.username
}

// Token returns a valid access token. Tokens are cached and renewed on expiry.
func (c *Client) Token(ctx context.Context) (*oauth2.Token, error) {
	if !c.HasCredentials() {
		return nil, ErrNoCredentials
	}
	c.mu.Lock()
	if c.ts == nil {
		cfg := &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  c.tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		c.ts = oauth2.ReuseTokenSource(nil, &passwordSource{
			ctx:      context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, c.httpClient),
			cfg:      cfg,
			username: c.username,
			password: c.password,
		})
	}
	ts := c.ts
	c.mu.Unlock()

	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining access token: %w", err)
	}
	return tok, nil
}

type passwordSource struct {
	ctx      context.Context
	cfg      *oauth2.Config
	username string
	password string
}

func (p *passwordSource) Token() (*oauth2.Token, error) {
	return p.cfg.PasswordCredentialsToken(p.ctx, p.username, p.password)
}

// Fetch requests <base>/v1/<endpoint>?<params> and decodes the JSON array response.
//
//nolint:whitespace // editor/linter issue
func (c *Client) Fetch(
	ctx context.Context, endpoint string, params url.Values,
) ([]model.Record, error) {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, apiVersion, endpoint)
	if len(params) > 0 {
		u = u + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.HasCredentials() {
		tok, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}
		tok.SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var ret []model.Record
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	c.l.Debug("fetched",
		log.String("endpoint", endpoint),
		log.Int("records", len(ret)),
		log.Duration("duration", time.Since(start)))
	return ret, nil
}
