package common

import (
	"context"
	"fmt"
	"time"

	"github.com/pgx-contrib/pgxtrace"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/archive"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	"github.com/mpapenbr/openf1-insights/pkg/db/postgres"
	"github.com/mpapenbr/openf1-insights/pkg/openf1"
	"github.com/mpapenbr/openf1-insights/pkg/storage"
	"github.com/mpapenbr/openf1-insights/pkg/track"
	"github.com/mpapenbr/openf1-insights/pkg/utils"
)

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger configured by the log flags and installs it
// as default logger
func SetupLogger() (*log.Logger, error) {
	defaultLevel := log.DebugLevel
	if config.LogFormat == "json" {
		defaultLevel = log.InfoLevel
	}
	logger, err := log.FromConfig(config.LogFormat, config.LogLevel, defaultLevel).
		WithFilter(config.LogFilter)
	if err != nil {
		return nil, fmt.Errorf("invalid log filter: %w", err)
	}
	log.ResetDefault(logger)
	return logger, nil
}

// SetupTelemetry starts telemetry if enabled. The returned value may be nil.
func SetupTelemetry(ctx context.Context, logger *log.Logger) *config.Telemetry {
	if !config.EnableTelemetry {
		return nil
	}
	logger.Info("Enabling telemetry")
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		logger.Warn("Could not setup telemetry", log.ErrorField(err))
		return nil
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		logger.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return telemetry
}

// WaitForServices waits until the configured NATS server and postgres
// database accept connections
func WaitForServices(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	addrs := []string{}
	if addr := utils.ExtractFromNatsURL(config.PublishNatsURL); addr != "" {
		addrs = append(addrs, addr)
	}
	if addr := utils.ExtractFromDBURL(config.ArchiveDB); addr != "" {
		addrs = append(addrs, addr)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		g.Go(func() error {
			return utils.WaitForTCP(gctx, addr, timeout)
		})
	}
	log.Debug("Waiting for connection checks to return")
	if err := g.Wait(); err != nil {
		return fmt.Errorf("required services not ready: %w", err)
	}
	log.Debug("Required services are available")
	return nil
}

// NewClient creates the OpenF1 client. Credentials from flags take precedence
// over OPENF1_USERNAME/OPENF1_PASSWORD (environment or .env file).
func NewClient(logger *log.Logger) (*openf1.Client, error) {
	username, password, err := openf1.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if config.Username != "" {
		username = config.Username
	}
	if config.Password != "" {
		password = config.Password
	}
	opts := []openf1.Option{
		openf1.WithBaseURL(config.BaseURL),
		openf1.WithTokenURL(config.TokenURL),
		openf1.WithLogger(logger.Named("openf1")),
	}
	if username != "" && password != "" {
		opts = append(opts, openf1.WithCredentials(username, password))
	} else {
		logger.Info("No OpenF1 credentials configured, live mode unavailable")
	}
	return openf1.New(opts...), nil
}

// NewTrackLookup creates the track lookup. A configured circuit mapping file is
// watched until ctx is done, every change drops the cached tracks.
//
//nolint:whitespace // editor/linter issue
func NewTrackLookup(
	ctx context.Context, client track.Fetcher, logger *log.Logger,
) (*track.Lookup, error) {
	resolver := track.DefaultResolver()
	if config.CircuitMap != "" {
		var err error
		if resolver, err = track.LoadResolver(config.CircuitMap); err != nil {
			return nil, err
		}
	}
	lookup := track.NewLookup(client,
		track.WithResolver(resolver),
		track.WithGeometrySource(track.NewHTTPGeometrySource(
			track.WithGeometryBaseURL(config.GeoJSONBaseURL))),
		track.WithLogger(logger.Named("track")),
	)
	if config.CircuitMap != "" {
		go func() {
			err := resolver.Watch(ctx, func() {
				logger.Info("circuit mapping reloaded", log.Int("entries", resolver.Len()))
				lookup.InvalidateAll(ctx)
			})
			if err != nil {
				logger.Warn("not watching circuit mapping", log.ErrorField(err))
			}
		}()
	}
	return lookup, nil
}

// OpenArchive opens the snapshot archive. It returns nil if no archive is
// configured.
//nolint:nilnil // no archive configured
func OpenArchive(ctx context.Context, logger *log.Logger) (archive.Store, error) {
	if config.ArchiveDB == "" {
		return nil, nil
	}
	sqlLogger := logger.Named("sql")
	pgTracer := pgxtrace.CompositeQueryTracer{
		postgres.NewMyTracer(sqlLogger, parseLogLevel(config.SQLLogLevel, log.DebugLevel)),
	}
	if config.EnableTelemetry {
		pgTracer = append(pgTracer, postgres.NewOtlpTracer())
	}
	store, err := storage.Open(ctx, config.ArchiveDB, postgres.WithTracer(pgTracer))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return store, nil
}
