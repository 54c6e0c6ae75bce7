package live

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/cmd/common"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	"github.com/mpapenbr/openf1-insights/pkg/drivers"
	"github.com/mpapenbr/openf1-insights/pkg/openf1"
	"github.com/mpapenbr/openf1-insights/pkg/refresh"
	"github.com/mpapenbr/openf1-insights/pkg/server"
	"github.com/mpapenbr/openf1-insights/pkg/session"
	"github.com/mpapenbr/openf1-insights/pkg/stream"
)

func NewLiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "follows a running session and serves its insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&config.SessionKey,
		"session-key",
		0,
		"OpenF1 session key")
	cmd.Flags().IntVar(&config.MeetingKey,
		"meeting-key",
		0,
		"OpenF1 meeting key (optional)")
	cmd.Flags().StringVar(&config.RefreshInterval,
		"refresh-interval",
		config.DefaultRefreshInterval,
		"interval between insight refreshes")
	cmd.Flags().StringVar(&config.Addr,
		"addr",
		"localhost:8080",
		"listen address of the http server")
	cmd.Flags().StringVar(&config.StreamURL,
		"stream-url",
		"",
		"URL of the OpenF1 live broker (NATS), login with OpenF1 credentials")
	cmd.Flags().BoolVar(&config.Once,
		"once",
		false,
		"wait for the stream data, run a single refresh and exit")
	cmd.Flags().BoolVar(&config.Replay,
		"replay",
		false,
		"replay the historical data of the session instead of using the live stream")
	cmd.Flags().Float64Var(&config.ReplaySpeed,
		"replay-speed",
		1,
		"replay speed factor (0: no delay)")
	return cmd
}

// replayClient provides a token without credentials, replays don't use the broker
type replayClient struct {
	*openf1.Client
}

func (replayClient) Token(ctx context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "replay"}, nil
}

//nolint:funlen // wiring
func runLive(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := common.SetupLogger()
	if err != nil {
		return err
	}
	if config.SessionKey <= 0 {
		return errors.New("a session key is required")
	}
	interval, err := time.ParseDuration(config.RefreshInterval)
	if err != nil || interval <= 0 {
		logger.Warn("Invalid refresh interval. Using default",
			log.String("value", config.RefreshInterval))
		interval = refresh.DefaultInterval
	}
	if telemetry := common.SetupTelemetry(ctx, logger); telemetry != nil {
		defer telemetry.Shutdown()
	}
	if err := common.WaitForServices(ctx); err != nil {
		return err
	}
	client, err := common.NewClient(logger)
	if err != nil {
		return err
	}
	sessionClient, factory, err := selectSource(client, logger)
	if err != nil {
		return err
	}
	lookup, err := common.NewTrackLookup(ctx, client, logger)
	if err != nil {
		return err
	}

	var mgr *session.Manager
	pres, err := common.NewPresentation(ctx, logger, func() *drivers.Directory {
		return mgr.Directory()
	}, common.WithHub(), common.WithNats())
	if err != nil {
		return err
	}
	defer pres.Close()

	var src stream.Source
	mgr = session.NewManager(sessionClient,
		session.WithPresenter(pres.Presenter),
		session.WithSourceFactory(func(
			ctx context.Context, token *oauth2.Token, sink stream.Sink,
		) (stream.Source, error) {
			var err error
			src, err = factory(ctx, token, sink)
			return src, err
		}),
		session.WithForgetter(pres.Latest),
		session.WithTrackLookup(lookup),
		session.WithRefreshInterval(interval),
		session.WithLogger(logger.Named("session")),
	)
	defer mgr.Close()

	if _, err := mgr.Switch(ctx, config.SessionKey, config.MeetingKey); err != nil {
		return err
	}
	if err := mgr.StartLive(ctx); err != nil {
		return err
	}
	if config.Once {
		return runOnce(ctx, logger, mgr, src, interval)
	}

	srv := server.New(
		server.WithLatest(pres.Latest),
		server.WithArchive(pres.Archive),
		server.WithHub(pres.Hub),
		server.WithTrack(lookup.Get),
		server.WithLogger(logger.Named("http")),
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx, config.Addr)
	}()
	logger.Info("live mode running",
		log.Int("sessionKey", config.SessionKey),
		log.Bool("replay", config.Replay))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		if err != nil {
			logger.Error("http server stopped", log.ErrorField(err))
		}
	}
	if stopErr := mgr.StopLive(); stopErr != nil && !errors.Is(stopErr, session.ErrNotLive) {
		logger.Warn("stopping live mode", log.ErrorField(stopErr))
	}
	return err
}

// selectSource returns the client and stream used by the session manager.
// The live broker is separate from the NATS server documents are published to.
//
//nolint:whitespace // editor/linter issue
func selectSource(client *openf1.Client, logger *log.Logger) (
	session.Client, session.SourceFactory, error,
) {
	if config.Replay {
		return replayClient{client}, replaySourceFactory(client, logger), nil
	}
	if config.StreamURL == "" {
		return nil, nil, errors.New("a stream url is required unless --replay is used")
	}
	return client, natsSourceFactory(client, config.StreamURL), nil
}

// runOnce waits until the source delivered its data, presents one refresh
// and stops the live session.
//
//nolint:whitespace // editor/linter issue
func runOnce(
	ctx context.Context,
	logger *log.Logger,
	mgr *session.Manager,
	src stream.Source,
	wait time.Duration,
) error {
	defer func() {
		if err := mgr.StopLive(); err != nil && !errors.Is(err, session.ErrNotLive) {
			logger.Warn("stopping live mode", log.ErrorField(err))
		}
	}()
	if err := waitForData(ctx, src, wait); err != nil {
		return err
	}
	if err := mgr.Refresh(ctx); err != nil {
		return err
	}
	logger.Info("single refresh done", log.Int("sessionKey", config.SessionKey))
	return nil
}

// waitForData blocks until a replay is finished. Other sources get wait to
// fill the buffers.
func waitForData(ctx context.Context, src stream.Source, wait time.Duration) error {
	if r, ok := src.(interface{ Done() <-chan struct{} }); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.Done():
			return nil
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func natsSourceFactory(client *openf1.Client, url string) session.SourceFactory {
	return func(
		ctx context.Context, token *oauth2.Token, sink stream.Sink,
	) (stream.Source, error) {
		conn, err := stream.DialNats(url, client.Username(), token.AccessToken)
		if err != nil {
			return nil, err
		}
		return stream.NewNatsSource(conn, sink, stream.WithOwnedConn()), nil
	}
}

func replaySourceFactory(client *openf1.Client, logger *log.Logger) session.SourceFactory {
	return func(
		ctx context.Context, _ *oauth2.Token, sink stream.Sink,
	) (stream.Source, error) {
		data, err := client.FetchSession(ctx, config.SessionKey,
			openf1.DefaultHistoricalCategories()...)
		if err != nil {
			return nil, err
		}
		return stream.NewReplay(data, sink,
			stream.WithSpeed(config.ReplaySpeed),
			stream.WithReplayLogger(logger.Named("replay"))), nil
	}
}
