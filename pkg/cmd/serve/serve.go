package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/cmd/common"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	"github.com/mpapenbr/openf1-insights/pkg/presenter"
	"github.com/mpapenbr/openf1-insights/pkg/server"
	"github.com/mpapenbr/openf1-insights/pkg/stream"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serves archived insights and relays documents published via NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&config.Addr,
		"addr",
		"localhost:8080",
		"listen address of the http server")
	return cmd
}

//nolint:funlen // wiring
func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := common.SetupLogger()
	if err != nil {
		return err
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
	lookup, err := common.NewTrackLookup(ctx, client, logger)
	if err != nil {
		return err
	}
	store, err := common.OpenArchive(ctx, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	latest := presenter.NewLatest()
	hub := presenter.NewHub(presenter.WithHubLogger(logger.Named("hub")))
	defer hub.Close()

	if config.PublishNatsURL != "" {
		conn, err := stream.DialNats(config.PublishNatsURL, "", "")
		if err != nil {
			return err
		}
		//nolint:errcheck // shutdown
		defer conn.Drain()
		np, err := presenter.NewNatsPresenter(ctx, conn)
		if err != nil {
			return err
		}
		sub, err := np.Relay(ctx,
			presenter.NewSinks().Add("latest", latest).Add("hub", hub))
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
		logger.Info("relaying documents", log.String("url", config.PublishNatsURL))
	}

	opts := []server.Option{
		server.WithLatest(latest),
		server.WithHub(hub),
		server.WithTrack(lookup.Get),
		server.WithLogger(logger.Named("http")),
	}
	if store != nil {
		opts = append(opts, server.WithArchive(store))
	}
	return server.New(opts...).Start(ctx, config.Addr)
}
