package historical

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/cmd/common"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	"github.com/mpapenbr/openf1-insights/pkg/drivers"
	"github.com/mpapenbr/openf1-insights/pkg/session"
)

func NewHistoricalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "historical",
		Short: "computes the insights of a finished session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistorical(cmd.Context())
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
	return cmd
}

func runHistorical(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := common.SetupLogger()
	if err != nil {
		return err
	}
	if config.SessionKey <= 0 {
		return errors.New("a session key is required")
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

	var mgr *session.Manager
	pres, err := common.NewPresentation(ctx, logger, func() *drivers.Directory {
		return mgr.Directory()
	}, common.WithNats())
	if err != nil {
		return err
	}
	defer pres.Close()

	mgr = session.NewManager(client,
		session.WithPresenter(pres.Presenter),
		session.WithForgetter(pres.Latest),
		session.WithTrackLookup(lookup),
		session.WithLogger(logger.Named("session")),
	)
	defer mgr.Close()

	start := time.Now()
	if _, err := mgr.Switch(ctx, config.SessionKey, config.MeetingKey); err != nil {
		return err
	}
	if _, err := mgr.LoadHistorical(ctx); err != nil {
		return err
	}
	t, err := mgr.Track(ctx)
	if err != nil {
		logger.Warn("track lookup failed", log.ErrorField(err))
	} else {
		logger.Info("track",
			log.String("name", t.Circuit.Name),
			log.String("location", t.Circuit.Location),
			log.String("reason", t.Reason))
	}
	logger.Info("historical insights computed",
		log.Int("sessionKey", config.SessionKey),
		log.Duration("duration", time.Since(start)))
	return nil
}
