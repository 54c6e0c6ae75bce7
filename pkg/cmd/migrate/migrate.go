package migrate

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/cmd/common"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	dbmigrate "github.com/mpapenbr/openf1-insights/pkg/db/migrate"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration of the snapshot archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&config.MigrationSource,
		"migration-source",
		"m",
		"",
		"url to migration files (default: embedded migrations)")

	return cmd
}

func startMigration(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := common.SetupLogger()
	if err != nil {
		return err
	}
	if config.ArchiveDB == "" {
		return errors.New("no archive database configured")
	}
	if err := common.WaitForServices(ctx); err != nil {
		return err
	}
	if config.MigrationSource != "" {
		logger.Info("Using migrations files at",
			log.String("source", config.MigrationSource))
		err = dbmigrate.MigrateFromSource(config.MigrationSource, config.ArchiveDB)
	} else {
		err = dbmigrate.MigrateDb(config.ArchiveDB)
	}
	if err != nil {
		return err
	}
	logger.Info("Migration done")
	return nil
}
