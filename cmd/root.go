/*
	Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mpapenbr/openf1-insights/pkg/cmd/historical"
	"github.com/mpapenbr/openf1-insights/pkg/cmd/live"
	migrateCmd "github.com/mpapenbr/openf1-insights/pkg/cmd/migrate"
	"github.com/mpapenbr/openf1-insights/pkg/cmd/serve"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	"github.com/mpapenbr/openf1-insights/version"
)

const envPrefix = "F1I"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "f1i",
	Short:   "Session insights from OpenF1 timing data",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:funlen // flag definitions
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.f1i.yml)")

	rootCmd.PersistentFlags().StringVar(&config.BaseURL, "base-url",
		config.DefaultBaseURL,
		"base URL of the OpenF1 api")
	rootCmd.PersistentFlags().StringVar(&config.TokenURL, "token-url",
		config.DefaultTokenURL,
		"token endpoint for OpenF1 credentials")
	rootCmd.PersistentFlags().StringVar(&config.Username, "username", "",
		"OpenF1 username (default from OPENF1_USERNAME)")
	rootCmd.PersistentFlags().StringVar(&config.Password, "password", "",
		"OpenF1 password (default from OPENF1_PASSWORD)")
	rootCmd.PersistentFlags().StringVar(&config.PublishNatsURL, "publish-nats-url", "",
		"URL of the NATS server documents are published to and relayed from")
	rootCmd.PersistentFlags().StringVar(&config.NatsBucket, "nats-bucket", "",
		"JetStream key value bucket for the latest document per session")
	rootCmd.PersistentFlags().StringVar(&config.ArchiveDB, "archive-db", "",
		"snapshot archive (postgresql://... or sqlite://<path>, empty: disabled)")
	rootCmd.PersistentFlags().IntVar(&config.ArchiveRetention, "archive-retention", 0,
		"snapshots kept per session (0: keep all)")
	rootCmd.PersistentFlags().StringVar(&config.CircuitMap, "circuit-map", "",
		"yaml file mapping circuit names to geojson files (default: built in)")
	rootCmd.PersistentFlags().StringVar(&config.GeoJSONBaseURL, "geojson-base-url",
		config.DefaultGeoJSONBaseURL,
		"base URL of the circuit geojson files")
	rootCmd.PersistentFlags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"Duration to wait for other services to be ready")
	rootCmd.PersistentFlags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	rootCmd.PersistentFlags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format (json, text)")
	rootCmd.PersistentFlags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules, e.g. \"info+:* debug:refresh\"")
	rootCmd.PersistentFlags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	rootCmd.PersistentFlags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")

	// add commands here
	rootCmd.AddCommand(historical.NewHistoricalCmd())
	rootCmd.AddCommand(live.NewLiveCmd())
	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(migrateCmd.NewMigrateCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".f1i" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".f1i")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --favorite-color to STING_FAVORITE_COLOR
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
