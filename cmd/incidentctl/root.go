package main

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/vehicle-incident-etl/internal/config"
	"github.com/couchcryptid/vehicle-incident-etl/internal/observability"
)

var (
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "incidentctl",
	Short: "Vehicle incident service CLI",
	Long: `incidentctl talks to the same transport and record store as the
ingestion service, configured through the same environment variables.

Use it to publish synthetic incident reports and to hide or restore
stored records.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		} else {
			_ = godotenv.Load()
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger = observability.NewLogger(cfg)
		return nil
	},
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default: ./.env if present)")
	rootCmd.SilenceErrors = true
}
