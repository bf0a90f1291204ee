// Package cli holds the rx command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medeasy/rx/internal/config"
	"medeasy/rx/internal/database"
	"medeasy/rx/internal/migrations"
	"medeasy/rx/internal/observability"
)

// RootOptions holds global flags for all commands. Flags override the
// environment.
type RootOptions struct {
	DSN      string
	LogLevel string
	Config   config.Config
}

// NewRootCommand creates the root command for the rx CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rx",
		Short: "MedEasy prescription fulfillment",
		Long:  "Dispenses prescriptions against pharmacy stock with an append-only stock ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Config = config.Load()
			if opts.DSN != "" {
				opts.Config.DatabaseDSN = opts.DSN
			}
			if opts.LogLevel != "" {
				opts.Config.LogLevel = opts.LogLevel
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database DSN (SQLite path or postgres:// URL)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// open builds the logger and a migrated database for a command.
func (o *RootOptions) open() (*zap.Logger, *database.DB, error) {
	logger, err := observability.NewLogger(o.Config.LogLevel, o.Config.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(o.Config.DatabaseDSN, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return logger, db, nil
}
