// Package cmd defines the CLI commands for the parcel-report-pdf executable.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/parcel-report-pdf/internal/config"
	"github.com/JakeFAU/parcel-report-pdf/internal/logging"
)

// appState holds what every subcommand needs once the root hooks have run.
type appState struct {
	cfg    config.Config
	logger *zap.Logger
}

func (rt *appState) ready() error {
	if rt.logger == nil {
		return errors.New("runtime not initialized")
	}
	return nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgPath string
	rt := &appState{}

	cmd := &cobra.Command{
		Use:   "parcel-report-pdf",
		Short: "Serves cadastral parcel reports as PDF downloads.",
		Long: `parcel-report-pdf fetches the HTML report of a cadastral parcel from the
Consell de Mallorca SIT API, converts it to PDF with an external renderer and
returns the document to the caller.`,
		SilenceUsage: true,

		// Config and logger are built here so subcommands only deal with their own flags.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd(rt))
	cmd.AddCommand(newFetchCmd(rt))

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
