// Package cli wires configuration, storage and the pipeline service into
// the bankcap command line.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bankcap/internal/logger"
)

// Version is set at build time.
var Version = "dev"

var configPath string

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bankcap COMMAND [flags]",
		Short:         "Load the largest banks by market capitalization into files and a database table",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultConfig := os.Getenv("BANKCAP_CONFIG")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig,
		"Path to the YAML configuration file (defaults are used when empty)")

	rootCmd.AddCommand(
		runCmd(),
		queryCmd(),
		scheduleCmd(),
		watchCmd(),
		historyCmd(),
		mcpCmd(),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	if err := rootCommand().Execute(); err != nil {
		log.WithError(err).Error("command failed")
		return 1
	}
	return 0
}
