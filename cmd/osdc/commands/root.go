// Package commands implements the osdc CLI's cobra command tree.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/osdc/internal/logger"
	"github.com/marmos91/osdc/pkg/config"
)

// Version, Commit and Date are set by main from ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "osdc",
	Short: "Object storage device client",
	Long: `osdc drives the client side of a distributed object store: it maps
file extents to placement groups, dispatches requests to the OSDs that own
them, and tracks the cluster map that decides who owns what.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (default: $XDG_CONFIG_HOME/osdc/config.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return configFile
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "osdc %s (commit %s, built %s)\n", Version, Commit, Date)
		return nil
	},
}
