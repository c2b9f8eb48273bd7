package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/osdc/pkg/config"
)

var (
	initClusterName string
	initMonitors    []string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `init writes a configuration file with defaults filled in, ready to
edit for the target cluster.

Examples:
  osdc init --cluster-name prod --monitor 10.0.0.1:6789 --monitor 10.0.0.2:6789`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initClusterName, "cluster-name", "", "Name of the cluster to mount (required)")
	initCmd.Flags().StringArrayVar(&initMonitors, "monitor", nil, "Monitor address (host:port); may be repeated")
}

func runInit(cmd *cobra.Command, args []string) error {
	if initClusterName == "" {
		return fmt.Errorf("--cluster-name is required")
	}
	if len(initMonitors) == 0 {
		return fmt.Errorf("at least one --monitor is required")
	}

	cfg := config.Default()
	cfg.ClusterName = initClusterName
	cfg.Monitors = initMonitors

	if err := config.Validate(cfg); err != nil {
		return err
	}

	path := GetConfigFile()
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
