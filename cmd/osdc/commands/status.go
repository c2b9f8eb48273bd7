package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/osdc/internal/cliout"
	"github.com/marmos91/osdc/pkg/config"
	"github.com/marmos91/osdc/pkg/osdc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Validate configuration and report what start would do",
	Long: `status loads configuration exactly as start would, validates it, and
reports the effective settings without bringing up a mount. Useful for
checking a config file or environment overrides before a real start.`,
	RunE: runStatus,
}

var statusRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List requests outstanding on a running osdc start process",
	Long: `requests fetches the debug/requests endpoint a running "osdc start"
exposes alongside its metrics endpoint and renders it as a table. It requires
metrics.enabled: true in the target process's configuration.`,
	RunE: runStatusRequests,
}

func init() {
	statusCmd.AddCommand(statusRequestsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if cfg.ClusterName == "" || len(cfg.Monitors) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "status: no cluster configured (run 'osdc init' first)")
		return nil
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "status: configuration invalid: %v\n", err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cluster:    %s\n", cfg.ClusterName)
	fmt.Fprintf(out, "monitors:   %v\n", cfg.Monitors)
	fmt.Fprintf(out, "osd_timeout: %s\n", cfg.OsdTimeout)
	fmt.Fprintf(out, "unsafe_writeback: %t\n", cfg.UnsafeWriteback)
	fmt.Fprintf(out, "wsize/rsize: %d/%d\n", cfg.Wsize, cfg.Rsize)
	fmt.Fprintf(out, "metrics:    enabled=%t port=%d\n", cfg.Metrics.Enabled, cfg.Metrics.Port)
	fmt.Fprintf(out, "telemetry:  enabled=%t endpoint=%s\n", cfg.Telemetry.Enabled, cfg.Telemetry.Endpoint)
	if cfg.EpochStoreDir != "" {
		fmt.Fprintf(out, "epoch_store: %s\n", cfg.EpochStoreDir)
	}
	fmt.Fprintln(out, "configuration valid")
	return nil
}

func runStatusRequests(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if !cfg.Metrics.Enabled {
		return fmt.Errorf("status requests: metrics.enabled is false in this config; the target process must run with it on")
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/debug/requests", cfg.Metrics.Port)
	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("status requests: %w", err)
	}
	defer resp.Body.Close()

	var snapshot []osdc.RequestSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return fmt.Errorf("status requests: decoding response: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(snapshot) == 0 {
		fmt.Fprintln(out, "no outstanding requests")
		return nil
	}
	cliout.PrintTable(out, requestTable(snapshot))
	return nil
}

type requestTable []osdc.RequestSnapshot

func (t requestTable) Headers() []string {
	return []string{"TID", "INO", "SNAP", "PGID", "OPCODE", "TARGET", "RETRIED"}
}

func (t requestTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Tid),
			fmt.Sprintf("%d", r.Ino),
			fmt.Sprintf("%d", r.Snap),
			r.Pgid,
			fmt.Sprintf("%d", r.Opcode),
			fmt.Sprintf("%d", r.LastTarget),
			fmt.Sprintf("%t", r.Retried),
		})
	}
	return rows
}
