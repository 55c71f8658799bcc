package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloudscout/cloudscout/internal/config"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

var scanFlags struct {
	output string
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan cycle and print the findings",
	Long: `Runs one scan over the configured inventory and prints the surfaced
incidents. No alerts are sent and no evidence is archived; use "serve" or
"watch" for the full pipeline.

With the scrape provider a one-off scan sees a single poll's worth of
samples, so counter-based detectors stay quiet until the daemon has
accumulated deltas.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFlags.output, "output", "o", "table", "output format: table | json")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFlags.output != "table" && scanFlags.output != "json" {
		return fmt.Errorf("unknown output format %q", scanFlags.output)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg.Level())

	resources, err := config.LoadInventory(cfg.Inventory.File)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source, _, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}
	if ss, ok := source.(*telemetry.ScrapeSource); ok {
		ss.Poll(ctx)
	}

	engine := buildEngine(cfg, source)
	res := engine.Scan(ctx, resources)

	out := cmd.OutOrStdout()
	if scanFlags.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderScanResult(out, res)
	return nil
}
