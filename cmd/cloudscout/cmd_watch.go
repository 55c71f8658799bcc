package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloudscout/cloudscout/internal/config"
	"github.com/cloudscout/cloudscout/internal/evidence"
	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/schedule"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan continuously and print each cycle's findings",
	Long: `Runs the detection pipeline in the foreground: scheduled scans, alert
dispatch and evidence archival, with each cycle's findings printed to
stdout. Ctrl-C lets the in-flight scan finish before exiting. Use "serve"
instead when the HTTP API, WebSocket stream or Prometheus metrics are
needed.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg.Level())

	resources, err := config.LoadInventory(cfg.Inventory.File)
	if err != nil {
		return err
	}
	holder := newInventoryHolder(resources)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source, run, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}
	if run != nil {
		go run(ctx)
	}
	engine := buildEngine(cfg, source)

	dispatcher, led, err := buildDispatcher(cfg)
	if err != nil {
		return err
	}
	startLedgerSweep(ctx, led, cfg.Alerts.LedgerRetention)

	var sinks []schedule.Sink
	if cfg.Evidence.Dir != "" {
		arch := evidence.NewArchive(cfg.Evidence.Dir, cfg.Evidence.Pack, cfg.Evidence.MaxAge)
		sinks = append(sinks, archiveSink(arch))
		startArchiveSweep(ctx, arch)
	}
	out := cmd.OutOrStdout()
	sinks = append(sinks,
		dispatchSink(dispatcher),
		schedule.NewSink("render", func(_ context.Context, res *incident.ScanResult) error {
			renderScanResult(out, res)
			return nil
		}),
	)

	startInventoryWatch(ctx, cfg.Inventory.File, holder)

	sched := schedule.New(engine, holder.Resources, schedule.Options{
		Interval: cfg.Scan.Interval,
		Sinks:    sinks,
	})
	sched.Run(ctx)
	return nil
}
