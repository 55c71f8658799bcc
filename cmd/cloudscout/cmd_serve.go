package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cloudscout/cloudscout/internal/api"
	"github.com/cloudscout/cloudscout/internal/config"
	"github.com/cloudscout/cloudscout/internal/evidence"
	"github.com/cloudscout/cloudscout/internal/history"
	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/metrics"
	"github.com/cloudscout/cloudscout/internal/schedule"
	"github.com/cloudscout/cloudscout/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan daemon with the HTTP API, WebSocket stream and metrics",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg.Level())
	slog.Info("cloudscout starting", "config", configPath, "provider", cfg.Telemetry.Provider)

	resources, err := config.LoadInventory(cfg.Inventory.File)
	if err != nil {
		return err
	}
	holder := newInventoryHolder(resources)
	slog.Info("inventory loaded", "file", cfg.Inventory.File, "resources", len(resources))

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

	// History store with background TTL eviction.
	hist := history.New(history.DefaultMaxResults, history.DefaultTTL)
	go hist.Run(ctx)

	hub := ws.New(hist)
	go hub.Run(ctx)

	var sinks []schedule.Sink
	if cfg.Evidence.Dir != "" {
		arch := evidence.NewArchive(cfg.Evidence.Dir, cfg.Evidence.Pack, cfg.Evidence.MaxAge)
		sinks = append(sinks, archiveSink(arch))
		startArchiveSweep(ctx, arch)
	}
	sinks = append(sinks,
		dispatchSink(dispatcher),
		schedule.NewSink("history", func(_ context.Context, res *incident.ScanResult) error {
			hist.Add(res)
			return nil
		}),
		schedule.NewSink("broadcast", func(_ context.Context, res *incident.ScanResult) error {
			hub.Broadcast(res)
			return nil
		}),
		schedule.NewSink("metrics", func(_ context.Context, res *incident.ScanResult) error {
			metrics.RecordScan(res)
			return nil
		}),
	)

	startInventoryWatch(ctx, cfg.Inventory.File, holder)

	sched := schedule.New(engine, holder.Resources, schedule.Options{
		Interval: cfg.Scan.Interval,
		Sinks:    sinks,
	})
	metrics.ObserveScheduler(func() float64 { return float64(sched.Skipped()) })
	go sched.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", api.RequireKey(cfg.Server.APIKey(), api.New(hist, sched)))
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: cfg.Server.Listen, Handler: mux}
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("cloudscout shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
	return nil
}
