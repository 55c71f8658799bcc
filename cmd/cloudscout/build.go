package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudscout/cloudscout/internal/config"
	"github.com/cloudscout/cloudscout/internal/detect"
	"github.com/cloudscout/cloudscout/internal/dispatch"
	"github.com/cloudscout/cloudscout/internal/evidence"
	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/ledger"
	"github.com/cloudscout/cloudscout/internal/metrics"
	"github.com/cloudscout/cloudscout/internal/schedule"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// buildSource constructs the telemetry source the config selects. The
// returned run func is non-nil when the source needs a background loop
// (scrape polling); the caller starts it.
func buildSource(ctx context.Context, cfg *config.Config) (telemetry.Source, func(context.Context), error) {
	switch cfg.Telemetry.Provider {
	case "aws":
		src, err := telemetry.NewAWSSource(ctx, cfg.Telemetry.Region)
		if err != nil {
			return nil, nil, fmt.Errorf("aws source: %w", err)
		}
		return src, nil, nil
	case "scrape":
		src, err := telemetry.NewScrapeSource(cfg.Telemetry.Targets, cfg.Scan.Period, cfg.Scan.Lookback)
		if err != nil {
			return nil, nil, fmt.Errorf("scrape source: %w", err)
		}
		return src, src.Run, nil
	case "fixture":
		return telemetry.NewFixtureSource(cfg.Telemetry.FixtureDir), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown telemetry provider %q", cfg.Telemetry.Provider)
	}
}

// buildEngine assembles the scan engine with the configured detector set.
func buildEngine(cfg *config.Config, source telemetry.Source) *detect.Engine {
	detectors := []detect.Detector{
		detect.NewSaturation(cfg.Detectors.Saturation.Threshold, cfg.Detectors.Saturation.MinDuration),
		detect.NewErrorRate(cfg.Detectors.ErrorRate.MaxErrors, cfg.Detectors.ErrorRate.TimeoutMS),
		detect.NewUsage(cfg.Detectors.Usage.Threshold, cfg.Detectors.Usage.Window, cfg.Detectors.Usage.CostPer1K),
		detect.NewDenial(),
	}
	collector := evidence.NewCollector(cfg.Evidence.MaxArtifactBytes)
	return detect.NewEngine(source, detectors, collector, detect.Options{
		Lookback:     cfg.Scan.Lookback,
		Period:       cfg.Scan.Period,
		FetchTimeout: cfg.Scan.FetchTimeout,
		Workers:      cfg.Scan.MaxParallel,
	})
}

// buildTransports constructs the configured alert transports. A target that
// cannot be built is skipped with a warning rather than failing startup, so
// one unset env var does not take the whole daemon down.
func buildTransports(cfg *config.Config) []dispatch.Transport {
	var transports []dispatch.Transport
	for _, wh := range cfg.Alerts.Webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("skipping webhook, URL env var unset", "webhook", wh.Name, "env", wh.URLEnv)
			continue
		}
		t, err := dispatch.NewWebhook(wh.Name, wh.Type, url)
		if err != nil {
			slog.Warn("skipping webhook", "webhook", wh.Name, "err", err)
			continue
		}
		transports = append(transports, t)
		slog.Info("registered webhook", "webhook", wh.Name, "type", wh.Type)
	}
	if cfg.Alerts.NATS.URL != "" {
		t, err := dispatch.NewNATS(cfg.Alerts.NATS.URL, cfg.Alerts.NATS.Subject)
		if err != nil {
			slog.Warn("skipping NATS transport", "url", cfg.Alerts.NATS.URL, "err", err)
		} else {
			transports = append(transports, t)
			slog.Info("registered NATS transport", "subject", cfg.Alerts.NATS.Subject)
		}
	}
	return transports
}

// buildDispatcher assembles the alert path: severity gate, cooldown ledger,
// transports. The gate was validated at config load.
func buildDispatcher(cfg *config.Config) (*dispatch.Dispatcher, *ledger.Ledger, error) {
	gate, err := cfg.Alerts.SeverityGate()
	if err != nil {
		return nil, nil, err
	}
	led := ledger.New(cfg.Alerts.Cooldown, cfg.Alerts.LedgerCapacity)
	return dispatch.New(gate, led, buildTransports(cfg), nil), led, nil
}

// --- scan sinks -------------------------------------------------------------

func dispatchSink(d *dispatch.Dispatcher) schedule.Sink {
	return schedule.NewSink("dispatch", func(ctx context.Context, res *incident.ScanResult) error {
		metrics.RecordDispatch(d.Dispatch(ctx, res))
		return nil
	})
}

func archiveSink(arch *evidence.Archive) schedule.Sink {
	return schedule.NewSink("archive", func(_ context.Context, res *incident.ScanResult) error {
		return arch.Write(res)
	})
}

// --- shared runtime plumbing ------------------------------------------------

// inventoryHolder hands the current resource set to the scheduler and lets
// the file watcher swap it on reload.
type inventoryHolder struct {
	mu  sync.RWMutex
	res []telemetry.Resource
}

func newInventoryHolder(res []telemetry.Resource) *inventoryHolder {
	return &inventoryHolder{res: res}
}

func (h *inventoryHolder) Resources() []telemetry.Resource {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.res
}

func (h *inventoryHolder) Set(res []telemetry.Resource) {
	h.mu.Lock()
	h.res = res
	h.mu.Unlock()
}

// startInventoryWatch hot-reloads the inventory file into holder until ctx
// is cancelled. Scans already in flight keep the resource set they started
// with.
func startInventoryWatch(ctx context.Context, path string, holder *inventoryHolder) {
	go func() {
		if err := config.WatchInventory(ctx, path, holder.Set); err != nil {
			slog.Error("inventory watcher stopped", "err", err)
		}
	}()
}

// startLedgerSweep evicts alert records older than retention on a coarse
// timer. Capacity eviction happens inline in the ledger; this sweep only
// bounds how long stale fingerprints linger.
func startLedgerSweep(ctx context.Context, led *ledger.Ledger, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(retention / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := led.Evict(time.Now(), retention); n > 0 {
					slog.Debug("alert ledger sweep", "evicted", n)
				}
			}
		}
	}()
}

// startArchiveSweep prunes expired evidence once at startup, then daily.
func startArchiveSweep(ctx context.Context, arch *evidence.Archive) {
	go func() {
		sweep := func() {
			if n, err := arch.Sweep(time.Now()); err != nil {
				slog.Warn("evidence sweep failed", "err", err)
			} else if n > 0 {
				slog.Info("evidence sweep", "removed", n)
			}
		}
		sweep()

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}
