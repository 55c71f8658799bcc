package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudscout/cloudscout/internal/config"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const testInventoryYAML = `resources:
  - id: i-0test
    kind: instance
  - id: checkout-fn
    kind: function
`

// TestLoadedInventoryDrivesScan walks the seams the subcommands share: load
// the config, load the inventory, hand the resource slice to the holder and
// the engine, and scan. Empty fixtures mean a clean result covering every
// loaded resource.
func TestLoadedInventoryDrivesScan(t *testing.T) {
	dir := t.TempDir()
	invPath := writeTestFile(t, dir, "inventory.yaml", testInventoryYAML)
	cfgPath := writeTestFile(t, dir, "config.yaml",
		"telemetry:\n  provider: fixture\n  fixture_dir: "+dir+"\ninventory:\n  file: "+invPath+"\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	resources, err := config.LoadInventory(cfg.Inventory.File)
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("inventory resources = %d, want 2", len(resources))
	}

	holder := newInventoryHolder(resources)
	if got := holder.Resources(); len(got) != 2 {
		t.Fatalf("holder resources = %d, want 2", len(got))
	}

	source, run, err := buildSource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildSource: %v", err)
	}
	if run != nil {
		t.Error("fixture source should need no background loop")
	}

	res := buildEngine(cfg, source).Scan(context.Background(), holder.Resources())
	if len(res.Resources) != 2 {
		t.Errorf("scan covered %d resource(s), want 2", len(res.Resources))
	}
	if len(res.Incidents) != 0 || len(res.Errors) != 0 {
		t.Errorf("empty fixtures should scan clean, got %d incident(s), %d error(s)",
			len(res.Incidents), len(res.Errors))
	}
}

func TestBuildSource_UnknownProvider(t *testing.T) {
	cfg := &config.Config{Telemetry: config.TelemetryConfig{Provider: "azure"}}
	if _, _, err := buildSource(context.Background(), cfg); err == nil {
		t.Fatal("unknown provider should be rejected")
	}
}

func TestBuildSource_ScrapeNeedsBackgroundLoop(t *testing.T) {
	cfg := &config.Config{
		Scan: config.ScanConfig{Period: time.Minute, Lookback: time.Hour},
		Telemetry: config.TelemetryConfig{
			Provider: "scrape",
			Targets: []telemetry.ScrapeTarget{{
				Resource: telemetry.Resource{ID: "node-1", Kind: telemetry.KindInstance},
				Endpoint: "http://localhost:9100/metrics",
			}},
		},
	}
	source, run, err := buildSource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildSource: %v", err)
	}
	if _, ok := source.(*telemetry.ScrapeSource); !ok {
		t.Fatalf("source = %T, want *telemetry.ScrapeSource", source)
	}
	if run == nil {
		t.Error("scrape source must hand back its polling loop")
	}
}

func TestInventoryHolder_SwapsBetweenReads(t *testing.T) {
	holder := newInventoryHolder([]telemetry.Resource{{ID: "a", Kind: telemetry.KindInstance}})
	holder.Set([]telemetry.Resource{
		{ID: "a", Kind: telemetry.KindInstance},
		{ID: "b", Kind: telemetry.KindBucket},
	})
	if got := holder.Resources(); len(got) != 2 || got[1].ID != "b" {
		t.Errorf("holder after swap = %+v, want the replacement set", got)
	}
}

func TestBuildTransports_SkipsUnsetURLEnv(t *testing.T) {
	cfg := &config.Config{Alerts: config.AlertsConfig{
		Webhooks: []config.WebhookConfig{{Name: "ops", Type: "slack", URLEnv: "CLOUDSCOUT_TEST_WEBHOOK_URL"}},
	}}

	os.Unsetenv("CLOUDSCOUT_TEST_WEBHOOK_URL")
	if got := buildTransports(cfg); len(got) != 0 {
		t.Fatalf("transports = %d, want webhook with unset URL env skipped", len(got))
	}

	t.Setenv("CLOUDSCOUT_TEST_WEBHOOK_URL", "https://hooks.example.com/T000/B000")
	if got := buildTransports(cfg); len(got) != 1 {
		t.Fatalf("transports = %d, want the webhook registered once its URL resolves", len(got))
	}
}
