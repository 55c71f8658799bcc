package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudscout/cloudscout/internal/telemetry"
)

const startInventory = `
resources:
  - id: i-0abc123
    kind: instance
`

const grownInventory = `
resources:
  - id: i-0abc123
    kind: instance
  - id: checkout-fn
    kind: function
`

func startWatcher(t *testing.T, path string) (<-chan []telemetry.Resource, context.CancelFunc) {
	t.Helper()
	changed := make(chan []telemetry.Resource, 4)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := WatchInventory(ctx, path, func(rs []telemetry.Resource) {
			changed <- rs
		}); err != nil {
			t.Errorf("WatchInventory: %v", err)
		}
	}()
	// Give the watcher a beat to register before mutating the file.
	time.Sleep(150 * time.Millisecond)
	return changed, cancel
}

func TestWatchInventory_ReloadOnWrite(t *testing.T) {
	path := writeTemp(t, "inventory.yaml", startInventory)
	changed, cancel := startWatcher(t, path)
	defer cancel()

	if err := os.WriteFile(path, []byte(grownInventory), 0o600); err != nil {
		t.Fatalf("rewrite inventory: %v", err)
	}

	select {
	case rs := <-changed:
		if len(rs) != 2 {
			t.Fatalf("reload saw %d resources, want 2", len(rs))
		}
		if rs[1].ID != "checkout-fn" || rs[1].Kind != telemetry.KindFunction {
			t.Errorf("resources[1]: got %+v", rs[1])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed within 3s of write")
	}
}

func TestWatchInventory_BadContentKeepsPrevious(t *testing.T) {
	path := writeTemp(t, "inventory.yaml", startInventory)
	changed, cancel := startWatcher(t, path)
	defer cancel()

	if err := os.WriteFile(path, []byte(":: not yaml at all ::"), 0o600); err != nil {
		t.Fatalf("rewrite inventory: %v", err)
	}
	select {
	case rs := <-changed:
		t.Fatalf("broken inventory produced a reload: %+v", rs)
	case <-time.After(3 * debounceWindow):
	}

	// A subsequent good write still lands.
	if err := os.WriteFile(path, []byte(grownInventory), 0o600); err != nil {
		t.Fatalf("rewrite inventory: %v", err)
	}
	select {
	case rs := <-changed:
		if len(rs) != 2 {
			t.Fatalf("recovered reload saw %d resources, want 2", len(rs))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after recovery write")
	}
}

func TestWatchInventory_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	err := WatchInventory(context.Background(), path, func([]telemetry.Resource) {})
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
