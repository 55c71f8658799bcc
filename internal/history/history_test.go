package history

import (
	"testing"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func result(startedAt time.Time, fingerprints ...string) *incident.ScanResult {
	res := &incident.ScanResult{StartedAt: startedAt}
	for _, fp := range fingerprints {
		c := incident.NewCandidate(
			incident.FamilySaturation,
			telemetry.Resource{ID: "i-" + fp, Kind: telemetry.KindInstance},
			incident.SeverityHigh,
			"t", "d",
		)
		c.Fingerprint = fp
		res.Incidents = append(res.Incidents, incident.NewIncident(c))
	}
	return res
}

func TestAddAndLatest(t *testing.T) {
	st := New(10, time.Hour)
	st.Add(result(baseTime))
	st.Add(result(baseTime.Add(5 * time.Minute)))

	latest, ok := st.Latest()
	if !ok {
		t.Fatal("Latest: expected a result, got none")
	}
	if !latest.StartedAt.Equal(baseTime.Add(5 * time.Minute)) {
		t.Errorf("Latest StartedAt = %v, want the second scan", latest.StartedAt)
	}
}

func TestLatest_Empty(t *testing.T) {
	st := New(10, time.Hour)
	if _, ok := st.Latest(); ok {
		t.Fatal("Latest on empty store: expected false, got true")
	}
}

func TestAdd_CapsByCount(t *testing.T) {
	st := New(3, time.Hour)
	for i := 0; i < 5; i++ {
		st.Add(result(baseTime.Add(time.Duration(i) * time.Minute)))
	}
	if st.Count() != 3 {
		t.Errorf("Count = %d, want 3 after cap", st.Count())
	}
	// The survivors are the newest three.
	list := st.List()
	if len(list) != 3 {
		t.Fatalf("List = %d results, want 3", len(list))
	}
	if !list[0].StartedAt.Equal(baseTime.Add(4 * time.Minute)) {
		t.Errorf("newest = %v, want the last added", list[0].StartedAt)
	}
}

func TestList_NewestFirstExcludesStale(t *testing.T) {
	st := New(10, time.Hour)
	st.Add(result(baseTime.Add(-2 * time.Hour))) // stale
	st.Add(result(baseTime.Add(-10 * time.Minute)))
	st.Add(result(baseTime.Add(-1 * time.Minute)))
	st.now = fixedClock(baseTime)

	list := st.List()
	if len(list) != 2 {
		t.Fatalf("List = %d results, want stale excluded", len(list))
	}
	if !list[0].StartedAt.After(list[1].StartedAt) {
		t.Errorf("List not newest first: %v then %v", list[0].StartedAt, list[1].StartedAt)
	}
}

func TestIncident_FindsNewestMatch(t *testing.T) {
	st := New(10, time.Hour)
	st.Add(result(baseTime, "fp-a"))
	st.Add(result(baseTime.Add(5*time.Minute), "fp-a", "fp-b"))

	inc, ok := st.Incident("fp-a")
	if !ok {
		t.Fatal("Incident: expected a match")
	}
	// The newer scan's incident wins.
	newer, _ := st.Latest()
	if inc.ID != newer.Incidents[0].ID {
		t.Errorf("Incident returned %s, want the newest observation", inc.ID)
	}

	if _, ok := st.Incident("fp-missing"); ok {
		t.Error("Incident on unknown fingerprint: expected false")
	}
}

func TestEvict_RemovesAged(t *testing.T) {
	st := New(10, time.Hour)
	st.Add(result(baseTime.Add(-3 * time.Hour)))
	st.Add(result(baseTime.Add(-2 * time.Hour)))
	st.Add(result(baseTime.Add(-30 * time.Minute)))

	removed := st.Evict(baseTime)
	if removed != 2 {
		t.Errorf("Evict removed %d, want 2", removed)
	}
	if st.Count() != 1 {
		t.Errorf("Count = %d, want 1", st.Count())
	}
}

func TestStore_ConcurrentAddAndList(t *testing.T) {
	st := New(50, time.Hour)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			st.Add(result(baseTime.Add(time.Duration(i) * time.Second)))
		}
	}()
	for i := 0; i < 100; i++ {
		st.List()
		st.Latest()
		st.Count()
	}
	<-done
	if st.Count() != 50 {
		t.Errorf("Count = %d, want the cap", st.Count())
	}
}
