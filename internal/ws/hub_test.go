package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudscout/cloudscout/internal/history"
	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
	"github.com/cloudscout/cloudscout/internal/ws"
)

// --- helpers ----------------------------------------------------------------

func newHistory(results ...*incident.ScanResult) *history.Store {
	st := history.New(10, time.Hour)
	for _, r := range results {
		st.Add(r)
	}
	return st
}

func scanResult(startedAt time.Time) *incident.ScanResult {
	res := telemetry.Resource{ID: "i-0abc123", Kind: telemetry.KindInstance}
	cand := incident.NewCandidate(incident.FamilySaturation, res,
		incident.SeverityHigh, "CPU saturated on i-0abc123", "18 minutes at or above 95%")
	return &incident.ScanResult{
		StartedAt: startedAt,
		Duration:  300 * time.Millisecond,
		Resources: []telemetry.Resource{res},
		Incidents: []incident.Incident{incident.NewIncident(cand)},
	}
}

// startHub starts a test HTTP server with the hub as its handler.
// Returns the ws:// URL, the hub, and the Run loop's cancel function.
func startHub(t *testing.T, st *history.Store) (wsURL string, hub *ws.Hub, cancel func()) {
	t.Helper()

	hub = ws.New(st)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

func decode(t *testing.T, msg []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesLatestResult(t *testing.T) {
	st := newHistory(scanResult(time.Now().Add(-time.Minute)))
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	m := decode(t, readMessage(t, conn))

	if m["event"] != "scan_result" {
		t.Errorf("event: got %v, want scan_result", m["event"])
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	incidents, ok := data["incidents"].([]interface{})
	if !ok || len(incidents) != 1 {
		t.Fatalf("incidents: got %v", data["incidents"])
	}
	first := incidents[0].(map[string]interface{})
	if first["family"] != "compute-saturation" {
		t.Errorf("family: got %v", first["family"])
	}
	if first["fingerprint"] == nil || first["fingerprint"] == "" {
		t.Error("fingerprint: missing")
	}
}

func TestHub_Connect_EmptyHistory_NoImmediateMessage(t *testing.T) {
	wsURL, _, _ := startHub(t, newHistory())

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no message before the first scan completes")
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newHistory())

	conns := make([]*websocket.Conn, 3)
	for i := 0; i < 3; i++ {
		conns[i] = dial(t, wsURL)
	}
	// Give the hub a moment to register the clients.
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Fatalf("Count: got %d, want 3", n)
	}

	hub.Broadcast(scanResult(time.Now()))

	for i, conn := range conns {
		m := decode(t, readMessage(t, conn))
		if m["event"] != "scan_result" {
			t.Errorf("client %d: event: got %v, want scan_result", i, m["event"])
		}
	}
}

func TestHub_CountClients_SingleClient(t *testing.T) {
	wsURL, hub, _ := startHub(t, newHistory(scanResult(time.Now())))

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume initial message

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, newHistory(scanResult(time.Now())))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newHistory(scanResult(time.Now())))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel() // signal shutdown

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := ws.New(newHistory())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers must be rejected.
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
