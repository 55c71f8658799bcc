package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudscout/cloudscout/internal/history"
	"github.com/cloudscout/cloudscout/internal/incident"
)

const (
	// writeTimeout bounds every write to a peer, pings included.
	writeTimeout = 10 * time.Second

	// pongWait is the read deadline. A peer that has not answered a ping
	// within this window is torn down.
	pongWait = 60 * time.Second

	// pingPeriod spaces the keepalive pings. Kept under pongWait so a healthy
	// peer always has time to answer before its deadline expires.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize caps how many undelivered frames a client may queue before
	// Broadcast gives up on it.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks are left to the reverse proxy in front of the daemon.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope pushed to clients after every scan cycle.
type Message struct {
	Event string               `json:"event"`
	Data  *incident.ScanResult `json:"data"`
}

// Hub manages WebSocket client connections and pushes each completed scan
// result to all of them.
type Hub struct {
	history *history.Store

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one subscriber connection plus its queue of unsent frames.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that serves connecting clients the latest result from st.
func New(st *history.Store) *Hub {
	return &Hub{
		history: st,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Broadcast pushes a completed scan result to every connected client. A
// client whose outgoing buffer is full is disconnected rather than allowed
// to stall the others.
func (h *Hub) Broadcast(res *incident.ScanResult) {
	data, err := json.Marshal(Message{Event: "scan_result", Data: res})
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// Outgoing buffer full; drop the client rather than stall.
			h.unregister(c)
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// It sends the most recent scan result immediately on connect (when one
// exists), then receives each later cycle via Broadcast. Blocks until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader answers failed handshakes itself.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	// Replay the newest result so a dashboard connecting mid-run is not
	// blank until the next cycle completes.
	if res, ok := h.history.Latest(); ok {
		if data, err := json.Marshal(Message{Event: "scan_result", Data: res}); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}

	go c.writePump()
	c.readPump() // returns when the peer goes away
}

// Count reports how many clients are currently connected.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- connection bookkeeping -------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister drops c and closes its queue. Safe to call more than once;
// Broadcast and the connection handler can both try to remove the same client.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump forwards queued frames to the peer and spaces keepalive pings
// between them. One goroutine per client; exits once the queue closes or a
// write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Queue closed by unregister or shutdown. Tell the peer
				// before hanging up.
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames until the connection dies. Subscribers never
// send data; reading is what fires the pong handler and surfaces a dropped
// peer.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
