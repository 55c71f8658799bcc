// Package ws implements the live scan-result WebSocket hub.
//
// Hub manages a set of connected clients. Every completed scan cycle is
// pushed to all of them via Broadcast; a client connecting mid-run receives
// the most recent result immediately so dashboards have data on arrival.
//
// New(history) creates a Hub backed by the scan history store.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket.
//
// Message format sent to clients:
//
//	{
//	  "event": "scan_result",
//	  "data":  { /* same schema as GET /api/v1/results entries */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws by the server.
package ws
