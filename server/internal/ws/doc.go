// Package ws implements the WebSocket counterpart of the SSE measurement
// count stream for qualtrack-server.
//
// Hub manages a set of connected clients and broadcasts the total measurement
// count to all of them whenever it grows, polling the store on a configurable
// interval (default 10s in production).
//
// New(counter, interval) creates a Hub.
// Hub.Run(ctx) starts the poll ticker — blocks until ctx is cancelled, then
// closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// count immediately on connect, then streams updates on each change.
//
// Message format sent to clients:
//
//	{
//	  "event": "nr_measurements",
//	  "data":  123
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. WebSocket endpoint is mounted at /ws/nr_measurements by the
// server.
package ws
