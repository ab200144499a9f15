// Package shipper delivers collected measurements to the qualtrack server
// over HTTP (POST /internal-api/v1/measurements).
//
// Shipper.Ship() is non-blocking: payloads are placed in an in-memory channel
// (default capacity 100). When the buffer is full the oldest entry is evicted
// so the latest measurement data is always preserved.
//
// Shipper.Run() drains the buffer in a loop, retrying with truncated
// exponential backoff (1s→60s, ±25% jitter) on connection and server errors.
// Permanent responses (400, 401, 403) discard the payload immediately rather
// than retrying, and an {"ok": false} acknowledgement means the metric has
// been deleted on the server, so the payload is dropped.
//
// Auth: an API key header per the collector's server_auth config, or no auth
// for local development.
package shipper
