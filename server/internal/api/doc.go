// Package api implements the HTTP JSON API for qualtrack-server.
//
// New(deps) returns an http.Handler that serves:
//
//	POST /internal-api/v1/measurements — collector ingestion; {"ok": bool}
//	POST /api/v1/measurement/{metricUUID}/source/{sourceUUID}/entity/{entityKey}/{attribute}
//	     — annotate one measured entity; returns the new measurement
//	GET  /api/v1/measurements/{metricUUID} — measurements covering report_date
//	GET  /api/v1/nr_measurements  — live measurement count (SSE)
//	GET  /ws/nr_measurements      — live measurement count (WebSocket)
//	GET  /api/v1/notifications    — firing and recently resolved notifications
//	GET  /api/v1/health           — liveness probe with measurement count
//
// The ingestion route is guarded by the API key middleware, the entity edit
// route by the session middleware; both are optional in Deps so tests can
// exercise handlers without auth.
//
// All endpoints respond with Content-Type: application/json. JSON types are
// defined in types.go.
package api
