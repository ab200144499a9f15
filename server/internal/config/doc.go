// Package config loads the server-side configuration from the `server:`
// section of config.yaml (the `collector:` key is ignored by the server
// binary).
//
// Config fields:
//   - HTTPPort      — port for the JSON API, SSE stream and WebSocket hub
//     (default 8080)
//   - Database.Path — SQLite database file (default "qualtrack.db")
//   - Catalog.Path  — metric catalog YAML file (default "catalog.yaml")
//   - Stream.Interval — count poll interval for SSE/WebSocket observers
//     (default 10s)
//   - Auth.Mode     — "apikey" or "none"; guards the internal ingestion API
//   - Auth.KeyEnv   — environment variable holding the expected API key
//   - Auth.Header   — HTTP header name the key is read from (default
//     "x-api-key")
//   - Notify        — status change notification rules and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
