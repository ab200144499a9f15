// Package config loads and watches the collector configuration file
// (config.yaml).
//
// Top-level types:
//   - Config{Collector} — full config tree parsed from YAML; a `server:`
//     section in the same file is ignored by the collector binary
//   - CollectorConfig — server_endpoint, collect_interval, buffer_size,
//     metrics [], server_auth
//   - Metric — metric_uuid plus the sources that measure it
//   - Source — source_uuid, type (jenkins|prometheus|robotframework),
//     endpoint, params, auth, tls
//   - AuthConfig — mode (apikey|bearer|basic|none), header, key_env,
//     token_env, username, password_env; Key(), Token() and Password()
//     resolve from environment variables
//
// Load(path) reads the YAML file, applies defaults (60s collect interval,
// 100 buffer), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors by re-adding the watch after such events.
package config
