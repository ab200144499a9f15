// Package catalog provides the read-only lookup tables the ingestion engine
// consults: the data model (metric type -> applicable scales and defaults)
// and the metric definitions (uuid -> type, targets, debt policy).
//
// Both are loaded from a single YAML file. Watch hot-reloads the file on
// change, so edits to a metric's debt policy take effect on the next
// ingestion cycle without a restart — the engine always evaluates debt
// against the live definition, never a cached copy from an old measurement.
package catalog
