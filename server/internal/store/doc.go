// Package store implements the SQLite-backed measurement history for
// qualtrack-server.
//
// Each metric has an append-only, window-ordered list of measurement
// records; the row with the latest window start is the metric's current
// measurement. Records are immutable once inserted except for the window
// end, which UpdateMeasurementEnd advances in place when a new collection
// cycle turns out to be a repeat of the current one.
//
// The package also holds the session table backing the acting-user lookup
// for entity edits (see package auth).
package store
