// Package model defines the shared measurement payload types used by both the
// collector and the server. These are the canonical in-memory representations
// of a metric's measurement data, matching the JSON wire format one to one.
package model
