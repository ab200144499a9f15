// Package engine implements the measurement ingestion core of
// qualtrack-server.
//
// Ingest decides whether a freshly collected measurement is new information
// or a repeat of the metric's current measurement. Repeats only advance the
// current record's validity window, so history records changes rather than
// every polling cycle. Before the comparison, user-entered entity
// annotations are migrated forward from the previous measurement, and the
// metric's accepted-debt target is checked for expiry against the live
// metric definition.
//
// SetEntityAttribute is the second entry point: it turns a user edit of one
// entity attribute into a brand-new measurement record carrying an audit
// delta, submitted through the same insertion path but without the
// deduplication short-circuit.
package engine
