// Package stream implements the live measurement count stream for
// qualtrack-server.
//
// Each connected observer gets its own Server-Sent Events stream: an
// immediate "init" event carrying the current total measurement count,
// followed by "delta" events whenever the count grows or, as a heartbeat,
// after a fixed number of unchanged polls. Event ids are observer-local
// counters seeded from the client's Last-Event-Id header, so a client can
// resume and keep its id sequence without any cross-observer coordination.
//
// The stream never ends on its own; it stops when the observer disconnects,
// which cancels the request context and releases the poll ticker.
package stream
