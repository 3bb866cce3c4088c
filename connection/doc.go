// Package connection maintains the client side of the gateway stream: a
// subscription registry recording which channels the application wants, and
// a managed connection that keeps those subscriptions live across the
// authorize exchange, heartbeats, and reconnects.
//
// A Conn owns exactly one socket at a time. Frames read from the socket are
// decoded once and handed to a Sink; control frames issued while the
// connection is not Open are queued and flushed when it next opens. The
// Registry is the authoritative statement of desired subscriptions and is
// replayed to the gateway on every reconnect.
package connection
