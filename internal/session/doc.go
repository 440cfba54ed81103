// Package session tracks connected MCP clients.
//
// A Session binds one transport connection to the identity that was verified
// when it connected. The identity is a snapshot and is never refreshed. The
// Manager indexes sessions by id and by email, so a change to one user's
// entitlements can reach exactly that user's sessions.
//
// # Lifecycle
//
// Create starts two per-session goroutines: a signal pump that turns
// coalesced Signal calls into notifications/tools/list_changed messages, and a
// heartbeat ticker. A transport with nothing to write to answers ErrNoStream
// and the tick is skipped; a delivered keepalive counts as activity. Close
// stops both, closes the transport and removes the session from every index.
// It is safe to call Close any number of times, including from a failing
// heartbeat.
//
// # Capability cache
//
// Each session carries a generation-stamped cache of visible tool names.
// InvalidateView bumps the generation; StoreView refuses a result computed
// against an older generation.
package session
