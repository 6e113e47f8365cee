// Package session manages the voice-session side of a conversation: the
// short-lived session registration (TTL ~600s) and the longer-lived signed
// connection URL lease (~1h). The two expire on independent clocks and are
// never coordinated.
//
// The Manager's lifecycle is unregistered -> registered -> expired(detected).
// Expiry is never predicted client-side; it is discovered when a dependent
// call fails with the backend's structured SESSION_EXPIRED response, at
// which point the surfaced error carries the "Session expired" marker.
// Re-registration after a detected expiry is allowed unconditionally.
//
// The manager never reads or writes conversation message history.
package session
