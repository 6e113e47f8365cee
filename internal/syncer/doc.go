// Package syncer keeps a mounted conversation view consistent across its
// three asynchronous feeds: optimistic local writes, repeating poll
// cadences, and the optional push subscription.
//
// # Controller
//
// The Controller is the per-view context object. It owns the message store,
// the reconciliation engine and its cross-callback trackers, the two poll
// cadences, and the push handle. It is constructed once per mounted view and
// torn down exactly once; teardown flips a liveness flag that every
// asynchronously delivered snapshot checks before mutating view state.
//
// # Cadences
//
// Two independently cancelable cadences run against the same fetch:
//
//   - reply-wait (~2s): active only while an assistant reply is streaming;
//     stops the instant the engine reports the reply stabilized
//   - passive-refresh (~3s): active for the whole mounted lifetime
//
// Each cadence holds at most one fetch in flight; ticks landing while a
// fetch is pending are skipped. Tick errors are absorbed, never surfaced.
//
// # Push
//
// The push channel opens once, only after the initial authoritative load,
// and never reconnects on its own. Push snapshots flow through the exact
// same merge path as poll results, so arrival order between the two
// transports does not matter.
package syncer
