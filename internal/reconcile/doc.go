// Package reconcile merges the several asynchronous views of one
// conversation into a single ordered, de-duplicated message sequence.
//
// The merge key is role+content, not timestamp: an optimistic message is
// stamped with client time and the server stamps its own copy differently,
// so timestamps can never identify the round-trip. Server order is the
// ordering authority; local pending messages that have not round-tripped are
// appended and the whole result stable-sorted by timestamp.
//
// Merging the same facts through poll, push, or any interleaving of the two
// yields the same result, which is the only consistency mechanism the sync
// engine has: no arrival-order guarantees exist between in-flight requests.
package reconcile
