// ABOUTME: ReconciliationEngine merges server snapshots with local pending messages.
// ABOUTME: Detects updates and reply-stream completion across poll/push interleavings.

package reconcile

import (
	"sync"

	"github.com/2389/parley/internal/thread"
)

// Result is the outcome of one merge invocation.
type Result struct {
	// Messages is the merged, de-duplicated, timestamp-ordered sequence.
	Messages []thread.Message
	// Updated reports whether the server snapshot advanced since the
	// previous invocation: either the message count grew or the last
	// message's content changed (in-place streaming growth).
	Updated bool
	// StreamComplete reports that the last server message is an assistant
	// message whose content has stabilized across two invocations.
	StreamComplete bool
}

// Engine merges authoritative server snapshots with locally pending
// messages into the single sequence shown to the consumer. Merging is
// idempotent and order-insensitive across input sources: the same facts
// arriving via poll, push, or any interleaving converge to the same result.
//
// The engine carries two trackers between invocations, the last server
// message count and the last server message content, which drive update
// and stream-completion detection.
type Engine struct {
	mu          sync.Mutex
	lastCount   int
	lastContent string
	primed      bool
}

// New creates an engine with empty trackers.
func New() *Engine {
	return &Engine{}
}

// Merge combines a server snapshot with the locally pending optimistic
// entries.
//
// Server order is authoritative: the result starts with every server
// message in server order, then appends each local message whose
// role+content key has not round-tripped, then stable-sorts by timestamp so
// optimistic entries interleave by their client stamps. The local input must
// be the genuinely pending entries only; feeding previously merged server
// messages back in would resurrect superseded renderings of a message whose
// content later changed.
func (e *Engine) Merge(server, local []thread.Message) Result {
	serverKeys := make(map[string]struct{}, len(server))
	for _, m := range server {
		serverKeys[m.Key()] = struct{}{}
	}

	merged := make([]thread.Message, 0, len(server)+len(local))
	merged = append(merged, server...)
	for _, m := range local {
		if _, confirmed := serverKeys[m.Key()]; !confirmed {
			merged = append(merged, m)
		}
	}
	thread.SortMessages(merged)

	e.mu.Lock()
	defer e.mu.Unlock()

	var lastContent string
	var lastRole thread.Role
	if len(server) > 0 {
		last := server[len(server)-1]
		lastContent = last.Content
		lastRole = last.Role
	}

	updated := len(server) > e.lastCount ||
		(len(server) > 0 && lastContent != e.lastContent)
	complete := e.primed &&
		len(server) > 0 &&
		lastRole == thread.RoleAssistant &&
		lastContent == e.lastContent

	if len(server) > 0 {
		e.primed = true
	}
	e.lastCount = len(server)
	e.lastContent = lastContent

	return Result{Messages: merged, Updated: updated, StreamComplete: complete}
}

// Reset clears the trackers, as when the view switches conversations.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCount = 0
	e.lastContent = ""
	e.primed = false
}
