// ABOUTME: MessageStore owns the displayed message sequence for one conversation.
// ABOUTME: Sequences are replaced wholesale; lastAccessedAt only moves forward.

package thread

import (
	"sync"
	"time"
)

// MessageStore holds the canonical ordered message sequence and metadata for
// a single conversation. All reads return copies so callers can never mutate
// the displayed sequence behind the store's back.
type MessageStore struct {
	mu             sync.RWMutex
	id             string
	agentID        string
	createdAt      time.Time
	lastAccessedAt time.Time
	messages       []Message

	// pending holds the ids of optimistic entries the server has not yet
	// confirmed. A merge replaces a confirmed entry with its server copy, so
	// an id vanishing from the sequence is what clears the mark.
	pending map[string]struct{}
}

// NewMessageStore creates an empty store for the given conversation id.
func NewMessageStore(conversationID string) *MessageStore {
	return &MessageStore{id: conversationID, pending: make(map[string]struct{})}
}

// ConversationID returns the id this store was created for.
func (s *MessageStore) ConversationID() string {
	return s.id
}

// Snapshot returns a copy of the displayed message sequence.
func (s *MessageStore) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of displayed messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Replace swaps in a new displayed sequence. The slice is copied. Pending
// marks whose entries are no longer present are dropped.
func (s *MessageStore) Replace(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]Message, len(msgs))
	copy(s.messages, msgs)
	s.prunePendingLocked()
}

// AppendPending appends an optimistic entry to the displayed sequence and
// marks it pending until a server snapshot confirms it.
func (s *MessageStore) AppendPending(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.pending[msg.ID] = struct{}{}
}

// Pending returns the optimistic entries the server has not yet confirmed,
// in display order.
func (s *MessageStore) Pending() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, m := range s.messages {
		if _, ok := s.pending[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

// prunePendingLocked drops marks for entries no longer in the sequence:
// either the merge collapsed them onto their server copies (confirmed) or a
// revert removed them.
func (s *MessageStore) prunePendingLocked() {
	if len(s.pending) == 0 {
		return
	}
	present := make(map[string]struct{}, len(s.messages))
	for _, m := range s.messages {
		present[m.ID] = struct{}{}
	}
	for id := range s.pending {
		if _, ok := present[id]; !ok {
			delete(s.pending, id)
		}
	}
}

// ApplyFetch records metadata from a successful authoritative fetch and
// swaps in the merged sequence. lastAccessedAt is monotonically
// non-decreasing: a delayed response carrying an older stamp never rolls
// the recorded access time back.
func (s *MessageStore) ApplyFetch(conv *Conversation, merged []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.AgentID != "" {
		s.agentID = conv.AgentID
	}
	if s.createdAt.IsZero() {
		s.createdAt = conv.CreatedAt
	}
	if conv.LastAccessedAt.After(s.lastAccessedAt) {
		s.lastAccessedAt = conv.LastAccessedAt
	}
	s.messages = make([]Message, len(merged))
	copy(s.messages, merged)
	s.prunePendingLocked()
}

// Conversation returns a copy of the store's current view, metadata plus
// messages, shaped as a Conversation record.
func (s *MessageStore) Conversation() Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Conversation{
		ID:             s.id,
		AgentID:        s.agentID,
		CreatedAt:      s.createdAt,
		LastAccessedAt: s.lastAccessedAt,
		Messages:       msgs,
	}
}
