// ABOUTME: OptimisticWriter appends tentative messages before server confirmation.
// ABOUTME: Reverts the whole pre-submit sequence on failure and restores the draft.

package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/dedupe"
)

// ErrEmptyDraft is returned by Submit when there is no draft text to send.
var ErrEmptyDraft = errors.New("nothing to send")

// ErrDuplicateSubmit is returned when the same content was already submitted
// for this conversation within the dedupe window (a double-tapped send).
var ErrDuplicateSubmit = errors.New("duplicate submit ignored")

// MessageSender is what the writer needs from the API layer.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID string, msg Message) error
}

// Refresher triggers one authoritative re-fetch of the conversation, routed
// through the reconciliation engine. The send response body is never trusted
// as the new truth.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// OptimisticWriter appends a tentative user message to the displayed
// sequence before the authoritative send confirms it. On send failure the
// entire pre-submit sequence is restored, not just the one message, and the
// draft text comes back so the user can retry.
type OptimisticWriter struct {
	store     *MessageStore
	sender    MessageSender
	refresher Refresher
	recent    *dedupe.Cache
	logger    *slog.Logger

	mu    sync.Mutex
	draft string
}

// NewOptimisticWriter creates a writer for the given store. The dedupe cache
// may be nil to disable the double-submit guard. Pass nil logger for default.
func NewOptimisticWriter(store *MessageStore, sender MessageSender, refresher Refresher, recent *dedupe.Cache, logger *slog.Logger) *OptimisticWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OptimisticWriter{
		store:     store,
		sender:    sender,
		refresher: refresher,
		recent:    recent,
		logger:    logger.With("component", "writer"),
	}
}

// SetDraft replaces the pending input text.
func (w *OptimisticWriter) SetDraft(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = text
}

// Draft returns the pending input text.
func (w *OptimisticWriter) Draft() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Submit sends the current draft as a user message. The message is appended
// to the displayed sequence and the draft cleared before the send is issued.
// On failure the pre-submit sequence and draft are both restored and the
// error is returned for classification by the caller.
func (w *OptimisticWriter) Submit(ctx context.Context, source Source) (Message, error) {
	w.mu.Lock()
	text := w.draft
	w.mu.Unlock()

	if text == "" {
		return Message{}, ErrEmptyDraft
	}

	key := w.store.ConversationID() + "\x1f" + text
	if w.recent != nil && w.recent.Seen(key) {
		w.logger.Debug("duplicate submit ignored", "conversation_id", w.store.ConversationID())
		return Message{}, ErrDuplicateSubmit
	}

	msg := Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
		Source:    source,
	}

	// Optimistic append: show the message and clear the input immediately.
	// The pending mark keeps it alive through merges until the server
	// confirms it.
	before := w.store.Snapshot()
	w.store.AppendPending(msg)
	w.mu.Lock()
	w.draft = ""
	w.mu.Unlock()

	if err := w.sender.SendMessage(ctx, w.store.ConversationID(), msg); err != nil {
		// Wholesale revert: restore the full pre-submit sequence and the
		// original input so the user can retry. No partial recovery.
		w.store.Replace(before)
		w.mu.Lock()
		w.draft = text
		w.mu.Unlock()
		w.logger.Debug("send failed, optimistic append reverted",
			"conversation_id", w.store.ConversationID(),
			"error", err)
		return Message{}, fmt.Errorf("sending message: %w", err)
	}

	// Mark only after a successful send so a failed attempt can be retried
	// with identical content.
	if w.recent != nil {
		w.recent.Mark(key)
	}

	// The send response is not the new truth. One authoritative re-fetch
	// brings the confirmed message back through the merge path.
	if w.refresher != nil {
		if err := w.refresher.Refresh(ctx); err != nil {
			w.logger.Debug("post-send refresh failed, next poll will catch up",
				"conversation_id", w.store.ConversationID(),
				"error", err)
		}
	}

	return msg, nil
}
