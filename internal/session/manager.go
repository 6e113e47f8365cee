// ABOUTME: Voice session lifecycle: unregistered -> registered -> expired(detected).
// ABOUTME: Expiry is discovered reactively from the backend, never by a client timer.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/parley/internal/api"
)

// DefaultTTLSeconds is the client-side fallback when the backend's
// registration response omits a TTL.
const DefaultTTLSeconds = 600

// State is the lifecycle position of the managed session.
type State int

// Lifecycle states. There is no timer-driven transition to expired: the
// client learns of expiry only when a later call fails with the structured
// SESSION_EXPIRED response.
const (
	StateUnregistered State = iota
	StateRegistered
	StateExpiredDetected
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateExpiredDetected:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Record is one registered voice session reference. Records are immutable
// once created and never explicitly deleted; they go stale purely by
// elapsed time on the backend.
type Record struct {
	ConversationID string
	SessionID      string
	SessionURL     string
	CreatedAt      time.Time
	TTLSeconds     int
}

// ExpiredError is surfaced when the backend reports the session gone. Its
// message always carries the "Session expired" marker so callers and users
// can tell it apart from a generic failure.
type ExpiredError struct {
	SessionID string
	Err       error
}

func (e *ExpiredError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("Session expired: %s is no longer registered", e.SessionID)
	}
	return "Session expired: the voice session is no longer registered"
}

func (e *ExpiredError) Unwrap() error { return e.Err }

// Registrar is what the manager needs from the API layer.
type Registrar interface {
	RegisterSession(ctx context.Context, conversationID string, req api.RegisterSessionRequest) (*api.RegisterSessionResult, error)
}

// Manager tracks one voice session registration for a conversation. It is
// deliberately ignorant of the conversation's message history: session state
// and message state never touch.
type Manager struct {
	registrar  Registrar
	defaultTTL int
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	record *Record
}

// NewManager creates a manager in the unregistered state. Pass nil logger
// for default.
func NewManager(registrar Registrar, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registrar:  registrar,
		defaultTTL: DefaultTTLSeconds,
		logger:     logger.With("component", "session"),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Record returns a copy of the current registration, or nil when none is
// held.
func (m *Manager) Record() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return nil
	}
	r := *m.record
	return &r
}

// Register registers a session reference with the backend and enters the
// registered state. Allowed unconditionally from any state, including after
// a detected expiry; there is no cool-down. The TTL comes from the backend
// response, falling back to the client default of 600 seconds.
func (m *Manager) Register(ctx context.Context, conversationID, sessionURL, sessionID string) (*Record, error) {
	result, err := m.registrar.RegisterSession(ctx, conversationID, api.RegisterSessionRequest{
		SessionURL: sessionURL,
		SessionID:  sessionID,
	})
	if err != nil {
		return nil, m.CheckExpiry(err)
	}

	ttl := result.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	record := &Record{
		ConversationID: conversationID,
		SessionID:      sessionID,
		SessionURL:     sessionURL,
		CreatedAt:      createdAt,
		TTLSeconds:     ttl,
	}

	m.mu.Lock()
	m.state = StateRegistered
	m.record = record
	m.mu.Unlock()

	m.logger.Debug("session registered",
		"conversation_id", conversationID,
		"session_id", sessionID,
		"ttl_seconds", ttl)

	r := *record
	return &r, nil
}

// CheckExpiry inspects an error from any operation that depends on the
// registered session. The structured SESSION_EXPIRED response moves the
// manager to the expired(detected) state and comes back as an ExpiredError;
// every other error passes through untouched. The owning conversation's
// messages are never altered either way.
func (m *Manager) CheckExpiry(err error) error {
	if err == nil {
		return nil
	}
	if !api.IsSessionExpired(err) {
		return err
	}

	m.mu.Lock()
	m.state = StateExpiredDetected
	var sessionID string
	if m.record != nil {
		sessionID = m.record.SessionID
	}
	m.mu.Unlock()

	m.logger.Debug("session expiry detected", "session_id", sessionID)
	return &ExpiredError{SessionID: sessionID, Err: err}
}
