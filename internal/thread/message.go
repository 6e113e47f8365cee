// ABOUTME: Conversation and Message model types shared across the sync engine.
// ABOUTME: Defines roles, sources, the role+content merge key, and ordering.

package thread

import (
	"fmt"
	"sort"
	"time"
)

// Role identifies who authored a message.
type Role string

// Message roles. Merge and render code switches exhaustively over these.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// Source identifies the input modality that produced a message.
type Source string

// Message sources.
const (
	SourceVoice Source = "voice"
	SourceText  Source = "text"
)

// Message is a single entry in a conversation. Messages are never mutated
// in place; a new merged sequence supersedes the old one.
type Message struct {
	ID         string    `json:"messageId,omitempty"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Source     Source    `json:"source,omitempty"`
	ToolName   string    `json:"toolName,omitempty"`
	ToolArgs   string    `json:"toolArgs,omitempty"`
	ToolOutput string    `json:"toolOutput,omitempty"`
}

// Key returns the role+content merge key. Timestamps are deliberately
// excluded: a locally stamped optimistic timestamp almost never matches the
// server's stamp for the same message.
func (m Message) Key() string {
	return string(m.Role) + "\x1f" + m.Content
}

// Validate checks the fields that merge and render code relies on.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	if m.Role == RoleTool && m.ToolName == "" {
		return fmt.Errorf("tool message missing tool name")
	}
	return nil
}

// Conversation is one conversation record: metadata plus the ordered
// message sequence.
type Conversation struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agentId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	Messages       []Message `json:"messages"`
}

// SortMessages stable-sorts msgs by timestamp ascending. Ties keep their
// existing relative order, which preserves server order for equal stamps.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
