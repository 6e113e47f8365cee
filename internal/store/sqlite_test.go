// ABOUTME: Tests for the SQLite snapshot cache: roundtrip, listing order, misses.
// ABOUTME: Each test opens a fresh database under t.TempDir.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/thread"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func cachedConv(id string, accessed time.Time) *thread.Conversation {
	return &thread.Conversation{
		ID:             id,
		AgentID:        "agent-1",
		CreatedAt:      accessed.Add(-time.Hour),
		LastAccessedAt: accessed,
		Messages: []thread.Message{
			{
				ID:        "msg-1",
				Role:      thread.RoleUser,
				Content:   "Hello",
				Timestamp: accessed.Add(-30 * time.Minute),
				Source:    thread.SourceText,
			},
			{
				ID:         "msg-2",
				Role:       thread.RoleTool,
				Content:    "ran search",
				Timestamp:  accessed.Add(-29 * time.Minute),
				ToolName:   "search",
				ToolArgs:   `{"q":"weather"}`,
				ToolOutput: "sunny",
			},
		},
	}
}

func TestCache_RoundTrip(t *testing.T) {
	c := openTestCache(t)
	accessed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	conv := cachedConv("conv-1", accessed)

	require.NoError(t, c.SaveConversation(context.Background(), conv))

	got, err := c.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)

	assert.Equal(t, "conv-1", got.ID)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.True(t, got.LastAccessedAt.Equal(accessed))
	require.Len(t, got.Messages, 2)

	assert.Equal(t, thread.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Hello", got.Messages[0].Content)
	assert.Equal(t, thread.SourceText, got.Messages[0].Source)
	assert.True(t, got.Messages[0].Timestamp.Equal(conv.Messages[0].Timestamp))

	assert.Equal(t, thread.RoleTool, got.Messages[1].Role)
	assert.Equal(t, "search", got.Messages[1].ToolName)
	assert.Equal(t, `{"q":"weather"}`, got.Messages[1].ToolArgs)
	assert.Equal(t, "sunny", got.Messages[1].ToolOutput)
}

func TestCache_GetMiss(t *testing.T) {
	c := openTestCache(t)
	_, err := c.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_SaveReplacesSnapshotWholesale(t *testing.T) {
	c := openTestCache(t)
	accessed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.SaveConversation(context.Background(), cachedConv("conv-1", accessed)))

	shorter := &thread.Conversation{
		ID:             "conv-1",
		AgentID:        "agent-2",
		CreatedAt:      accessed.Add(-time.Hour),
		LastAccessedAt: accessed.Add(time.Minute),
		Messages: []thread.Message{
			{Role: thread.RoleUser, Content: "only one now", Timestamp: accessed},
		},
	}
	require.NoError(t, c.SaveConversation(context.Background(), shorter))

	got, err := c.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-2", got.AgentID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "only one now", got.Messages[0].Content)
}

func TestCache_LastAccessedNeverRollsBack(t *testing.T) {
	c := openTestCache(t)
	newer := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	require.NoError(t, c.SaveConversation(context.Background(), cachedConv("conv-1", newer)))
	// A stale snapshot lands out of order.
	require.NoError(t, c.SaveConversation(context.Background(), cachedConv("conv-1", older)))

	got, err := c.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, got.LastAccessedAt.Equal(newer))
}

func TestCache_ListOrdersByRecency(t *testing.T) {
	c := openTestCache(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.SaveConversation(context.Background(), cachedConv("conv-old", base.Add(-2*time.Hour))))
	require.NoError(t, c.SaveConversation(context.Background(), cachedConv("conv-new", base)))
	require.NoError(t, c.SaveConversation(context.Background(), cachedConv("conv-mid", base.Add(-time.Hour))))

	convs, err := c.ListConversations(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "conv-new", convs[0].ID)
	assert.Equal(t, "conv-mid", convs[1].ID)
	assert.Equal(t, "conv-old", convs[2].ID)
	assert.Empty(t, convs[0].Messages, "listing carries metadata only")
}

func TestCache_ListLimitAndOffset(t *testing.T) {
	c := openTestCache(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.SaveConversation(context.Background(),
			cachedConv(id, base.Add(-time.Duration(i)*time.Hour))))
	}

	convs, err := c.ListConversations(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "b", convs[0].ID)
	assert.Equal(t, "c", convs[1].ID)
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "cache.db")
	c, err := Open(path, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SaveConversation(context.Background(),
		cachedConv("conv-1", time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))))
}
