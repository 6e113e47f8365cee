// ABOUTME: Tests for the SSE push channel: wire parsing, lifecycle, failure modes.
// ABOUTME: Uses an httptest server with a flusher to emit event frames.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/thread"
)

func sseHandler(t *testing.T, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

func snapshotFrame(t *testing.T, eventType string, conv thread.Conversation) string {
	t.Helper()
	data, err := json.Marshal(conv)
	require.NoError(t, err)
	frame := ""
	if eventType != "" {
		frame += "event: " + eventType + "\n"
	}
	return frame + "data: " + string(data) + "\n\n"
}

func TestPushPath(t *testing.T) {
	assert.Equal(t, "/api/conversations/conv-1/events", PushPath("conv-1"))
	assert.Equal(t, "/api/conversations/a%2Fb/events", PushPath("a/b"))
}

func TestOpenPushChannel_DeliversSnapshots(t *testing.T) {
	conv := thread.Conversation{
		ID: "conv-1",
		Messages: []thread.Message{
			{Role: thread.RoleAssistant, Content: "Hi", Timestamp: time.Now().UTC()},
		},
	}
	srv := httptest.NewServer(sseHandler(t, []string{
		snapshotFrame(t, "update", conv),
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	stream, err := c.OpenPushChannel(context.Background(), PushPath("conv-1"))
	require.NoError(t, err)
	defer stream.Close()

	select {
	case got := <-stream.Events():
		require.NotNil(t, got)
		assert.Equal(t, "conv-1", got.ID)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "Hi", got.Messages[0].Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestOpenPushChannel_BareDataEventAccepted(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		snapshotFrame(t, "", thread.Conversation{ID: "conv-2"}),
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	stream, err := c.OpenPushChannel(context.Background(), PushPath("conv-2"))
	require.NoError(t, err)
	defer stream.Close()

	select {
	case got := <-stream.Events():
		assert.Equal(t, "conv-2", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestOpenPushChannel_IgnoresKeepalivesAndUnknownEvents(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		":keepalive\n\n",
		"event: pulse\ndata: {}\n\n",
		snapshotFrame(t, "message", thread.Conversation{ID: "conv-3"}),
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	stream, err := c.OpenPushChannel(context.Background(), PushPath("conv-3"))
	require.NoError(t, err)
	defer stream.Close()

	select {
	case got := <-stream.Events():
		assert.Equal(t, "conv-3", got.ID, "only the snapshot event comes through")
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestOpenPushChannel_EventsClosedWhenServerEnds(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, nil))
	defer srv.Close()

	c := New(srv.URL, nil)
	stream, err := c.OpenPushChannel(context.Background(), PushPath("conv-4"))
	require.NoError(t, err)

	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok, "events channel closes when the stream ends")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done channel never closed")
	}
	assert.NoError(t, stream.Err())
}

func TestOpenPushChannel_NonStreamContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"conv-5"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.OpenPushChannel(context.Background(), PushPath("conv-5"))
	assert.True(t, IsTransport(err))
}

func TestOpenPushChannel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such conversation", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.OpenPushChannel(context.Background(), PushPath("conv-6"))
	assert.True(t, IsNotFound(err))
}

func TestPushStream_CloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		snapshotFrame(t, "update", thread.Conversation{ID: "conv-7"}),
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	stream, err := c.OpenPushChannel(context.Background(), PushPath("conv-7"))
	require.NoError(t, err)

	stream.Close()
	stream.Close()

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not shut down after close")
	}
}
