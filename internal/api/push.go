// ABOUTME: Server-sent-event push channel delivering full conversation snapshots.
// ABOUTME: No self-reconnect; the stream ends once and polling remains the fallback.

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/2389/parley/internal/thread"
)

// PushPath returns the event-stream path for a conversation.
func PushPath(conversationID string) string {
	return "/api/conversations/" + url.PathEscape(conversationID) + "/events"
}

// PushStream is one live subscription to a conversation's event stream.
// Each received event carries a full conversation snapshot. The stream does
// not reconnect on close or error; once Events is closed the subscription is
// over for good.
type PushStream struct {
	body   io.ReadCloser
	events chan *thread.Conversation
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// OpenPushChannel opens the event stream at pathWithQuery. The connection
// uses a client without a request timeout; the stream lives until the server
// closes it or Close is called.
func (c *Client) OpenPushChannel(ctx context.Context, pathWithQuery string) (*PushStream, error) {
	op := "get " + pathWithQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathWithQuery, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client's timeout would sever a long-lived stream.
	streamClient := &http.Client{Transport: c.http.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRawBody))
		resp.Body.Close()
		return nil, c.statusError(op, resp.StatusCode, raw)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRawBody))
		resp.Body.Close()
		return nil, &TransportError{Op: op, ContentType: ct, RawBody: string(raw)}
	}

	s := &PushStream{
		body:   resp.Body,
		events: make(chan *thread.Conversation, 16),
		done:   make(chan struct{}),
		logger: c.logger.With("component", "push"),
	}
	go s.read()
	return s, nil
}

// Events returns the snapshot channel. It is closed when the stream ends.
func (s *PushStream) Events() <-chan *thread.Conversation {
	return s.events
}

// Done is closed when the stream has ended, cleanly or not.
func (s *PushStream) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal stream error, nil for a clean close.
func (s *PushStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the stream down. Safe to call more than once.
func (s *PushStream) Close() {
	s.closeOnce.Do(func() {
		s.body.Close()
	})
}

// read consumes the SSE wire format: "event:" and "data:" lines accumulate
// until a blank line dispatches the event.
func (s *PushStream) read() {
	defer func() {
		s.Close()
		close(s.events)
		close(s.done)
	}()

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				s.dispatch(eventType, strings.Join(dataLines, "\n"))
			}
			eventType = ""
			dataLines = nil
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
		// Comment lines (":keepalive") and unknown fields are ignored.
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.logger.Debug("push stream ended with error", "error", err)
	}
}

// dispatch decodes one event payload. Snapshot events carry the full
// conversation record; anything else is ignored.
func (s *PushStream) dispatch(eventType, data string) {
	switch eventType {
	case "", "message", "update":
	default:
		return
	}

	var conv thread.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		s.logger.Debug("dropping undecodable push event", "error", err)
		return
	}

	select {
	case s.events <- &conv:
	default:
		// Consumer is behind; polling will deliver the same facts.
		s.logger.Debug("dropping push snapshot for slow consumer")
	}
}
