// ABOUTME: HTTP/JSON client for the conversation service.
// ABOUTME: Fetch/send/list/signed-url/register-session with a shared request helper.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/parley/internal/thread"
)

const defaultTimeout = 30 * time.Second

// Client talks to the conversation service over HTTP/JSON.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the service at baseURL. Pass nil logger for
// default.
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("component", "api"),
	}
}

// SendMessageRequest is the JSON body for POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Role    thread.Role   `json:"role"`
	Content string        `json:"content"`
	Source  thread.Source `json:"source,omitempty"`
}

// SendResult is the JSON response for a message send. The body is
// acknowledgement only; the conversation is re-fetched for truth.
type SendResult struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId"`
}

// ListParams selects a page of the conversation listing.
type ListParams struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// Pagination is the paging envelope on list responses.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// ConversationPage is the JSON response for GET /api/conversations.
type ConversationPage struct {
	Conversations []thread.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// SignedURL is the JSON response for GET /api/voice/signed-url.
type SignedURL struct {
	SignedURL string    `json:"signedUrl"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// RegisterSessionRequest is the JSON body for POST /api/conversations/{id}/session.
type RegisterSessionRequest struct {
	SessionURL string            `json:"sessionUrl"`
	SessionID  string            `json:"sessionId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RegisterSessionResult is the JSON response for a session registration.
type RegisterSessionResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	TTL       int       `json:"ttl,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// errorBody is the JSON shape of service error responses.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// GetConversation fetches the authoritative conversation record.
func (c *Client) GetConversation(ctx context.Context, id string) (*thread.Conversation, error) {
	var conv thread.Conversation
	path := "/api/conversations/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// SendMessage submits a message to a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID string, msg thread.Message) error {
	body := SendMessageRequest{Role: msg.Role, Content: msg.Content, Source: msg.Source}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	var result SendResult
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return err
	}
	if !result.Success {
		return &StatusError{Op: "send message", Status: http.StatusOK, Message: "send not acknowledged"}
	}
	return nil
}

// ListConversations fetches one page of the conversation listing.
func (c *Client) ListConversations(ctx context.Context, params ListParams) (*ConversationPage, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.SortBy != "" {
		q.Set("sortBy", params.SortBy)
	}
	if params.SortOrder != "" {
		q.Set("sortOrder", params.SortOrder)
	}
	path := "/api/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page ConversationPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetSignedURL fetches a signed voice connection URL. With no agent id the
// request path ends /signed-url; with one it carries ?agentId=<id>.
func (c *Client) GetSignedURL(ctx context.Context, agentID string) (*SignedURL, error) {
	path := "/api/voice/signed-url"
	if agentID != "" {
		path += "?agentId=" + url.QueryEscape(agentID)
	}
	var signed SignedURL
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &signed); err != nil {
		return nil, err
	}
	return &signed, nil
}

// RegisterSession registers a voice session reference for a conversation.
func (c *Client) RegisterSession(ctx context.Context, conversationID string, req RegisterSessionRequest) (*RegisterSessionResult, error) {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/session"
	var result RegisterSessionResult
	if err := c.doJSON(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON issues one request and decodes the JSON response into out.
// Network failures and non-JSON responses become TransportErrors; non-2xx
// statuses with readable bodies become StatusErrors.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	op := strings.ToLower(method) + " " + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(op, resp.StatusCode, raw)
	}

	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		return &TransportError{
			Op:          op,
			ContentType: resp.Header.Get("Content-Type"),
			RawBody:     truncate(string(raw), maxRawBody),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{
			Op:          op,
			ContentType: resp.Header.Get("Content-Type"),
			RawBody:     truncate(string(raw), maxRawBody),
		}
	}
	return nil
}

// statusError builds a StatusError from a non-2xx response. Error bodies are
// expected as {"error": "...", "code": "..."} but plain text is tolerated.
func (c *Client) statusError(op string, status int, raw []byte) error {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
		return &StatusError{Op: op, Status: status, Message: eb.Error, Code: eb.Code}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{Op: op, Status: status, Message: truncate(msg, maxRawBody)}
}

func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
