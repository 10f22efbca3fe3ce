// Package backend is the HTTP client for the workbook content API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
)

var (
	// ErrUnauthenticated is returned when no token is available or the API rejects it.
	ErrUnauthenticated = errors.New("backend: unauthenticated")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("backend: not found")
)

// StatusError is any other non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend: status %d", e.Code)
}

// Client talks to the content API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     AuthTokenProvider
	logger     *zap.Logger
	attempts   uint
	delay      time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetry tunes how idempotent reads are retried.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.delay = delay
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, tokens AuthTokenProvider, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens:     tokens,
		logger:     zap.NewNop(),
		attempts:   3,
		delay:      500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckpointStatus reports whether the checkpoint photo for page exists.
// owner is required for admins and ignored for learners.
func (c *Client) CheckpointStatus(ctx context.Context, owner string, page int) (*wire.CheckpointStatus, error) {
	path := "/progress-checkpoints/" + wire.PageID(page)
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var out wire.CheckpointStatus
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPhoto sends a checkpoint photo. Uploads are not retried.
func (c *Client) UploadPhoto(ctx context.Context, owner string, page int, filename string, photo io.Reader) (*wire.CheckpointStatus, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, photo); err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	path := "/progress-checkpoints/" + wire.PageID(page) + "/photo"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var out wire.CheckpointStatus
	if err := c.send(ctx, http.MethodPost, path, mw.FormDataContentType(), body.Bytes(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the identity behind the configured token.
func (c *Client) Me(ctx context.Context) (*wire.Identity, error) {
	var out wire.Identity
	if err := c.get(ctx, "/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LearnerConversation returns the caller's support conversation, creating it on first use.
func (c *Client) LearnerConversation(ctx context.Context) (*wire.Conversation, error) {
	var out wire.Conversation
	if err := c.get(ctx, "/conversation", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations returns the admin inbox, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]wire.Conversation, error) {
	var out []wire.Conversation
	if err := c.get(ctx, "/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]wire.Message, error) {
	var out wire.MessageList
	if err := c.get(ctx, "/messages?conversationId="+url.QueryEscape(conversationID), &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PostMessage sends a message and returns the server's canonical copy.
func (c *Client) PostMessage(ctx context.Context, conversationID, text string) (*wire.Message, error) {
	body, err := json.Marshal(wire.SendMessageRequest{ConversationID: conversationID, Text: text})
	if err != nil {
		return nil, err
	}
	var out wire.Message
	if err := c.send(ctx, http.MethodPost, "/messages", "application/json", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead clears the admin unread flag on a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.send(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/read", "", nil, nil)
}

// get retries transient failures. Client errors are returned immediately.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = c.send(ctx, http.MethodGet, path, "", nil, out)
			return lastErr
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying api request", zap.String("path", path), zap.Uint("attempt", n), zap.Error(err))
		}),
		retry.RetryIf(retryable),
	)
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}

	var eb wire.ErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(eb.Error)}
	}
}

// token resolves the bearer token. A missing token fails before any I/O.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", ErrUnauthenticated
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}
