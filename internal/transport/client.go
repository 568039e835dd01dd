// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// ClientError represents an error from the streaming client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches client errors by type so sentinels work with errors.Is.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning = &ClientError{Type: ErrTypeNotRunning, Message: "inference backend is not running"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// IsNotRunning reports whether err indicates the backend is unreachable.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}

// IsTimeout reports whether err indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the HTTP streaming client.
type ClientConfig struct {
	// BaseURL is the backend API base URL (default: http://127.0.0.1:11434).
	// Explicit IPv4 avoids IPv6 resolution issues on Windows.
	BaseURL string

	// ConnectTimeout bounds connection establishment. Streaming reads are
	// not bounded here; stalled streams are the watchdog's concern.
	ConnectTimeout time.Duration

	// RequestsPerMinute throttles outgoing requests. 0 disables throttling.
	RequestsPerMinute int
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "http://127.0.0.1:11434",
		ConnectTimeout:    5 * time.Second,
		RequestsPerMinute: 60,
	}
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// Client streams chat completions from an Ollama-compatible ndjson endpoint.
// Thread-safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client with the given configuration, or defaults when
// cfg is nil.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			// No overall timeout: a streaming response legitimately stays
			// open for minutes. Dial and TLS are bounded instead.
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				TLSHandshakeTimeout:   cfg.ConnectTimeout,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		limiter: limiter,
	}
}

// CheckRunning verifies the backend is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "unexpected status " + resp.Status}
	}
	return nil
}

// =============================================================================
// STREAMING
// =============================================================================

// chatRequest is the wire format for a streaming chat call.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// chatChunk is one ndjson line of a streaming response.
type chatChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done      bool `json:"done"`
	EvalCount int  `json:"eval_count,omitempty"`
}

// Open starts a one-shot token stream and returns the session immediately.
// A reader goroutine feeds the session's event channel: tokens as they
// arrive, then exactly one terminal event, then channel close. Cancelling
// the session stops the reader; it closes the channel without a terminal
// event.
func (c *Client) Open(ctx context.Context, history []ChatMessage, model string, opts Options, requestID string) (*Session, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqBody := chatRequest{
		Model:    model,
		Messages: history,
		Stream:   true,
	}
	if opts.Temperature != 0 || opts.MaxTokens != 0 {
		reqBody.Options = &chatOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		cancel()
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, classifyTransportErr(err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "unexpected status " + resp.Status + ": " + strings.TrimSpace(string(body)),
		}
	}

	session := NewSession(requestID, cancel)

	go c.readStream(streamCtx, session, resp.Body)

	return session, nil
}

// readStream is the session's single producer. It parses ndjson lines and
// forwards them as events until done, error, or cancellation.
func (c *Client) readStream(ctx context.Context, session *Session, body io.ReadCloser) {
	defer body.Close()
	defer session.Close()

	reader := bufio.NewReader(body)

	for {
		select {
		case <-ctx.Done():
			// Canceled: close without a terminal event.
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if len(bytes.TrimSpace(line)) == 0 {
				if err == io.EOF {
					// Stream ended without a done marker. Surface it so the
					// consumer does not wait for a terminal that never comes.
					session.Send(ctx, Event{Err: &ClientError{Type: ErrTypeConnection, Message: "stream ended unexpectedly"}})
					return
				}
				if ctx.Err() != nil {
					return
				}
				session.Send(ctx, Event{Err: classifyTransportErr(err)})
				return
			}
			// Fall through and parse the final partial line.
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed lines rather than aborting the stream.
			continue
		}

		if chunk.Message.Content != "" {
			if !session.Send(ctx, Event{Token: chunk.Message.Content}) {
				return
			}
		}

		if chunk.Done {
			session.Send(ctx, Event{Done: true, CompletionTokens: chunk.EvalCount})
			return
		}
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// classifyTransportErr maps low-level transport failures onto client errors.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ClientError{Type: ErrTypeNotRunning, Message: "inference backend is not running", Cause: err}
	}

	if strings.Contains(err.Error(), "connection refused") {
		return &ClientError{Type: ErrTypeNotRunning, Message: "inference backend is not running", Cause: err}
	}

	return &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: err}
}
