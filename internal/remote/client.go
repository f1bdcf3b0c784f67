package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskbridgehq/taskbridge/types"
)

// Operation is a logical remote call. The protocol beyond these descriptors
// is treated as opaque.
type Operation string

const (
	OpCreateRecord      Operation = "create-record"
	OpUpdateRecord      Operation = "update-record"
	OpDeleteRecord      Operation = "delete-record"
	OpListRecords       Operation = "list-records"
	OpGetSchema         Operation = "get-schema"
	OpMoveRecordToGroup Operation = "move-record-to-group"
)

// Envelope is the uniform result of every successful call; callers never
// branch on vendor-specific response structure.
type Envelope struct {
	Success   bool            `json:"success"`
	Operation Operation       `json:"operation"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId"`
}

// wireRequest is the on-the-wire shape of one logical operation.
type wireRequest struct {
	Operation Operation `json:"operation"`
	BoardID   string    `json:"boardId"`
	RequestID string    `json:"requestId"`
	Payload   any       `json:"payload,omitempty"`
}

// wireResponse is the vendor response envelope.
type wireResponse struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data,omitempty"`
	RetryAfterMs int             `json:"retryAfterMs,omitempty"`
	Error        *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Doer is the transport seam; *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config holds everything one client instance needs.
type Config struct {
	BaseURL       string
	BoardID       string
	Credential    string
	RetryAttempts int
	Timeout       time.Duration
	BaseDelay     time.Duration
}

// Client issues authenticated remote calls with client-side rate limiting
// and bounded retry. It is stateless with respect to task data.
type Client struct {
	cfg     Config
	http    Doer
	limiter *Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	authChecked bool
}

// NewClient validates configuration up front; a missing board or credential
// is a Configuration error raised before any call is attempted.
func NewClient(cfg Config, limiter *Limiter, httpClient Doer, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, types.NewError(types.KindConfiguration, "remote.baseUrl is not set")
	}
	if cfg.BoardID == "" {
		return nil, types.NewError(types.KindConfiguration, "remote.boardId is not set")
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = NewLimiter(LimiterConfig{})
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter, logger: logger}, nil
}

// Stats exposes limiter usage for status reporting.
func (c *Client) Stats() LimiterStats { return c.limiter.Stats() }

// CheckAuth performs the capability check. It is called lazily by Request
// and may be invoked directly as a connectivity probe.
func (c *Client) CheckAuth(ctx context.Context) error {
	if c.cfg.Credential == "" {
		return types.NewError(types.KindAuth, "no credential configured")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BaseURL+"/api/v1/capabilities", nil)
	if err != nil {
		return types.WrapError(types.KindTransientNetwork, err, "building capability request")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return types.WrapError(types.KindTransientNetwork, err, "capability check failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		c.mu.Lock()
		c.authChecked = true
		c.mu.Unlock()
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.KindAuth, "credential rejected by remote service")
	default:
		return types.NewError(types.KindTransientNetwork,
			fmt.Sprintf("capability check returned status %d", resp.StatusCode))
	}
}

// Request wraps a single logical operation: auth gate, rate-limit
// admission, bounded retry with exponential backoff, and normalization of
// the response into an Envelope.
//
// Per request the state machine is Created -> auth check -> queued at the
// limiter -> sent -> succeeded, retryable failure (looped, bounded) or
// terminal failure.
func (c *Client) Request(ctx context.Context, op Operation, payload any) (Envelope, error) {
	if err := c.ensureAuth(ctx); err != nil {
		return Envelope{}, err
	}

	release, err := c.limiter.Acquire(ctx, 1)
	if err != nil {
		return Envelope{}, err
	}
	defer release()

	requestID := uuid.NewString()
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt, lastErr)
			c.logger.Debug("retrying remote operation",
				"operation", string(op), "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return Envelope{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		env, err := c.send(ctx, op, payload, requestID)
		if err == nil {
			return env, nil
		}
		lastErr = err

		if !types.Retryable(err) {
			return Envelope{}, err
		}
		if ctx.Err() != nil {
			return Envelope{}, ctx.Err()
		}
	}

	return Envelope{}, types.WrapError(types.KindOf(lastErr), lastErr,
		fmt.Sprintf("remote %s failed after %d attempts", op, c.cfg.RetryAttempts))
}

// ensureAuth gates every operation behind one successful capability check.
func (c *Client) ensureAuth(ctx context.Context) error {
	c.mu.Lock()
	checked := c.authChecked
	c.mu.Unlock()
	if checked {
		return nil
	}
	return c.CheckAuth(ctx)
}

// send performs exactly one wire call under the per-request timeout.
func (c *Client) send(ctx context.Context, op Operation, payload any, requestID string) (Envelope, error) {
	body, err := json.Marshal(wireRequest{
		Operation: op,
		BoardID:   c.cfg.BoardID,
		RequestID: requestID,
		Payload:   payload,
	})
	if err != nil {
		return Envelope{}, types.WrapError(types.KindValidation, err, "marshaling request payload")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+"/api/v1/ops", bytes.NewReader(body))
	if err != nil {
		return Envelope{}, types.WrapError(types.KindTransientNetwork, err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		// A per-request timeout is a retryable transient failure; parent
		// cancellation is surfaced by the retry loop.
		return Envelope{}, types.WrapError(types.KindTransientNetwork, err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Envelope{}, types.WrapError(types.KindTransientNetwork, err, "reading response")
	}

	if kindErr := c.classify(resp, raw); kindErr != nil {
		return Envelope{}, kindErr
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Envelope{}, types.WrapError(types.KindTransientNetwork, err, "malformed response body")
	}
	if !wire.Success {
		msg := "remote call rejected"
		if wire.Error != nil {
			msg = wire.Error.Message
		}
		return Envelope{}, types.NewError(types.KindValidation, msg)
	}

	return Envelope{
		Success:   true,
		Operation: op,
		Data:      wire.Data,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}, nil
}

// classify maps an HTTP status to the error taxonomy. Rate-limit responses
// carry the server's resume hint when present.
func (c *Client) classify(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		resumeAt := time.Now().Add(c.cfg.BaseDelay)
		if hint := resumeHint(resp, body); hint > 0 {
			resumeAt = time.Now().Add(hint)
		}
		return types.RateLimitedError(resumeAt, "remote service rate limit")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.KindAuth, fmt.Sprintf("remote returned status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return types.NewError(types.KindNotFound, "remote record not found")
	case resp.StatusCode >= 500:
		return types.NewError(types.KindTransientNetwork,
			fmt.Sprintf("remote returned status %d", resp.StatusCode))
	default:
		return types.NewError(types.KindValidation,
			fmt.Sprintf("remote rejected request with status %d: %s", resp.StatusCode, truncate(body, 200)))
	}
}

// backoffDelay computes the exponential delay before the given attempt; a
// server resume hint on the previous failure overrides it.
func (c *Client) backoffDelay(attempt int, lastErr error) time.Duration {
	var e *types.Error
	if errors.As(lastErr, &e) && e.Kind == types.KindRateLimited && !e.ResumeAt.IsZero() {
		if until := time.Until(e.ResumeAt); until > 0 {
			return until
		}
	}
	delay := c.cfg.BaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Credential)
}

// resumeHint extracts a machine-readable resume delay from the Retry-After
// header or the response body.
func resumeHint(resp *http.Response, body []byte) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err == nil && wire.RetryAfterMs > 0 {
		return time.Duration(wire.RetryAfterMs) * time.Millisecond
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
