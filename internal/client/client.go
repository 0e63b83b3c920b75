package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vetcore/platform/internal/auth"
	"github.com/vetcore/platform/internal/inventory"
	"github.com/vetcore/platform/internal/shared/resilience"
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("vetcore %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("vetcore %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Client talks to the clinic REST API with the bearer token held by creds.
type Client struct {
	baseURL    string
	creds      auth.CredentialStore
	httpClient *http.Client
	executor   *resilience.Executor
}

// New creates an API client. baseURL ends at the API version, for example
// http://localhost:8080/api/v1. A nil executor sends each call once.
func New(baseURL string, creds auth.CredentialStore, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

var (
	_ auth.SessionSource      = (*Client)(nil)
	_ inventory.Source        = (*Client)(nil)
	_ inventory.SummarySource = (*Client)(nil)
)

// CurrentSession resolves the stored token through GET /auth/me.
func (c *Client) CurrentSession(ctx context.Context) (auth.Session, error) {
	if c.creds.Token() == "" {
		return auth.Session{}, auth.ErrUnauthenticated
	}

	var s auth.Session
	if err := c.get(ctx, "auth.me", "/auth/me", &s); err != nil {
		return auth.Session{}, err
	}
	if _, err := auth.ParseRole(string(s.Role)); err != nil {
		return auth.Session{}, fmt.Errorf("%w: %w", auth.ErrInvariantViolation, err)
	}
	s.Authenticated = true
	return s, nil
}

// ListItems fetches the full inventory.
func (c *Client) ListItems(ctx context.Context) ([]inventory.Item, error) {
	var resp struct {
		Data []inventory.Item `json:"data"`
	}
	if err := c.get(ctx, "inventory.items", "/inventory/items", &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []inventory.Item{}
	}
	return resp.Data, nil
}

// ExpiryAlerts fetches the server's alert summary.
func (c *Client) ExpiryAlerts(ctx context.Context) (inventory.AlertSummary, error) {
	var s inventory.AlertSummary
	err := c.get(ctx, "inventory.expiry_alerts", "/inventory/expiry-alerts", &s)
	return s, err
}

func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	call := func(ctx context.Context) error {
		return c.do(ctx, operation, path, out)
	}
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classify)
}

func (c *Client) do(ctx context.Context, operation, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", operation, auth.ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, auth.ErrUnauthorized) {
		return resilience.ErrorClassification{}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if retryableStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
				RetryAfter:    statusErr.RetryAfter,
			}
		}
		return resilience.ErrorClassification{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{RecordFailure: true}
}

// retryAfter reads the delay-seconds form of Retry-After. HTTP dates are
// ignored.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
