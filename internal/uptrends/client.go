package uptrends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"synthmigrate/internal/monitor"
	"synthmigrate/internal/retry"
)

const DefaultBaseURL = "https://api.uptrends.com/v4"

var (
	// ErrNotFound is returned (wrapped in a retry.PermanentError) for 404s.
	ErrNotFound      = errors.New("uptrends: monitor not found")
	ErrUnauthorized  = errors.New("uptrends: unauthorized")
	ErrNoCredentials = errors.New("uptrends: username and password are required")
)

// StatusError is an unexpected non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("uptrends: unexpected status %d: %s", e.Code, e.Body)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// RPS limits outgoing requests; 0 uses 5 requests per second.
	RPS   float64
	Burst int
	Retry retry.Policy
	// Transport allows injecting a custom HTTP transport (for tests).
	Transport http.RoundTripper
}

// Client reads monitor definitions from the Uptrends v4 API using basic auth.
type Client struct {
	http     *http.Client
	baseURL  string
	username string
	password string
	limiter  *rate.Limiter
	policy   retry.Policy
}

func New(username, password string, opts Options) (*Client, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrNoCredentials
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("uptrends: base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Client{
		http:     &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		baseURL:  base,
		username: username,
		password: password,
		limiter:  rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		policy:   opts.Retry,
	}, nil
}

// Summary is one row of the monitor listing.
type Summary struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Kind   monitor.SourceKind `json:"type"`
	Active bool               `json:"is_active"`
}

// ListMonitors returns the monitors whose name contains pattern (case
// insensitive; empty matches all), at most limit of them when limit > 0.
func (c *Client) ListMonitors(ctx context.Context, pattern string, limit int) ([]Summary, error) {
	body, err := c.get(ctx, "/Monitor")
	if err != nil {
		return nil, err
	}
	var rows []struct {
		MonitorGuid string `json:"MonitorGuid"`
		Name        string `json:"Name"`
		MonitorType string `json:"MonitorType"`
		IsActive    *bool  `json:"IsActive"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("uptrends: decode monitor list: %w", err)
	}
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		if pattern != "" && !strings.Contains(strings.ToLower(r.Name), pattern) {
			continue
		}
		out = append(out, Summary{
			ID:     r.MonitorGuid,
			Name:   r.Name,
			Kind:   monitor.ParseSourceKind(r.MonitorType),
			Active: r.IsActive == nil || *r.IsActive,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FetchMonitor returns the full definition of one monitor. A missing monitor
// yields an error matching ErrNotFound; transient failures are retried
// according to the client's policy before being returned.
func (c *Client) FetchMonitor(ctx context.Context, id string) (monitor.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return monitor.Record{}, retry.Permanent(fmt.Errorf("%w: empty id", ErrNotFound))
	}
	body, err := c.get(ctx, "/Monitor/"+url.PathEscape(id))
	if err != nil {
		return monitor.Record{}, err
	}
	rec, err := ParseMonitor(body)
	if err != nil {
		return monitor.Record{}, retry.Permanent(fmt.Errorf("monitor %s: %w", id, err))
	}
	return rec, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("uptrends: rate limiter: %w", err)
		}
		b, err := c.doOnce(ctx, path)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

func (c *Client) doOnce(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("uptrends: create request: %w", err))
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uptrends: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("uptrends: read body: %w", err)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrNotFound, path))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, retry.Permanent(fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode))
	}
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	sErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500 {
		return nil, sErr
	}
	return nil, retry.Permanent(sErr)
}
