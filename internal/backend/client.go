package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/chaldduk-checkout/internal/obs"
	"github.com/noah-isme/chaldduk-checkout/internal/resilience"
)

// ErrUpstream marks failures to reach the backend or decode its response.
var ErrUpstream = errors.New("backend: upstream unavailable")

// APIError is a non-2xx response carrying the backend's message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Config configures the bakery backend client.
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	MaxAttempts         int
	Backoff             time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	BreakerWindow       time.Duration
	Logger              zerolog.Logger
}

// Client talks to the bakery REST backend.
type Client struct {
	baseURL string
	http    resilience.HTTPClient
	logger  zerolog.Logger
}

// NewClient builds a client with tracing transport, retries and a circuit breaker.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "bakery-backend",
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
		OpenFor:      cfg.BreakerOpenFor,
		Window:       cfg.BreakerWindow,
		Logger:       &logger,
	})
	return &Client{
		baseURL: base,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: cfg.Backoff,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		logger: cfg.Logger,
	}, nil
}

// get issues a GET and decodes the envelope data into out.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.do(ctx, endpoint, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint, path string, query url.Values, body, out any) error {
	return c.do(ctx, endpoint, http.MethodPost, path, query, body, out)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("backend: build %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodGet {
		req.Header.Set("Cache-Control", "no-cache")
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		obs.ObserveUpstream(endpoint, "error", time.Since(start))
		return fmt.Errorf("%w: %s: %v", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	obs.ObserveUpstream(endpoint, resultLabel(resp.StatusCode), time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUpstream, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env Envelope[json.RawMessage]
		_ = json.Unmarshal(raw, &env)
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(env.Message)}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s: %w", ErrUpstream, endpoint, apiErr)
		}
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	env := Envelope[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, endpoint, err)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", ErrUpstream, endpoint, err)
	}
	return nil
}

func resultLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "ok"
	}
}
