package provider

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 16
)

// Option configures an adapter.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	timeout     time.Duration
	endpoint    string
	concurrency int
	tokenSource oauth2.TokenSource
	breaker     *CircuitBreaker
	logger      *slog.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout: o.timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if o.breaker == nil {
		o.breaker = NewCircuitBreaker(5, 2, 30*time.Second)
	}
	return o
}

// WithHTTPClient replaces the HTTP client. The client's own timeout applies.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout bounds every outbound call. Defaults to 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithEndpoint overrides the backend base URL.
func WithEndpoint(url string) Option {
	return func(o *options) {
		if url != "" {
			o.endpoint = url
		}
	}
}

// WithConcurrency caps parallel requests for adapters that send one request
// per device.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithTokenSource supplies FCM access tokens directly instead of deriving
// them from the service account JSON.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) {
		o.tokenSource = ts
	}
}

// WithCircuitBreaker replaces the default breaker (5 failures, 30s recovery).
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(o *options) {
		if cb != nil {
			o.breaker = cb
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
