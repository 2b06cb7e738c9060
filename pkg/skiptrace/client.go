// Package skiptrace provides a person enrichment adapter for skip-trace
// providers that return phones, emails, age and relatives.
package skiptrace

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/resilience"
)

const (
	defaultBaseURL = "https://api.batchdata.com/api/v1"
	defaultTimeout = 20 * time.Second

	// maxResponseBytes caps a single response body.
	maxResponseBytes = 4 << 20
)

// ErrNotConfigured marks a lookup skipped for lack of an API key. LookupPerson
// logs it and returns nil rather than propagating it.
var ErrNotConfigured = eris.New("skiptrace: api key not configured")

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retry.AttemptTimeout = d
		}
	}
}

// WithRetries sets how many times a failed attempt is retried and the base
// backoff delay.
func WithRetries(n int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.Retries = n
		if baseDelay > 0 {
			c.retry.BaseDelay = baseDelay
		}
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		limit := rate.Inf
		if rps > 0 {
			limit = rate.Limit(rps)
		}
		c.limiter = rate.NewLimiter(limit, 1)
	}
}

// Client calls the skip-trace API.
type Client struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	warnOnce sync.Once
}

// NewClient creates a skip-trace client. An empty apiKey yields a client whose
// lookups return nil without touching the network.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	c.retry.AttemptTimeout = defaultTimeout
	c.retry.OnRetry = resilience.RetryLogger("skiptrace", "lookup")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// LookupPerson enriches in. It returns nil with no error when the client is
// not configured or the provider has no match. Transport failures are retried
// and surface as an error only once retries are exhausted.
func (c *Client) LookupPerson(ctx context.Context, in model.PersonInput) (*model.PersonEnrichmentResult, error) {
	if !c.Configured() {
		c.warnOnce.Do(func() {
			zap.L().Warn("skiptrace: returning no data", zap.Error(ErrNotConfigured))
		})
		return nil, nil
	}

	payload, err := json.Marshal(newRequest(in))
	if err != nil {
		return nil, eris.Wrap(err, "skiptrace: marshal request")
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return nil, eris.Wrap(err, "skiptrace: lookup")
	}

	res := parseResponse(body)
	if res == nil {
		zap.L().Debug("skiptrace: no match", zap.String("last_name", in.LastName))
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "skiptrace: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/property/skip-trace", bytes.NewReader(payload))
	if err != nil {
		return nil, resilience.Permanent(eris.Wrap(err, "skiptrace: create request"))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "skiptrace: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "skiptrace: read response body")
	}
	if len(body) > maxResponseBytes {
		return nil, resilience.Permanent(eris.Errorf("skiptrace: response exceeds %d bytes", maxResponseBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewTransientError(
			eris.Errorf("skiptrace: unexpected status %d", resp.StatusCode), resp.StatusCode)
	}
	return body, nil
}

type requestName struct {
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
}

type requestAddress struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

type requestItem struct {
	PropertyAddress requestAddress `json:"propertyAddress"`
	Name            *requestName   `json:"name,omitempty"`
}

type request struct {
	Requests []requestItem `json:"requests"`
}

func newRequest(in model.PersonInput) request {
	item := requestItem{PropertyAddress: requestAddress{
		Street: in.Address,
		City:   in.City,
		State:  in.State,
		Zip:    in.Zip,
	}}
	if in.FirstName != "" || in.LastName != "" {
		item.Name = &requestName{First: in.FirstName, Last: in.LastName}
	}
	return request{Requests: []requestItem{item}}
}
