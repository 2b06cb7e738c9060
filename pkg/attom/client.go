// Package attom provides a client for the ATTOM property data API.
package attom

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.gateway.attomdata.com/propertyapi/v1.0.0"

	// maxResponseBytes caps a single response body.
	maxResponseBytes = 4 << 20
)

// ErrNotFound is returned when ATTOM has no property for the address.
var ErrNotFound = eris.New("attom: property not found")

// Client defines the ATTOM operations used for parcel fallback.
type Client interface {
	// DetailMortgageOwner looks up a property by its one-line address split
	// into street (address1) and city/state/zip (address2).
	DetailMortgageOwner(ctx context.Context, address1, address2 string) (*Property, error)
}

// Response is the ATTOM property envelope.
type Response struct {
	Status   Status     `json:"status"`
	Property []Property `json:"property"`
}

// Status reports the API outcome.
type Status struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Total int    `json:"total"`
}

// Property is one ATTOM property record.
type Property struct {
	Identifier struct {
		AttomID int64  `json:"attomId"`
		APN     string `json:"apn"`
	} `json:"identifier"`
	Address struct {
		OneLine string `json:"oneLine"`
		Line1   string `json:"line1"`
		Line2   string `json:"line2"`
	} `json:"address"`
	Summary struct {
		AbsenteeInd string `json:"absenteeInd"`
	} `json:"summary"`
	Owner struct {
		Owner1 struct {
			FullName string `json:"fullName"`
		} `json:"owner1"`
		MailingAddressOneLine string `json:"mailingAddressOneLine"`
	} `json:"owner"`
	Assessment struct {
		Assessed struct {
			AssdTtlValue float64 `json:"assdTtlValue"`
		} `json:"assessed"`
	} `json:"assessment"`
	Sale struct {
		SaleTransDate string `json:"saleTransDate"`
		Amount        struct {
			SaleAmt float64 `json:"saleAmt"`
		} `json:"amount"`
	} `json:"sale"`
	Mortgage struct {
		FirstConcurrent struct {
			LenderLastName string `json:"lenderLastName"`
		} `json:"FirstConcurrent"`
	} `json:"mortgage"`

	// Raw holds the undecoded record.
	Raw json.RawMessage `json:"-"`
}

// Option configures the ATTOM client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an ATTOM client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) DetailMortgageOwner(ctx context.Context, address1, address2 string) (*Property, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "attom: rate limiter")
	}

	q := url.Values{}
	q.Set("address1", address1)
	q.Set("address2", address2)
	reqURL := c.baseURL + "/property/detailmortgageowner?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "attom: create request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "attom: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "attom: read response body")
	}
	if len(body) > maxResponseBytes {
		return nil, eris.Errorf("attom: response exceeds %d bytes", maxResponseBytes)
	}

	// ATTOM answers a miss with 400 and status.msg "SuccessWithoutResult".
	var env struct {
		Status   Status            `json:"status"`
		Property []json.RawMessage `json:"property"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("attom: unexpected status %d", resp.StatusCode)
		}
		return nil, eris.Wrap(err, "attom: unmarshal response")
	}
	if env.Status.Msg == "SuccessWithoutResult" || (resp.StatusCode == http.StatusOK && len(env.Property) == 0) {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("attom: unexpected status %d: %s", resp.StatusCode, env.Status.Msg)
	}

	var p Property
	if err := json.Unmarshal(env.Property[0], &p); err != nil {
		return nil, eris.Wrap(err, "attom: unmarshal property")
	}
	p.Raw = env.Property[0]
	return &p, nil
}
