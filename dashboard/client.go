// Package dashboard is a small client for the Meraki Dashboard API endpoints
// needed to discover networks and download their floor plan images.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Dashboard API v1 endpoint
	DefaultBaseURL = "https://api.meraki.com/api/v1"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per request
	DefaultMaxRetries = 3

	// DefaultRequestsPerSecond stays under the per-organization API limit
	DefaultRequestsPerSecond = 5

	// APIKeyHeader carries the dashboard API key
	APIKeyHeader = "X-Cisco-Meraki-API-Key"

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits a response body to 50 MB
	maxResponseBytes = 50 << 20
)

// StatusError is returned for a non-2xx response
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.URL, e.Code)
}

// Temporary reports whether retrying may succeed
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func isPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !se.Temporary()
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API endpoint
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets the number of attempts per request
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit caps the request rate; zero or less disables the limit
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// Client talks to the Dashboard API. Every request goes through a rate
// limiter and a circuit breaker; transient failures are retried.
type Client struct {
	apiKey      string
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a client authenticating with apiKey
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "meraki-dashboard",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a 4xx is the caller's problem, not an unhealthy upstream
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return c
}

// Organizations lists the organizations the API key can access
func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	if err := c.getJSON(ctx, "/organizations", &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// OrganizationByName returns the organization with exactly the given name
func (c *Client) OrganizationByName(ctx context.Context, name string) (Organization, error) {
	orgs, err := c.Organizations(ctx)
	if err != nil {
		return Organization{}, err
	}
	for _, o := range orgs {
		if o.Name == name {
			return o, nil
		}
	}
	return Organization{}, fmt.Errorf("no organization found matching name %q", name)
}

// Networks lists the networks of an organization
func (c *Client) Networks(ctx context.Context, orgID string) ([]Network, error) {
	var nets []Network
	if err := c.getJSON(ctx, "/organizations/"+url.PathEscape(orgID)+"/networks", &nets); err != nil {
		return nil, err
	}
	return nets, nil
}

// FloorPlans lists the floor plans of a network
func (c *Client) FloorPlans(ctx context.Context, networkID string) ([]FloorPlan, error) {
	var plans []FloorPlan
	if err := c.getJSON(ctx, "/networks/"+url.PathEscape(networkID)+"/floorPlans", &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// Download copies the image at imageURL to w. Image URLs are pre-signed, so
// the API key is not sent.
func (c *Client) Download(ctx context.Context, imageURL string, w io.Writer) error {
	if imageURL == "" {
		return fmt.Errorf("download: image URL is empty")
	}
	body, err := c.get(ctx, imageURL, false)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("download: writing image: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.get(ctx, c.baseURL+path, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// get runs one logical request through the limiter and breaker
func (c *Client) get(ctx context.Context, rawURL string, auth bool) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		return c.fetchWithRetry(ctx, rawURL, auth)
	})
}

func (c *Client) fetchWithRetry(ctx context.Context, rawURL string, auth bool) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := c.doFetch(ctx, rawURL, auth)
		if err == nil {
			return body, nil
		}
		if isPermanent(err) {
			return nil, err
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("Dashboard request failed")
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", c.maxRetries, lastErr)
}

// doFetch performs a single HTTP GET and returns the response body bytes
func (c *Client) doFetch(ctx context.Context, rawURL string, auth bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if auth {
		req.Header.Set(APIKeyHeader, c.apiKey)
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}
	return body, nil
}
