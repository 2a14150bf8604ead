// Package fetcher provides the rate-limited HTTP client shared by all
// source adapters. It performs exactly one attempt per call and classifies
// failures into the closed taxonomy; retry policy lives with the pipeline
// controller, not here.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/firmenradar/internal/resilience"
)

// Options configures the HTTP fetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	RateLimiters map[string]*rate.Limiter
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Client performs rate-limited HTTP requests with failure classification.
type Client struct {
	httpClient       *http.Client
	opts             Options
	limiters         map[string]*rate.Limiter
	adaptiveLimiters map[string]*AdaptiveLimiter
}

// DefaultRateLimiters returns conservative per-host limits for the public
// registers. These sites throttle aggressively.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"www.handelsregister.de":      rate.NewLimiter(2, 2),
		"www.northdata.de":            rate.NewLimiter(2, 2),
		"www.linkedin.com":            rate.NewLimiter(1, 1),
		"www.unternehmensregister.de": rate.NewLimiter(2, 2),
	}
}

// New creates a Client with the given options.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "firmenradar/1.0"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}

	adaptive := make(map[string]*AdaptiveLimiter)
	for host := range limiters {
		adaptive[host] = NewAdaptiveLimiter(limiters[host].Limit(), limiters[host].Burst())
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:             opts,
		limiters:         limiters,
		adaptiveLimiters: adaptive,
	}
}

func (c *Client) adaptiveLimiterFor(rawURL string) *AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.adaptiveLimiters[u.Host]
}

func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(10, 10)
	}
	if lim, ok := c.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(10, 10)
}

// Request describes one fetch. Cookies are attached verbatim, letting
// adapters replay a session blob without the fetcher knowing its shape.
type Request struct {
	Method  string
	URL     string
	Body    io.Reader
	Headers map[string]string
	Cookies []*http.Cookie
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
}

// Do performs one classified request. Failures map onto the taxonomy:
// 429 -> RateLimited, 401/403 -> AuthExpired, 404/410 -> RecordNotFound,
// 5xx -> TransientNetwork, deadline -> Timeout.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	adaptive := c.adaptiveLimiterFor(req.URL)
	if adaptive != nil {
		if err := adaptive.Wait(ctx); err != nil {
			return nil, resilience.WrapFailure(resilience.KindTimeout, err, "rate limiter wait")
		}
	} else {
		if err := c.limiterFor(req.URL).Wait(ctx); err != nil {
			return nil, resilience.WrapFailure(resilience.KindTimeout, err, "rate limiter wait")
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindMalformedResponse, err, "create request")
	}
	httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for _, ck := range req.Cookies {
		httpReq.AddCookie(ck)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := resilience.KindOf(err)
		if kind == resilience.KindMalformedResponse {
			kind = resilience.KindTransientNetwork
		}
		return nil, resilience.WrapFailure(kind, err, "http request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.WrapFailure(resilience.KindTransientNetwork, err, "read body")
	}

	if kind := resilience.KindForHTTPStatus(resp.StatusCode); kind != "" {
		if kind == resilience.KindRateLimited && adaptive != nil {
			adaptive.OnRateLimit()
		}
		return nil, resilience.NewFailure(kind,
			"http "+resp.Status+" from "+req.URL)
	}

	if adaptive != nil {
		adaptive.OnSuccess()
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   finalURL,
	}, nil
}

// Get fetches the URL with optional cookies.
func (c *Client) Get(ctx context.Context, rawURL string, cookies ...*http.Cookie) (*Response, error) {
	return c.Do(ctx, Request{URL: rawURL, Cookies: cookies})
}

// PostForm posts URL-encoded form values.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	return c.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    rawURL,
		Body:   strings.NewReader(form.Encode()),
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
	})
}

// SaveArtifact writes raw payload bytes under dir and returns the path.
// The returned path is an opaque reference to everything above the fetcher.
func SaveArtifact(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "fetcher: create artifact dir %s", dir)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "fetcher: write artifact %s", path)
	}
	return path, nil
}
