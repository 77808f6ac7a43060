// Package probe issues the boutique journey's HTTP requests and records their
// outcomes into the run's metrics.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/boutiqueload/internal/metrics"
)

// Defaults for Config.
const (
	DefaultTimeout   = 60 * time.Second
	DefaultMaxConns  = 100
	DefaultUserAgent = "boutiqueload/1.0"
	maxBodyBytes     = 10 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout per request
	Timeout time.Duration
	// Idle connections kept per host
	MaxConns int
	// RateLimit caps requests per second across all VUs (0 = unlimited)
	RateLimit float64
	Burst     int
	UserAgent string
}

// Response is the outcome of one request. Status is 0 when no response
// arrived, in which case Err describes the transport failure.
type Response struct {
	Step     string
	URL      string
	Status   int
	Body     []byte
	Duration time.Duration
	Err      error
}

// Failed reports whether the request counts against http_req_failed.
func (r *Response) Failed() bool {
	return r.Err != nil || r.Status < 200 || r.Status >= 400
}

// ErrorClass groups transport errors for reporting.
func (r *Response) ErrorClass() string {
	if r.Err == nil {
		return ""
	}
	return simplifyError(r.Err)
}

// Client issues GET requests against the frontend.
type Client struct {
	http    *http.Client
	baseURL string
	agent   string
	limiter *rate.Limiter
	logger  *zap.Logger
	prom    *metrics.PromCollector

	reqs     *metrics.Counter
	duration *metrics.Trend
	failed   *metrics.Rate
	received *metrics.Counter
}

// NewClient creates a client recording into reg. prom may be nil.
func NewClient(config Config, reg *metrics.Registry, prom *metrics.PromCollector, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxConns == 0 {
		config.MaxConns = DefaultMaxConns
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Client{
		http: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        config.MaxConns * 2,
				MaxIdleConnsPerHost: config.MaxConns * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		agent:    config.UserAgent,
		limiter:  limiter,
		logger:   logger,
		prom:     prom,
		reqs:     reg.Counter(metrics.HTTPReqs),
		duration: reg.Trend(metrics.HTTPReqDuration),
		failed:   reg.Rate(metrics.HTTPReqFailed),
		received: reg.Counter(metrics.DataReceived),
	}
}

// BaseURL returns the target the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// Get requests path and records the outcome. Transport failures are reported
// in the Response, not as an error. An error is returned only when ctx ends
// before the request completes, and nothing is recorded in that case.
func (c *Client) Get(ctx context.Context, step, path string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("probe: rate limit wait: %w", err)
		}
	}

	url := c.baseURL + path
	resp := &Response{Step: step, URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		resp.Err = err
		c.record(resp)
		return resp, nil
	}
	req.Header.Set("User-Agent", c.agent)

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		resp.Duration = time.Since(start)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp.Err = err
		c.record(resp)
		return resp, nil
	}

	body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	_ = httpResp.Body.Close()
	resp.Duration = time.Since(start)
	if readErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	resp.Status = httpResp.StatusCode
	resp.Body = body
	if readErr != nil {
		resp.Err = readErr
	}

	c.record(resp)
	return resp, nil
}

func (c *Client) record(resp *Response) {
	c.reqs.Inc()
	c.failed.Add(resp.Failed())
	c.received.Add(float64(len(resp.Body)))
	if resp.Status != 0 {
		c.duration.AddDuration(resp.Duration)
	}
	c.prom.RecordRequest(resp.Step, resp.Status, resp.Duration)

	if resp.Err != nil {
		c.logger.Debug("request failed",
			zap.String("step", resp.Step),
			zap.String("url", resp.URL),
			zap.String("error", resp.ErrorClass()))
	}
}

// simplifyError simplifies error messages for grouping.
func simplifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Client.Timeout exceeded"), strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection refused"
	case strings.Contains(msg, "connection reset"):
		return "connection reset"
	case strings.Contains(msg, "no such host"):
		return "dns error"
	}
	if len(msg) > 50 {
		return msg[:50] + "..."
	}
	return msg
}
