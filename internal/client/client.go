// Package client provides HTTP clients for the observability backends.
// A shared base client handles retries, rate limiting, and translation
// of transport failures into the structured error taxonomy; the
// per-datasource clients layer endpoint knowledge on top.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
)

// Options configures a base client.
type Options struct {
	// Name identifies the datasource in logs.
	Name string
	// BaseURL is the normalized backend URL, no trailing slash.
	BaseURL string
	// Timeout bounds each request end to end.
	Timeout time.Duration
	// Headers are sent on every request (authorization, accept).
	Headers map[string]string
	// VerifySSL disables TLS verification when false.
	VerifySSL bool
}

// RequestRecorder receives per-request outcome observations.
type RequestRecorder interface {
	RecordRequest(datasource string, success bool, latency time.Duration, statusCode int)
}

// Client is the shared HTTP layer beneath the datasource clients.
type Client struct {
	httpClient  *http.Client
	opts        Options
	retry       config.ClientConfig
	logger      *zap.Logger
	rateLimiter *rate.Limiter
	recorder    RequestRecorder
}

// SetMetrics attaches a request recorder. Safe to leave unset.
func (c *Client) SetMetrics(r RequestRecorder) {
	c.recorder = r
}

// New creates a base client for one backend.
func New(opts Options, retry config.ClientConfig, logger *zap.Logger) *Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if !opts.VerifySSL {
		tlsConfig.InsecureSkipVerify = true
		logger.Warn("TLS certificate verification is disabled",
			zap.String("datasource", opts.Name),
			zap.String("base_url", opts.BaseURL),
		)
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     tlsConfig,
	}

	var rateLimiter *rate.Limiter
	if retry.EnableRateLimit {
		rateLimiter = rate.NewLimiter(rate.Limit(retry.RateLimit), retry.RateLimitBurst)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts:        opts,
		retry:       retry,
		logger:      logger,
		rateLimiter: rateLimiter,
	}
}

// Request is a backend HTTP request.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Body    []byte
	Headers map[string]string
}

// Response is a backend HTTP response with the body fully read.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Do executes the request with retry on transient failures. Client
// errors (4xx) return immediately; 429 and 5xx are retried with
// exponential backoff and translated to taxonomy errors on exhaustion.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := c.doWithRetry(ctx, req)

	if c.recorder != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		} else if e, ok := errors.As(err); ok {
			if sc, ok := e.Details["status_code"].(int); ok {
				status = sc
			}
		}
		c.recorder.RecordRequest(c.opts.Name, err == nil, time.Since(start), status)
	}

	return resp, err
}

func (c *Client) doWithRetry(ctx context.Context, req *Request) (*Response, error) {
	var lastStatus int
	var lastBody []byte
	var lastErr error

	requestURL := c.buildURL(req)

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			shift := min(attempt-1, 30)
			waitTime := c.retry.RetryWaitMin * time.Duration(1<<shift)
			if waitTime > c.retry.RetryWaitMax {
				waitTime = c.retry.RetryWaitMax
			}

			c.logger.Debug("Retrying request",
				zap.String("datasource", c.opts.Name),
				zap.Int("attempt", attempt),
				zap.Duration("wait", waitTime),
			)

			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return nil, c.translateNetworkError(ctx.Err(), requestURL)
			}
		}

		resp, err := c.doRequest(ctx, req, requestURL)
		if err != nil {
			if isTimeout(err) {
				return nil, errors.Newf(errors.CodeUpstreamTimeout,
					"request timed out after %ds", int(c.opts.Timeout.Seconds())).
					WithDetails(map[string]interface{}{
						"timeout_seconds": int(c.opts.Timeout.Seconds()),
						"error":           err.Error(),
					})
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastStatus = resp.StatusCode
			lastBody = resp.Body
			lastErr = nil
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			lastStatus = resp.StatusCode
			lastBody = resp.Body
			lastErr = nil
			continue
		case resp.StatusCode >= 400:
			return nil, errors.Newf(errors.CodeUpstreamClientError,
				"upstream client error: %d", resp.StatusCode).
				WithDetails(map[string]interface{}{
					"status_code": resp.StatusCode,
					"response":    string(resp.Body),
					"url":         requestURL,
				})
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, c.translateNetworkError(lastErr, requestURL)
	}
	if lastStatus == http.StatusTooManyRequests {
		return nil, errors.Newf(errors.CodeRateLimited,
			"upstream rate limited after %d retries", c.retry.MaxRetries).
			WithDetails(map[string]interface{}{
				"status_code": lastStatus,
				"url":         requestURL,
			})
	}
	return nil, errors.Newf(errors.CodeUpstreamServerError,
		"upstream server error after %d retries", c.retry.MaxRetries).
		WithDetails(map[string]interface{}{
			"status_code": lastStatus,
			"response":    string(lastBody),
			"url":         requestURL,
		})
}

func (c *Client) buildURL(req *Request) string {
	requestURL := c.opts.BaseURL + req.Path
	if len(req.Query) > 0 {
		params := url.Values{}
		for k, v := range req.Query {
			params.Add(k, v)
		}
		requestURL += "?" + params.Encode()
	}
	return requestURL
}

func (c *Client) doRequest(ctx context.Context, req *Request, requestURL string) (*Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "overwatch-mcp/"+Version)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range c.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Debug("HTTP request failed",
			zap.String("datasource", c.opts.Name),
			zap.String("method", req.Method),
			zap.String("url", requestURL),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("HTTP request completed",
		zap.String("datasource", c.opts.Name),
		zap.String("method", req.Method),
		zap.String("url", requestURL),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", duration),
		zap.Int("response_size", len(body)),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
	}, nil
}

func (c *Client) translateNetworkError(err error, requestURL string) error {
	if isTimeout(err) {
		return errors.Newf(errors.CodeUpstreamTimeout,
			"request timed out after %ds", int(c.opts.Timeout.Seconds())).
			WithDetails(map[string]interface{}{
				"timeout_seconds": int(c.opts.Timeout.Seconds()),
				"error":           err.Error(),
			})
	}
	return errors.Newf(errors.CodeUpstreamServerError,
		"network error after %d retries: %s", c.retry.MaxRetries, err.Error()).
		WithDetails(map[string]interface{}{
			"error": err.Error(),
			"url":   requestURL,
		})
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "Client.Timeout exceeded")
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

// normalizeBaseURL strips a trailing slash and any of the given API
// suffixes, since request paths already carry the API prefix. Suffixes
// are tried in order and only the first match is removed.
func normalizeBaseURL(raw string, suffixes ...string) string {
	normalized := strings.TrimRight(raw, "/")
	for _, suffix := range suffixes {
		if strings.HasSuffix(normalized, suffix) {
			return normalized[:len(normalized)-len(suffix)]
		}
	}
	return normalized
}
