// internal/common/http/client.go
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"signal-workflows/internal/common/logger"
)

// maxErrorBody caps how much of a failed response is kept on a StatusError.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	// Transport defaults to http.DefaultTransport. It is always wrapped for tracing.
	Transport http.RoundTripper
	Logger    logger.Logger
}

// Client sends requests with retries on transport errors, 429 and 5xx.
type Client struct {
	retry  *retryablehttp.Client
	logger logger.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(opts.Transport),
	}
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = opts.BaseDelay
	rc.RetryWaitMax = opts.BaseDelay << 6
	rc.Logger = leveledLogger{opts.Logger}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt == 0 {
			return
		}
		opts.Logger.Warn("Retrying HTTP request", map[string]interface{}{
			"method":  req.Method,
			"url":     req.URL.Redacted(),
			"attempt": attempt,
		})
	}

	return &Client{retry: rc, logger: opts.Logger}
}

// StandardClient exposes the retrying client as a plain *http.Client for SDKs that take one.
// Non-2xx responses are passed through untouched.
func (c *Client) StandardClient() *http.Client {
	return c.retry.StandardClient()
}

// Do sends req with retries. Non-2xx responses that are not retried, or still fail on the last
// attempt, are returned as *StatusError with the body drained.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("prepare request: %w", err)
	}
	return c.send(rreq)
}

func (c *Client) send(req *retryablehttp.Request) (*http.Response, error) {
	resp, err := c.retry.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, readStatusError(resp)
	}
	return resp, nil
}

// DoJSON sends body (if any) as JSON and decodes a 2xx response into out (if non-nil).
func (c *Client) DoJSON(ctx context.Context, method, url string, headers http.Header, body, out interface{}) error {
	var raw interface{}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		raw = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Header: resp.Header, Body: string(data)}
}

// leveledLogger routes retryablehttp's own logging into the service logger.
type leveledLogger struct {
	log logger.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error(msg, fields(kv)) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn(msg, fields(kv)) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug(msg, fields(kv)) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debug(msg, fields(kv)) }

func fields(kv []interface{}) map[string]interface{} {
	if len(kv) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
