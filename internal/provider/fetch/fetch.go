// Package fetch is the HTTP client shared by image providers.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blacktop/autopost/internal/logutil"
	"github.com/hashicorp/go-retryablehttp"
)

// Defaults applied to zero Options fields.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultRetries   = 3
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// DefaultMaxBodyBytes caps a response body. Larger bodies are an error.
	DefaultMaxBodyBytes = 64 << 20
)

// Options configures a Client. Zero values fall back to the defaults.
type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	// RetryWaitMin shortens backoff in tests.
	RetryWaitMin time.Duration
	MaxBodyBytes int64
}

// Client performs GET requests with bounded retries on transient failures.
type Client struct {
	http      *retryablehttp.Client
	userAgent string
	maxBody   int64
}

// New returns a Client using opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = logutil.Leveled()
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
		rc.RetryWaitMax = 4 * opts.RetryWaitMin
	}

	return &Client{http: rc, userAgent: opts.UserAgent, maxBody: opts.MaxBodyBytes}
}

// Bytes downloads url and returns the response body. A body over the
// client's size cap is an error rather than a truncated result.
func (c *Client) Bytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("read %s: body exceeds %d bytes", url, c.maxBody)
	}
	logutil.Debugf("fetched %s (%d bytes)", url, len(data))
	return data, nil
}

// JSON downloads url and decodes the body into v.
func (c *Client) JSON(ctx context.Context, url string, headers map[string]string, v any) error {
	h := map[string]string{"Accept": "application/json"}
	for k, val := range headers {
		h[k] = val
	}
	data, err := c.Bytes(ctx, url, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
