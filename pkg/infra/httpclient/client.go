package httpclient

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/types"
)

// Client is a small GET-only HTTP client shared by the hub-style source
// adapters. It retries 429 and 5xx responses with exponential backoff and
// jitter, and sets a stable User-Agent.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxRetries  int
	baseBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxRetries bounds the retry attempts after the initial request.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the first retry delay; later retries double it.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.baseBackoff = d
	}
}

// New creates a Client with a 20s request timeout and 3 retries.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		userAgent:   "lookout/" + types.Version,
		maxRetries:  3,
		baseBackoff: 800 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response holds a fully read HTTP response.
type Response struct {
	StatusCode int
	URL        string
	Header     http.Header
	Body       []byte
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Get fetches rawURL with the given extra headers. Responses with status
// >= 400 after retries are returned as errors.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff << (attempt - 1)
			jitter := time.Duration(rand.Int63n(int64(backoff)/4 + 1))
			select {
			case <-ctx.Done():
				return nil, goerr.Wrap(ctx.Err(), "request cancelled", goerr.V("url", rawURL))
			case <-time.After(backoff + jitter):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build request", goerr.V("url", rawURL))
		}
		req.Header.Set("User-Agent", c.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = goerr.Wrap(err, "request failed", goerr.T(types.TagSource), goerr.V("url", rawURL))
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = goerr.Wrap(err, "failed to read response body",
				goerr.T(types.TagSource), goerr.V("url", rawURL))
			continue
		}

		if retryable(resp.StatusCode) {
			lastErr = goerr.New("upstream returned retryable status",
				goerr.T(types.TagSource),
				goerr.V("url", rawURL), goerr.V("status", resp.StatusCode))
			continue
		}

		if resp.StatusCode >= 400 {
			return nil, goerr.New("upstream returned error status",
				goerr.T(types.TagSource),
				goerr.V("url", rawURL),
				goerr.V("status", resp.StatusCode),
				goerr.V("body_prefix", truncateBody(body)))
		}

		return &Response{
			StatusCode: resp.StatusCode,
			URL:        resp.Request.URL.String(),
			Header:     resp.Header,
			Body:       body,
		}, nil
	}

	return nil, lastErr
}

func truncateBody(body []byte) string {
	const limit = 400
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}

// ParseLinkHeader parses an RFC5988 Link header into a rel -> URL map.
func ParseLinkHeader(value string) map[string]string {
	result := map[string]string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "<") {
			continue
		}
		end := strings.Index(part, ">")
		if end < 0 {
			continue
		}
		target := part[1:end]
		var rel string
		for _, param := range strings.Split(part[end+1:], ";") {
			param = strings.TrimSpace(param)
			if v, ok := strings.CutPrefix(param, "rel="); ok {
				rel = strings.Trim(v, `"`)
			}
		}
		if rel != "" {
			result[rel] = target
		}
	}
	return result
}

// NextLink returns the rel="next" URL from a response's Link header, or ""
// when pagination is exhausted.
func NextLink(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}
	return ParseLinkHeader(link)["next"]
}

// WithQueryParams returns rawURL with params merged into its query string.
func WithQueryParams(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse URL", goerr.V("url", rawURL))
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
