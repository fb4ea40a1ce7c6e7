package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultUserAgent is a stable, non-browser User-Agent for upstreams that
	// don't require a specific one.
	DefaultUserAgent = "autostream/1.0"

	maxRedirects = 3
)

var (
	// ErrTimeout is returned when the request deadline was exceeded.
	ErrTimeout = errors.New("request timed out")
	// ErrNetwork is returned for connection-level failures.
	ErrNetwork = errors.New("network error")
)

// StatusError is returned when the upstream responded with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad HTTP response status: %v", e.Code)
}

type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
}

var DefaultClientOpts = ClientOptions{
	Timeout:   5 * time.Second,
	UserAgent: DefaultUserAgent,
}

// Client is the single abstraction all outbound HTTP calls go through.
// It enforces a deadline, follows up to 3 redirects and maps failures to a
// small set of typed errors. Retries are a policy of callers, not of this
// layer.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
}

func NewClient(opts ClientOptions, logger *zap.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultClientOpts.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultClientOpts.UserAgent
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		logger:    logger,
	}
}

// NewClientWithHTTPClient wraps an existing *http.Client, for callers that
// need a custom transport (for example a SOCKS5 proxy).
func NewClientWithHTTPClient(httpClient *http.Client, userAgent string, logger *zap.Logger) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Do sends a request and returns the response body and headers.
// A non-2xx status leads to a *StatusError, with the body still returned so
// that callers can extract upstream error messages.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("Couldn't create %v request: %v", method, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, classifyErr(ctx, err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.Header, classifyErr(ctx, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return resBody, res.Header, &StatusError{Code: res.StatusCode}
	}
	return resBody, res.Header, nil
}

// Head issues a HEAD request following redirects and returns the final URL
// after all redirects were applied.
func (c *Client) Head(ctx context.Context, url string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return "", fmt.Errorf("Couldn't create HEAD request: %v", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyErr(ctx, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", &StatusError{Code: res.StatusCode}
	}
	return res.Request.URL.String(), nil
}

// WarmRange issues a tiny ranged GET to warm a CDN edge. Best-effort: all
// errors are swallowed, only logged with DEBUG level.
func (c *Client) WarmRange(ctx context.Context, url string) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Range", "bytes=0-0")
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("CDN warm request failed", zap.Error(err))
		return
	}
	io.Copy(io.Discard, io.LimitReader(res.Body, 1024))
	res.Body.Close()
}

func classifyErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
