package httpclient

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

type Options struct {
	// Timeout bounds every call, including reading the response body.
	Timeout time.Duration
}

// Client issues exactly one attempt per call. Callers decide what a
// failure means; nothing is retried here.
type Client struct {
	client  *http.Client
	timeout time.Duration
}

func New(opts Options) *Client {
	return &Client{
		client:  &http.Client{},
		timeout: opts.Timeout,
	}
}

// Do sends req bounded by the client timeout. The returned cancel func must
// be called once the response body has been consumed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}

func (c *Client) Get(ctx context.Context, url string) (*http.Response, context.CancelFunc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.Do(ctx, req)
}

func (c *Client) Post(ctx context.Context, url string, contentType string, body []byte) (*http.Response, context.CancelFunc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, context.CancelFunc, error) {
	return c.Post(ctx, url, "application/json", body)
}

// IsTimeout reports whether err came from an exceeded deadline rather than
// a refused connection or a cancelled caller.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
