// Package apiclient is the rate-limited, bearer-authenticated HTTP client the
// platform adapters share. It maps upstream failures onto apperr kinds so
// the sync orchestrator can tell retryable from permanent problems.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"retention_backend/platform/apperr"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 32 << 20

// Client performs authenticated requests against one platform API.
type Client struct {
	platform string
	http     *http.Client
	limiter  *rate.Limiter
	headers  map[string]string
}

// New creates a client allowing requestsPerSecond requests with a burst of one.
func New(platform string, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		platform: platform,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, 1),
		headers: make(map[string]string),
	}
}

// WithHTTPClient replaces the underlying transport client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// WithHeader sets a header sent on every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.headers[key] = value
	return c
}

// Do sends req with the access token and returns the response body of a 2xx
// reply. Other replies become typed errors.
func (c *Client) Do(ctx context.Context, accessToken string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	authCtx := context.WithValue(ctx, oauth2.HTTPClient, c.http)
	client := oauth2.NewClient(authCtx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.http.Timeout

	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Transient(c.platform+" request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Transient(c.platform+" read body", err)
	}

	if err := c.classify(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) classify(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	cause := fmt.Errorf("%s returned %d: %s", c.platform, status, truncate(body, 256))
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return apperr.Transient("upstream unavailable", cause)
	case status == http.StatusUnauthorized:
		return apperr.Wrap(apperr.KindUnauthorized, "access token rejected", cause)
	case status == http.StatusForbidden:
		return apperr.Wrap(apperr.KindForbidden, "access denied", cause)
	default:
		return apperr.PermanentInput("request rejected", cause)
	}
}

// IsAccountWide reports whether err means no period for this account can
// succeed until someone intervenes.
func IsAccountWide(err error) bool {
	switch apperr.GetKind(err) {
	case apperr.KindUnauthorized, apperr.KindForbidden:
		return true
	}
	return errors.Is(err, errNoToken)
}

var errNoToken = errors.New("integration has no access token")

// RequireToken fails fast when an integration was saved without a token.
func RequireToken(token string) error {
	if token == "" {
		return apperr.Wrap(apperr.KindUnauthorized, "missing access token", errNoToken)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
