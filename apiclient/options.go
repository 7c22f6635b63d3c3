package apiclient

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-blog-client/internal/config"
)

// SessionInvalidated is emitted when the session can no longer be recovered:
// the refresh endpoint rejected the refresh token, or a request failed with 401
// after being replayed with a fresh token. Stored credentials are already cleared.
type SessionInvalidated struct {
	Cause error
	At    time.Time
}

type SessionInvalidatedHandler func(SessionInvalidated)

// Endpoints are the auth routes, relative to the base URL.
type Endpoints struct {
	Login   string
	Refresh string
	Logout  string
}

var DefaultEndpoints = Endpoints{
	Login:   "/auth/login",
	Refresh: "/auth/refresh-token",
	Logout:  "/auth/logout",
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// WithRefreshTimeout bounds each call to the refresh endpoint.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// WithQueueTimeout bounds how long a request waits for another caller's refresh,
// including its replay.
func WithQueueTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.queueTimeout = d
	}
}

func WithTokenExpiry(accessTTL, refreshTTL time.Duration) Option {
	return func(c *Client) {
		c.accessTTL = accessTTL
		c.refreshTTL = refreshTTL
	}
}

// WithRefreshCookie names the cookie that carries the refresh token to the refresh endpoint.
// It takes precedence over the name reported by a cookie backed store.
func WithRefreshCookie(name string) Option {
	return func(c *Client) {
		c.refreshCookie = name
		c.cookieSet = true
	}
}

// WithSessionInvalidatedHandler registers the single handler notified on terminal
// auth failures. A later call replaces the earlier handler.
func WithSessionInvalidatedHandler(h SessionInvalidatedHandler) Option {
	return func(c *Client) {
		c.onInvalidated = h
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.header.Set("User-Agent", ua)
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func WithRequestIDFunc(f func() string) Option {
	return func(c *Client) {
		c.requestIDFunc = f
	}
}

// FromConfig maps the application configuration onto client options.
func FromConfig(cfg config.Config) []Option {
	return []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.GetHTTPTimeout()}),
		WithRefreshTimeout(cfg.GetRefreshTimeout()),
		WithQueueTimeout(cfg.GetQueueTimeout()),
		WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry()),
		WithRefreshCookie(cfg.GetRefreshTokenCookie()),
		WithUserAgent(cfg.GetUserAgent()),
		WithEndpoints(Endpoints{
			Login:   cfg.GetLoginPath(),
			Refresh: cfg.GetRefreshPath(),
			Logout:  cfg.GetLogoutPath(),
		}),
	}
}
