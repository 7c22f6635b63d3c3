// Package apiclient is the authenticated HTTP client for the blog REST backend.
//
// Every request carries the stored access token as a bearer credential. A 401
// triggers at most one refresh call per client at a time; requests that fail while
// a refresh is in flight wait for it and are replayed, in arrival order, with the
// new token. A request is only ever retried once.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-blog-client/credentials"
)

type Client struct {
	baseURL        *url.URL
	http           *http.Client
	store          credentials.Store
	log            zerolog.Logger
	endpoints      Endpoints
	header         http.Header
	refreshCookie  string
	cookieSet      bool
	accessTTL      time.Duration
	refreshTTL     time.Duration
	refreshTimeout time.Duration
	queueTimeout   time.Duration
	nowFunc        func() time.Time
	requestIDFunc  func() string
	onInvalidated  SessionInvalidatedHandler

	refresh refreshState
}

// jarStore is implemented by stores whose cookies should travel with requests.
type jarStore interface {
	Jar() http.CookieJar
	RefreshCookieName() string
}

// New creates a client for the backend rooted at baseURL, e.g. "https://api.example.com/api/v1".
func New(baseURL string, store credentials.Store, options ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("[apiclient New] invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[apiclient New] base URL %q must be absolute", baseURL)
	}
	if store == nil {
		return nil, errors.New("[apiclient New] credentials store is required")
	}

	c := &Client{
		baseURL:   u,
		store:     store,
		log:       log.Logger,
		endpoints: DefaultEndpoints,
		header: http.Header{
			"Accept":     {"application/json"},
			"User-Agent": {"go-blog-client"},
		},
		refreshCookie: credentials.DefaultRefreshCookie,
	}
	for _, opt := range options {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if js, ok := store.(jarStore); ok {
		if c.http.Jar == nil {
			hc := *c.http
			hc.Jar = js.Jar()
			c.http = &hc
		}
		if !c.cookieSet {
			c.refreshCookie = js.RefreshCookieName()
		}
	}
	if c.accessTTL == 0 {
		c.accessTTL = 24 * time.Hour
	}
	if c.refreshTTL == 0 {
		c.refreshTTL = 7 * 24 * time.Hour
	}
	if c.refreshTimeout == 0 {
		c.refreshTimeout = 10 * time.Second
	}
	if c.queueTimeout == 0 {
		c.queueTimeout = 30 * time.Second
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	if c.requestIDFunc == nil {
		c.requestIDFunc = func() string { return uuid.New().String() }
	}
	c.log = c.log.With().Str("component", "apiclient").Logger()

	return c, nil
}

// Do sends req with the current access token. A 401 is recovered once through a
// token refresh; every other failure is returned as is.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	a, err := c.newAttempt(req)
	if err != nil {
		return nil, err
	}

	token := c.accessToken(ctx)
	resp, err := c.send(ctx, a, token)
	if err == nil || !IsUnauthorized(err) || a.retried {
		return resp, err
	}
	return c.recoverUnauthorized(ctx, a, token)
}

// DoJSON sends req and decodes the response data into out.
func (c *Client) DoJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// accessToken returns the stored, unexpired access token or "".
func (c *Client) accessToken(ctx context.Context) string {
	creds, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, credentials.ErrNoCredentials) {
			c.log.Err(err).Msg("Failed to load credentials, sending unauthenticated")
		}
		return ""
	}
	if !creds.HasAccess(c.nowFunc()) {
		return ""
	}
	return creds.AccessToken
}

// send performs one HTTP round trip for a. An empty token sends the request
// unauthenticated.
func (c *Client) send(ctx context.Context, a *attempt, token string) (*Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, a.req.Method, c.resolve(a.req.Path, a.req.Query), bytes.NewReader(a.body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range c.header {
		hreq.Header[k] = append([]string(nil), v...)
	}
	for k, v := range a.req.Header {
		hreq.Header[k] = append([]string(nil), v...)
	}
	if a.contentType != "" && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", a.contentType)
	}
	hreq.Header.Set("X-Request-ID", a.id)
	if token != "" {
		hreq.Header.Set("Authorization", "Bearer "+token)
	} else {
		hreq.Header.Del("Authorization")
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.req.Method, a.req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", a.req.Method, a.req.Path, err)
	}

	c.log.Debug().
		Str("request_id", a.id).
		Str("method", a.req.Method).
		Str("path", a.req.Path).
		Int("status", resp.StatusCode).
		Bool("retried", a.retried).
		Msg("API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, body)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
