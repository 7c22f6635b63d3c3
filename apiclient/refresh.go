package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"

	"github.com/jrsteele09/go-blog-client/credentials"
	"github.com/jrsteele09/go-blog-client/oauth2"
)

// refreshState is the per-client refresh coordination state. inFlight is set
// before the refresh call starts and cleared in the same critical section that
// takes the waiters, so no request can queue behind a refresh that has settled.
type refreshState struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []*waiter
}

// waiter is a request parked behind an in-flight refresh.
type waiter struct {
	ctx     context.Context
	cancel  context.CancelFunc
	attempt *attempt
	done    chan outcome
}

type outcome struct {
	resp *Response
	err  error
}

// Refreshing reports whether a refresh call is outstanding.
func (c *Client) Refreshing() bool {
	c.refresh.mu.Lock()
	defer c.refresh.mu.Unlock()
	return c.refresh.inFlight
}

// Pending is the number of requests waiting for the in-flight refresh.
func (c *Client) Pending() int {
	c.refresh.mu.Lock()
	defer c.refresh.mu.Unlock()
	return len(c.refresh.waiters)
}

// recoverUnauthorized handles a first 401 for a. sentWith is the token a was sent with.
func (c *Client) recoverUnauthorized(ctx context.Context, a *attempt, sentWith string) (*Response, error) {
	a.retried = true

	c.refresh.mu.Lock()
	if c.refresh.inFlight {
		w := c.enqueueLocked(ctx, a)
		c.refresh.mu.Unlock()
		return c.await(ctx, w)
	}

	// A refresh finished while this request was on the wire.
	if current := c.accessToken(ctx); current != "" && current != sentWith {
		c.refresh.mu.Unlock()
		c.log.Debug().Str("request_id", a.id).Msg("Access token rotated during request, replaying")
		return c.replay(ctx, a, current)
	}

	c.refresh.inFlight = true
	c.refresh.mu.Unlock()

	pair, err := c.refreshTokens(ctx)

	c.refresh.mu.Lock()
	waiters := c.refresh.waiters
	c.refresh.waiters = nil
	c.refresh.inFlight = false
	c.refresh.mu.Unlock()

	if err != nil {
		c.log.Err(err).Int("queued", len(waiters)).Msg("Token refresh failed")
		for _, w := range waiters {
			w.done <- outcome{err: err}
		}
		if isTerminalRefreshError(err) {
			c.invalidateSession(ctx, err)
		}
		return nil, err
	}

	c.log.Info().Int("queued", len(waiters)).Msg("Access token refreshed")
	go c.drain(waiters, pair.AccessToken)
	return c.replay(ctx, a, pair.AccessToken)
}

func (c *Client) enqueueLocked(ctx context.Context, a *attempt) *waiter {
	wctx, cancel := context.WithTimeout(ctx, c.queueTimeout)
	w := &waiter{
		ctx:     wctx,
		cancel:  cancel,
		attempt: a,
		done:    make(chan outcome, 1),
	}
	c.refresh.waiters = append(c.refresh.waiters, w)
	c.log.Debug().Str("request_id", a.id).Int("position", len(c.refresh.waiters)).Msg("Queued behind token refresh")
	return w
}

func (c *Client) await(ctx context.Context, w *waiter) (*Response, error) {
	defer w.cancel()

	select {
	case o := <-w.done:
		return o.resp, o.err
	case <-w.ctx.Done():
		c.removeWaiter(w)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", ErrQueueTimeout, c.queueTimeout)
	}
}

func (c *Client) removeWaiter(w *waiter) {
	c.refresh.mu.Lock()
	defer c.refresh.mu.Unlock()

	for i, q := range c.refresh.waiters {
		if q == w {
			c.refresh.waiters = append(c.refresh.waiters[:i], c.refresh.waiters[i+1:]...)
			return
		}
	}
}

// drain starts the replays of queued requests in arrival order. Each replay
// runs on its own goroutine; the next one starts once the previous request has
// been written to the wire, not once its response has arrived.
func (c *Client) drain(waiters []*waiter, token string) {
	for _, w := range waiters {
		if err := w.ctx.Err(); err != nil {
			w.done <- outcome{err: err}
			continue
		}

		sent := make(chan struct{})
		var once sync.Once
		markSent := func() { once.Do(func() { close(sent) }) }
		ctx := httptrace.WithClientTrace(w.ctx, &httptrace.ClientTrace{
			WroteRequest: func(httptrace.WroteRequestInfo) { markSent() },
		})

		go func(w *waiter) {
			defer markSent()
			resp, err := c.replay(ctx, w.attempt, token)
			w.done <- outcome{resp: resp, err: err}
		}(w)
		<-sent
	}
}

// replay resends an already retried request. A second 401 ends the session.
func (c *Client) replay(ctx context.Context, a *attempt, token string) (*Response, error) {
	resp, err := c.send(ctx, a, token)
	if IsUnauthorized(err) {
		c.invalidateSession(ctx, err)
	}
	return resp, err
}

// refreshTokens calls the refresh endpoint and persists the new pair. The call is
// detached from the caller's cancellation so a departing caller cannot fail the
// requests queued behind it, and is bounded by the refresh timeout instead.
func (c *Client) refreshTokens(ctx context.Context) (oauth2.TokenPair, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(rctx, http.MethodPost, c.resolve(c.endpoints.Refresh, nil), http.NoBody)
	if err != nil {
		return oauth2.TokenPair{}, fmt.Errorf("creating refresh request: %w", err)
	}
	for k, v := range c.header {
		hreq.Header[k] = append([]string(nil), v...)
	}
	hreq.Header.Set("X-Request-ID", c.requestIDFunc())
	c.attachRefreshCookie(rctx, hreq)

	resp, err := c.http.Do(hreq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return oauth2.TokenPair{}, fmt.Errorf("%w after %s", ErrRefreshTimeout, c.refreshTimeout)
		}
		return oauth2.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return oauth2.TokenPair{}, fmt.Errorf("refresh token: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return oauth2.TokenPair{}, newHTTPError(resp.StatusCode, body)
	}

	var env oauth2.Envelope[oauth2.TokenPair]
	if err := json.Unmarshal(body, &env); err != nil || !env.Data.Valid() {
		return oauth2.TokenPair{}, ErrMalformedRefresh
	}

	if err := c.persist(rctx, env.Data); err != nil {
		return oauth2.TokenPair{}, err
	}
	return env.Data, nil
}

// attachRefreshCookie sends the stored refresh token as a cookie unless the
// client's jar already carries one for the refresh URL.
func (c *Client) attachRefreshCookie(ctx context.Context, hreq *http.Request) {
	if c.http.Jar != nil {
		for _, ck := range c.http.Jar.Cookies(hreq.URL) {
			if ck.Name == c.refreshCookie {
				return
			}
		}
	}

	creds, err := c.store.Load(ctx)
	if err != nil || creds.RefreshToken == "" {
		return
	}
	hreq.AddCookie(&http.Cookie{Name: c.refreshCookie, Value: creds.RefreshToken})
}

func (c *Client) persist(ctx context.Context, pair oauth2.TokenPair) error {
	creds := credentials.New(pair, c.nowFunc(), c.accessTTL, c.refreshTTL)
	if err := c.store.Save(ctx, creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}
