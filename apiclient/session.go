package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	xoauth2 "golang.org/x/oauth2"

	"github.com/jrsteele09/go-blog-client/credentials"
	"github.com/jrsteele09/go-blog-client/oauth2"
)

// Login exchanges email and password for a token pair and stores it.
// Only the login and refresh endpoints ever write credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*oauth2.User, error) {
	a, err := c.newAttempt(&Request{
		Method: http.MethodPost,
		Path:   c.endpoints.Login,
		Body:   oauth2.LoginRequest{Email: email, Password: password},
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, a, "")
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var env oauth2.Envelope[oauth2.LoginResponse]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("login: %w: %w", ErrMalformedLogin, err)
	}
	if !env.Data.Valid() {
		return nil, fmt.Errorf("login: %w", ErrMalformedLogin)
	}

	if err := c.persist(ctx, env.Data.TokenPair); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	c.log.Info().Str("email", email).Msg("Logged in")
	return env.Data.User, nil
}

// Logout tells the backend to drop the session and clears the stored credentials.
// The backend call is best effort; the local session is cleared regardless.
func (c *Client) Logout(ctx context.Context) error {
	a, err := c.newAttempt(&Request{Method: http.MethodPost, Path: c.endpoints.Logout})
	if err != nil {
		return err
	}

	token := c.accessToken(ctx)
	if _, err := c.sendWithRefreshCookie(ctx, a, token); err != nil {
		c.log.Err(err).Msg("Logout: backend call failed, clearing local session anyway")
	}

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.log.Info().Msg("Logged out")
	return nil
}

// sendWithRefreshCookie is send with the refresh cookie attached, for the
// logout call.
func (c *Client) sendWithRefreshCookie(ctx context.Context, a *attempt, token string) (*Response, error) {
	creds, err := c.store.Load(ctx)
	if err == nil && creds.RefreshToken != "" && c.http.Jar == nil {
		if a.req.Header == nil {
			a.req.Header = http.Header{}
		}
		a.req.Header.Add("Cookie", (&http.Cookie{Name: c.refreshCookie, Value: creds.RefreshToken}).String())
	}
	return c.send(ctx, a, token)
}

// invalidateSession is the one place terminal auth failures are handled: the
// stored credentials are cleared and the registered handler is notified.
func (c *Client) invalidateSession(ctx context.Context, cause error) {
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.log.Err(err).Msg("Failed to clear credentials after session invalidation")
	}

	c.log.Warn().Err(cause).Msg("Session invalidated")

	if c.onInvalidated != nil {
		c.onInvalidated(SessionInvalidated{
			Cause: fmt.Errorf("%w: %w", ErrSessionInvalidated, cause),
			At:    c.nowFunc(),
		})
	}
}

// TokenSource exposes the stored credentials as an x/oauth2 token source, so
// other HTTP clients can share the session. It never refreshes by itself.
func (c *Client) TokenSource() xoauth2.TokenSource {
	return storeTokenSource{c: c}
}

type storeTokenSource struct {
	c *Client
}

func (s storeTokenSource) Token() (*xoauth2.Token, error) {
	creds, err := s.c.store.Load(context.Background())
	if err != nil {
		return nil, err
	}
	if !creds.HasAccess(s.c.nowFunc()) {
		return nil, fmt.Errorf("access token expired: %w", credentials.ErrNoCredentials)
	}
	return creds.Pair().OAuth2Token(creds.AccessExpiry), nil
}
