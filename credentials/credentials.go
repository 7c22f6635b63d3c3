package credentials

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-blog-client/internal/errors"
	"github.com/jrsteele09/go-blog-client/oauth2"
	"github.com/jrsteele09/go-blog-client/token"
)

// ErrNoCredentials is returned by Store.Load when nothing usable is stored.
var ErrNoCredentials = apperrors.ErrNoCredentials

// Credentials is the session credential pair with independent expirations.
type Credentials struct {
	AccessToken   string    `json:"accessToken"`
	RefreshToken  string    `json:"refreshToken"`
	AccessExpiry  time.Time `json:"accessExpiry"`
	RefreshExpiry time.Time `json:"refreshExpiry"`
}

// Store persists the session credential pair.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the stored credentials or ErrNoCredentials.
	Load(ctx context.Context) (*Credentials, error)

	// Save replaces the stored credentials.
	Save(ctx context.Context, creds *Credentials) error

	// Clear removes any stored credentials. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// New builds credentials for a freshly issued pair. The access expiry is
// now+accessTTL unless the access token is a JWT that expires sooner.
func New(pair oauth2.TokenPair, now time.Time, accessTTL, refreshTTL time.Duration) *Credentials {
	return &Credentials{
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		AccessExpiry:  token.ExpiryWithin(pair.AccessToken, now.Add(accessTTL)),
		RefreshExpiry: now.Add(refreshTTL),
	}
}

// Pair returns the tokens without their expirations.
func (c *Credentials) Pair() oauth2.TokenPair {
	return oauth2.TokenPair{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken}
}

// HasAccess reports whether an unexpired access token is present at now.
// A zero expiry never expires.
func (c *Credentials) HasAccess(now time.Time) bool {
	return c != nil && c.AccessToken != "" && (c.AccessExpiry.IsZero() || now.Before(c.AccessExpiry))
}

// HasRefresh reports whether an unexpired refresh token is present at now.
func (c *Credentials) HasRefresh(now time.Time) bool {
	return c != nil && c.RefreshToken != "" && (c.RefreshExpiry.IsZero() || now.Before(c.RefreshExpiry))
}

// Prune drops expired tokens. It returns nil when nothing usable remains.
func (c *Credentials) Prune(now time.Time) *Credentials {
	if c == nil {
		return nil
	}
	out := *c
	if !out.HasAccess(now) {
		out.AccessToken, out.AccessExpiry = "", time.Time{}
	}
	if !out.HasRefresh(now) {
		out.RefreshToken, out.RefreshExpiry = "", time.Time{}
	}
	if out.AccessToken == "" && out.RefreshToken == "" {
		return nil
	}
	return &out
}
