package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-blog-client/internal/errors"
)

// Claims are the access token claims the client cares about.
// The client never verifies signatures; that is the backend's job.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Parse reads the claims of an unverified JWT.
func Parse(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrMalformedToken
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrMalformedToken, err.Error())
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(apperrors.ErrMalformedToken, "token.Parse claims")
	}

	c := &Claims{}
	c.Subject, _ = mapClaims.GetSubject()
	c.Email, _ = mapClaims["email"].(string)
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	return c, nil
}

// Expiry returns the "exp" claim of rawToken. ok is false for opaque tokens
// and JWTs without an expiry.
func Expiry(rawToken string) (exp time.Time, ok bool) {
	c, err := Parse(rawToken)
	if err != nil || c.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return c.ExpiresAt, true
}

// Subject returns the "sub" claim of rawToken, or "" when it cannot be read.
func Subject(rawToken string) string {
	c, err := Parse(rawToken)
	if err != nil {
		return ""
	}
	return c.Subject
}

// ExpiryWithin clamps fallback to the token's own expiry when it has one.
func ExpiryWithin(rawToken string, fallback time.Time) time.Time {
	if exp, ok := Expiry(rawToken); ok && exp.Before(fallback) {
		return exp
	}
	return fallback
}
