package oauth2

import (
	"strings"
	"time"

	xoauth2 "golang.org/x/oauth2"
)

// TokenType is the scheme used in the Authorization header.
const TokenType = "Bearer"

// TokenPair is the credential pair returned by the login and refresh endpoints.
type TokenPair struct {
	// AccessToken is the short-lived credential sent as "Authorization: Bearer <token>".
	// Usually a JWT; its "exp" claim (when present) bounds how long it is kept.
	AccessToken string `json:"accessToken"`

	// RefreshToken is the long-lived credential exchanged at the refresh endpoint.
	// Rotates on every successful refresh.
	RefreshToken string `json:"refreshToken"`
}

// Valid reports whether both halves of the pair are present.
func (p TokenPair) Valid() bool {
	return strings.TrimSpace(p.AccessToken) != "" && strings.TrimSpace(p.RefreshToken) != ""
}

// OAuth2Token converts the pair to an x/oauth2 token expiring at accessExpiry.
func (p TokenPair) OAuth2Token(accessExpiry time.Time) *xoauth2.Token {
	return &xoauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    TokenType,
		RefreshToken: p.RefreshToken,
		Expiry:       accessExpiry,
	}
}

// LoginRequest is the body posted to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the payload inside the login envelope.
type LoginResponse struct {
	TokenPair
	User *User `json:"user,omitempty"`
}

// User is the account summary returned with a login.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}
