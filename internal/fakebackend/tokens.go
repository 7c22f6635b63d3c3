package fakebackend

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/go-blog-client/oauth2"
)

var (
	errInvalidRefreshToken = errors.New("invalid refresh token")
	errRefreshTokenExpired = errors.New("refresh token expired")
	errInvalidAccessToken  = errors.New("invalid access token")
)

// storedRefreshToken is the server-side metadata of an issued refresh token.
type storedRefreshToken struct {
	Token  string
	UserID string
	Iat    time.Time
}

// issuePair creates a signed access token and a rotated refresh token for userID.
// Any previous refresh token of the user is deleted (single refresh token per user).
// Callers hold b.mu.
func (b *Backend) issuePair(userID, email string) (oauth2.TokenPair, error) {
	now := b.nowFunc()
	jti := uuid.New().String()

	claims := jwt.MapClaims{
		"iss":   b.issuer,
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(b.accessTTL).Unix(),
		"jti":   jti,
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return oauth2.TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	if existing, ok := b.refreshByUser[userID]; ok {
		delete(b.refreshTokens, existing)
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return oauth2.TokenPair{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	refresh := hex.EncodeToString(tokenBytes)

	b.refreshTokens[refresh] = &storedRefreshToken{Token: refresh, UserID: userID, Iat: now}
	b.refreshByUser[userID] = refresh
	b.issued = append(b.issued, jti)

	return oauth2.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// rotate exchanges a refresh token for a new pair. Callers hold b.mu.
func (b *Backend) rotate(refreshToken string) (oauth2.TokenPair, error) {
	rt, ok := b.refreshTokens[refreshToken]
	if !ok {
		return oauth2.TokenPair{}, errInvalidRefreshToken
	}
	if b.nowFunc().Sub(rt.Iat) > b.refreshTTL {
		delete(b.refreshTokens, refreshToken)
		delete(b.refreshByUser, rt.UserID)
		return oauth2.TokenPair{}, errRefreshTokenExpired
	}

	u, ok := b.usersByID[rt.UserID]
	if !ok {
		return oauth2.TokenPair{}, errInvalidRefreshToken
	}
	return b.issuePair(u.ID, u.Email)
}

// authenticate validates a bearer header and returns the user ID. Callers hold b.mu.
func (b *Backend) authenticate(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errInvalidAccessToken
	}

	parsed, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
		return b.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(b.issuer),
		jwt.WithTimeFunc(b.nowFunc),
	)
	if err != nil || !parsed.Valid {
		return "", errInvalidAccessToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidAccessToken
	}
	if jti, _ := claims["jti"].(string); b.revoked[jti] {
		return "", errInvalidAccessToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidAccessToken
	}
	return sub, nil
}
