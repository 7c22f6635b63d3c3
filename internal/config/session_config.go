package config

import "time"

type SessionConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetAccessTokenCookie() string
	GetRefreshTokenCookie() string
	GetSecureCookies() bool
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_EXPIRY", 24*time.Hour) // 1 day
}

func (Session) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour) // 7 days
}

func (Session) GetAccessTokenCookie() string {
	return "accessToken"
}

func (Session) GetRefreshTokenCookie() string {
	return "refreshToken"
}

func (Session) GetSecureCookies() bool {
	return GetEnv("SECURE_COOKIES", "true") != "false"
}
