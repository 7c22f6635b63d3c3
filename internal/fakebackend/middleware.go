package fakebackend

import (
	"net/http"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

type Middleware func(http.HandlerFunc) http.HandlerFunc

// ChainMiddleware wraps h so the first middleware runs outermost.
func ChainMiddleware(h http.HandlerFunc, mw ...Middleware) http.HandlerFunc {
	chained := h
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// LoggingMiddleware logs each request with its status and duration.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next(rec, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Str("request_id", r.Header.Get("X-Request-ID")).
				Dur("duration", time.Since(start)).
				Msg("Request")
		}
	}
}

// RecoverMiddleware turns a handler panic into a 500.
func RecoverMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Recovered from panic")
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next(w, r)
		}
	}
}

// CorsMiddleware lets browser front-ends served from allowedOrigins call the
// backend with credentials, so the refresh cookie is sent. "*" allows any
// origin without credentials.
func CorsMiddleware(allowedOrigins ...string) Middleware {
	const (
		allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
		allowedHeaders = "Authorization, Content-Type, X-Request-ID"
	)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next(w, r)
				return
			}

			isAllowed := slices.Contains(allowedOrigins, origin)
			isWildcard := slices.Contains(allowedOrigins, "*")
			switch {
			case isAllowed:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			case isWildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			if r.Method == http.MethodOptions {
				if isAllowed || isWildcard {
					w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
					w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next(w, r)
		}
	}
}
