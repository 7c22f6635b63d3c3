package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-blog-client/apiclient"
	"github.com/jrsteele09/go-blog-client/credentials"
	"github.com/jrsteele09/go-blog-client/credentials/repofake"
	"github.com/jrsteele09/go-blog-client/internal/fakebackend"
	"github.com/jrsteele09/go-blog-client/token"
)

func TestLogin(t *testing.T) {
	t.Run("Valid credentials", func(t *testing.T) {
		f := setupTestFixture(t)

		user, err := f.client.Login(context.Background(), testEmail, testPassword)
		require.NoError(t, err)
		require.NotNil(t, user)
		require.Equal(t, f.userID, user.ID)
		require.Equal(t, "johndoe", user.Username)

		creds, err := f.store.Load(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, creds.AccessToken)
		require.NotEmpty(t, creds.RefreshToken)

		// The access expiry follows the JWT exp claim, which is shorter than the default TTL.
		exp, ok := token.Expiry(creds.AccessToken)
		require.True(t, ok)
		require.WithinDuration(t, exp, creds.AccessExpiry, time.Second)

		require.Equal(t, f.userID, token.Subject(creds.AccessToken))

		login := f.requestsTo(fakebackend.RouteLogin, http.StatusOK)
		require.Len(t, login, 1)
		require.Empty(t, login[0].Authorization)
	})

	t.Run("Wrong password", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.client.Login(context.Background(), testEmail, "nope")
		require.Error(t, err)
		require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))

		_, err = f.store.Load(context.Background())
		require.ErrorIs(t, err, credentials.ErrNoCredentials)
		require.Equal(t, 0, f.backend.RefreshCalls())
		require.Empty(t, f.invalidations())
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	require.NoError(t, f.client.Logout(context.Background()))

	_, err := f.store.Load(context.Background())
	require.ErrorIs(t, err, credentials.ErrNoCredentials)
	require.Len(t, f.requestsTo(fakebackend.RouteLogout, http.StatusOK), 1)

	// The backend dropped the refresh token, so a later refresh cannot succeed.
	f.backend.RevokeAccessTokens()
	_, err = f.client.Get(context.Background(), "/me", nil)
	require.Error(t, err)
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestLogout_BackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	fake := repofake.NewFakeStoreWith("A1", "R1")
	c, err := apiclient.New(url, fake, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.NoError(t, c.Logout(context.Background()))
	_, err = fake.Load(context.Background())
	require.ErrorIs(t, err, credentials.ErrNoCredentials)
}

func TestSessionInvalidatedHandler(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.RevokeAccessTokens()
	f.backend.FailRefresh(http.StatusUnauthorized)

	_, err := f.client.Get(context.Background(), "/me", nil)
	require.Error(t, err)
	require.True(t, apiclient.IsUnauthorized(err))

	events := f.invalidations()
	require.Len(t, events, 1)
	require.ErrorIs(t, events[0].Cause, apiclient.ErrSessionInvalidated)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(events[0].Cause))
	require.False(t, events[0].At.IsZero())
	require.Equal(t, 1, f.store.Clears())
}

func TestMalformedRefreshKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh-token" {
			_, _ = w.Write([]byte(`{"data":{"accessToken":""}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := repofake.NewFakeStoreWith("A1", "R1")
	c, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/me", nil)
	require.ErrorIs(t, err, apiclient.ErrMalformedRefresh)
	require.Equal(t, 0, store.Clears())
}

func TestLogin_MalformedResponse(t *testing.T) {
	for name, body := range map[string]string{
		"missing tokens": `{"data":{}}`,
		"not json":       `<html>ok</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			store := repofake.NewFakeStore()
			c, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
			require.NoError(t, err)

			_, err = c.Login(context.Background(), testEmail, testPassword)
			require.ErrorIs(t, err, apiclient.ErrMalformedLogin)
			_, err = store.Load(context.Background())
			require.ErrorIs(t, err, credentials.ErrNoCredentials)
		})
	}
}

func TestLogin_MalformedResponseKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":`))
	}))
	defer srv.Close()

	c, err := apiclient.New(srv.URL, repofake.NewFakeStore(), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Login(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, apiclient.ErrMalformedLogin)
	var syntaxErr *json.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestRefreshCookieOptionOverridesStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh-token":
			ck, err := r.Cookie("session_rt")
			if err != nil || ck.Value != "R1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"accessToken":"A2","refreshToken":"R2"}}`))
		case "/me":
			if r.Header.Get("Authorization") != "Bearer A2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"data":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store, err := credentials.NewCookieStore(srv.URL, credentials.WithSecureCookies(false))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), &credentials.Credentials{AccessToken: "A1", RefreshToken: "R1"}))

	c, err := apiclient.New(srv.URL, store,
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithRefreshCookie("session_rt"),
	)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/me", nil)
	require.NoError(t, err)

	creds, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", creds.AccessToken)
	require.Equal(t, "R2", creds.RefreshToken)
}

func TestTokenSource(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.TokenSource().Token()
	require.ErrorIs(t, err, credentials.ErrNoCredentials)

	access := f.login(t)
	tok, err := f.client.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, access, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.True(t, tok.Valid())
}

func TestCookieStoreSession(t *testing.T) {
	backend := fakebackend.New()
	srv := httptest.NewServer(backend)
	defer srv.Close()

	_, err := backend.AddUser(testEmail, "johndoe", testPassword)
	require.NoError(t, err)

	store, err := credentials.NewCookieStore(srv.URL, credentials.WithSecureCookies(false))
	require.NoError(t, err)

	c, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	before, err := store.Load(context.Background())
	require.NoError(t, err)

	backend.RevokeAccessTokens()
	_, err = c.Get(context.Background(), "/me", nil)
	require.NoError(t, err)
	require.Equal(t, 1, backend.RefreshCalls())

	after, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)

	require.NoError(t, c.Logout(context.Background()))
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, credentials.ErrNoCredentials)
}
