package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-blog-client/apiclient"
	"github.com/jrsteele09/go-blog-client/blog"
	"github.com/jrsteele09/go-blog-client/credentials"
	"github.com/jrsteele09/go-blog-client/credentials/repofake"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestNew_Validation(t *testing.T) {
	store := repofake.NewFakeStore()

	_, err := apiclient.New("/relative", store)
	require.Error(t, err)

	_, err = apiclient.New("http://localhost:8080", nil)
	require.Error(t, err)

	_, err = apiclient.New("http://localhost:8080/api/v1", store)
	require.NoError(t, err)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	f := setupTestFixture(t)
	token := f.login(t)

	var me map[string]string
	err := f.client.DoJSON(context.Background(), &apiclient.Request{Method: http.MethodGet, Path: "/me"}, &me)
	require.NoError(t, err)
	require.Equal(t, testEmail, me["email"])

	reqs := f.requestsTo("/me", http.StatusOK)
	require.Len(t, reqs, 1)
	require.Equal(t, "Bearer "+token, reqs[0].Authorization)
	require.NotEmpty(t, reqs[0].RequestID)
	require.Equal(t, 0, f.backend.RefreshCalls())
}

func TestClient_UnauthenticatedWithoutToken(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c, err := apiclient.New(srv.URL, repofake.NewFakeStore(), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/posts", nil)
	require.NoError(t, err)
	require.Equal(t, []string{""}, gotAuth)
}

func TestClient_ExpiredAccessTokenNotSent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	store := repofake.NewFakeStore()
	require.NoError(t, store.Save(context.Background(), &credentials.Credentials{
		AccessToken:  "A1",
		RefreshToken: "R1",
		AccessExpiry: time.Now().Add(-time.Minute),
	}))

	c, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/tags", nil)
	require.NoError(t, err)
	require.Empty(t, gotAuth)
}

// A 401 is recovered through the refresh endpoint and replayed with the new token.
func TestClient_RefreshAndReplay(t *testing.T) {
	var (
		mu           sync.Mutex
		refreshCalls int
		postsAuth    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		switch r.URL.Path {
		case "/auth/refresh-token":
			refreshCalls++
			cookie, err := r.Cookie("refreshToken")
			if err != nil || cookie.Value != "R1" || r.Header.Get("Authorization") != "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"accessToken":"A2","refreshToken":"R2"}}`))
		case "/posts":
			postsAuth = append(postsAuth, r.Header.Get("Authorization"))
			if r.Header.Get("Authorization") != "Bearer A2" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":{"items":[{"id":"p1","title":"Hello"}],"total":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := repofake.NewFakeStoreWith("A1", "R1")
	c, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	var page blog.Page[blog.Post]
	err = c.DoJSON(context.Background(), &apiclient.Request{Path: "/posts"}, &page)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "Hello", page.Items[0].Title)

	require.Equal(t, 1, refreshCalls)
	require.Equal(t, []string{"Bearer A1", "Bearer A2"}, postsAuth)

	creds, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", creds.AccessToken)
	require.Equal(t, "R2", creds.RefreshToken)
	require.False(t, c.Refreshing())
}

// Concurrent 401s share a single refresh.
func TestClient_SingleRefreshForConcurrentFailures(t *testing.T) {
	for _, n := range []int{3, 10} {
		f := setupTestFixture(t)
		oldToken := f.login(t)
		f.backend.RevokeAccessTokens()
		release := f.backend.GateRefresh()

		results := make([]<-chan result, n)
		for i := range results {
			results[i] = f.goGet("/posts")
		}

		require.Eventually(t, func() bool {
			return f.backend.RefreshCalls() == 1 && f.client.Pending() == n-1
		}, waitFor, tick)
		require.True(t, f.client.Refreshing())
		release()

		for _, ch := range results {
			r := <-ch
			require.NoError(t, r.err)
			require.Equal(t, http.StatusOK, r.resp.StatusCode)
		}

		require.Equal(t, 1, f.backend.RefreshCalls())
		newToken := f.accessToken(t)
		require.NotEqual(t, oldToken, newToken)

		ok := f.requestsTo("/posts", http.StatusOK)
		require.Len(t, ok, n)
		for _, r := range ok {
			require.Equal(t, "Bearer "+newToken, r.Authorization)
		}
		require.False(t, f.client.Refreshing())
		require.Equal(t, 0, f.client.Pending())
	}
}

// A replayed request that fails with 401 again is not refreshed a second time.
func TestClient_NoInfiniteRetry(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.RejectPath("/posts")

	_, err := f.client.Get(context.Background(), "/posts", nil)
	require.Error(t, err)
	require.True(t, apiclient.IsUnauthorized(err))

	require.Equal(t, 1, f.backend.RefreshCalls())
	require.Len(t, f.requestsTo("/posts", 0), 2)

	events := f.invalidations()
	require.Len(t, events, 1)
	require.ErrorIs(t, events[0].Cause, apiclient.ErrSessionInvalidated)

	_, err = f.store.Load(context.Background())
	require.ErrorIs(t, err, credentials.ErrNoCredentials)
}

// Requests queued during a refresh are replayed in arrival order.
func TestClient_QueueDrainOrder(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.RevokeAccessTokens()
	release := f.backend.GateRefresh()

	initiator := f.goGet("/me")
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, waitFor, tick)

	queued := []string{"/tags", "/categories", "/notifications"}
	results := make([]<-chan result, len(queued))
	for i, path := range queued {
		results[i] = f.goGet(path)
		want := i + 1
		require.Eventually(t, func() bool { return f.client.Pending() == want }, waitFor, tick)
	}
	release()

	require.NoError(t, (<-initiator).err)
	for _, ch := range results {
		require.NoError(t, (<-ch).err)
	}

	newToken := "Bearer " + f.accessToken(t)
	var replayed []string
	for _, r := range f.transport.Sent() {
		if r.Authorization == newToken && slices.Contains(queued, r.Path) {
			replayed = append(replayed, r.Path)
		}
	}
	require.Equal(t, queued, replayed)
}

// A slow replay does not hold back the requests queued after it.
func TestClient_SlowReplayDoesNotDelayQueue(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.DelayPath("/tags", time.Second)
	f.backend.RevokeAccessTokens()
	release := f.backend.GateRefresh()
	defer release()

	initiator := f.goGet("/me")
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, waitFor, tick)

	slow := f.goGet("/tags")
	require.Eventually(t, func() bool { return f.client.Pending() == 1 }, waitFor, tick)

	fast := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		resp, err := f.client.Get(ctx, "/categories", nil)
		fast <- result{resp: resp, err: err}
	}()
	require.Eventually(t, func() bool { return f.client.Pending() == 2 }, waitFor, tick)
	release()

	select {
	case r := <-fast:
		require.NoError(t, r.err)
		require.Equal(t, http.StatusOK, r.resp.StatusCode)
	case <-slow:
		t.Fatal("slow replay completed before the request queued after it")
	}
	require.NoError(t, (<-slow).err)
	require.NoError(t, (<-initiator).err)

	// Replays still start in arrival order.
	newToken := "Bearer " + f.accessToken(t)
	var replayed []string
	for _, r := range f.transport.Sent() {
		if r.Authorization == newToken && (r.Path == "/tags" || r.Path == "/categories") {
			replayed = append(replayed, r.Path)
		}
	}
	require.Equal(t, []string{"/tags", "/categories"}, replayed)
}

// A failed refresh rejects every waiter, replays nothing and
// leaves the client ready for the next refresh.
func TestClient_RefreshFailureRejectsQueue(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.RevokeAccessTokens()
	f.backend.FailRefresh(http.StatusForbidden)
	release := f.backend.GateRefresh()

	initiator := f.goGet("/me")
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, waitFor, tick)

	queued := []string{"/tags", "/categories", "/notifications"}
	results := make([]<-chan result, len(queued))
	for i, path := range queued {
		results[i] = f.goGet(path)
		want := i + 1
		require.Eventually(t, func() bool { return f.client.Pending() == want }, waitFor, tick)
	}
	release()

	all := append([]<-chan result{initiator}, results...)
	for _, ch := range all {
		r := <-ch
		require.Error(t, r.err)
		require.Equal(t, http.StatusForbidden, apiclient.StatusCode(r.err))

		var he *apiclient.HTTPError
		require.True(t, errors.As(r.err, &he))
		require.Equal(t, "refresh token expired", he.Message)
	}

	for _, path := range append([]string{"/me"}, queued...) {
		require.Len(t, f.requestsTo(path, 0), 1, "%s must not be replayed", path)
	}
	require.False(t, f.client.Refreshing())
	require.Equal(t, 0, f.client.Pending())
	require.Len(t, f.invalidations(), 1)

	// A fresh 401 starts a new refresh cycle.
	f.backend.FailRefresh(0)
	_, err := f.client.Get(context.Background(), "/me", nil)
	require.Error(t, err)
	require.Equal(t, 2, f.backend.RefreshCalls())
}

// Requests issued after a refresh carry the new token.
func TestClient_NewTokenUsedAfterRefresh(t *testing.T) {
	f := setupTestFixture(t)
	oldToken := f.login(t)
	f.backend.RevokeAccessTokens()

	_, err := f.client.Get(context.Background(), "/me", nil)
	require.NoError(t, err)
	newToken := f.accessToken(t)
	require.NotEqual(t, oldToken, newToken)

	_, err = f.client.Get(context.Background(), "/tags", nil)
	require.NoError(t, err)

	tags := f.requestsTo("/tags", 0)
	require.Len(t, tags, 1)
	require.Equal(t, "Bearer "+newToken, tags[0].Authorization)
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestClient_ReplayKeepsRequestIDAndBody(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.RevokeAccessTokens()

	var post blog.Post
	err := f.client.DoJSON(context.Background(), &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/posts",
		Body:   blog.PostInput{Title: "Replayed post", Body: "body survives the retry"},
	}, &post)
	require.NoError(t, err)
	require.Equal(t, "Replayed post", post.Title)
	require.Equal(t, "replayed-post", post.Slug)

	reqs := f.requestsTo("/posts", 0)
	require.Len(t, reqs, 2)
	require.Equal(t, http.StatusUnauthorized, reqs[0].Status)
	require.Equal(t, http.StatusCreated, reqs[1].Status)
	require.Equal(t, reqs[0].RequestID, reqs[1].RequestID)
	require.NotEqual(t, reqs[0].Authorization, reqs[1].Authorization)
}

func TestClient_NonAuthErrorsSurfaceImmediately(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	_, err := f.client.Get(context.Background(), "/posts/does-not-exist", nil)
	require.Error(t, err)

	var he *apiclient.HTTPError
	require.True(t, errors.As(err, &he))
	require.Equal(t, http.StatusNotFound, he.StatusCode)
	require.Equal(t, "post not found", he.Message)
	require.Equal(t, 0, f.backend.RefreshCalls())
	require.Empty(t, f.invalidations())
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := apiclient.New(url, repofake.NewFakeStoreWith("A1", "R1"), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/posts", nil)
	require.Error(t, err)
	require.Equal(t, 0, apiclient.StatusCode(err))
}

func TestClient_RefreshTimeout(t *testing.T) {
	f := setupTestFixture(t, apiclient.WithRefreshTimeout(50*time.Millisecond))
	f.login(t)
	f.backend.RevokeAccessTokens()
	f.backend.DelayRefresh(time.Second)

	_, err := f.client.Get(context.Background(), "/me", nil)
	require.ErrorIs(t, err, apiclient.ErrRefreshTimeout)
	require.False(t, f.client.Refreshing())

	// A timeout is not a verdict on the session.
	require.Empty(t, f.invalidations())
	require.Equal(t, 0, f.store.Clears())
}

func TestClient_QueueTimeout(t *testing.T) {
	f := setupTestFixture(t, apiclient.WithQueueTimeout(50*time.Millisecond))
	f.login(t)
	f.backend.RevokeAccessTokens()
	release := f.backend.GateRefresh()
	defer release()

	initiator := f.goGet("/me")
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, waitFor, tick)

	_, err := f.client.Get(context.Background(), "/tags", nil)
	require.ErrorIs(t, err, apiclient.ErrQueueTimeout)
	require.Equal(t, 0, f.client.Pending())

	release()
	require.NoError(t, (<-initiator).err)
}

func TestClient_CallerCancellationWhileQueued(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.RevokeAccessTokens()
	release := f.backend.GateRefresh()
	defer release()

	initiator := f.goGet("/me")
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, waitFor, tick)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.client.Get(ctx, "/tags", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.client.Pending() == 1 }, waitFor, tick)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, 0, f.client.Pending())

	release()
	require.NoError(t, (<-initiator).err)
	require.Len(t, f.requestsTo("/tags", 0), 1)
}

// A 401 produced by a token that has since been rotated is replayed without a new refresh.
func TestClient_StaleTokenReplayedWithoutRefresh(t *testing.T) {
	store := repofake.NewFakeStoreWith("A1", "R1")
	arrived := make(chan struct{})
	proceed := make(chan struct{})

	var (
		mu           sync.Mutex
		refreshCalls int
		first        = true
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh-token" {
			mu.Lock()
			refreshCalls++
			mu.Unlock()
			w.WriteHeader(http.StatusForbidden)
			return
		}

		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if isFirst {
			close(arrived)
			<-proceed
		}
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "/me", nil)
		done <- err
	}()

	<-arrived
	require.NoError(t, store.Save(context.Background(), &credentials.Credentials{AccessToken: "A2", RefreshToken: "R2"}))
	close(proceed)

	require.NoError(t, <-done)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, refreshCalls)
}

func TestClient_OnlyAuthEndpointsPersistTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"accessToken": "EVIL", "refreshToken": "EVIL"},
		})
	}))
	defer srv.Close()

	store := repofake.NewFakeStoreWith("A1", "R1")
	c, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/posts", nil)
	require.NoError(t, err)

	creds, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A1", creds.AccessToken)
	require.Equal(t, 0, store.Saves())
}
