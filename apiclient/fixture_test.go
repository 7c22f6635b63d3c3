package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-blog-client/apiclient"
	"github.com/jrsteele09/go-blog-client/credentials/repofake"
	"github.com/jrsteele09/go-blog-client/internal/fakebackend"
)

const (
	testEmail    = "john.doe@example.com"
	testPassword = "password123"
)

type sentRequest struct {
	Path          string
	Authorization string
}

// recordingTransport records requests in the order the client hands them to the transport.
type recordingTransport struct {
	mu   sync.Mutex
	sent []sentRequest
	next http.RoundTripper
}

func (rt *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.sent = append(rt.sent, sentRequest{Path: r.URL.Path, Authorization: r.Header.Get("Authorization")})
	rt.mu.Unlock()
	return rt.next.RoundTrip(r)
}

func (rt *recordingTransport) Sent() []sentRequest {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]sentRequest(nil), rt.sent...)
}

// testFixture holds a fake backend, a store and a client wired together.
type testFixture struct {
	backend   *fakebackend.Backend
	server    *httptest.Server
	transport *recordingTransport
	store     *repofake.FakeStore
	client    *apiclient.Client
	userID    string

	mu          sync.Mutex
	invalidated []apiclient.SessionInvalidated
}

func setupTestFixture(t *testing.T, options ...apiclient.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		backend:   fakebackend.New(),
		transport: &recordingTransport{next: http.DefaultTransport},
		store:     repofake.NewFakeStore(),
	}
	f.server = httptest.NewServer(f.backend)
	t.Cleanup(f.server.Close)

	userID, err := f.backend.AddUser(testEmail, "johndoe", testPassword)
	require.NoError(t, err)
	f.userID = userID

	opts := append([]apiclient.Option{
		apiclient.WithHTTPClient(&http.Client{Transport: f.transport}),
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithSessionInvalidatedHandler(func(e apiclient.SessionInvalidated) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.invalidated = append(f.invalidated, e)
		}),
	}, options...)

	f.client, err = apiclient.New(f.server.URL, f.store, opts...)
	require.NoError(t, err)
	return f
}

func (f *testFixture) login(t *testing.T) string {
	t.Helper()

	_, err := f.client.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return f.accessToken(t)
}

func (f *testFixture) accessToken(t *testing.T) string {
	t.Helper()

	creds, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return creds.AccessToken
}

func (f *testFixture) invalidations() []apiclient.SessionInvalidated {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiclient.SessionInvalidated(nil), f.invalidated...)
}

// requestsTo returns the logged requests for path with the given status.
func (f *testFixture) requestsTo(path string, status int) []fakebackend.LoggedRequest {
	var out []fakebackend.LoggedRequest
	for _, r := range f.backend.Requests() {
		if r.Path == path && (status == 0 || r.Status == status) {
			out = append(out, r)
		}
	}
	return out
}

type result struct {
	resp *apiclient.Response
	err  error
}

// goGet issues a GET in the background and returns a channel with its result.
func (f *testFixture) goGet(path string) <-chan result {
	ch := make(chan result, 1)
	go func() {
		resp, err := f.client.Get(context.Background(), path, nil)
		ch <- result{resp: resp, err: err}
	}()
	return ch
}
