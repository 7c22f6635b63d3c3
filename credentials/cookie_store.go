package credentials

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultAccessCookie  = "accessToken"
	DefaultRefreshCookie = "refreshToken"
)

// CookieStore keeps the credential pair as two cookies in an http.CookieJar scoped
// to the API base URL. Installing Jar() on the http.Client sends the refresh token
// cookie along with the refresh call.
//
// Secure cookies are only returned for https URLs, so a CookieStore with secure
// cookies enabled and an http base URL behaves as empty.
type CookieStore struct {
	jar        http.CookieJar
	url        *url.URL
	access     string
	refresh    string
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time

	// The jar does not report expirations back, so they are remembered here.
	mu            sync.Mutex
	accessExpiry  time.Time
	refreshExpiry time.Time
}

type CookieStoreOption func(*CookieStore)

func WithCookieNames(access, refresh string) CookieStoreOption {
	return func(s *CookieStore) {
		s.access = access
		s.refresh = refresh
	}
}

func WithSecureCookies(secure bool) CookieStoreOption {
	return func(s *CookieStore) {
		s.secure = secure
	}
}

func WithCookieExpiry(accessTTL, refreshTTL time.Duration) CookieStoreOption {
	return func(s *CookieStore) {
		s.accessTTL = accessTTL
		s.refreshTTL = refreshTTL
	}
}

func WithCookieJar(jar http.CookieJar) CookieStoreOption {
	return func(s *CookieStore) {
		s.jar = jar
	}
}

func WithCookieNowFunc(now func() time.Time) CookieStoreOption {
	return func(s *CookieStore) {
		s.nowFunc = now
	}
}

// NewCookieStore creates a cookie backed store for baseURL.
func NewCookieStore(baseURL string, options ...CookieStoreOption) (*CookieStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "NewCookieStore url.Parse")
	}
	if u.Host == "" {
		return nil, errors.Errorf("NewCookieStore: base URL %q has no host", baseURL)
	}

	s := &CookieStore{
		url:     &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
		access:  DefaultAccessCookie,
		refresh: DefaultRefreshCookie,
		secure:  true,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "NewCookieStore cookiejar.New")
		}
		s.jar = jar
	}
	if s.accessTTL == 0 {
		s.accessTTL = 24 * time.Hour
	}
	if s.refreshTTL == 0 {
		s.refreshTTL = 7 * 24 * time.Hour
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	return s, nil
}

var _ Store = (*CookieStore)(nil)

// Jar returns the underlying cookie jar for use by an http.Client.
func (s *CookieStore) Jar() http.CookieJar {
	return s.jar
}

// RefreshCookieName is the name of the cookie carrying the refresh token.
func (s *CookieStore) RefreshCookieName() string {
	return s.refresh
}

func (s *CookieStore) Load(_ context.Context) (*Credentials, error) {
	creds := &Credentials{}
	for _, c := range s.jar.Cookies(s.url) {
		switch c.Name {
		case s.access:
			creds.AccessToken = c.Value
		case s.refresh:
			creds.RefreshToken = c.Value
		}
	}

	s.mu.Lock()
	if creds.AccessToken != "" {
		creds.AccessExpiry = s.accessExpiry
	}
	if creds.RefreshToken != "" {
		creds.RefreshExpiry = s.refreshExpiry
	}
	s.mu.Unlock()

	creds = creds.Prune(s.nowFunc())
	if creds == nil {
		return nil, ErrNoCredentials
	}
	return creds, nil
}

func (s *CookieStore) Save(_ context.Context, creds *Credentials) error {
	if creds == nil {
		return errors.New("CookieStore.Save: nil credentials")
	}

	now := s.nowFunc()
	accessExpiry := creds.AccessExpiry
	if accessExpiry.IsZero() {
		accessExpiry = now.Add(s.accessTTL)
	}
	refreshExpiry := creds.RefreshExpiry
	if refreshExpiry.IsZero() {
		refreshExpiry = now.Add(s.refreshTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jar.SetCookies(s.url, []*http.Cookie{
		s.cookie(s.access, creds.AccessToken, accessExpiry),
		s.cookie(s.refresh, creds.RefreshToken, refreshExpiry),
	})
	s.accessExpiry = accessExpiry
	s.refreshExpiry = refreshExpiry
	return nil
}

func (s *CookieStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := s.nowFunc().Add(-time.Hour)
	s.jar.SetCookies(s.url, []*http.Cookie{
		s.cookie(s.access, "", expired),
		s.cookie(s.refresh, "", expired),
	})
	s.accessExpiry = time.Time{}
	s.refreshExpiry = time.Time{}
	return nil
}

func (s *CookieStore) cookie(name, value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}
