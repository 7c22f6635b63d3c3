// Package fakebackend is an in-process implementation of the blog REST backend
// contract. It issues HS256 access tokens and rotating refresh tokens, and exposes
// hooks to block, fail and count refresh calls.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-blog-client/blog"
	"github.com/jrsteele09/go-blog-client/oauth2"
)

// Route path constants
const (
	RouteLogin         = "/auth/login"
	RouteRefresh       = "/auth/refresh-token"
	RouteLogout        = "/auth/logout"
	RouteMe            = "/me"
	RoutePosts         = "/posts"
	RoutePost          = "/posts/{id}"
	RoutePostComments  = "/posts/{id}/comments"
	RoutePostLike      = "/posts/{id}/like"
	RoutePostBookmark  = "/posts/{id}/bookmark"
	RouteComment       = "/comments/{id}"
	RouteTags          = "/tags"
	RouteCategories    = "/categories"
	RouteUserFollow    = "/users/{id}/follow"
	RouteNotifications = "/notifications"
	RouteNotification  = "/notifications/{id}/read"
	RouteSearch        = "/search"
)

const contentTypeJSON = "application/json; charset=utf-8"

// RefreshCookie is the name of the cookie carrying the refresh token.
const RefreshCookie = "refreshToken"

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Following    map[string]bool
}

// LoggedRequest records a request the backend received.
type LoggedRequest struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Status        int
}

type Backend struct {
	mux        *http.ServeMux
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time

	mu            sync.Mutex
	usersByEmail  map[string]*User
	usersByID     map[string]*User
	refreshTokens map[string]*storedRefreshToken
	refreshByUser map[string]string
	issued        []string
	revoked       map[string]bool
	posts         []*blog.Post
	comments      []*blog.Comment
	categories    []blog.Category
	notifications map[string][]*blog.Notification
	likes         map[string]map[string]bool
	bookmarks     map[string]map[string]bool
	requests      []LoggedRequest

	refreshCalls  int
	refreshGate   chan struct{}
	refreshStatus int
	rejectPaths   map[string]bool
	pathDelays    map[string]time.Duration
	refreshWait   time.Duration
}

type Option func(*Backend)

func WithTokenExpiry(accessTTL, refreshTTL time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = accessTTL
		b.refreshTTL = refreshTTL
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) {
		b.nowFunc = now
	}
}

func WithSecret(secret string) Option {
	return func(b *Backend) {
		b.secret = []byte(secret)
	}
}

func New(options ...Option) *Backend {
	b := &Backend{
		mux:           http.NewServeMux(),
		secret:        []byte("fake-backend-secret"),
		issuer:        "fakebackend",
		usersByEmail:  make(map[string]*User),
		usersByID:     make(map[string]*User),
		refreshTokens: make(map[string]*storedRefreshToken),
		refreshByUser: make(map[string]string),
		revoked:       make(map[string]bool),
		notifications: make(map[string][]*blog.Notification),
		likes:         make(map[string]map[string]bool),
		bookmarks:     make(map[string]map[string]bool),
		rejectPaths:   make(map[string]bool),
		pathDelays:    make(map[string]time.Duration),
		categories: []blog.Category{
			{ID: "go", Name: "Go"},
			{ID: "web", Name: "Web"},
		},
	}
	for _, opt := range options {
		opt(b)
	}
	if b.accessTTL == 0 {
		b.accessTTL = 15 * time.Minute
	}
	if b.refreshTTL == 0 {
		b.refreshTTL = 7 * 24 * time.Hour
	}
	if b.nowFunc == nil {
		b.nowFunc = time.Now
	}

	b.initRoutes()
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	b.mux.ServeHTTP(rec, r)

	b.mu.Lock()
	b.requests = append(b.requests, LoggedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
		Status:        rec.status,
	})
	b.mu.Unlock()
}

func (b *Backend) initRoutes() {
	b.mux.HandleFunc("POST "+RouteLogin, b.handleLogin)
	b.mux.HandleFunc("POST "+RouteRefresh, b.handleRefresh)
	b.mux.HandleFunc("POST "+RouteLogout, b.handleLogout)

	b.mux.HandleFunc("GET "+RouteMe, b.requireAuth(b.handleMe))
	b.mux.HandleFunc("GET "+RoutePosts, b.requireAuth(b.handleListPosts))
	b.mux.HandleFunc("POST "+RoutePosts, b.requireAuth(b.handleCreatePost))
	b.mux.HandleFunc("GET "+RoutePost, b.requireAuth(b.handleGetPost))
	b.mux.HandleFunc("PUT "+RoutePost, b.requireAuth(b.handleUpdatePost))
	b.mux.HandleFunc("DELETE "+RoutePost, b.requireAuth(b.handleDeletePost))
	b.mux.HandleFunc("GET "+RoutePostComments, b.requireAuth(b.handleListComments))
	b.mux.HandleFunc("POST "+RoutePostComments, b.requireAuth(b.handleCreateComment))
	b.mux.HandleFunc("DELETE "+RouteComment, b.requireAuth(b.handleDeleteComment))
	b.mux.HandleFunc("POST "+RoutePostLike, b.requireAuth(b.handleToggle(toggleLike, true)))
	b.mux.HandleFunc("DELETE "+RoutePostLike, b.requireAuth(b.handleToggle(toggleLike, false)))
	b.mux.HandleFunc("POST "+RoutePostBookmark, b.requireAuth(b.handleToggle(toggleBookmark, true)))
	b.mux.HandleFunc("DELETE "+RoutePostBookmark, b.requireAuth(b.handleToggle(toggleBookmark, false)))
	b.mux.HandleFunc("GET "+RouteTags, b.requireAuth(b.handleTags))
	b.mux.HandleFunc("GET "+RouteCategories, b.requireAuth(b.handleCategories))
	b.mux.HandleFunc("POST "+RouteUserFollow, b.requireAuth(b.handleFollow(true)))
	b.mux.HandleFunc("DELETE "+RouteUserFollow, b.requireAuth(b.handleFollow(false)))
	b.mux.HandleFunc("GET "+RouteNotifications, b.requireAuth(b.handleNotifications))
	b.mux.HandleFunc("PATCH "+RouteNotification, b.requireAuth(b.handleMarkRead))
	b.mux.HandleFunc("GET "+RouteSearch, b.requireAuth(b.handleSearch))
}

// AddUser registers an account and returns its ID.
func (b *Backend) AddUser(email, username, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Following:    make(map[string]bool),
	}
	b.usersByEmail[email] = u
	b.usersByID[u.ID] = u
	return u.ID, nil
}

// IssuePair logs a user in without a password, for seeding client stores.
func (b *Backend) IssuePair(email string) (oauth2.TokenPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.usersByEmail[email]
	if !ok {
		return oauth2.TokenPair{}, errInvalidRefreshToken
	}
	return b.issuePair(u.ID, u.Email)
}

// AddPost seeds a post authored by authorID.
func (b *Backend) AddPost(authorID string, in blog.PostInput) blog.Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.addPost(authorID, in)
}

// RevokeAccessTokens invalidates every access token issued so far,
// so the next request carrying one receives a 401.
func (b *Backend) RevokeAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, jti := range b.issued {
		b.revoked[jti] = true
	}
}

// GateRefresh makes refresh calls wait until the returned func is called.
func (b *Backend) GateRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.refreshGate == gate {
				b.refreshGate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// DelayRefresh makes every refresh call sleep for d before answering.
func (b *Backend) DelayRefresh(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshWait = d
}

// FailRefresh makes refresh calls answer with status. Zero restores normal behaviour.
func (b *Backend) FailRefresh(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshStatus = status
}

// RejectPath makes every request to path answer 401, whatever its token.
func (b *Backend) RejectPath(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectPaths[path] = true
}

// DelayPath makes authenticated requests to path wait d before being handled.
func (b *Backend) DelayPath(path string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pathDelays[path] = d
}

// RefreshCalls is the number of requests the refresh endpoint received.
func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// Requests returns the requests received so far, in arrival order.
func (b *Backend) Requests() []LoggedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LoggedRequest(nil), b.requests...)
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req oauth2.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	u, ok := b.usersByEmail[req.Email]
	b.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	b.mu.Lock()
	pair, err := b.issuePair(u.ID, u.Email)
	b.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	b.setRefreshCookie(w, pair.RefreshToken)
	writeData(w, http.StatusOK, oauth2.LoginResponse{
		TokenPair: pair,
		User:      &oauth2.User{ID: u.ID, Email: u.Email, Username: u.Username},
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.refreshCalls++
	gate := b.refreshGate
	wait := b.refreshWait
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-r.Context().Done():
			return
		}
	}

	b.mu.Lock()
	status := b.refreshStatus
	b.mu.Unlock()
	if status != 0 {
		writeError(w, status, "refresh token expired")
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	b.mu.Lock()
	pair, err := b.rotate(cookie.Value)
	b.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	b.setRefreshCookie(w, pair.RefreshToken)
	writeData(w, http.StatusOK, pair)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		b.mu.Lock()
		if rt, ok := b.refreshTokens[cookie.Value]; ok {
			delete(b.refreshTokens, cookie.Value)
			delete(b.refreshByUser, rt.UserID)
		}
		b.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeData(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

func (b *Backend) requireAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		rejected := b.rejectPaths[r.URL.Path]
		delay := b.pathDelays[r.URL.Path]
		userID, err := b.authenticate(r.Header.Get("Authorization"))
		b.mu.Unlock()

		if rejected || err != nil {
			writeError(w, http.StatusUnauthorized, "jwt expired")
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		next(w, r, userID)
	}
}

func (b *Backend) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refreshToken,
		Path:     "/",
		Expires:  b.nowFunc().Add(b.refreshTTL),
		HttpOnly: true,
	})
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oauth2.Envelope[any]{Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
