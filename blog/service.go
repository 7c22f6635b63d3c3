// Package blog provides typed access to the blog content and interaction endpoints.
package blog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-blog-client/apiclient"
	apperrors "github.com/jrsteele09/go-blog-client/internal/errors"
)

var (
	ErrNotFound       = apperrors.ErrNotFound
	ErrInvalidRequest = apperrors.ErrInvalidRequest
)

// API is the subset of apiclient.Client the service needs.
type API interface {
	DoJSON(ctx context.Context, req *apiclient.Request, out any) error
}

// Profile is the account returned by the /me endpoint.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type Service struct {
	api     API
	history *SearchHistory
	log     zerolog.Logger
}

type ServiceOption func(*Service)

// WithSearchHistory records every successful search query in h.
func WithSearchHistory(h *SearchHistory) ServiceOption {
	return func(s *Service) {
		s.history = h
	}
}

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = logger
	}
}

func NewService(api API, options ...ServiceOption) *Service {
	s := &Service{api: api, log: log.Logger}
	for _, opt := range options {
		opt(s)
	}
	s.log = s.log.With().Str("component", "blog").Logger()
	return s
}

func (s *Service) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := s.get(ctx, "/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPosts returns one page of posts matching opts.
func (s *Service) ListPosts(ctx context.Context, opts ListOptions) (*Page[Post], error) {
	var page Page[Post]
	if err := s.get(ctx, "/posts", opts.query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPost fetches a post by ID or slug.
func (s *Service) GetPost(ctx context.Context, idOrSlug string) (*Post, error) {
	if err := requireID("post", idOrSlug); err != nil {
		return nil, err
	}
	var p Post
	if err := s.get(ctx, "/posts/"+url.PathEscape(idOrSlug), nil, &p); err != nil {
		if apiclient.StatusCode(err) == http.StatusNotFound {
			return nil, apperrors.Wrapf(ErrNotFound, "post %q", idOrSlug)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Service) CreatePost(ctx context.Context, in PostInput) (*Post, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "post title is required")
	}
	var p Post
	if err := s.send(ctx, http.MethodPost, "/posts", in, &p); err != nil {
		return nil, err
	}
	s.log.Info().Str("post_id", p.ID).Msg("Post created")
	return &p, nil
}

func (s *Service) UpdatePost(ctx context.Context, id string, in PostInput) (*Post, error) {
	if err := requireID("post", id); err != nil {
		return nil, err
	}
	var p Post
	if err := s.send(ctx, http.MethodPut, "/posts/"+url.PathEscape(id), in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) DeletePost(ctx context.Context, id string) error {
	if err := requireID("post", id); err != nil {
		return err
	}
	return s.send(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), nil, nil)
}

func (s *Service) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	if err := requireID("post", postID); err != nil {
		return nil, err
	}
	var out []Comment
	if err := s.get(ctx, "/posts/"+url.PathEscape(postID)+"/comments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) AddComment(ctx context.Context, postID, body string) (*Comment, error) {
	if err := requireID("post", postID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "comment body is required")
	}
	var c Comment
	in := map[string]string{"body": body}
	if err := s.send(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", in, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) DeleteComment(ctx context.Context, id string) error {
	if err := requireID("comment", id); err != nil {
		return err
	}
	return s.send(ctx, http.MethodDelete, "/comments/"+url.PathEscape(id), nil, nil)
}

func (s *Service) Tags(ctx context.Context) ([]Tag, error) {
	var out []Tag
	if err := s.get(ctx, "/tags", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := s.get(ctx, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Like(ctx context.Context, postID string) (*Post, error) {
	return s.togglePost(ctx, http.MethodPost, postID, "like")
}

func (s *Service) Unlike(ctx context.Context, postID string) (*Post, error) {
	return s.togglePost(ctx, http.MethodDelete, postID, "like")
}

func (s *Service) Bookmark(ctx context.Context, postID string) (*Post, error) {
	return s.togglePost(ctx, http.MethodPost, postID, "bookmark")
}

func (s *Service) Unbookmark(ctx context.Context, postID string) (*Post, error) {
	return s.togglePost(ctx, http.MethodDelete, postID, "bookmark")
}

func (s *Service) Follow(ctx context.Context, userID string) error {
	if err := requireID("user", userID); err != nil {
		return err
	}
	return s.send(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/follow", nil, nil)
}

func (s *Service) Unfollow(ctx context.Context, userID string) error {
	if err := requireID("user", userID); err != nil {
		return err
	}
	return s.send(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID)+"/follow", nil, nil)
}

// Notifications lists the caller's notifications, optionally only unread ones.
func (s *Service) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	var q url.Values
	if unreadOnly {
		q = url.Values{"unread": {"true"}}
	}
	var out []Notification
	if err := s.get(ctx, "/notifications", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, id string) (*Notification, error) {
	if err := requireID("notification", id); err != nil {
		return nil, err
	}
	var n Notification
	if err := s.send(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Search queries posts and tags. Successful queries are added to the search
// history when one is configured.
func (s *Service) Search(ctx context.Context, query string) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "search query is required")
	}

	var res SearchResults
	if err := s.get(ctx, "/search", url.Values{"q": {query}}, &res); err != nil {
		return nil, err
	}

	if s.history != nil {
		if err := s.history.Add(query); err != nil {
			s.log.Err(err).Msg("Failed to record search history")
		}
	}
	return &res, nil
}

func (s *Service) togglePost(ctx context.Context, method, postID, action string) (*Post, error) {
	if err := requireID("post", postID); err != nil {
		return nil, err
	}
	var p Post
	if err := s.send(ctx, method, "/posts/"+url.PathEscape(postID)+"/"+action, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) get(ctx context.Context, path string, query url.Values, out any) error {
	return s.api.DoJSON(ctx, &apiclient.Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (s *Service) send(ctx context.Context, method, path string, body, out any) error {
	return s.api.DoJSON(ctx, &apiclient.Request{Method: method, Path: path, Body: body}, out)
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Tag != "" {
		q.Set("tag", o.Tag)
	}
	if o.Category != "" {
		q.Set("category", o.Category)
	}
	if o.AuthorID != "" {
		q.Set("author", o.AuthorID)
	}
	return q
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "%s id is required", kind)
	}
	return nil
}
