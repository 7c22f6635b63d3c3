package blog

import "time"

// Post is a published article.
type Post struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug,omitempty"`
	Body       string    `json:"body"`
	AuthorID   string    `json:"authorId"`
	Tags       []string  `json:"tags,omitempty"`
	Category   string    `json:"category,omitempty"`
	Likes      int       `json:"likes"`
	Liked      bool      `json:"liked,omitempty"`
	Bookmarked bool      `json:"bookmarked,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// PostInput is the writable subset of a Post.
type PostInput struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type NotificationKind string

const (
	NotificationLike    NotificationKind = "like"
	NotificationComment NotificationKind = "comment"
	NotificationFollow  NotificationKind = "follow"
)

type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Page is a slice of a paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ListOptions narrows a post listing. Zero values are omitted from the query.
type ListOptions struct {
	Page     int
	Limit    int
	Tag      string
	Category string
	AuthorID string
}

// SearchResults groups the hits of a search query.
type SearchResults struct {
	Query string `json:"query"`
	Posts []Post `json:"posts"`
	Tags  []Tag  `json:"tags,omitempty"`
}
