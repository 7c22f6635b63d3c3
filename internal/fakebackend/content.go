package fakebackend

import (
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-blog-client/blog"
	"github.com/jrsteele09/go-blog-client/internal/utils"
)

// addPost stores a new post. Callers hold b.mu.
func (b *Backend) addPost(authorID string, in blog.PostInput) *blog.Post {
	now := b.nowFunc()
	p := &blog.Post{
		ID:        uuid.New().String(),
		Title:     in.Title,
		Slug:      slugify(in.Title),
		Body:      in.Body,
		AuthorID:  authorID,
		Tags:      in.Tags,
		Category:  in.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.posts = append(b.posts, p)
	return p
}

// findPost returns the post with id or slug. Callers hold b.mu.
func (b *Backend) findPost(idOrSlug string) (*blog.Post, bool) {
	for _, p := range b.posts {
		if p.ID == idOrSlug || p.Slug == idOrSlug {
			return p, true
		}
	}
	return nil, false
}

// view decorates a post with the caller's like/bookmark state. Callers hold b.mu.
func (b *Backend) view(p *blog.Post, userID string) blog.Post {
	out := *p
	out.Likes = len(b.likes[p.ID])
	out.Liked = b.likes[p.ID][userID]
	out.Bookmarked = b.bookmarks[p.ID][userID]
	return out
}

func (b *Backend) handleMe(w http.ResponseWriter, _ *http.Request, userID string) {
	b.mu.Lock()
	u := b.usersByID[userID]
	b.mu.Unlock()
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": u.ID, "email": u.Email, "username": u.Username})
}

func (b *Backend) handleListPosts(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	page := utils.PositiveInt(q.Get("page"), 1)
	limit := utils.PositiveInt(q.Get("limit"), 10)

	b.mu.Lock()
	matched := make([]blog.Post, 0, len(b.posts))
	for _, p := range b.posts {
		if tag := q.Get("tag"); tag != "" && !slices.Contains(p.Tags, tag) {
			continue
		}
		if cat := q.Get("category"); cat != "" && p.Category != cat {
			continue
		}
		if author := q.Get("author"); author != "" && p.AuthorID != author {
			continue
		}
		matched = append(matched, b.view(p, userID))
	}
	b.mu.Unlock()

	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))
	writeData(w, http.StatusOK, blog.Page[blog.Post]{
		Items: matched[start:end],
		Total: len(matched),
		Page:  page,
		Limit: limit,
	})
}

func (b *Backend) handleGetPost(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.findPost(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	writeData(w, http.StatusOK, b.view(p, userID))
}

func (b *Backend) handleCreatePost(w http.ResponseWriter, r *http.Request, userID string) {
	var in blog.PostInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	b.mu.Lock()
	p := b.addPost(userID, in)
	out := b.view(p, userID)
	b.mu.Unlock()

	writeData(w, http.StatusCreated, out)
}

func (b *Backend) handleUpdatePost(w http.ResponseWriter, r *http.Request, userID string) {
	var in blog.PostInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.findPost(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if p.AuthorID != userID {
		writeError(w, http.StatusForbidden, "not the author")
		return
	}
	if in.Title != "" {
		p.Title = in.Title
		p.Slug = slugify(in.Title)
	}
	if in.Body != "" {
		p.Body = in.Body
	}
	if in.Tags != nil {
		p.Tags = in.Tags
	}
	if in.Category != "" {
		p.Category = in.Category
	}
	p.UpdatedAt = b.nowFunc()
	writeData(w, http.StatusOK, b.view(p, userID))
}

func (b *Backend) handleDeletePost(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, p := range b.posts {
		if p.ID != r.PathValue("id") {
			continue
		}
		if p.AuthorID != userID {
			writeError(w, http.StatusForbidden, "not the author")
			return
		}
		b.posts = append(b.posts[:i], b.posts[i+1:]...)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, "post not found")
}

func (b *Backend) handleListComments(w http.ResponseWriter, r *http.Request, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.findPost(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	out := make([]blog.Comment, 0)
	for _, c := range b.comments {
		if c.PostID == p.ID {
			out = append(out, *c)
		}
	}
	writeData(w, http.StatusOK, out)
}

func (b *Backend) handleCreateComment(w http.ResponseWriter, r *http.Request, userID string) {
	var in struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Body) == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.findPost(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	c := &blog.Comment{
		ID:        uuid.New().String(),
		PostID:    p.ID,
		AuthorID:  userID,
		Body:      in.Body,
		CreatedAt: b.nowFunc(),
	}
	b.comments = append(b.comments, c)
	b.notify(p.AuthorID, userID, blog.NotificationComment, "commented on "+p.Title)
	writeData(w, http.StatusCreated, c)
}

func (b *Backend) handleDeleteComment(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.comments {
		if c.ID != r.PathValue("id") {
			continue
		}
		if c.AuthorID != userID {
			writeError(w, http.StatusForbidden, "not the author")
			return
		}
		b.comments = append(b.comments[:i], b.comments[i+1:]...)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, "comment not found")
}

type toggleKind int

const (
	toggleLike toggleKind = iota
	toggleBookmark
)

func (b *Backend) handleToggle(kind toggleKind, on bool) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		b.mu.Lock()
		defer b.mu.Unlock()

		p, ok := b.findPost(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}

		set := b.likes
		if kind == toggleBookmark {
			set = b.bookmarks
		}
		if set[p.ID] == nil {
			set[p.ID] = make(map[string]bool)
		}
		if on {
			if kind == toggleLike && !set[p.ID][userID] {
				b.notify(p.AuthorID, userID, blog.NotificationLike, "liked "+p.Title)
			}
			set[p.ID][userID] = true
		} else {
			delete(set[p.ID], userID)
		}
		writeData(w, http.StatusOK, b.view(p, userID))
	}
}

func (b *Backend) handleFollow(on bool) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		b.mu.Lock()
		defer b.mu.Unlock()

		target, ok := b.usersByID[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if target.ID == userID {
			writeError(w, http.StatusBadRequest, "cannot follow yourself")
			return
		}
		me := b.usersByID[userID]
		if on {
			if !me.Following[target.ID] {
				b.notify(target.ID, userID, blog.NotificationFollow, "started following you")
			}
			me.Following[target.ID] = true
		} else {
			delete(me.Following, target.ID)
		}
		writeData(w, http.StatusOK, map[string]bool{"following": on})
	}
}

func (b *Backend) handleTags(w http.ResponseWriter, _ *http.Request, _ string) {
	b.mu.Lock()
	counts := map[string]int{}
	for _, p := range b.posts {
		for _, t := range p.Tags {
			counts[t]++
		}
	}
	b.mu.Unlock()

	tags := make([]blog.Tag, 0, len(counts))
	for name, n := range counts {
		tags = append(tags, blog.Tag{Name: name, Count: n})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Name < tags[j].Name
	})
	writeData(w, http.StatusOK, tags)
}

func (b *Backend) handleCategories(w http.ResponseWriter, _ *http.Request, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeData(w, http.StatusOK, b.categories)
}

func (b *Backend) handleNotifications(w http.ResponseWriter, r *http.Request, userID string) {
	unreadOnly := r.URL.Query().Get("unread") == "true"

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]blog.Notification, 0)
	for _, n := range b.notifications[userID] {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, *n)
	}
	writeData(w, http.StatusOK, out)
}

func (b *Backend) handleMarkRead(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, n := range b.notifications[userID] {
		if n.ID == r.PathValue("id") {
			n.Read = true
			writeData(w, http.StatusOK, *n)
			return
		}
	}
	writeError(w, http.StatusNotFound, "notification not found")
}

func (b *Backend) handleSearch(w http.ResponseWriter, r *http.Request, userID string) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	needle := strings.ToLower(query)

	b.mu.Lock()
	res := blog.SearchResults{Query: query, Posts: make([]blog.Post, 0)}
	tags := map[string]int{}
	for _, p := range b.posts {
		if strings.Contains(strings.ToLower(p.Title), needle) || strings.Contains(strings.ToLower(p.Body), needle) {
			res.Posts = append(res.Posts, b.view(p, userID))
		}
		for _, t := range p.Tags {
			if strings.Contains(strings.ToLower(t), needle) {
				tags[t]++
			}
		}
	}
	b.mu.Unlock()

	for name, n := range tags {
		res.Tags = append(res.Tags, blog.Tag{Name: name, Count: n})
	}
	sort.Slice(res.Tags, func(i, j int) bool { return res.Tags[i].Name < res.Tags[j].Name })
	writeData(w, http.StatusOK, res)
}

// notify records a notification for recipient unless the actor is the recipient.
// Callers hold b.mu.
func (b *Backend) notify(recipientID, actorID string, kind blog.NotificationKind, message string) {
	if recipientID == actorID {
		return
	}
	actor := actorID
	if u, ok := b.usersByID[actorID]; ok && u.Username != "" {
		actor = u.Username
	}
	b.notifications[recipientID] = append(b.notifications[recipientID], &blog.Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   actor + " " + message,
		CreatedAt: b.nowFunc(),
	})
}

func slugify(title string) string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}
