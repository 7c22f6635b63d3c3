package blog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultHistorySize is the number of queries kept when no size is given.
const DefaultHistorySize = 10

// SearchEntry is one remembered query.
type SearchEntry struct {
	Query      string    `json:"query"`
	SearchedAt time.Time `json:"searchedAt"`
}

// SearchHistory keeps the most recent distinct search queries, newest first.
// Queries differing only in case or surrounding space count as the same query.
// With a path, the history is loaded from and saved to a JSON file.
type SearchHistory struct {
	mu      sync.Mutex
	path    string
	size    int
	entries []SearchEntry
	nowFunc func() time.Time
}

type HistoryOption func(*SearchHistory)

func WithHistorySize(n int) HistoryOption {
	return func(h *SearchHistory) {
		h.size = n
	}
}

// WithHistoryFile persists the history at path.
func WithHistoryFile(path string) HistoryOption {
	return func(h *SearchHistory) {
		h.path = path
	}
}

func WithHistoryNowFunc(now func() time.Time) HistoryOption {
	return func(h *SearchHistory) {
		h.nowFunc = now
	}
}

// NewSearchHistory creates a history, loading any previously saved entries.
// A missing file is an empty history.
func NewSearchHistory(options ...HistoryOption) (*SearchHistory, error) {
	h := &SearchHistory{size: DefaultHistorySize, nowFunc: time.Now}
	for _, opt := range options {
		opt(h)
	}
	if h.size <= 0 {
		h.size = DefaultHistorySize
	}
	if h.path == "" {
		return h, nil
	}

	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "NewSearchHistory os.ReadFile")
	}
	if err := json.Unmarshal(data, &h.entries); err != nil {
		return nil, errors.Wrap(err, "NewSearchHistory json.Unmarshal")
	}
	if len(h.entries) > h.size {
		h.entries = h.entries[:h.size]
	}
	return h, nil
}

// Add moves query to the front of the history.
func (h *SearchHistory) Add(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]SearchEntry, 0, h.size)
	entries = append(entries, SearchEntry{Query: query, SearchedAt: h.nowFunc()})
	for _, e := range h.entries {
		if len(entries) == h.size {
			break
		}
		if strings.EqualFold(e.Query, query) {
			continue
		}
		entries = append(entries, e)
	}
	h.entries = entries
	return h.saveLocked()
}

// Entries returns a copy of the history, newest first.
func (h *SearchHistory) Entries() []SearchEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]SearchEntry(nil), h.entries...)
}

// Queries returns the remembered queries, newest first.
func (h *SearchHistory) Queries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Query
	}
	return out
}

func (h *SearchHistory) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	return h.saveLocked()
}

func (h *SearchHistory) saveLocked() error {
	if h.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "SearchHistory json.Marshal")
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		return errors.Wrap(err, "SearchHistory os.MkdirAll")
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "SearchHistory os.WriteFile")
	}
	return errors.Wrap(os.Rename(tmp, h.path), "SearchHistory os.Rename")
}
