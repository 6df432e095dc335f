// Package index keeps the built search indexes in memory, keyed by
// repository id. Indexes are never persisted; after a restart the registry
// is empty.
package index

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/metadata"
	"github.com/fyrsmithlabs/codematrix/internal/vectorstore"
)

// Chunk is a fragment of a source file.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Entry is a built index for one repository.
type Entry struct {
	RepoID   string
	Chunks   []Chunk
	Search   vectorstore.SearchHandle
	Metadata *metadata.RepoMetadata
	BuiltAt  time.Time
}

// Registry maps repository ids to entries. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	logger  *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*Entry),
		logger:  logger,
	}
}

// Put stores e under id, replacing and closing any previous entry.
func (r *Registry) Put(id string, e *Entry) {
	r.mu.Lock()
	old := r.entries[id]
	r.entries[id] = e
	r.mu.Unlock()

	if old != nil && old != e {
		closeEntry(old, r.logger)
	}
}

// Get returns the entry stored under exactly id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// GetFuzzy tries an exact match, then any key that contains id or is
// contained in it. Keys are scanned in sorted order so the result is
// deterministic.
//
// This is imprecise when ids are substrings of each other: "app" matches
// both "my-app" and "app-v2" and the lexically first wins. It exists to
// find entries whose ids gained a disambiguating suffix.
func (r *Registry) GetFuzzy(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[id]; ok {
		return e, true
	}
	if id == "" {
		return nil, false
	}

	var matches []string
	for _, key := range r.sortedKeysLocked() {
		if strings.Contains(key, id) || strings.Contains(id, key) {
			matches = append(matches, key)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	if len(matches) > 1 {
		r.logger.Debug("ambiguous fuzzy index lookup",
			zap.String("requested", id),
			zap.Strings("matches", matches),
			zap.String("chosen", matches[0]))
	}
	return r.entries[matches[0]], true
}

// Remove deletes the entry under id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	old, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		closeEntry(old, r.logger)
	}
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	old := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range old {
		closeEntry(e, r.logger)
	}
}

// List returns the stored ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedKeysLocked()
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// First returns the lexically first id.
func (r *Registry) First() (string, bool) {
	keys := r.List()
	if len(keys) == 0 {
		return "", false
	}
	return keys[0], true
}

func (r *Registry) sortedKeysLocked() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func closeEntry(e *Entry, logger *zap.Logger) {
	if e == nil || e.Search == nil {
		return
	}
	if err := e.Search.Close(); err != nil {
		logger.Warn("failed to release search index", zap.String("repo_id", e.RepoID), zap.Error(err))
	}
}
