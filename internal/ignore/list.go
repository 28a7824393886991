// Package ignore maintains the list of requests excluded from automatic
// staging proposals.
package ignore

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Store persists the ignore list as a whole.
type Store interface {
	Load(ctx context.Context) (map[int64]string, error)
	Save(ctx context.Context, entries map[int64]string) error
}

// Entry is an ignored request with its message.
type Entry struct {
	ID      int64
	Message string
}

// List is the ignore list of one project. It loads lazily on first use and
// Save rewrites the whole store, only when something changed.
type List struct {
	store Store

	mu      sync.Mutex
	entries map[int64]string
	loaded  bool
	dirty   bool
}

// NewList returns a List backed by store.
func NewList(store Store) *List {
	return &List{store: store}
}

// Load reads the store unless it has already been read.
func (l *List) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx)
}

func (l *List) loadLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	entries, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ignore list: %w", err)
	}
	if entries == nil {
		entries = make(map[int64]string)
	}
	l.entries = entries
	l.loaded = true
	return nil
}

// Add ignores id. It reports false when id was already ignored, in which
// case the stored message is kept.
func (l *List) Add(ctx context.Context, id int64, message string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return false, err
	}
	if _, ok := l.entries[id]; ok {
		return false, nil
	}
	l.entries[id] = message
	l.dirty = true
	return true, nil
}

// Remove stops ignoring id and reports whether it was ignored.
func (l *List) Remove(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return false, err
	}
	if _, ok := l.entries[id]; !ok {
		return false, nil
	}
	delete(l.entries, id)
	l.dirty = true
	return true, nil
}

// Clear empties the list and returns how many entries it held.
func (l *List) Clear(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return 0, err
	}
	n := len(l.entries)
	if n > 0 {
		l.entries = make(map[int64]string)
		l.dirty = true
	}
	return n, nil
}

// Lookup returns the message for id and whether id is ignored.
func (l *List) Lookup(ctx context.Context, id int64) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return "", false, err
	}
	msg, ok := l.entries[id]
	return msg, ok, nil
}

// Entries returns every ignored request ordered by id.
func (l *List) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(l.entries))
	for id, msg := range l.entries {
		out = append(out, Entry{ID: id, Message: msg})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// Dirty reports whether there are unsaved changes.
func (l *List) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Save writes the list back when it changed since loading.
func (l *List) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil
	}
	if err := l.store.Save(ctx, l.entries); err != nil {
		return fmt.Errorf("save ignore list: %w", err)
	}
	l.dirty = false
	return nil
}
