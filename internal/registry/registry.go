// Package registry tracks spawned processes and their accumulated output.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/procview/internal/document"
	"github.com/zjrosen/procview/internal/log"
)

// ErrDuplicateProcessID is returned by Register when the ID is already tracked.
var ErrDuplicateProcessID = errors.New("duplicate process id")

// Registry owns the set of tracked processes. It is safe for concurrent use;
// appends for one entry are serialized by that entry's lock.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[ProcessID]*Entry
	lastID  ProcessID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID: make(map[ProcessID]*Entry),
	}
}

// NextID assigns the next process ID (last assigned + 1).
func (r *Registry) NextID() ProcessID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	return r.lastID
}

// Register adds an entry.
func (r *Registry) Register(e *Entry) error {
	if e == nil {
		return fmt.Errorf("register: entry cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[e.ID]; exists {
		return fmt.Errorf("register process %s: %w", e.ID, ErrDuplicateProcessID)
	}
	if e.ID > r.lastID {
		r.lastID = e.ID
	}

	r.byID[e.ID] = e
	r.entries = append(r.entries, e)
	log.Debug(log.CatRegistry, "registered process", "id", e.ID, "command", e.Command)
	return nil
}

// FindByID looks up an entry by process ID.
func (r *Registry) FindByID(id ProcessID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

// FindByDocument returns the entry whose document identity has the same
// canonical encoding as doc.
func (r *Registry) FindByDocument(doc document.Identity) (*Entry, bool) {
	key := doc.String()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Document.String() == key {
			return e, true
		}
	}
	return nil, false
}

// AppendOutput appends chunk to the entry's output and returns the entry.
// An unknown ID is silently ignored.
func (r *Registry) AppendOutput(id ProcessID, chunk string) (*Entry, bool) {
	e, ok := r.FindByID(id)
	if !ok {
		log.Debug(log.CatRegistry, "output for unknown process ignored", "id", id)
		return nil, false
	}
	e.appendChunk(chunk)
	return e, true
}

// List returns entries in registration order.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Evict drops a detached entry. Entries that still hold a handle are kept.
// The ID is never handed out again.
func (r *Registry) Evict(id ProcessID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return false
	}
	if _, detached := e.Detached(); !detached {
		log.Warn(log.CatRegistry, "refusing to evict attached process", "id", id)
		return false
	}

	delete(r.byID, id)
	for i, cur := range r.entries {
		if cur.ID == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			break
		}
	}
	log.Debug(log.CatRegistry, "evicted process", "id", id)
	return true
}
