// Package registry tracks which users currently hold a live gateway
// connection. Every admitted connection is indexed twice, once per
// identifier space, and both entries always point at the same handle.
package registry

import (
	"sync"
	"time"
)

type entry[H comparable] struct {
	handle     H
	externalID string
	internalID string
	at         time.Time
}

// Registry is the in-process online-user index. H is the connection
// handle type; tests instantiate it with plain strings, the gateway
// with *gateway.Conn.
type Registry[H comparable] struct {
	mu         sync.RWMutex
	byExternal map[string]entry[H]
	byInternal map[string]entry[H]
}

func New[H comparable]() *Registry[H] {
	return &Registry[H]{
		byExternal: make(map[string]entry[H]),
		byInternal: make(map[string]entry[H]),
	}
}

// Register writes both identifier entries under one lock so no partial
// state is observable. A re-register for the same identifiers silently
// overwrites the earlier entries (last write wins; there is no
// duplicate-session detection).
func (r *Registry[H]) Register(handle H, externalID, internalID string) {
	e := entry[H]{handle: handle, externalID: externalID, internalID: internalID, at: time.Now()}
	r.mu.Lock()
	r.byExternal[externalID] = e
	r.byInternal[internalID] = e
	r.mu.Unlock()
}

// Lookup resolves a handle by either identifier space.
func (r *Registry[H]) Lookup(identifier string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byExternal[identifier]; ok {
		return e.handle, true
	}
	if e, ok := r.byInternal[identifier]; ok {
		return e.handle, true
	}
	var zero H
	return zero, false
}

// Deregister removes both entries for the given connection. An entry
// that has since been overwritten by a newer connection for the same
// user is left alone, which is why callers must pass the handle they
// registered with.
func (r *Registry[H]) Deregister(handle H, externalID, internalID string) {
	r.mu.Lock()
	if e, ok := r.byExternal[externalID]; ok && e.handle == handle {
		delete(r.byExternal, externalID)
	}
	if e, ok := r.byInternal[internalID]; ok && e.handle == handle {
		delete(r.byInternal, internalID)
	}
	r.mu.Unlock()
}

// Online reports whether the external identifier has a live entry.
func (r *Registry[H]) Online(externalID string) bool {
	r.mu.RLock()
	_, ok := r.byExternal[externalID]
	r.mu.RUnlock()
	return ok
}

// Count returns the number of distinct online connections. Entry count
// would double-count: each connection owns one entry per identifier
// space.
func (r *Registry[H]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[H]struct{}, len(r.byExternal))
	for _, e := range r.byExternal {
		seen[e.handle] = struct{}{}
	}
	for _, e := range r.byInternal {
		seen[e.handle] = struct{}{}
	}
	return len(seen)
}

// EntryCount returns the raw mapping-entry count, for diagnostics.
func (r *Registry[H]) EntryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byExternal) + len(r.byInternal)
}
