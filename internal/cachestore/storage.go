// Package cachestore owns the versioned response cache namespaces and
// their lifecycle (install precache, activation garbage collection).
package cachestore

import (
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// Namespace is a named key-value store of (request URL → Entry) pairs.
// Safe for concurrent use.
type Namespace struct {
	name  string
	store *gocache.Cache
}

// Name returns the namespace name.
func (ns *Namespace) Name() string {
	return ns.name
}

// Match returns the cached entry for the given request URL, if any.
func (ns *Namespace) Match(url string) (*Entry, bool) {
	v, ok := ns.store.Get(url)
	if !ok {
		return nil, false
	}
	entry, ok := v.(*Entry)
	return entry, ok
}

// Put stores an entry under its request URL, overwriting any previous one.
func (ns *Namespace) Put(url string, entry *Entry) {
	ns.store.Set(url, entry, gocache.NoExpiration)
}

// Keys returns all cached request URLs, sorted.
func (ns *Namespace) Keys() []string {
	items := ns.store.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached entries.
func (ns *Namespace) Len() int {
	return ns.store.ItemCount()
}

// Storage enumerates all cache namespaces, keyed by name. It is the Go
// analogue of the browser's CacheStorage: namespaces are created on first
// open and deleted as whole units.
type Storage struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// NewStorage creates an empty Storage.
func NewStorage() *Storage {
	return &Storage{namespaces: make(map[string]*Namespace)}
}

// Open returns the namespace with the given name, creating it if needed.
func (s *Storage) Open(name string) *Namespace {
	s.mu.RLock()
	ns, ok := s.namespaces[name]
	s.mu.RUnlock()
	if ok {
		return ns
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok = s.namespaces[name]; ok {
		return ns
	}
	ns = &Namespace{
		name:  name,
		store: gocache.New(gocache.NoExpiration, 0),
	}
	s.namespaces[name] = ns
	return ns
}

// Get returns the namespace with the given name without creating it.
func (s *Storage) Get(name string) (*Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[name]
	return ns, ok
}

// Delete removes a namespace and all its entries. Returns whether the
// namespace existed.
func (s *Storage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[name]; !ok {
		return false
	}
	delete(s.namespaces, name)
	return true
}

// Names returns all existing namespace names, sorted.
func (s *Storage) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear deletes every namespace unconditionally. Used by the clearCache
// control message.
func (s *Storage) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.namespaces)
	s.namespaces = make(map[string]*Namespace)
	return n
}
