package cache

import "sync"

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Size returns the current number of items in the cache
	Size() int
}

// Store is a process-lifetime cache. Entries are never evicted or expired;
// a restart is the only way to drop them.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	hits  int64
	miss  int64
}

// Stats is a point-in-time view of a Store's usage.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// NewStore creates an empty Store
func NewStore[T any]() *Store[T] {
	return &Store[T]{items: make(map[string]T)}
}

// Get retrieves a value from the cache
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.items[key]
	if ok {
		s.hits++
	} else {
		s.miss++
	}
	return data, ok
}

// Set stores a value, replacing any previous value for key
func (s *Store[T]) Set(key string, data T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = data
}

// Size returns the current number of items in the cache
func (s *Store[T]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store[T]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Entries: len(s.items), Hits: s.hits, Misses: s.miss}
}
