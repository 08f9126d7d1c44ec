package queue

import "sync"

type node struct {
	key  string
	prev *node
	next *node
}

// scopeSet remembers scope keys that are queued or in flight. When bounded,
// the oldest key is forgotten first.
type scopeSet struct {
	mu      sync.Mutex
	seen    map[string]*node
	head    *node // newest
	tail    *node // oldest
	maxSize int
}

func newScopeSet(maxSize int) *scopeSet {
	return &scopeSet{seen: make(map[string]*node), maxSize: maxSize}
}

// seenAndRecord reports whether key is already tracked and records it if not.
func (s *scopeSet) seenAndRecord(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true
	}
	if s.maxSize > 0 && len(s.seen) >= s.maxSize {
		s.unlink(s.tail)
	}
	n := &node{key: key, next: s.head}
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.seen[key] = n
	return false
}

// forget releases key so the scope can be queued again.
func (s *scopeSet) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.seen[key]; ok {
		s.unlink(n)
	}
}

func (s *scopeSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// unlink must be called with s.mu held.
func (s *scopeSet) unlink(n *node) {
	if n == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	delete(s.seen, n.key)
}
