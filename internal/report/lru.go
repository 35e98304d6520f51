package report

import "sync"

// LRUStore keeps the most recently used records in memory and writes
// through to a backing Store.
type LRUStore struct {
	mu   sync.Mutex
	cap  int
	back Store

	// most recent at head
	head, tail *node
	byID       map[string]*node
}

type node struct {
	id         string
	rec        *Record
	prev, next *node
}

// NewLRUStore returns a cache of capacity records in front of back. A
// capacity below 1 is raised to 1.
func NewLRUStore(capacity int, back Store) *LRUStore {
	capacity = max(capacity, 1)
	return &LRUStore{
		cap:  capacity,
		back: back,
		byID: make(map[string]*node, capacity),
	}
}

// Save caches rec and writes it to the backing store.
func (s *LRUStore) Save(rec *Record) error {
	s.put(rec.ID, rec)
	return s.back.Save(rec)
}

// Load serves from memory when possible. A miss reads the backing store
// and caches the record.
func (s *LRUStore) Load(runID string) (*Record, error) {
	s.mu.Lock()
	if n, ok := s.byID[runID]; ok {
		s.touch(n)
		rec := n.rec
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	rec, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}
	s.put(runID, rec)
	return rec, nil
}

// Len reports how many records are held in memory.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *LRUStore) put(id string, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		n.rec = rec
		s.touch(n)
		return
	}
	n := &node{id: id, rec: rec}
	s.byID[id] = n
	s.link(n)
	if len(s.byID) > s.cap {
		oldest := s.tail
		s.unlink(oldest)
		delete(s.byID, oldest.id)
	}
}

func (s *LRUStore) touch(n *node) {
	if s.head == n {
		return
	}
	s.unlink(n)
	s.link(n)
}

func (s *LRUStore) link(n *node) {
	n.prev, n.next = nil, s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *LRUStore) unlink(n *node) {
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
}
