package store

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when writing through a closed handle.
var ErrClosed = errors.New("store handle closed")

const watchBuffer = 64

// Shared is an in-memory store for contexts running inside one process.
// Every Open call produces a handle with its own change subscriptions;
// a write through one handle is fanned out to every other handle.
type Shared struct {
	mu      sync.RWMutex
	entries map[string][]byte
	handles map[int]*memHandle
	next    int
}

// NewShared creates an empty in-memory store.
func NewShared() *Shared {
	return &Shared{
		entries: make(map[string][]byte),
		handles: make(map[int]*memHandle),
	}
}

// Open registers a new context handle.
func (s *Shared) Open() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := &memHandle{shared: s, id: s.next}
	s.handles[s.next] = h
	s.next++
	return h
}

func (s *Shared) set(from int, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	s.entries[key] = cp
	s.notifyLocked(from, Change{Key: key, Value: cp})
}

func (s *Shared) delete(from int, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	s.notifyLocked(from, Change{Key: key, Deleted: true})
}

// notifyLocked fans the change out to every handle except the writer.
func (s *Shared) notifyLocked(from int, ch Change) {
	for id, h := range s.handles {
		if id == from {
			continue
		}
		h.deliver(ch)
	}
}

type memHandle struct {
	shared *Shared
	id     int

	mu     sync.Mutex
	subs   []chan Change
	closed bool
}

func (h *memHandle) Get(key string) ([]byte, bool) {
	h.shared.mu.RLock()
	defer h.shared.mu.RUnlock()

	v, ok := h.shared.entries[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

func (h *memHandle) Set(key string, value []byte) error {
	if h.isClosed() {
		return ErrClosed
	}
	h.shared.set(h.id, key, value)
	return nil
}

func (h *memHandle) Delete(key string) error {
	if h.isClosed() {
		return ErrClosed
	}
	h.shared.delete(h.id, key)
	return nil
}

func (h *memHandle) Watch() <-chan Change {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Change, watchBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	h.subs = append(h.subs, ch)
	return ch
}

func (h *memHandle) Close() error {
	h.shared.mu.Lock()
	delete(h.shared.handles, h.id)
	h.shared.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, ch := range h.subs {
		close(ch)
	}
	h.subs = nil
	return nil
}

func (h *memHandle) deliver(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- c:
		default:
			// Drop when subscriber is slow to avoid blocking writers.
			log.Warn().Str("key", c.Key).Msg("store change dropped for slow subscriber")
		}
	}
}

func (h *memHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
