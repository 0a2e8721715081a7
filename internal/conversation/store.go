// ABOUTME: Keyed, TTL-expiring, size-limited store of live conversation sessions
// ABOUTME: Keeps one transcript per room or person; Ephemeral builds a fresh session per event

package conversation

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionBuilder creates a session for a conversation key.
type SessionBuilder interface {
	New(ctx context.Context, key string) (*Session, error)
}

// storeEntry tracks when a session was last used and its place in the LRU order.
type storeEntry struct {
	session  *Session
	lastUsed time.Time
	element  *list.Element
}

// Store keeps sessions keyed by conversation. Sessions idle for longer than the
// TTL expire, and the least recently used session is evicted at capacity.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	order   *list.List // keys, least recently used at front
	ttl     time.Duration
	maxSize int
	builder SessionBuilder
	logger  *slog.Logger
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewStore creates a session store. A background goroutine drops expired sessions.
func NewStore(builder SessionBuilder, ttl time.Duration, maxSize int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		entries: make(map[string]*storeEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		builder: builder,
		logger:  logger.With("component", "session-store"),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Get returns the live session for key, building one when none exists or the
// previous one expired. Building happens outside the lock.
func (s *Store) Get(ctx context.Context, key string) (*Session, error) {
	if session := s.lookup(key); session != nil {
		return session, nil
	}

	built, err := s.builder.New(ctx, key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have built one for the same key meanwhile.
	if entry, ok := s.entries[key]; ok && !s.expiredLocked(entry) {
		s.touchLocked(entry)
		return entry.session, nil
	}

	s.insertLocked(key, built)
	return built, nil
}

// Reset restarts the transcript of the live session for key, if there is one.
// A conversation without a live session already starts fresh on its next Get.
func (s *Store) Reset(_ context.Context, key string) error {
	session := s.lookup(key)
	if session == nil {
		s.logger.Debug("reset without live session", "conversation", key)
		return nil
	}
	return session.Reset()
}

// Len returns the number of stored sessions, including expired ones not yet cleaned up.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup returns the unexpired session for key and marks it used, or nil.
func (s *Store) lookup(key string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if s.expiredLocked(entry) {
		s.removeLocked(key, entry)
		return nil
	}
	s.touchLocked(entry)
	return entry.session
}

func (s *Store) expiredLocked(entry *storeEntry) bool {
	return s.ttl > 0 && s.now().Sub(entry.lastUsed) >= s.ttl
}

func (s *Store) touchLocked(entry *storeEntry) {
	entry.lastUsed = s.now()
	s.order.MoveToBack(entry.element)
}

// insertLocked adds or replaces the session for key. Must be called with mu held.
func (s *Store) insertLocked(key string, session *Session) {
	if entry, ok := s.entries[key]; ok {
		s.removeLocked(key, entry)
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldestLocked()
	}

	elem := s.order.PushBack(key)
	s.entries[key] = &storeEntry{
		session:  session,
		lastUsed: s.now(),
		element:  elem,
	}
}

func (s *Store) removeLocked(key string, entry *storeEntry) {
	s.order.Remove(entry.element)
	delete(s.entries, key)
}

// evictOldestLocked drops the least recently used session. O(1).
func (s *Store) evictOldestLocked() {
	front := s.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.entries, key)
	s.logger.Debug("evicted least recently used session", "conversation", key)
}

// cleanup runs in a background goroutine, periodically removing expired sessions.
func (s *Store) cleanup() {
	interval := time.Minute
	if s.ttl > 0 && s.ttl < interval {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-s.done:
			return
		}
	}
}

// runCleanup removes all expired sessions.
func (s *Store) runCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if s.expiredLocked(entry) {
			s.removeLocked(key, entry)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("expired idle sessions", "count", removed, "remaining", len(s.entries))
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}

// Ephemeral hands out a brand-new session for every Get and keeps nothing,
// so no transcript outlives the event that created it.
type Ephemeral struct {
	builder SessionBuilder
}

// NewEphemeral creates a per-event session source.
func NewEphemeral(builder SessionBuilder) *Ephemeral {
	return &Ephemeral{builder: builder}
}

// Get builds a fresh session.
func (e *Ephemeral) Get(ctx context.Context, key string) (*Session, error) {
	return e.builder.New(ctx, key)
}

// Reset is a no-op: there is no retained transcript to reset.
func (e *Ephemeral) Reset(context.Context, string) error {
	return nil
}

// Close is a no-op.
func (e *Ephemeral) Close() {}
