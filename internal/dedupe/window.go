// ABOUTME: TTL window of webhook message ids already claimed for processing
// ABOUTME: Drops Webex redeliveries of a message the relay is handling or has answered

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// claim records when a message id was claimed and its position in claim order.
type claim struct {
	at      time.Time
	element *list.Element
}

// Window remembers message ids for a fixed time. At capacity the oldest claim
// is forgotten first.
type Window struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // message ids, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a window remembering ids for ttl, holding at most maxSize ids.
func New(ttl time.Duration, maxSize int) *Window {
	w := &Window{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweep()
	return w
}

// Claim marks messageID as being handled. It reports false when the id was
// already claimed within the window, meaning the caller must drop the event.
func (w *Window) Claim(messageID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.claims[messageID]; ok {
		if !w.expiredLocked(c) {
			return false
		}
		w.order.Remove(c.element)
		delete(w.claims, messageID)
	}

	if w.maxSize > 0 && len(w.claims) >= w.maxSize {
		w.dropOldestLocked()
	}

	w.claims[messageID] = &claim{
		at:      w.now(),
		element: w.order.PushBack(messageID),
	}
	return true
}

// Release forgets messageID so a redelivery is processed again. Used when
// handling failed before a reply went out.
func (w *Window) Release(messageID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.claims[messageID]; ok {
		w.order.Remove(c.element)
		delete(w.claims, messageID)
	}
}

// Seen reports whether messageID is claimed and unexpired.
func (w *Window) Seen(messageID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.claims[messageID]
	return ok && !w.expiredLocked(c)
}

// Len returns the number of remembered ids, expired ones included until the next sweep.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.claims)
}

func (w *Window) expiredLocked(c *claim) bool {
	return w.now().Sub(c.at) >= w.ttl
}

// dropOldestLocked forgets the oldest claim. O(1).
func (w *Window) dropOldestLocked() {
	front := w.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	w.order.Remove(front)
	delete(w.claims, id)
}

// sweep periodically forgets expired ids until Close.
func (w *Window) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweepExpired()
		case <-w.done:
			return
		}
	}
}

func (w *Window) sweepExpired() {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Claims are ordered by time, so stop at the first live one.
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		id, _ := front.Value.(string)
		c := w.claims[id]
		if c != nil && !w.expiredLocked(c) {
			return
		}
		w.order.Remove(front)
		delete(w.claims, id)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		close(w.done)
		w.closed = true
	}
}
