// Package notify fans room changes out to in-process subscribers.
//
// Each subscription owns a mailbox and a delivery goroutine, so callbacks for
// one subscriber run sequentially and in publish order while a slow
// subscriber never blocks the publisher or its peers.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/pkg/logger"
	"github.com/Termdamp/MatchMixer/pkg/metrics"
)

const defaultBufferSize = 32

// Callback receives a room document, or nil once the room no longer exists.
type Callback func(room *model.Room)

// Hub routes published documents to the subscribers of a room code.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[string]*subscription
	closed     bool
	bufferSize int
	logger     logger.Logger
}

// NewHub creates a hub with configuration options.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:       make(map[string]map[string]*subscription),
		bufferSize: defaultBufferSize,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers fn for code and queues initial as its first delivery.
// The returned cancel is idempotent; once it returns fn is not invoked again
// (a call already running on another goroutine is allowed to finish). It is
// safe to call cancel from inside fn.
//
// Callers that need initial to be ordered with respect to concurrent
// Publish calls must serialize the read of initial with their publishes.
func (h *Hub) Subscribe(code string, initial *model.Room, fn Callback) (id string, cancel func()) {
	s := &subscription{
		id:   uuid.NewString(),
		code: code,
		fn:   fn,
		box:  newMailbox(h.bufferSize),
		done: make(chan struct{}),
		hub:  h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return s.id, func() {}
	}
	bucket, ok := h.subs[code]
	if !ok {
		bucket = make(map[string]*subscription)
		h.subs[code] = bucket
	}
	bucket[s.id] = s
	h.mu.Unlock()

	metrics.AddActiveSubscriptions(1)
	h.logger.Debug(context.Background(), "subscription opened",
		logger.String("code", code), logger.String("subscription", s.id))

	s.push(initial)
	go s.run()
	return s.id, s.cancel
}

// Publish queues room for every subscriber of code. A nil room announces
// deletion.
func (h *Hub) Publish(code string, room *model.Room) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs[code] {
		s.push(room)
	}
}

// Watched reports whether code has at least one subscriber.
func (h *Hub) Watched(code string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[code]) > 0
}

// Codes returns the room codes that currently have subscribers.
func (h *Hub) Codes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	codes := make([]string, 0, len(h.subs))
	for code := range h.subs {
		codes = append(codes, code)
	}
	return codes
}

// Count returns the number of open subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, bucket := range h.subs {
		n += len(bucket)
	}
	return n
}

// Close cancels every subscription. Later Subscribe calls get a no-op handle.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*subscription
	for _, bucket := range h.subs {
		for _, s := range bucket {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.cancel()
	}
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bucket := h.subs[s.code]
	delete(bucket, s.id)
	if len(bucket) == 0 {
		delete(h.subs, s.code)
	}
}

type subscription struct {
	id   string
	code string
	fn   Callback
	box  *mailbox
	hub  *Hub

	once       sync.Once
	done       chan struct{}
	closed     atomic.Bool
	inCallback atomic.Bool
	deliverMu  sync.Mutex
}

func (s *subscription) push(room *model.Room) {
	if s.closed.Load() {
		return
	}
	if _, coalesced := s.box.offer(room.Clone()); coalesced > 0 {
		metrics.RecordNotificationsCoalesced(coalesced)
		s.hub.logger.Warn(context.Background(), "slow subscriber, pending updates coalesced",
			logger.String("code", s.code), logger.String("subscription", s.id), logger.Int("dropped", coalesced))
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.box.wake:
		}
		for _, room := range s.box.drain() {
			if !s.deliver(room) {
				return
			}
		}
	}
}

func (s *subscription) deliver(room *model.Room) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	s.fn(room)
	metrics.RecordNotificationDelivered()
	return true
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.hub.remove(s)
		metrics.AddActiveSubscriptions(-1)
		s.hub.logger.Debug(context.Background(), "subscription closed",
			logger.String("code", s.code), logger.String("subscription", s.id))
	})
	// Wait out a delivery that passed its closed check, unless we are that delivery.
	if !s.inCallback.Load() {
		s.deliverMu.Lock()
		s.deliverMu.Unlock() //nolint:staticcheck // barrier
	}
}
