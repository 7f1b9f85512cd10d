package notify

import (
	"sync"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
)

// mailbox is a bounded FIFO of room documents for one subscriber.
//
// Offers are filtered so the queue only ever moves forward: a room is
// accepted when its version is newer than the last accepted one, and nil
// (deleted) is accepted once per disappearance. Because every accepted entry
// is a full document, overflow can drop everything but the newest entry.
type mailbox struct {
	mu      sync.Mutex
	pending []*model.Room
	limit   int
	wake    chan struct{}

	seen        bool
	lastNil     bool
	lastVersion int64
}

func newMailbox(limit int) *mailbox {
	return &mailbox{
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

// offer queues room and reports whether it was accepted and how many pending
// entries were folded away to make room.
func (m *mailbox) offer(room *model.Room) (accepted bool, coalesced int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.seen:
	case room == nil && m.lastNil:
		return false, 0
	case room != nil && !m.lastNil && room.Version <= m.lastVersion:
		return false, 0
	}

	m.seen = true
	m.lastNil = room == nil
	if room != nil {
		m.lastVersion = room.Version
	}

	if len(m.pending) >= m.limit {
		coalesced = len(m.pending)
		clear(m.pending)
		m.pending = m.pending[:0]
	}
	m.pending = append(m.pending, room)

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true, coalesced
}

// drain hands over everything pending, oldest first.
func (m *mailbox) drain() []*model.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = make([]*model.Room, 0, len(out))
	return out
}
