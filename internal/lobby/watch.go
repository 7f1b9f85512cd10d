package lobby

import (
	"context"
	"sync/atomic"

	"github.com/Termdamp/MatchMixer/internal/domain/balancer"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
)

// EventKind classifies a room push from one player's point of view.
type EventKind string

// Event kinds. All but EventUpdated end a watch.
const (
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
	EventStarted EventKind = "started"
	EventClosed  EventKind = "closed"
)

// Terminal reports whether the player's lobby view ends with k.
func (k EventKind) Terminal() bool {
	return k != EventUpdated
}

// Event is one classified push. Teams is set for EventStarted and is computed
// locally from the pushed player list.
type Event struct {
	Kind  EventKind
	Room  *model.Room
	Teams *balancer.Result
}

// Subscriber is the part of Coordinator Watch needs.
type Subscriber interface {
	SubscribeRoom(ctx context.Context, code string, onChange func(*model.Room)) (func(), error)
}

// Classify turns a pushed room into an event for player me.
func Classify(room *model.Room, me string) Event {
	switch {
	case room == nil:
		return Event{Kind: EventClosed}
	case room.IndexOf(me) < 0:
		return Event{Kind: EventRemoved, Room: room}
	case room.Status == model.StatusStarted:
		ev := Event{Kind: EventStarted, Room: room}
		if res, err := balancer.Balance(room.Players); err == nil {
			ev.Teams = &res
		}
		return ev
	default:
		return Event{Kind: EventUpdated, Room: room}
	}
}

// Watch follows room code on behalf of me, passing every event to handler
// (which may be nil), until a terminal event arrives or ctx is done. It
// returns the terminal event.
func Watch(ctx context.Context, sub Subscriber, code, me string, handler func(Event)) (Event, error) {
	done := make(chan Event, 1)
	var finished atomic.Bool

	unsubscribe, err := sub.SubscribeRoom(ctx, code, func(room *model.Room) {
		if finished.Load() {
			return
		}
		ev := Classify(room, me)
		if handler != nil {
			handler(ev)
		}
		if ev.Kind.Terminal() {
			finished.Store(true)
			done <- ev
		}
	})
	if err != nil {
		return Event{}, err
	}
	defer unsubscribe()

	select {
	case ev := <-done:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
