package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Termdamp/MatchMixer/internal/adapters/mq/notify"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/pkg/logger"
)

const driverMemory = "memory"

// MemoryStore is a process-local Store. Writes and their notifications happen
// under one lock, so subscribers observe versions in commit order.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string]*model.Room
	closed bool

	hub    *notify.Hub
	logger logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		rooms:  make(map[string]*model.Room),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = notify.NewHub(notify.WithLogger(s.logger))
	}
	return s
}

// Get returns a copy of the room.
func (s *MemoryStore) Get(_ context.Context, code string) (room *model.Room, err error) {
	defer func(start time.Time) { ObserveOperation(driverMemory, "get", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Create stores room at version 1 if the code is free.
func (s *MemoryStore) Create(_ context.Context, room *model.Room) (out *model.Room, err error) {
	defer func(start time.Time) { ObserveOperation(driverMemory, "create", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if _, ok := s.rooms[room.Code]; ok {
		return nil, ErrAlreadyExists
	}
	stored := room.Clone()
	stored.Version = 1
	return s.commit(stored), nil
}

// Set overwrites the room, continuing its version sequence if it exists.
func (s *MemoryStore) Set(_ context.Context, room *model.Room) (out *model.Room, err error) {
	defer func(start time.Time) { ObserveOperation(driverMemory, "set", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stored := room.Clone()
	stored.Version = 1
	if prev, ok := s.rooms[room.Code]; ok {
		stored.Version = prev.Version + 1
	}
	return s.commit(stored), nil
}

// Update merges patch into the room when the version matches.
func (s *MemoryStore) Update(_ context.Context, code string, patch Patch, ifVersion int64) (out *model.Room, err error) {
	defer func(start time.Time) { ObserveOperation(driverMemory, "update", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	prev, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	if ifVersion != AnyVersion && prev.Version != ifVersion {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrVersionConflict, prev.Version, ifVersion)
	}
	next := prev.Clone()
	patch.Apply(next)
	next.Version = prev.Version + 1
	return s.commit(next), nil
}

// Delete removes the room when the version matches.
func (s *MemoryStore) Delete(_ context.Context, code string, ifVersion int64) (err error) {
	defer func(start time.Time) { ObserveOperation(driverMemory, "delete", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	prev, ok := s.rooms[code]
	if !ok {
		return ErrNotFound
	}
	if ifVersion != AnyVersion && prev.Version != ifVersion {
		return fmt.Errorf("%w: have %d, want %d", ErrVersionConflict, prev.Version, ifVersion)
	}
	delete(s.rooms, code)
	s.hub.Publish(code, nil)
	return nil
}

// Subscribe registers fn; the current document is its first delivery.
func (s *MemoryStore) Subscribe(_ context.Context, code string, fn func(*model.Room)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	_, cancel := s.hub.Subscribe(code, s.rooms[code], fn)
	return cancel, nil
}

// Count returns the number of rooms.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms), nil
}

// Close ends all subscriptions; later calls fail with ErrUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}

func (s *MemoryStore) commit(room *model.Room) *model.Room {
	s.rooms[room.Code] = room
	s.hub.Publish(room.Code, room)
	return room.Clone()
}

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return fmt.Errorf("%w: store closed", ErrUnavailable)
	}
	return nil
}
