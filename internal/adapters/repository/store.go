// Package repository defines the room store interface and an in-memory implementation.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/pkg/metrics"
)

// AnyVersion disables the version check of Update and Delete.
const AnyVersion int64 = 0

// Patch is a partial update of a room's top-level fields. Nil fields are left
// unchanged; Players replaces the whole list when non-nil.
type Patch struct {
	Host    *string
	IsOpen  *bool
	Status  *model.Status
	Players []model.Participant
}

// Apply merges p into r.
func (p Patch) Apply(r *model.Room) {
	if p.Host != nil {
		r.Host = *p.Host
	}
	if p.IsOpen != nil {
		r.IsOpen = *p.IsOpen
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Players != nil {
		r.Players = append([]model.Participant(nil), p.Players...)
	}
}

// Store is a document store of rooms keyed by code with change notifications.
// Every successful write bumps the room version by one; a created room starts
// at version 1. Returned rooms are copies owned by the caller.
type Store interface {
	// Get returns the room or ErrNotFound.
	Get(ctx context.Context, code string) (*model.Room, error)

	// Create writes room only if its code is free, else ErrAlreadyExists.
	Create(ctx context.Context, room *model.Room) (*model.Room, error)

	// Set overwrites (or creates) the whole document.
	Set(ctx context.Context, room *model.Room) (*model.Room, error)

	// Update merges patch into the room. With ifVersion other than AnyVersion
	// the write only happens if the stored version matches, else
	// ErrVersionConflict. Missing rooms yield ErrNotFound.
	Update(ctx context.Context, code string, patch Patch, ifVersion int64) (*model.Room, error)

	// Delete removes the room under the same version rule as Update.
	Delete(ctx context.Context, code string, ifVersion int64) error

	// Subscribe delivers the current document, then every later one, to fn;
	// nil means the room does not exist. The returned func unsubscribes.
	Subscribe(ctx context.Context, code string, fn func(*model.Room)) (func(), error)

	// Count returns the number of stored rooms.
	Count(ctx context.Context) (int, error)

	// Close releases resources and ends subscriptions.
	Close() error
}

// ObserveOperation records latency of a store call and counts unavailability.
func ObserveOperation(driver, operation string, start time.Time, err error) {
	metrics.RecordStoreOperation(driver, operation, float64(time.Since(start).Microseconds())/1000)
	if err != nil && errors.Is(err, ErrUnavailable) {
		metrics.RecordStoreError(driver, operation)
	}
}
