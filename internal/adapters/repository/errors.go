package repository

import "errors"

// Sentinel kinds for room store errors.
var (
	ErrNotFound        = errors.New("room not found")
	ErrAlreadyExists   = errors.New("room already exists")
	ErrVersionConflict = errors.New("room version conflict")
	// ErrUnavailable marks transport or backend failures; the cause is joined to it.
	ErrUnavailable = errors.New("room store unavailable")
)
