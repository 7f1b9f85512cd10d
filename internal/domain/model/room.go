// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Score bounds accepted for a participant.
const (
	MinScore = 1
	MaxScore = 10
)

// CodeLength is the number of characters in a room code.
const CodeLength = 4

// CodeAlphabet lists the symbols a room code is drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Status is the lifecycle state of a room.
type Status string

// Room states. Started is terminal.
const (
	StatusWaiting Status = "waiting"
	StatusStarted Status = "started"
)

// ErrInvalidParticipant is returned for an empty name or an out-of-range score.
var ErrInvalidParticipant = errors.New("invalid participant")

// Participant is a player in a room or in an offline balance request.
type Participant struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	IsHost bool   `json:"isHost"`
}

// Room is the shared lobby document keyed by Code.
// Players order is join order and decides host succession.
type Room struct {
	Code    string        `json:"code"`
	Host    string        `json:"host"`
	IsOpen  bool          `json:"isOpen"`
	Status  Status        `json:"status"`
	Players []Participant `json:"players"`
	Version int64         `json:"version"` // bumped by every store write
}

// NewRoom returns a waiting, open room whose only player is the host.
func NewRoom(code, hostName string, score int) *Room {
	return &Room{
		Code:    code,
		Host:    hostName,
		IsOpen:  true,
		Status:  StatusWaiting,
		Players: []Participant{{Name: hostName, Score: score, IsHost: true}},
	}
}

// ValidateParticipant checks name and score.
func ValidateParticipant(name string, score int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidParticipant)
	}
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: score %d outside [%d,%d]", ErrInvalidParticipant, score, MinScore, MaxScore)
	}
	return nil
}

// ValidCode reports whether code has the room code shape.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// IndexOf returns the position of the named player or -1.
func (r *Room) IndexOf(name string) int {
	for i, p := range r.Players {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// HostIndex returns the position of the host or -1.
func (r *Room) HostIndex() int {
	for i, p := range r.Players {
		if p.IsHost {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy; stores hand out clones so callers never share a Players slice.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = append([]Participant(nil), r.Players...)
	return &c
}
