package lobby

import (
	"errors"

	"github.com/Termdamp/MatchMixer/internal/adapters/repository"
	"github.com/Termdamp/MatchMixer/internal/domain/balancer"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
)

// Sentinel kinds for lobby errors.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomClosed         = errors.New("room is closed")
	ErrNameTaken          = errors.New("name already taken in room")
	ErrNotHost            = errors.New("only the host can do that")
	ErrPlayerNotFound     = errors.New("player not in room")
	ErrWriteConflict      = errors.New("room kept changing, write abandoned")
	ErrCodeSpaceExhausted = errors.New("no free room code found")

	// Shared with the packages that raise them.
	ErrInsufficientPlayers = balancer.ErrInsufficientPlayers
	ErrInvalidParticipant  = model.ErrInvalidParticipant
	ErrStoreUnavailable    = repository.ErrUnavailable
)
