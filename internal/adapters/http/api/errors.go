package api

import (
	"errors"
	"net/http"

	service "github.com/Termdamp/MatchMixer/internal/app"
	"github.com/Termdamp/MatchMixer/internal/lobby"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrInvalidCode = errors.New("room code must be 4 characters from A-Z and 0-9")
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeInvalidParticipant  = "invalid_participant"
	codeInvalidCode         = "invalid_code"
	codeRoomNotFound        = "room_not_found"
	codePlayerNotFound      = "player_not_found"
	codeNotHost             = "not_host"
	codeRoomClosed          = "room_closed"
	codeNameTaken           = "name_taken"
	codeInsufficientPlayers = "insufficient_players"
	codeWriteConflict       = "write_conflict"
	codeUnavailable         = "unavailable"
	codeInternal            = "internal"
)

// lobbyStatus maps lobby errors to an HTTP status and error code.
func lobbyStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, ErrInvalidCode):
		return http.StatusBadRequest, codeInvalidCode
	case errors.Is(err, lobby.ErrInvalidParticipant):
		return http.StatusBadRequest, codeInvalidParticipant
	case errors.Is(err, lobby.ErrRoomNotFound):
		return http.StatusNotFound, codeRoomNotFound
	case errors.Is(err, lobby.ErrPlayerNotFound):
		return http.StatusNotFound, codePlayerNotFound
	case errors.Is(err, lobby.ErrNotHost):
		return http.StatusForbidden, codeNotHost
	case errors.Is(err, lobby.ErrRoomClosed):
		return http.StatusConflict, codeRoomClosed
	case errors.Is(err, lobby.ErrNameTaken):
		return http.StatusConflict, codeNameTaken
	case errors.Is(err, lobby.ErrInsufficientPlayers):
		return http.StatusConflict, codeInsufficientPlayers
	case errors.Is(err, lobby.ErrWriteConflict):
		return http.StatusConflict, codeWriteConflict
	case errors.Is(err, lobby.ErrStoreUnavailable),
		errors.Is(err, lobby.ErrCodeSpaceExhausted),
		errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
