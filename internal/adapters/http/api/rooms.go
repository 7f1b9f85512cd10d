package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/internal/lobby"
)

type participantRequest struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type createRoomResponse struct {
	Code string `json:"code"`
}

type kickRequest struct {
	Requester string `json:"requester"`
	Target    string `json:"target"`
}

type balanceRequest struct {
	Players []model.Participant `json:"players"`
}

// RoomsHandler serves the /rooms resource.
type RoomsHandler struct {
	deps Dependencies
}

// NewRoomsHandler creates a new rooms handler.
func NewRoomsHandler(deps Dependencies) *RoomsHandler {
	return &RoomsHandler{deps: deps}
}

// HandleCreate handles POST /rooms.
func (h *RoomsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeLobbyError(w, err)
		return
	}
	code, err := h.deps.CreateRoom(r.Context(), req.Name, req.Score)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	w.Header().Set("Location", "/rooms/"+code)
	writeJSON(w, http.StatusCreated, createRoomResponse{Code: code})
}

// HandleGet handles GET /rooms/{code}.
func (h *RoomsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	room, err := h.deps.GetRoom(r.Context(), code)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// HandleJoin handles POST /rooms/{code}/players.
func (h *RoomsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	var req participantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeLobbyError(w, err)
		return
	}
	if err := h.deps.JoinRoom(r.Context(), code, req.Name, req.Score); err != nil {
		writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLeave handles DELETE /rooms/{code}/players/{name}.
func (h *RoomsHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	name, err := playerName(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	if err := h.deps.RemovePlayer(r.Context(), code, name); err != nil {
		writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// playerName returns the decoded {name} path segment. chi matches on
// RawPath when the request needed it (an escaped "/" in the name), and only
// then is the parameter still escaped.
func playerName(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name, nil
	}
	decoded, err := url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return decoded, nil
}

// HandleKick handles POST /rooms/{code}/kick.
func (h *RoomsHandler) HandleKick(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	var req kickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeLobbyError(w, err)
		return
	}
	if err := h.deps.KickPlayer(r.Context(), code, req.Requester, req.Target); err != nil {
		writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStart handles POST /rooms/{code}/start.
func (h *RoomsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	if err := h.deps.StartGame(r.Context(), code); err != nil {
		writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTeams handles GET /rooms/{code}/teams.
func (h *RoomsHandler) HandleTeams(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	teams, err := h.deps.Teams(r.Context(), code)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

// BalanceHandler serves stateless team balancing.
type BalanceHandler struct {
	deps Dependencies
}

// NewBalanceHandler creates a new balance handler.
func NewBalanceHandler(deps Dependencies) *BalanceHandler {
	return &BalanceHandler{deps: deps}
}

// HandleBalance handles POST /balance. Too few players is a client error
// here since the caller supplied the roster.
func (h *BalanceHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeLobbyError(w, err)
		return
	}
	result, err := h.deps.Balance(r.Context(), req.Players)
	if errors.Is(err, lobby.ErrInsufficientPlayers) {
		writeError(w, http.StatusBadRequest, codeInsufficientPlayers, err)
		return
	}
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
