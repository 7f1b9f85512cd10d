// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Termdamp/MatchMixer/internal/domain/balancer"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/pkg/logger"
	"github.com/Termdamp/MatchMixer/pkg/metrics"
)

// maxBodyBytes caps request bodies; a full roster is far below it.
const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ReadinessChecker
	StatsProvider

	CreateRoom(ctx context.Context, name string, score int) (string, error)
	GetRoom(ctx context.Context, code string) (*model.Room, error)
	JoinRoom(ctx context.Context, code, name string, score int) error
	RemovePlayer(ctx context.Context, code, name string) error
	KickPlayer(ctx context.Context, code, requester, target string) error
	StartGame(ctx context.Context, code string) error
	Teams(ctx context.Context, code string) (balancer.Result, error)
	Balance(ctx context.Context, players []model.Participant) (balancer.Result, error)

	// SubscribeRoom registers onChange for every committed change to the
	// room; a nil room means it was deleted.
	SubscribeRoom(ctx context.Context, code string, onChange func(*model.Room)) (func(), error)
}

// Server wires HTTP routes for the lobby API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	roomsHandler   *RoomsHandler
	balanceHandler *BalanceHandler
	streamHandler  *StreamHandler
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	log          logger.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
}

// WithLogger sets the logger used by the streaming handler.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithWSWriteTimeout bounds a single websocket write.
func WithWSWriteTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithWSPingInterval sets how often idle websocket connections are pinged.
func WithWSPingInterval(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.pingInterval = d
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{
		log:          logger.Nop(),
		writeTimeout: 3 * time.Second,
		pingInterval: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		roomsHandler:   NewRoomsHandler(deps),
		balanceHandler: NewBalanceHandler(deps),
		streamHandler:  NewStreamHandler(deps, o.log, o.writeTimeout, o.pingInterval),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Post("/balance", MetricsMiddleware(s.balanceHandler.HandleBalance, "balance"))

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.roomsHandler.HandleCreate, "rooms_create"))
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", MetricsMiddleware(s.roomsHandler.HandleGet, "rooms_get"))
			r.Post("/players", MetricsMiddleware(s.roomsHandler.HandleJoin, "rooms_join"))
			r.Delete("/players/{name}", MetricsMiddleware(s.roomsHandler.HandleLeave, "rooms_leave"))
			r.Post("/kick", MetricsMiddleware(s.roomsHandler.HandleKick, "rooms_kick"))
			r.Post("/start", MetricsMiddleware(s.roomsHandler.HandleStart, "rooms_start"))
			r.Get("/teams", MetricsMiddleware(s.roomsHandler.HandleTeams, "rooms_teams"))
			r.Get("/ws", MetricsMiddleware(s.streamHandler.HandleStream, "rooms_ws"))
		})
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeLobbyError translates lobby and service errors into a JSON error body.
func writeLobbyError(w http.ResponseWriter, err error) {
	status, code := lobbyStatus(err)
	writeError(w, status, code, err)
}

// decodeJSON reads a single JSON object from r's body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// roomCode reads and normalizes the {code} path parameter.
func roomCode(r *http.Request) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if !model.ValidCode(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}
