// Package service wires the room store, notification hub and lobby
// coordinator into the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Termdamp/MatchMixer/internal/adapters/mq/notify"
	"github.com/Termdamp/MatchMixer/internal/adapters/repository"
	"github.com/Termdamp/MatchMixer/internal/adapters/repository/sqlstore"
	"github.com/Termdamp/MatchMixer/internal/config"
	"github.com/Termdamp/MatchMixer/internal/domain/balancer"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/internal/lobby"
	"github.com/Termdamp/MatchMixer/pkg/logger"
)

// Service implements the API dependencies for the lobby system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	hub         *notify.Hub
	coordinator *lobby.Coordinator

	// Configuration
	driver             string
	dsn                string
	codeAttempts       int
	writeRetries       int
	subscriptionBuffer int
	codes              lobby.CodeGenerator

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore selects the store driver and its DSN.
func WithStore(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.driver = driver
			s.dsn = dsn
		}
	}
}

// WithCodeAttempts bounds room code draws per creation.
func WithCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

// WithWriteRetries bounds version conflict retries.
func WithWriteRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.writeRetries = n
		}
	}
}

// WithSubscriptionBuffer sets the per-subscriber mailbox size.
func WithSubscriptionBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.subscriptionBuffer = n
		}
	}
}

// WithCodeGenerator replaces the random room code source.
func WithCodeGenerator(g lobby.CodeGenerator) Option {
	return func(s *Service) {
		s.codes = g
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConfig applies every service setting found in cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		for _, opt := range []Option{
			WithStore(cfg.StoreDriver, cfg.StoreDSN),
			WithCodeAttempts(cfg.CodeAttempts),
			WithWriteRetries(cfg.WriteRetries),
			WithSubscriptionBuffer(cfg.SubscriptionBuffer),
		} {
			opt(s)
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		driver:             config.DriverMemory,
		codeAttempts:       8,
		writeRetries:       5,
		subscriptionBuffer: 32,
		logger:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and builds the coordinator.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting lobby service...", logger.String("driver", s.driver))

	hub := notify.NewHub(
		notify.WithBufferSize(s.subscriptionBuffer),
		notify.WithLogger(s.logger.Named("notify")),
	)
	store, err := s.openStore(ctx, hub)
	if err != nil {
		hub.Close()
		return err
	}

	s.hub = hub
	s.store = store
	s.coordinator = lobby.NewCoordinator(store,
		lobby.WithLogger(s.logger.Named("lobby")),
		lobby.WithCodeAttempts(s.codeAttempts),
		lobby.WithWriteRetries(s.writeRetries),
		lobby.WithCodeGenerator(s.codes),
	)
	s.started = true

	s.logger.Info(ctx, "lobby service started",
		logger.String("driver", s.driver),
		logger.Int("codeAttempts", s.codeAttempts),
		logger.Int("writeRetries", s.writeRetries),
		logger.Int("subscriptionBuffer", s.subscriptionBuffer),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context, hub *notify.Hub) (repository.Store, error) {
	storeLogger := s.logger.Named("store")
	switch s.driver {
	case config.DriverMemory:
		return repository.NewMemoryStore(repository.WithHub(hub), repository.WithLogger(storeLogger)), nil
	case config.DriverSQLite, config.DriverPostgres:
		store, err := sqlstore.Open(ctx, s.driver, s.dsn, sqlstore.WithHub(hub), sqlstore.WithLogger(storeLogger))
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", s.driver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.driver)
	}
}

// Stop closes the store, which ends every subscription.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping lobby service...")
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "store close failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "lobby service stopped")
}

func (s *Service) coord() (*lobby.Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.coordinator, nil
}

// CreateRoom opens a room hosted by name.
func (s *Service) CreateRoom(ctx context.Context, name string, score int) (string, error) {
	c, err := s.coord()
	if err != nil {
		return "", err
	}
	return c.CreateRoom(ctx, name, score)
}

// GetRoom returns the current room.
func (s *Service) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	c, err := s.coord()
	if err != nil {
		return nil, err
	}
	return c.GetRoom(ctx, code)
}

// JoinRoom adds a player to an open room.
func (s *Service) JoinRoom(ctx context.Context, code, name string, score int) error {
	c, err := s.coord()
	if err != nil {
		return err
	}
	return c.JoinRoom(ctx, code, name, score)
}

// RemovePlayer takes a player out of a room.
func (s *Service) RemovePlayer(ctx context.Context, code, name string) error {
	c, err := s.coord()
	if err != nil {
		return err
	}
	return c.RemovePlayer(ctx, code, name)
}

// KickPlayer lets the host remove a player.
func (s *Service) KickPlayer(ctx context.Context, code, requester, target string) error {
	c, err := s.coord()
	if err != nil {
		return err
	}
	return c.KickPlayer(ctx, code, requester, target)
}

// StartGame starts the match in a room.
func (s *Service) StartGame(ctx context.Context, code string) error {
	c, err := s.coord()
	if err != nil {
		return err
	}
	return c.StartGame(ctx, code)
}

// SubscribeRoom streams room changes to onChange.
func (s *Service) SubscribeRoom(ctx context.Context, code string, onChange func(*model.Room)) (func(), error) {
	c, err := s.coord()
	if err != nil {
		return nil, err
	}
	return c.SubscribeRoom(ctx, code, onChange)
}

// Teams balances a room's players.
func (s *Service) Teams(ctx context.Context, code string) (balancer.Result, error) {
	c, err := s.coord()
	if err != nil {
		return balancer.Result{}, err
	}
	return c.Teams(ctx, code)
}

// Balance splits an ad hoc player list; it needs no store.
func (s *Service) Balance(_ context.Context, players []model.Participant) (balancer.Result, error) {
	return lobby.Balance(players)
}

// Ready reports whether the service can serve requests.
func (s *Service) Ready(_ context.Context) error {
	_, err := s.coord()
	return err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"driver":       s.driver,
		"writeRetries": s.writeRetries,
	}
	if s.started {
		if n, err := s.store.Count(ctx); err == nil {
			stats["rooms"] = n
		} else {
			s.logger.Warn(ctx, "count rooms failed", logger.Error(err))
		}
		stats["subscriptions"] = s.hub.Count()
	}
	return stats
}
