// Package sqlstore provides a database/sql backed room store for SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/Termdamp/MatchMixer/internal/adapters/mq/notify"
	"github.com/Termdamp/MatchMixer/internal/adapters/repository"
	"github.com/Termdamp/MatchMixer/internal/adapters/repository/sqlstore/migrations"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/pkg/logger"
)

const (
	notifyChannel        = "matchmixer_rooms"
	anyVersionRetries    = 5
	listenerMinReconnect = 10 * time.Millisecond
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// Store persists rooms in a SQL database.
//
// Writes made through one Store are published to its hub under a process
// lock, so local subscribers see them in commit order. On PostgreSQL,
// writes are also announced with NOTIFY and re-read by every listening
// Store, which the hub's version filter keeps ordered.
//
// SQLite has no change feed: subscribers only hear about writes made
// through the same Store. Processes sharing one database file still see
// each other's data on Get, but never receive pushes for it.
type Store struct {
	db      *sql.DB
	dialect dialect
	dsn     string

	mu     sync.Mutex
	hub    *notify.Hub
	logger logger.Logger

	listen   bool
	listener *pq.Listener
	stop     chan struct{}
	wg       sync.WaitGroup
}

var _ repository.Store = (*Store)(nil)

// Open connects to driver (sqlite or postgres), applies migrations and, for
// PostgreSQL, starts the change listener. For SQLite dsn is a file path.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage dsn is required")
	}
	s := &Store{
		dialect: dialect(driver),
		dsn:     dsn,
		logger:  logger.Nop(),
		listen:  true,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = notify.NewHub(notify.WithLogger(s.logger))
	}

	var openDSN string
	switch driver {
	case DriverSQLite:
		openDSN = sqliteDSN(filepath.Clean(dsn))
	case DriverPostgres:
		openDSN = dsn
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, openDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time per file; a single connection queues reads
		// behind writes instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s db: %w", repository.ErrUnavailable, driver, err)
	}
	if err := applyMigrations(ctx, db, s.dialect, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s.db = db

	if driver == DriverPostgres && s.listen {
		if err := s.startListener(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Get returns the room or repository.ErrNotFound.
func (s *Store) Get(ctx context.Context, code string) (room *model.Room, err error) {
	defer func(start time.Time) { repository.ObserveOperation(string(s.dialect), "get", start, err) }(time.Now())
	return s.get(ctx, code)
}

func (s *Store) get(ctx context.Context, code string) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT code, version, host, is_open, status, players FROM rooms WHERE code = ?`), code)

	var (
		room    model.Room
		status  string
		players string
	)
	err := row.Scan(&room.Code, &room.Version, &room.Host, &room.IsOpen, &status, &players)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get room", err)
	}
	room.Status = model.Status(status)
	if err := json.Unmarshal([]byte(players), &room.Players); err != nil {
		return nil, fmt.Errorf("decode players of %s: %w", code, err)
	}
	return &room, nil
}

// Create inserts room at version 1, or fails with repository.ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, room *model.Room) (out *model.Room, err error) {
	defer func(start time.Time) { repository.ObserveOperation(string(s.dialect), "create", start, err) }(time.Now())

	stored := room.Clone()
	stored.Version = 1
	players, err := encodePlayers(stored.Players)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO rooms (code, version, host, is_open, status, players, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		stored.Code, stored.Version, stored.Host, stored.IsOpen, string(stored.Status), players, nowMillis())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrAlreadyExists
		}
		return nil, unavailable("create room", err)
	}
	s.publish(ctx, stored)
	return stored.Clone(), nil
}

// Set upserts the whole document.
func (s *Store) Set(ctx context.Context, room *model.Room) (out *model.Room, err error) {
	defer func(start time.Time) { repository.ObserveOperation(string(s.dialect), "set", start, err) }(time.Now())

	stored := room.Clone()
	players, err := encodePlayers(stored.Players)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO rooms (code, version, host, is_open, status, players, updated_at)
		 VALUES (?, 1, ?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET
		   version = rooms.version + 1,
		   host = excluded.host,
		   is_open = excluded.is_open,
		   status = excluded.status,
		   players = excluded.players,
		   updated_at = excluded.updated_at
		 RETURNING version`),
		stored.Code, stored.Host, stored.IsOpen, string(stored.Status), players, nowMillis())
	if err := row.Scan(&stored.Version); err != nil {
		return nil, unavailable("set room", err)
	}
	s.publish(ctx, stored)
	return stored.Clone(), nil
}

// Update merges patch into the room with a version-guarded UPDATE.
func (s *Store) Update(ctx context.Context, code string, patch repository.Patch, ifVersion int64) (out *model.Room, err error) {
	defer func(start time.Time) { repository.ObserveOperation(string(s.dialect), "update", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; ; attempt++ {
		current, err := s.get(ctx, code)
		if err != nil {
			return nil, err
		}
		if ifVersion != repository.AnyVersion && current.Version != ifVersion {
			return nil, fmt.Errorf("%w: have %d, want %d", repository.ErrVersionConflict, current.Version, ifVersion)
		}

		next := current.Clone()
		patch.Apply(next)
		next.Version = current.Version + 1
		players, err := encodePlayers(next.Players)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, s.dialect.rebind(
			`UPDATE rooms
			 SET version = version + 1, host = ?, is_open = ?, status = ?, players = ?, updated_at = ?
			 WHERE code = ? AND version = ?`),
			next.Host, next.IsOpen, string(next.Status), players, nowMillis(), code, current.Version)
		if err != nil {
			return nil, unavailable("update room", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, unavailable("update room", err)
		}
		if n == 1 {
			s.publish(ctx, next)
			return next.Clone(), nil
		}

		// Another process won the race between our read and write.
		if ifVersion != repository.AnyVersion || attempt >= anyVersionRetries {
			return nil, fmt.Errorf("%w: room %s changed concurrently", repository.ErrVersionConflict, code)
		}
	}
}

// Delete removes the room under the same version rule as Update.
func (s *Store) Delete(ctx context.Context, code string, ifVersion int64) (err error) {
	defer func(start time.Time) { repository.ObserveOperation(string(s.dialect), "delete", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM rooms WHERE code = ?`
	args := []any{code}
	if ifVersion != repository.AnyVersion {
		query += ` AND version = ?`
		args = append(args, ifVersion)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return unavailable("delete room", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete room", err)
	}
	if n == 0 {
		current, err := s.get(ctx, code)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: have %d, want %d", repository.ErrVersionConflict, current.Version, ifVersion)
	}
	s.publishDeleted(ctx, code)
	return nil
}

// Subscribe registers fn; the current document is its first delivery.
func (s *Store) Subscribe(ctx context.Context, code string, fn func(*model.Room)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(ctx, code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	_, cancel := s.hub.Subscribe(code, current, fn)
	return cancel, nil
}

// Count returns the number of stored rooms.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&n); err != nil {
		return 0, unavailable("count rooms", err)
	}
	return n, nil
}

// Close stops the listener, ends subscriptions and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	var errs []error
	if s.listener != nil {
		errs = append(errs, s.listener.Close())
	}
	s.wg.Wait()
	s.hub.Close()
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// publish fans room out locally and, on PostgreSQL, to other processes.
// Callers hold s.mu.
func (s *Store) publish(ctx context.Context, room *model.Room) {
	s.hub.Publish(room.Code, room)
	s.announce(ctx, room.Code)
}

func (s *Store) publishDeleted(ctx context.Context, code string) {
	s.hub.Publish(code, nil)
	s.announce(ctx, code)
}

func (s *Store) announce(ctx context.Context, code string) {
	if s.listener == nil {
		return
	}
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, code); err != nil {
		s.logger.Warn(ctx, "room change notify failed", logger.String("code", code), logger.Error(err))
	}
}

func (s *Store) startListener() error {
	ctx := context.Background()
	s.listener = pq.NewListener(s.dsn, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				s.logger.Warn(ctx, "room listener event", logger.Int("event", int(ev)), logger.Error(err))
			}
		})
	if err := s.listener.Listen(notifyChannel); err != nil {
		_ = s.listener.Close()
		s.listener = nil
		return fmt.Errorf("%w: listen %s: %w", repository.ErrUnavailable, notifyChannel, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(listenerPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case n, ok := <-s.listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Reconnected; notifications may have been lost meanwhile.
					for _, code := range s.hub.Codes() {
						s.refresh(ctx, code)
					}
					continue
				}
				s.refresh(ctx, n.Extra)
			case <-ticker.C:
				if err := s.listener.Ping(); err != nil {
					s.logger.Warn(ctx, "room listener ping failed", logger.Error(err))
				}
			}
		}
	}()
	return nil
}

// refresh re-reads code and republishes it to local subscribers.
func (s *Store) refresh(ctx context.Context, code string) {
	if !s.hub.Watched(code) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.get(ctx, code)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.hub.Publish(code, nil)
	case err != nil:
		s.logger.Warn(ctx, "room refresh failed", logger.String("code", code), logger.Error(err))
	default:
		s.hub.Publish(code, room)
	}
}

func encodePlayers(players []model.Participant) (string, error) {
	if players == nil {
		players = []model.Participant{}
	}
	raw, err := json.Marshal(players)
	if err != nil {
		return "", fmt.Errorf("encode players: %w", err)
	}
	return string(raw), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", repository.ErrUnavailable, op, err)
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}
