// Package lobby coordinates room membership against a shared room store.
//
// Every mutation is a read-modify-write guarded by the room version: the
// write only lands if nobody else wrote since the read, otherwise it is
// recomputed from a fresh read. Clients learn about changes exclusively
// through SubscribeRoom.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Termdamp/MatchMixer/internal/adapters/repository"
	"github.com/Termdamp/MatchMixer/internal/domain/balancer"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/pkg/logger"
	"github.com/Termdamp/MatchMixer/pkg/metrics"
)

const (
	defaultCodeAttempts = 8
	defaultWriteRetries = 5
)

// Removal kinds used in logs and metrics.
const (
	kindLeave = "leave"
	kindKick  = "kick"
)

// RoomStore is the subset of repository.Store the coordinator needs.
type RoomStore interface {
	Get(ctx context.Context, code string) (*model.Room, error)
	Create(ctx context.Context, room *model.Room) (*model.Room, error)
	Update(ctx context.Context, code string, patch repository.Patch, ifVersion int64) (*model.Room, error)
	Delete(ctx context.Context, code string, ifVersion int64) error
	Subscribe(ctx context.Context, code string, fn func(*model.Room)) (func(), error)
}

// Coordinator implements the room lifecycle. It holds no per-room state, so
// one value can serve any number of rooms concurrently.
type Coordinator struct {
	store        RoomStore
	codes        CodeGenerator
	codeAttempts int
	writeRetries int
	logger       logger.Logger
}

// NewCoordinator creates a coordinator over store with configuration options.
func NewCoordinator(store RoomStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		codes:        RandomCodes{},
		codeAttempts: defaultCodeAttempts,
		writeRetries: defaultWriteRetries,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRoom opens a room hosted by name and returns its code. Codes already
// in use are skipped.
func (c *Coordinator) CreateRoom(ctx context.Context, name string, score int) (string, error) {
	if err := model.ValidateParticipant(name, score); err != nil {
		return "", err
	}

	for attempt := 0; attempt < c.codeAttempts; attempt++ {
		code, err := c.codes.Generate()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}

		_, err = c.store.Create(ctx, model.NewRoom(code, name, score))
		if errors.Is(err, repository.ErrAlreadyExists) {
			metrics.RecordCodeCollision()
			c.logger.Debug(ctx, "room code taken, drawing again", logger.String("code", code))
			continue
		}
		if err != nil {
			c.logger.Warn(ctx, "create room failed", logger.Error(err))
			return "", err
		}

		metrics.RecordRoomCreated()
		c.logger.Info(ctx, "room created", logger.String("code", code), logger.String("host", name))
		return code, nil
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, c.codeAttempts)
}

// GetRoom returns the current room document.
func (c *Coordinator) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	room, err := c.store.Get(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// JoinRoom appends a non-host player to an open room.
func (c *Coordinator) JoinRoom(ctx context.Context, code, name string, score int) error {
	if err := model.ValidateParticipant(name, score); err != nil {
		metrics.RecordJoin(metrics.ResultRejected)
		return err
	}

	err := c.retry(ctx, "join", code, func() error {
		room, err := c.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		if !room.IsOpen {
			return ErrRoomClosed
		}
		if room.IndexOf(name) >= 0 {
			return ErrNameTaken
		}

		players := append(room.Players, model.Participant{Name: name, Score: score})
		_, err = c.store.Update(ctx, code, repository.Patch{Players: players}, room.Version)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	})

	metrics.RecordJoin(joinResult(err))
	if err != nil {
		c.logger.Debug(ctx, "join rejected", logger.String("code", code), logger.String("player", name), logger.Error(err))
		return err
	}
	c.logger.Debug(ctx, "player joined", logger.String("code", code), logger.String("player", name))
	return nil
}

// RemovePlayer takes name out of the room. Missing rooms and players are
// ignored. The room is deleted once empty, and a leaving host hands over to
// the next player in join order.
func (c *Coordinator) RemovePlayer(ctx context.Context, code, name string) error {
	return c.retry(ctx, kindLeave, code, func() error {
		room, err := c.GetRoom(ctx, code)
		if errors.Is(err, ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		idx := room.IndexOf(name)
		if idx < 0 {
			return nil
		}
		return c.removeAt(ctx, room, idx, kindLeave)
	})
}

// KickPlayer lets the host remove target.
func (c *Coordinator) KickPlayer(ctx context.Context, code, requester, target string) error {
	return c.retry(ctx, kindKick, code, func() error {
		room, err := c.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		if room.Host != requester {
			return ErrNotHost
		}
		idx := room.IndexOf(target)
		if idx < 0 {
			return ErrPlayerNotFound
		}
		return c.removeAt(ctx, room, idx, kindKick)
	})
}

// removeAt writes room without players[idx], deleting or migrating the host
// as needed. A room deleted under us counts as done.
func (c *Coordinator) removeAt(ctx context.Context, room *model.Room, idx int, kind string) error {
	removed := room.Players[idx]
	rest := make([]model.Participant, 0, len(room.Players)-1)
	rest = append(rest, room.Players[:idx]...)
	rest = append(rest, room.Players[idx+1:]...)

	if len(rest) == 0 {
		err := c.store.Delete(ctx, room.Code, room.Version)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		metrics.RecordRemoval(kind)
		metrics.RecordRoomDeleted()
		c.logger.Info(ctx, "room deleted", logger.String("code", room.Code), logger.String("last", removed.Name))
		return nil
	}

	patch := repository.Patch{Players: rest}
	migrated := removed.IsHost
	if migrated {
		rest[0].IsHost = true
		patch.Host = &rest[0].Name
	}
	_, err := c.store.Update(ctx, room.Code, patch, room.Version)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	metrics.RecordRemoval(kind)
	c.logger.Debug(ctx, "player removed",
		logger.String("code", room.Code), logger.String("player", removed.Name), logger.String("kind", kind))
	if migrated {
		metrics.RecordHostMigration()
		c.logger.Info(ctx, "host migrated",
			logger.String("code", room.Code), logger.String("from", removed.Name), logger.String("to", rest[0].Name))
	}
	return nil
}

// StartGame closes the room and marks it started.
func (c *Coordinator) StartGame(ctx context.Context, code string) error {
	err := c.retry(ctx, "start", code, func() error {
		room, err := c.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		if room.Status == model.StatusStarted {
			return ErrRoomClosed
		}
		if len(room.Players) < 2 {
			return ErrInsufficientPlayers
		}

		closed, started := false, model.StatusStarted
		_, err = c.store.Update(ctx, code, repository.Patch{IsOpen: &closed, Status: &started}, room.Version)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	})
	if err != nil {
		c.logger.Debug(ctx, "start rejected", logger.String("code", code), logger.Error(err))
		return err
	}
	metrics.RecordGameStarted()
	c.logger.Info(ctx, "game started", logger.String("code", code))
	return nil
}

// SubscribeRoom delivers the room to onChange now and after every change,
// or nil once it no longer exists. The returned func is idempotent and stops
// further invocations.
func (c *Coordinator) SubscribeRoom(ctx context.Context, code string, onChange func(*model.Room)) (func(), error) {
	unsubscribe, err := c.store.Subscribe(ctx, code, onChange)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, "room subscribed", logger.String("code", code))
	return unsubscribe, nil
}

// Teams balances the room's current players.
func (c *Coordinator) Teams(ctx context.Context, code string) (balancer.Result, error) {
	room, err := c.GetRoom(ctx, code)
	if err != nil {
		return balancer.Result{}, err
	}
	return Balance(room.Players)
}

// Balance validates players and runs the balancer, recording its cost.
func Balance(players []model.Participant) (balancer.Result, error) {
	for _, p := range players {
		if err := model.ValidateParticipant(p.Name, p.Score); err != nil {
			return balancer.Result{}, err
		}
	}
	start := time.Now()
	res, err := balancer.Balance(players)
	if err != nil {
		return balancer.Result{}, err
	}
	metrics.RecordBalance(float64(time.Since(start).Microseconds())/1000, res.Diff)
	return res, nil
}

// retry reruns attempt while it loses version races, up to writeRetries extra times.
func (c *Coordinator) retry(ctx context.Context, op, code string, attempt func() error) error {
	for i := 0; ; i++ {
		err := attempt()
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		metrics.RecordWriteConflict(op)
		if i >= c.writeRetries {
			c.logger.Warn(ctx, "giving up after version conflicts",
				logger.String("op", op), logger.String("code", code), logger.Int("attempts", i+1))
			return fmt.Errorf("%w: %s on %s", ErrWriteConflict, op, code)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func joinResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrRoomNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrRoomClosed):
		return metrics.ResultClosed
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrWriteConflict):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
