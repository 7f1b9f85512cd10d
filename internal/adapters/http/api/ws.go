package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/pkg/logger"
)

// Stream message types.
const (
	MessageHello  = "hello"
	MessageRoom   = "room"
	MessageClosed = "closed"
)

// StreamMessage is one server-to-client websocket frame.
type StreamMessage struct {
	Type    string      `json:"type"`
	Session string      `json:"session,omitempty"`
	Room    *model.Room `json:"room,omitempty"`
}

// StreamHandler pushes room snapshots to websocket clients.
type StreamHandler struct {
	deps         Dependencies
	log          logger.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies, log logger.Logger, writeTimeout, pingInterval time.Duration) *StreamHandler {
	return &StreamHandler{
		deps:         deps,
		log:          log.Named("stream"),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// HandleStream handles GET /rooms/{code}/ws. The client first receives a
// hello frame, then the current room and one frame per committed change.
// A closed frame follows deletion and the server then closes normally.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	// Reject unknown rooms before upgrading so clients get a plain 404.
	if _, err := h.deps.GetRoom(r.Context(), code); err != nil {
		writeLobbyError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	session := uuid.NewString()
	log := h.log.With(logger.String("session", session), logger.String("code", code))

	// The stream is push only; CloseRead services control frames and
	// cancels ctx when the peer goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	if err := h.write(ctx, conn, StreamMessage{Type: MessageHello, Session: session}); err != nil {
		return
	}

	var closeOnce sync.Once
	roomClosed := make(chan struct{})

	// Callbacks run one at a time on the subscription's delivery goroutine,
	// so a slow client only backs up its own coalescing mailbox.
	unsubscribe, err := h.deps.SubscribeRoom(ctx, code, func(room *model.Room) {
		msg := StreamMessage{Type: MessageRoom, Room: room}
		if room == nil {
			msg = StreamMessage{Type: MessageClosed}
		}
		if err := h.write(ctx, conn, msg); err != nil {
			log.Debug(ctx, "stream write failed", logger.Error(err))
			cancel()
			return
		}
		if room == nil {
			closeOnce.Do(func() { close(roomClosed) })
		}
	})
	if err != nil {
		log.Warn(ctx, "stream subscribe failed", logger.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer unsubscribe()

	log.Debug(ctx, "stream opened")
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "stream closed by peer")
			return
		case <-roomClosed:
			_ = conn.Close(websocket.StatusNormalClosure, "room closed")
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				log.Debug(ctx, "stream ping failed", logger.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
