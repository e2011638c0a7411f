package network

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/events"
	"github.com/slonopotamus/Atto/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second

	// sendQueueSize bounds how many outbound frames may pile up before
	// the connection is considered stuck and dropped.
	sendQueueSize = 256
)

// Conn is one client connection. A single reader goroutine processes
// requests in arrival order; a single writer goroutine drains sendCh so
// responses and pushes leave in the order they were queued.
type Conn struct {
	logger zerolog.Logger
	server *Server
	ws     *websocket.Conn

	sendCh chan []byte
	done   chan struct{}

	closeOnce   sync.Once
	closeReason string

	mu sync.Mutex
	// Set during teardown; after this no new matchmaking token may be
	// recorded, or an entry enqueued concurrently with the close would
	// outlive its connection.
	closed bool
	// Users authenticated on this connection, the local party.
	users map[uint64]struct{}
	// Token of the in-flight matchmaking request, nil when idle.
	mmToken uuid.UUID
}

func newConn(server *Server, ws *websocket.Conn) *Conn {
	return &Conn{
		logger: log.With().
			Str("component", "connection").
			Str("remote", ws.RemoteAddr().String()).
			Logger(),
		server: server,
		ws:     ws,
		sendCh: make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		users:  make(map[uint64]struct{}),
	}
}

func (c *Conn) start() {
	go c.writeLoop()
	go c.readLoop()
}

// send queues a frame for delivery. Frames from a stuck connection are
// not worth blocking the matchmaker for, so a full queue drops the
// connection instead.
func (c *Conn) send(frame []byte) {
	select {
	case c.sendCh <- frame:
	case <-c.done:
	default:
		c.logger.Warn().Msg("send queue full, dropping connection")
		c.closeWithReason("send queue overflow")
	}
}

func (c *Conn) sendResult(requestID int64, result protocol.ServerResult) {
	frame, err := protocol.EncodeResponse(requestID, result)
	if err != nil {
		c.logger.Error().Err(err).Int64("request_id", requestID).Msg("failed to encode response")
		return
	}
	c.send(frame)
}

func (c *Conn) readLoop() {
	defer c.closeWithReason("read loop finished")

	c.ws.SetReadLimit(c.server.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			c.logger.Warn().Int("type", msgType).Msg("dropping connection after non-binary message")
			return
		}

		requestID, request, err := protocol.DecodeRequest(data)
		if err != nil {
			// A malformed frame means the peer is broken or hostile.
			// There is no way to answer it, so the connection dies.
			c.logger.Warn().Err(err).Msg("dropping connection after malformed frame")
			return
		}

		c.handleRequest(requestID, request)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				c.closeWithReason("write failure")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWithReason("ping failure")
				return
			}
		case <-c.done:
			// Best effort close handshake.
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason))
			return
		}
	}
}

// closeWithReason tears the connection down exactly once: the pending
// matchmaking request is canceled, every session owned by a user of this
// connection is destroyed, and the connection is dropped from the server.
func (c *Conn) closeWithReason(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason

		c.mu.Lock()
		c.closed = true
		token := c.mmToken
		c.mmToken = uuid.Nil
		users := make([]uint64, 0, len(c.users))
		for id := range c.users {
			users = append(users, id)
		}
		c.users = make(map[uint64]struct{})
		c.mu.Unlock()

		c.server.matchmaker.Cancel(token)
		for _, id := range users {
			c.server.matchmaker.RemoveSession(id)
		}

		close(c.done)
		c.server.removeConn(c)

		c.logger.Info().Str("reason", reason).Int("users", len(users)).Msg("connection closed")
		c.server.emit(events.EventConnectionClosed, events.ConnectionPayload{
			RemoteAddr: c.ws.RemoteAddr().String(),
			Reason:     reason,
			WasClean:   reason == "server shutting down",
		})
	})
}

func (c *Conn) addUser(id uint64) {
	c.mu.Lock()
	c.users[id] = struct{}{}
	c.mu.Unlock()

	c.server.emit(events.EventUserLoggedIn, events.UserPayload{
		UserID:     id,
		RemoteAddr: c.ws.RemoteAddr().String(),
	})
}

func (c *Conn) removeUser(id uint64) bool {
	c.mu.Lock()
	_, ok := c.users[id]
	delete(c.users, id)
	c.mu.Unlock()

	if ok {
		c.server.emit(events.EventUserLoggedOut, events.UserPayload{
			UserID:     id,
			RemoteAddr: c.ws.RemoteAddr().String(),
		})
	}
	return ok
}

func (c *Conn) hasUser(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.users[id]
	return ok
}

func (c *Conn) userCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}

// takeMatchmakingToken records a new in-flight matchmaking request,
// failing when one is already pending or the connection is already torn
// down. On failure the caller still owns the token and must cancel it.
func (c *Conn) takeMatchmakingToken(token uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.mmToken != uuid.Nil {
		return false
	}
	c.mmToken = token
	return true
}

func (c *Conn) clearMatchmakingToken() {
	c.mu.Lock()
	c.mmToken = uuid.Nil
	c.mu.Unlock()
}

func (c *Conn) matchmakingToken() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mmToken
}
