// Package network implements the WebSocket front door of the matchmaking
// server: the listener, per-connection read/write loops, and the request
// handlers that bridge the wire protocol to the matchmaker.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/auth"
	"github.com/slonopotamus/Atto/internal/config"
	"github.com/slonopotamus/Atto/internal/events"
	"github.com/slonopotamus/Atto/internal/matchmaker"
	"github.com/slonopotamus/Atto/internal/protocol"
)

// Server accepts WebSocket connections speaking the matchmaking
// subprotocol and drives the matchmaker tick loop.
type Server struct {
	logger     zerolog.Logger
	matchmaker *matchmaker.Matchmaker
	verifier   auth.Verifier
	bus        *events.EventBus

	buildUniqueID int32
	readLimit     int64
	tickInterval  time.Duration

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	mu        sync.Mutex
	conns     map[*Conn]struct{}
	startTime time.Time
	stopped   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewServer wires a server to its matchmaker. The verifier and bus are
// optional.
func NewServer(cfg *config.Config, mm *matchmaker.Matchmaker, verifier auth.Verifier, bus *events.EventBus) *Server {
	s := &Server{
		logger:        log.With().Str("component", "network").Logger(),
		matchmaker:    mm,
		verifier:      verifier,
		bus:           bus,
		buildUniqueID: cfg.Server.BuildUniqueID,
		readLimit:     int64(cfg.Server.ReceiveBufferSize),
		tickInterval:  cfg.Matchmaker.TickInterval(),
		conns:         make(map[*Conn]struct{}),
		stopCh:        make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols:    []string{protocol.SubprotocolName},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// The protocol has no browser clients, so cross-origin upgrades
		// are fine.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// Listen binds the listener without serving yet, so callers can learn
// the bound address when port 0 was configured.
func (s *Server) Listen(bindAddress string, port int) error {
	addr := fmt.Sprintf("%s:%d", bindAddress, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("listener bound")
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the HTTP upgrade endpoint and the matchmaker tick loop
// until Stop is called. It blocks like http.Server.Serve does.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening, call Listen first")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpServer = &http.Server{Handler: mux}

	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info().Msg("accepting connections")
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	if ws.Subprotocol() != protocol.SubprotocolName {
		s.logger.Warn().
			Str("remote", r.RemoteAddr).
			Str("subprotocol", ws.Subprotocol()).
			Msg("client did not negotiate the matchmaking subprotocol")
		ws.Close()
		return
	}

	conn := newConn(s, ws)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.logger.Info().Str("remote", ws.RemoteAddr().String()).Msg("connection established")
	s.emit(events.EventConnectionOpened, events.ConnectionPayload{RemoteAddr: ws.RemoteAddr().String()})

	conn.start()
}

// tickLoop advances the matchmaker at the configured cadence, passing
// the measured elapsed time so timeout accounting stays correct even
// when a tick is delayed.
func (s *Server) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			s.matchmaker.Tick(now.Sub(last))
			last = now
		case <-s.stopCh:
			return
		}
	}
}

// BroadcastNotice pushes a server notice to every connected client.
func (s *Server) BroadcastNotice(message string) {
	frame := protocol.EncodePush(&protocol.ServerNoticePush{Message: message})

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.send(frame)
	}
	s.logger.Info().Int("connections", len(conns)).Str("message", message).Msg("notice broadcast")
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Uptime returns how long the server has been serving.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Stop closes the listener, tears down every connection, and shuts the
// matchmaker down, failing still-queued matchmaking requests.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	close(s.stopCh)

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	} else if s.listener != nil {
		err = s.listener.Close()
	}

	for _, conn := range conns {
		conn.closeWithReason("server shutting down")
	}
	s.matchmaker.Close()

	s.wg.Wait()
	s.logger.Info().Msg("server stopped")
	return err
}

func (s *Server) removeConn(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) emit(eventType events.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(context.Background(), events.Event{
		Type:    eventType,
		Source:  "network",
		Payload: payload,
	})
}
