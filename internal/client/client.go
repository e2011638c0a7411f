// Package client implements a WebSocket client for the matchmaking
// protocol, used by game servers, game clients, and the test suite.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/protocol"
)

// ErrClosed is returned for requests issued on a closed client, and to
// requests still pending when the connection goes away.
var ErrClosed = errors.New("connection closed")

// PushHandler receives server-initiated messages.
type PushHandler func(push protocol.ServerPush)

// DisconnectHandler is invoked once when the connection drops.
type DisconnectHandler func(err error)

// Options configures a Client.
type Options struct {
	// HandshakeTimeout bounds the WebSocket dial. Zero means 10s.
	HandshakeTimeout time.Duration

	OnPush       PushHandler
	OnDisconnect DisconnectHandler
}

// Client is a connection to the matchmaking server. Requests may be
// issued from any goroutine; responses are matched to requests by id.
type Client struct {
	logger zerolog.Logger
	ws     *websocket.Conn

	onPush       PushHandler
	onDisconnect DisconnectHandler

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan protocol.ServerResult
	closed  bool

	done chan struct{}
}

// Dial connects to a matchmaking server at a ws:// or wss:// URL.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{protocol.SubprotocolName},
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	if ws.Subprotocol() != protocol.SubprotocolName {
		ws.Close()
		return nil, fmt.Errorf("server did not accept subprotocol %q", protocol.SubprotocolName)
	}

	c := &Client{
		logger:       log.With().Str("component", "client").Logger(),
		ws:           ws,
		onPush:       opts.OnPush,
		onDisconnect: opts.OnDisconnect,
		nextID:       1,
		pending:      make(map[int64]chan protocol.ServerResult),
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close shuts the connection down. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.failPending(ErrClosed)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	var loopErr error
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			loopErr = err
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := protocol.DecodeServerFrame(data)
		if err != nil {
			loopErr = fmt.Errorf("malformed server frame: %w", err)
			break
		}

		if frame.Push != nil {
			if c.onPush != nil {
				c.onPush(frame.Push)
			}
			continue
		}
		c.dispatchResult(frame.RequestID, frame.Result)
	}

	c.failPending(ErrClosed)
	close(c.done)
	if c.onDisconnect != nil && !websocket.IsCloseError(loopErr, websocket.CloseNormalClosure) {
		c.onDisconnect(loopErr)
	}
}

func (c *Client) dispatchResult(requestID int64, result protocol.ServerResult) {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	delete(c.pending, requestID)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn().Int64("request_id", requestID).Msg("response for unknown request")
		return
	}
	ch <- result
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan protocol.ServerResult)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if len(pending) > 0 {
		c.logger.Debug().Err(err).Int("count", len(pending)).Msg("failed pending requests")
	}
}

// roundTrip sends one request and waits for its paired result.
func (c *Client) roundTrip(ctx context.Context, req protocol.ClientRequest) (protocol.ServerResult, error) {
	ch := make(chan protocol.ServerResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	requestID := c.nextID
	c.nextID++
	c.pending[requestID] = ch
	c.mu.Unlock()

	frame, err := protocol.EncodeRequest(requestID, req)
	if err != nil {
		c.abandon(requestID)
		return nil, err
	}

	c.mu.Lock()
	writeErr := c.ws.WriteMessage(websocket.BinaryMessage, frame)
	c.mu.Unlock()
	if writeErr != nil {
		c.abandon(requestID)
		return nil, fmt.Errorf("failed to send request: %w", writeErr)
	}

	select {
	case result, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return result, nil
	case <-ctx.Done():
		c.abandon(requestID)
		return nil, ctx.Err()
	}
}

func (c *Client) abandon(requestID int64) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}
