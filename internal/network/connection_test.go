package network

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonopotamus/Atto/internal/config"
	"github.com/slonopotamus/Atto/internal/matchmaker"
	"github.com/slonopotamus/Atto/internal/protocol"
)

// wsPair opens a real WebSocket connection and hands back the server side.
func wsPair(t *testing.T) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case ws := <-accepted:
		t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
		return nil
	}
}

// A request handler enqueues its party before recording the token on the
// connection. If teardown wins the race in between, the token must be
// refused so the handler cancels the entry instead of leaking it forever.
func TestClosedConnectionRefusesMatchmakingToken(t *testing.T) {
	cfg := config.DefaultConfig()
	mm := matchmaker.New(matchmaker.Options{}, nil)
	server := NewServer(cfg, mm, nil, nil)

	conn := newConn(server, wsPair(t))
	token, outcome := mm.Enqueue(1, &protocol.StartMatchmakingRequest{
		Users:   []uint64{1},
		Timeout: time.Minute,
	})

	conn.closeWithReason("write failure")

	require.False(t, conn.takeMatchmakingToken(token),
		"a torn-down connection must not adopt a matchmaking entry")
	assert.Equal(t, 1, mm.QueueDepth())

	// The refused caller cancels the entry it still owns.
	assert.True(t, mm.Cancel(token))
	select {
	case result := <-outcome:
		assert.Equal(t, protocol.MatchmakingCanceled, result.Outcome)
	default:
		t.Fatal("canceled entry should resolve immediately")
	}
	assert.Equal(t, 0, mm.QueueDepth())
}

func TestTakeMatchmakingTokenRejectsSecond(t *testing.T) {
	cfg := config.DefaultConfig()
	mm := matchmaker.New(matchmaker.Options{}, nil)
	server := NewServer(cfg, mm, nil, nil)

	conn := newConn(server, wsPair(t))
	first, _ := mm.Enqueue(1, &protocol.StartMatchmakingRequest{Users: []uint64{1}})
	second, _ := mm.Enqueue(1, &protocol.StartMatchmakingRequest{Users: []uint64{2}})

	assert.True(t, conn.takeMatchmakingToken(first))
	assert.False(t, conn.takeMatchmakingToken(second), "one in-flight matchmaking request per connection")

	conn.clearMatchmakingToken()
	assert.True(t, conn.takeMatchmakingToken(second))
	conn.closeWithReason("test finished")
}
