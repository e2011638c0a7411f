package matchmaker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonopotamus/Atto/internal/protocol"
)

func newTestMatchmaker() *Matchmaker {
	return New(Options{
		MaxFindSessionsResults: 100,
		SessionCooldown:        30 * time.Second,
	}, nil)
}

func testSession(id uint64, open, total int32) protocol.SessionInfo {
	return protocol.SessionInfo{
		SessionID: id,
		HostAddress: protocol.SessionAddress{
			Host: []byte{10, 0, 0, 1},
			Port: 7777,
		},
		UpdatableInfo: protocol.SessionUpdatableInfo{
			NumOpenPublicConnections: open,
			NumPublicConnections:     total,
			State:                    protocol.StatePending,
			ShouldAdvertise:          true,
		},
	}
}

func enqueueParty(m *Matchmaker, size int32, timeout time.Duration) (uuid.UUID, <-chan protocol.StartMatchmakingResult) {
	users := make([]uint64, size)
	for i := range users {
		users[i] = uint64(i + 1)
	}
	return m.Enqueue(size, &protocol.StartMatchmakingRequest{
		Users:   users,
		Timeout: timeout,
	})
}

// tryReceive reads a resolved outcome without blocking.
func tryReceive(t *testing.T, ch <-chan protocol.StartMatchmakingResult) (protocol.StartMatchmakingResult, bool) {
	t.Helper()
	select {
	case result := <-ch:
		return result, true
	default:
		return protocol.StartMatchmakingResult{}, false
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := newTestMatchmaker()

	assert.True(t, m.CreateSession(1, testSession(100, 4, 4)))
	assert.Equal(t, 1, m.SessionCount())

	updated := protocol.SessionUpdatableInfo{
		NumOpenPublicConnections: 2,
		NumPublicConnections:     4,
		State:                    protocol.StateInProgress,
		ShouldAdvertise:          true,
	}
	assert.True(t, m.UpdateSession(1, updated))
	assert.False(t, m.UpdateSession(2, updated), "updating a session nobody owns should fail")

	assert.True(t, m.RemoveSession(1))
	assert.False(t, m.RemoveSession(1), "second remove should report no session")
	assert.Equal(t, 0, m.SessionCount())
}

func TestCreateSessionOverwritesExisting(t *testing.T) {
	m := newTestMatchmaker()

	m.CreateSession(1, testSession(100, 4, 4))
	m.CreateSession(1, testSession(200, 8, 8))

	sessions := m.FindSessions(1, nil, 10)
	require.Len(t, sessions, 1)
	assert.Equal(t, uint64(200), sessions[0].SessionID)
}

func TestFindSessionsCapacityAndCap(t *testing.T) {
	m := newTestMatchmaker()

	m.CreateSession(1, testSession(100, 2, 8))
	m.CreateSession(2, testSession(200, 5, 8))

	// A party of three only fits the second session.
	sessions := m.FindSessions(3, nil, 10)
	require.Len(t, sessions, 1)
	assert.Equal(t, uint64(200), sessions[0].SessionID)

	// The requested cap applies.
	assert.Len(t, m.FindSessions(1, nil, 1), 1)

	// The server-side cap applies regardless of what the client asks for.
	small := New(Options{MaxFindSessionsResults: 1, SessionCooldown: time.Second}, nil)
	small.CreateSession(1, testSession(100, 4, 8))
	small.CreateSession(2, testSession(200, 4, 8))
	assert.Len(t, small.FindSessions(1, nil, 50), 1)
}

func TestFindSessionsSkipsUnjoinable(t *testing.T) {
	m := newTestMatchmaker()

	hidden := testSession(100, 4, 8)
	hidden.UpdatableInfo.ShouldAdvertise = false
	m.CreateSession(1, hidden)

	inProgress := testSession(200, 4, 8)
	inProgress.UpdatableInfo.State = protocol.StateInProgress
	m.CreateSession(2, inProgress)

	joinInProgress := testSession(300, 4, 8)
	joinInProgress.UpdatableInfo.State = protocol.StateInProgress
	joinInProgress.UpdatableInfo.AllowJoinInProgress = true
	m.CreateSession(3, joinInProgress)

	sessions := m.FindSessions(1, nil, 10)
	require.Len(t, sessions, 1)
	assert.Equal(t, uint64(300), sessions[0].SessionID)
}

func TestExactFillMatch(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(1, testSession(100, 4, 4))

	_, a := enqueueParty(m, 2, time.Minute)
	_, b := enqueueParty(m, 2, time.Minute)

	m.Tick(time.Second)

	resultA, ok := tryReceive(t, a)
	require.True(t, ok, "first party should be matched")
	assert.Equal(t, protocol.MatchmakingMatched, resultA.Outcome)
	require.NotNil(t, resultA.Session)
	assert.Equal(t, uint64(100), resultA.Session.SessionID)

	resultB, ok := tryReceive(t, b)
	require.True(t, ok, "second party should be matched")
	assert.Equal(t, protocol.MatchmakingMatched, resultB.Outcome)

	assert.Equal(t, 0, m.QueueDepth())
}

func TestPartialFillLeavesQueueUntouched(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(1, testSession(100, 4, 4))

	_, outcome := enqueueParty(m, 3, time.Minute)
	m.Tick(time.Second)

	_, resolved := tryReceive(t, outcome)
	assert.False(t, resolved, "a three-player party cannot exactly fill four slots alone")
	assert.Equal(t, 1, m.QueueDepth())
}

func TestLargerPartiesMatchFirst(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(1, testSession(100, 4, 4))

	_, two := enqueueParty(m, 2, time.Minute)
	_, three := enqueueParty(m, 3, time.Minute)
	_, one := enqueueParty(m, 1, time.Minute)

	m.Tick(time.Second)

	// Greedy fill: 3 + 1 = 4, the two-player party stays queued.
	resultThree, ok := tryReceive(t, three)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingMatched, resultThree.Outcome)

	resultOne, ok := tryReceive(t, one)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingMatched, resultOne.Outcome)

	_, resolved := tryReceive(t, two)
	assert.False(t, resolved)
	assert.Equal(t, 1, m.QueueDepth())
}

func TestFIFOWithinBucket(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(1, testSession(100, 2, 2))

	_, first := enqueueParty(m, 2, time.Minute)
	_, second := enqueueParty(m, 2, time.Minute)

	m.Tick(time.Second)

	resultFirst, ok := tryReceive(t, first)
	require.True(t, ok, "the oldest entry in a bucket should win")
	assert.Equal(t, protocol.MatchmakingMatched, resultFirst.Outcome)

	_, resolved := tryReceive(t, second)
	assert.False(t, resolved)
}

func TestSessionCooldownAfterMatch(t *testing.T) {
	m := New(Options{MaxFindSessionsResults: 100, SessionCooldown: 10 * time.Second}, nil)
	m.CreateSession(1, testSession(100, 2, 2))

	_, first := enqueueParty(m, 2, time.Minute)
	m.Tick(time.Second)
	result, ok := tryReceive(t, first)
	require.True(t, ok)
	require.Equal(t, protocol.MatchmakingMatched, result.Outcome)

	// While cooling down the session is invisible to searches and matching.
	assert.Empty(t, m.FindSessions(1, nil, 10))

	_, second := enqueueParty(m, 2, time.Minute)
	m.Tick(5 * time.Second)
	_, resolved := tryReceive(t, second)
	assert.False(t, resolved, "session on cooldown must not be matched")

	// Once the cooldown elapses the session is offered again.
	m.Tick(10 * time.Second)
	result, ok = tryReceive(t, second)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingMatched, result.Outcome)
}

func TestQueueTimeout(t *testing.T) {
	m := newTestMatchmaker()

	_, outcome := enqueueParty(m, 2, 3*time.Second)

	m.Tick(2 * time.Second)
	_, resolved := tryReceive(t, outcome)
	require.False(t, resolved)

	m.Tick(2 * time.Second)
	result, ok := tryReceive(t, outcome)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingTimedOut, result.Outcome)
	assert.Equal(t, 0, m.QueueDepth())
}

func TestNonPositiveTimeoutWaitsForever(t *testing.T) {
	m := newTestMatchmaker()

	_, outcome := enqueueParty(m, 2, 0)

	for i := 0; i < 100; i++ {
		m.Tick(time.Hour)
	}
	_, resolved := tryReceive(t, outcome)
	assert.False(t, resolved, "zero timeout means wait indefinitely")
	assert.Equal(t, 1, m.QueueDepth())
}

func TestMatchWinsOverExpiryOnFinalTick(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(1, testSession(100, 2, 2))

	_, outcome := enqueueParty(m, 2, time.Second)

	// The same tick both satisfies and would expire the entry; the match
	// pass runs first.
	m.Tick(5 * time.Second)
	result, ok := tryReceive(t, outcome)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingMatched, result.Outcome)
}

func TestCancel(t *testing.T) {
	m := newTestMatchmaker()

	token, outcome := enqueueParty(m, 2, time.Minute)

	assert.True(t, m.Cancel(token))
	result, ok := tryReceive(t, outcome)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingCanceled, result.Outcome)

	assert.False(t, m.Cancel(token), "second cancel of the same token is a no-op")
	assert.False(t, m.Cancel(uuid.Nil))
	assert.False(t, m.Cancel(uuid.New()), "unknown token cancels nothing")
	assert.Equal(t, 0, m.QueueDepth())
}

func TestCanceledEntryIsNeverMatched(t *testing.T) {
	m := newTestMatchmaker()

	token, _ := enqueueParty(m, 2, time.Minute)
	require.True(t, m.Cancel(token))

	m.CreateSession(1, testSession(100, 2, 2))
	m.Tick(time.Second)

	sessions := m.FindSessions(1, nil, 10)
	require.Len(t, sessions, 1, "session should still be available after tick")
}

func TestCloseResolvesQueueAsShutdown(t *testing.T) {
	m := newTestMatchmaker()

	_, a := enqueueParty(m, 2, time.Minute)
	_, b := enqueueParty(m, 3, 0)

	m.Close()

	for _, ch := range []<-chan protocol.StartMatchmakingResult{a, b} {
		result, ok := tryReceive(t, ch)
		require.True(t, ok)
		assert.Equal(t, protocol.MatchmakingFailed, result.Outcome)
		assert.Equal(t, "Shutdown", result.Error)
	}

	// Enqueue after close resolves immediately.
	_, late := enqueueParty(m, 1, time.Minute)
	result, ok := tryReceive(t, late)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingFailed, result.Outcome)
	assert.Equal(t, "Shutdown", result.Error)

	// Close is idempotent and Tick becomes a no-op.
	m.Close()
	m.Tick(time.Second)
}

func TestMinSlotsAvailableRaisesRequiredCapacity(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(1, testSession(100, 3, 8))

	// A solo player demanding three open slots occupies the whole session.
	_, outcome := m.Enqueue(1, &protocol.StartMatchmakingRequest{
		Users: []uint64{42},
		Params: map[string]protocol.FindSessionsParam{
			protocol.SearchMinSlotsAvailable: {
				Op:    protocol.CompareGreaterThanEquals,
				Value: protocol.Int32Value(3),
			},
		},
		Timeout: time.Minute,
	})

	m.Tick(time.Second)
	result, ok := tryReceive(t, outcome)
	require.True(t, ok)
	assert.Equal(t, protocol.MatchmakingMatched, result.Outcome)
}

func TestMatchingRespectsSearchParams(t *testing.T) {
	m := newTestMatchmaker()

	listen := testSession(100, 2, 2)
	m.CreateSession(1, listen)

	dedicated := testSession(200, 2, 2)
	dedicated.IsDedicated = true
	m.CreateSession(2, dedicated)

	_, outcome := m.Enqueue(2, &protocol.StartMatchmakingRequest{
		Users: []uint64{1, 2},
		Params: map[string]protocol.FindSessionsParam{
			protocol.SearchDedicatedOnly: {
				Op:    protocol.CompareEquals,
				Value: protocol.BoolValue(true),
			},
		},
		Timeout: time.Minute,
	})

	m.Tick(time.Second)
	result, ok := tryReceive(t, outcome)
	require.True(t, ok)
	require.Equal(t, protocol.MatchmakingMatched, result.Outcome)
	assert.Equal(t, uint64(200), result.Session.SessionID)
}

func TestSnapshots(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(2, testSession(200, 4, 8))
	m.CreateSession(1, testSession(100, 2, 8))
	enqueueParty(m, 3, time.Minute)
	enqueueParty(m, 3, time.Minute)
	enqueueParty(m, 1, time.Minute)

	sessions := m.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, uint64(1), sessions[0].OwnerUserID, "snapshots are sorted by owner")
	assert.Equal(t, uint64(2), sessions[1].OwnerUserID)
	assert.Equal(t, int32(2), sessions[0].OpenSlots)
	assert.Equal(t, "Pending", sessions[0].State)

	queue := m.QueueSummary()
	require.Len(t, queue, 2)
	assert.Equal(t, int32(3), queue[0].RequiredCapacity, "buckets are listed largest first")
	assert.Equal(t, 2, queue[0].Waiting)
	assert.Equal(t, int32(1), queue[1].RequiredCapacity)
	assert.Equal(t, 1, queue[1].Waiting)
	assert.Equal(t, 3, m.QueueDepth())
}
