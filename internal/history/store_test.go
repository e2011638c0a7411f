package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonopotamus/Atto/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.MatchCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordAndQueryMatches(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.RecordMatch(100, 1, 2, 4))
	require.NoError(t, store.RecordMatch(200, 2, 1, 8))

	count, err := store.MatchCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	matches, err := store.RecentMatches(10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Most recent first.
	assert.Equal(t, uint64(200), matches[0].SessionID)
	assert.Equal(t, uint64(2), matches[0].OwnerUserID)
	assert.Equal(t, 1, matches[0].Parties)
	assert.Equal(t, int32(8), matches[0].Players)
	assert.Equal(t, uint64(100), matches[1].SessionID)
}

func TestRecentMatchesLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordMatch(uint64(i), 1, 1, 2))
	}

	matches, err := store.RecentMatches(3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	// A non-positive limit falls back to the default instead of returning
	// nothing.
	matches, err = store.RecentMatches(0)
	require.NoError(t, err)
	assert.Len(t, matches, 5)
}

func TestRecordMatchHighBitIDs(t *testing.T) {
	store := openTestStore(t)

	// User ids use the full uint64 range; they must survive the trip
	// through SQLite's signed integers.
	const bigID = uint64(0xFFFFFFFFFFFFFFF0)
	require.NoError(t, store.RecordMatch(bigID, bigID, 1, 2))

	matches, err := store.RecentMatches(1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, bigID, matches[0].SessionID)
	assert.Equal(t, bigID, matches[0].OwnerUserID)
}

func TestRecordLogin(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.RecordLogin(42, "127.0.0.1:55555"))
}

func TestAttachRecordsBusEvents(t *testing.T) {
	store := openTestStore(t)
	bus := events.NewEventBus()
	store.Attach(bus)

	bus.Emit(context.Background(), events.Event{
		Type:   events.EventMatchCommitted,
		Source: "matchmaker",
		Payload: events.MatchPayload{
			SessionID:   100,
			OwnerUserID: 1,
			Parties:     2,
			Players:     4,
		},
	})
	bus.Emit(context.Background(), events.Event{
		Type:    events.EventUserLoggedIn,
		Source:  "network",
		Payload: events.UserPayload{UserID: 7, RemoteAddr: "10.0.0.1:1234"},
	})

	// Handlers run asynchronously; Stop waits for them.
	bus.Stop()

	count, err := store.MatchCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAttachRejectsWrongPayload(t *testing.T) {
	store := openTestStore(t)
	bus := events.NewEventBus()
	store.Attach(bus)

	err := bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventMatchCommitted,
		Payload: "not a match payload",
	})
	assert.Error(t, err)

	count, countErr := store.MatchCount()
	require.NoError(t, countErr)
	assert.Zero(t, count)
}

func TestMatchedAtTimestamps(t *testing.T) {
	store := openTestStore(t)

	before := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.RecordMatch(100, 1, 1, 2))

	matches, err := store.RecentMatches(1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].MatchedAt.After(before), "matched_at should be populated by the database")
}
