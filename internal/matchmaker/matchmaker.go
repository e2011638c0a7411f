// Package matchmaker implements the session registry and the
// capacity-aware matchmaking scheduler. All state lives in memory and is
// owned by a single Matchmaker instance shared by every connection.
package matchmaker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/events"
	"github.com/slonopotamus/Atto/internal/protocol"
)

// queueEntry is one pending matchmaking request. Its outcome channel is
// resolved exactly once: by a match, a timeout, a cancel, or Close.
type queueEntry struct {
	token     uuid.UUID
	remaining time.Duration
	forever   bool // non-positive request timeout means wait indefinitely
	params    map[string]protocol.FindSessionsParam
	outcome   chan protocol.StartMatchmakingResult
}

func (e *queueEntry) resolve(result protocol.StartMatchmakingResult) {
	// Buffered channel; the entry is removed from its bucket in the same
	// critical section, so this send happens at most once and never blocks.
	e.outcome <- result
}

// sessionRecord pairs a registered session with its matchmaker cooldown.
type sessionRecord struct {
	cooldown time.Duration
	info     protocol.SessionInfo
}

// Matchmaker owns the session registry and the matchmaking queue. It is
// safe for concurrent use by the connection handlers and the tick loop.
type Matchmaker struct {
	logger zerolog.Logger
	bus    *events.EventBus

	maxFindResults int32
	cooldown       time.Duration

	mu sync.Mutex

	// Sessions keyed by owning user id: at most one session per owner.
	sessions map[uint64]*sessionRecord

	// Queue buckets keyed by required capacity, plus the capacities in
	// descending order so bigger parties are always attempted first.
	buckets    map[int32][]*queueEntry
	capacities []int32

	closed bool
}

// Options tunes a Matchmaker.
type Options struct {
	// MaxFindSessionsResults caps FindSessions results regardless of what
	// the client asks for.
	MaxFindSessionsResults int32

	// SessionCooldown is the grace period applied to a session after it
	// is matched, giving matched players time to connect before the
	// session is offered again.
	SessionCooldown time.Duration
}

// New creates an empty Matchmaker. The event bus is optional.
func New(opts Options, bus *events.EventBus) *Matchmaker {
	if opts.MaxFindSessionsResults <= 0 {
		opts.MaxFindSessionsResults = 100
	}
	if opts.SessionCooldown <= 0 {
		opts.SessionCooldown = 30 * time.Second
	}
	return &Matchmaker{
		logger:         log.With().Str("component", "matchmaker").Logger(),
		bus:            bus,
		maxFindResults: opts.MaxFindSessionsResults,
		cooldown:       opts.SessionCooldown,
		sessions:       make(map[uint64]*sessionRecord),
		buckets:        make(map[int32][]*queueEntry),
	}
}

// CreateSession registers (or overwrites) the session owned by a user.
func (m *Matchmaker) CreateSession(owningUserID uint64, info protocol.SessionInfo) bool {
	m.mu.Lock()
	m.sessions[owningUserID] = &sessionRecord{info: info}
	m.mu.Unlock()

	m.logger.Debug().
		Uint64("owner", owningUserID).
		Uint64("session_id", info.SessionID).
		Msg("session registered")
	m.emit(events.EventSessionCreated, events.SessionPayload{
		OwnerUserID: owningUserID,
		SessionID:   info.SessionID,
	})
	return true
}

// UpdateSession replaces the updatable part of the owner's session.
// Returns false when the owner has no session.
func (m *Matchmaker) UpdateSession(owningUserID uint64, info protocol.SessionUpdatableInfo) bool {
	m.mu.Lock()
	record, ok := m.sessions[owningUserID]
	if ok {
		record.info.UpdatableInfo = info
	}
	m.mu.Unlock()

	if ok {
		m.emit(events.EventSessionUpdated, events.SessionPayload{
			OwnerUserID: owningUserID,
			SessionID:   record.info.SessionID,
		})
	}
	return ok
}

// RemoveSession deletes the owner's session. Returns false when the
// owner had none.
func (m *Matchmaker) RemoveSession(owningUserID uint64) bool {
	m.mu.Lock()
	record, ok := m.sessions[owningUserID]
	if ok {
		delete(m.sessions, owningUserID)
	}
	m.mu.Unlock()

	if ok {
		m.logger.Debug().Uint64("owner", owningUserID).Msg("session removed")
		m.emit(events.EventSessionDestroyed, events.SessionPayload{
			OwnerUserID: owningUserID,
			SessionID:   record.info.SessionID,
		})
	}
	return ok
}

// FindSessions returns every joinable session that has capacity for the
// requesting party and matches all filter params, capped at
// min(maxResults, server maximum).
func (m *Matchmaker) FindSessions(requesterCount int32, params map[string]protocol.FindSessionsParam, maxResults int32) []protocol.SessionInfo {
	effectiveMax := maxResults
	if effectiveMax > m.maxFindResults {
		effectiveMax = m.maxFindResults
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []protocol.SessionInfo
	for _, record := range m.sessions {
		if int32(len(result)) >= effectiveMax {
			break
		}
		if !record.canJoin(params, requesterCount) {
			continue
		}
		result = append(result, record.info)
	}
	return result
}

// Enqueue adds a matchmaking request to the queue and returns its
// cancellation token together with the single-resolution outcome channel.
// Required capacity is the party size, raised by a MINSLOTSAVAILABLE
// param when present.
func (m *Matchmaker) Enqueue(partySize int32, req *protocol.StartMatchmakingRequest) (uuid.UUID, <-chan protocol.StartMatchmakingResult) {
	requiredCapacity := partySize
	if minSlots, ok := req.Params[protocol.SearchMinSlotsAvailable]; ok && minSlots.Value.Kind == protocol.ValueInt32 {
		if v := int32(minSlots.Value.Int64); v > requiredCapacity {
			requiredCapacity = v
		}
	}

	entry := &queueEntry{
		token:     uuid.New(),
		remaining: req.Timeout,
		forever:   req.Timeout <= 0,
		params:    req.Params,
		outcome:   make(chan protocol.StartMatchmakingResult, 1),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		entry.resolve(protocol.StartMatchmakingResult{
			Outcome: protocol.MatchmakingFailed,
			Error:   "Shutdown",
		})
		return entry.token, entry.outcome
	}
	if _, ok := m.buckets[requiredCapacity]; !ok {
		m.insertCapacityLocked(requiredCapacity)
	}
	m.buckets[requiredCapacity] = append(m.buckets[requiredCapacity], entry)
	m.mu.Unlock()

	m.logger.Debug().
		Str("token", entry.token.String()).
		Int32("required_capacity", requiredCapacity).
		Dur("timeout", req.Timeout).
		Msg("matchmaking request enqueued")
	return entry.token, entry.outcome
}

// insertCapacityLocked keeps capacities sorted in descending order.
func (m *Matchmaker) insertCapacityLocked(capacity int32) {
	i := sort.Search(len(m.capacities), func(i int) bool {
		return m.capacities[i] <= capacity
	})
	m.capacities = append(m.capacities, 0)
	copy(m.capacities[i+1:], m.capacities[i:])
	m.capacities[i] = capacity
}

// Cancel withdraws the queue entry with the given token, resolving its
// outcome as canceled. Returns false when no such entry exists, which
// makes a second cancel of the same token a harmless no-op.
func (m *Matchmaker) Cancel(token uuid.UUID) bool {
	if token == uuid.Nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for capacity, bucket := range m.buckets {
		for i, entry := range bucket {
			if entry.token != token {
				continue
			}
			m.buckets[capacity] = append(bucket[:i], bucket[i+1:]...)
			m.dropBucketIfEmptyLocked(capacity)
			entry.resolve(protocol.StartMatchmakingResult{Outcome: protocol.MatchmakingCanceled})
			m.logger.Debug().Str("token", token.String()).Msg("matchmaking request canceled")
			return true
		}
	}
	return false
}

func (m *Matchmaker) dropBucketIfEmptyLocked(capacity int32) {
	if len(m.buckets[capacity]) != 0 {
		return
	}
	delete(m.buckets, capacity)
	for i, c := range m.capacities {
		if c == capacity {
			m.capacities = append(m.capacities[:i], m.capacities[i+1:]...)
			break
		}
	}
}

// Close resolves every still-queued entry as a shutdown error. The
// matchmaker accepts no work afterwards.
func (m *Matchmaker) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for capacity, bucket := range m.buckets {
		for _, entry := range bucket {
			entry.resolve(protocol.StartMatchmakingResult{
				Outcome: protocol.MatchmakingFailed,
				Error:   "Shutdown",
			})
		}
		delete(m.buckets, capacity)
	}
	m.capacities = nil
	m.logger.Info().Msg("matchmaker closed")
}

func (m *Matchmaker) emit(eventType events.EventType, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(context.Background(), events.Event{
		Type:    eventType,
		Source:  "matchmaker",
		Payload: payload,
	})
}
