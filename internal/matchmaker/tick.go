package matchmaker

import (
	"time"

	"github.com/slonopotamus/Atto/internal/events"
	"github.com/slonopotamus/Atto/internal/protocol"
)

// Tick advances the scheduler by dt. Each tick runs three passes under
// the lock: cooldowns are decremented, exact-fill matches are committed,
// and queue entries whose timeout elapsed are expired. Matching runs
// before expiry so an entry that can be satisfied on its final tick is
// matched rather than timed out.
func (m *Matchmaker) Tick(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.tickCooldownsLocked(dt)
	m.matchPassLocked()
	m.expiryPassLocked(dt)
}

func (m *Matchmaker) tickCooldownsLocked(dt time.Duration) {
	for _, record := range m.sessions {
		if record.cooldown > 0 {
			record.cooldown -= dt
		}
	}
}

// matchPassLocked tries to fill every eligible session exactly. Parties
// are drawn from the largest capacity bucket downwards, FIFO within a
// bucket. A session commits only when its open slots are filled exactly;
// a partial fill leaves the queue untouched.
func (m *Matchmaker) matchPassLocked() {
	for owner, record := range m.sessions {
		if !record.isJoinable() {
			continue
		}
		open := record.openCapacity()
		if open <= 0 {
			continue
		}

		selected := m.collectExactFillLocked(record, open)
		if selected == nil {
			continue
		}
		m.commitMatchLocked(owner, record, selected, open)
	}
}

// selectedEntry remembers where a chosen entry lives so commit can
// remove it without rescanning.
type selectedEntry struct {
	capacity int32
	entry    *queueEntry
}

// collectExactFillLocked returns a set of queue entries whose capacities
// sum to exactly open slots, or nil when no such greedy fill exists.
// Nothing is removed from the queue here.
func (m *Matchmaker) collectExactFillLocked(record *sessionRecord, open int32) []selectedEntry {
	var selected []selectedEntry
	taken := make(map[*queueEntry]bool)
	remaining := open

	for _, capacity := range m.capacities {
		if capacity > remaining {
			continue
		}
		for _, entry := range m.buckets[capacity] {
			if capacity > remaining {
				break
			}
			if taken[entry] {
				continue
			}
			if !record.matchesParams(entry.params) {
				continue
			}
			taken[entry] = true
			selected = append(selected, selectedEntry{capacity: capacity, entry: entry})
			remaining -= capacity
		}
		if remaining == 0 {
			break
		}
	}

	if remaining != 0 {
		return nil
	}
	return selected
}

func (m *Matchmaker) commitMatchLocked(owner uint64, record *sessionRecord, selected []selectedEntry, players int32) {
	for _, s := range selected {
		m.removeEntryLocked(s.capacity, s.entry)
		info := record.info
		s.entry.resolve(protocol.StartMatchmakingResult{
			Outcome: protocol.MatchmakingMatched,
			Session: &info,
		})
	}
	record.cooldown = m.cooldown

	m.logger.Info().
		Uint64("owner", owner).
		Uint64("session_id", record.info.SessionID).
		Int("parties", len(selected)).
		Int32("players", players).
		Msg("match committed")
	m.emit(events.EventMatchCommitted, events.MatchPayload{
		SessionID:   record.info.SessionID,
		OwnerUserID: owner,
		Parties:     len(selected),
		Players:     players,
	})
}

func (m *Matchmaker) removeEntryLocked(capacity int32, entry *queueEntry) {
	bucket := m.buckets[capacity]
	for i, e := range bucket {
		if e == entry {
			m.buckets[capacity] = append(bucket[:i], bucket[i+1:]...)
			m.dropBucketIfEmptyLocked(capacity)
			return
		}
	}
}

// expiryPassLocked decrements every deadline and resolves entries whose
// time ran out as timed out.
func (m *Matchmaker) expiryPassLocked(dt time.Duration) {
	var expired []selectedEntry
	for capacity, bucket := range m.buckets {
		for _, entry := range bucket {
			if entry.forever {
				continue
			}
			entry.remaining -= dt
			if entry.remaining <= 0 {
				expired = append(expired, selectedEntry{capacity: capacity, entry: entry})
			}
		}
	}

	for _, s := range expired {
		m.removeEntryLocked(s.capacity, s.entry)
		s.entry.resolve(protocol.StartMatchmakingResult{Outcome: protocol.MatchmakingTimedOut})
		m.logger.Debug().
			Str("token", s.entry.token.String()).
			Int32("required_capacity", s.capacity).
			Msg("matchmaking request timed out")
		m.emit(events.EventQueueExpired, events.QueueExpiredPayload{RequiredCapacity: s.capacity})
	}
}
