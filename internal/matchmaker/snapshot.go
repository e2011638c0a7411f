package matchmaker

import (
	"sort"
	"time"
)

// SessionSnapshot is a read-only view of one registered session, used by
// the status API and the operator console.
type SessionSnapshot struct {
	OwnerUserID  uint64        `json:"owner_user_id"`
	SessionID    uint64        `json:"session_id"`
	State        string        `json:"state"`
	OpenSlots    int32         `json:"open_slots"`
	TotalSlots   int32         `json:"total_slots"`
	IsDedicated  bool          `json:"is_dedicated"`
	Advertised   bool          `json:"advertised"`
	Cooldown     time.Duration `json:"-"`
	CooldownSecs float64       `json:"cooldown_secs"`
}

// QueueSnapshot describes one capacity bucket of the matchmaking queue.
type QueueSnapshot struct {
	RequiredCapacity int32 `json:"required_capacity"`
	Waiting          int   `json:"waiting"`
}

// SessionCount returns the number of registered sessions.
func (m *Matchmaker) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// QueueDepth returns the total number of queued matchmaking requests.
func (m *Matchmaker) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, bucket := range m.buckets {
		total += len(bucket)
	}
	return total
}

// Sessions returns a snapshot of every registered session sorted by
// owner id.
func (m *Matchmaker) Sessions() []SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]SessionSnapshot, 0, len(m.sessions))
	for owner, record := range m.sessions {
		cooldown := record.cooldown
		if cooldown < 0 {
			cooldown = 0
		}
		result = append(result, SessionSnapshot{
			OwnerUserID:  owner,
			SessionID:    record.info.SessionID,
			State:        record.info.UpdatableInfo.State.String(),
			OpenSlots:    record.info.UpdatableInfo.NumOpenPublicConnections,
			TotalSlots:   record.info.UpdatableInfo.NumPublicConnections,
			IsDedicated:  record.info.IsDedicated,
			Advertised:   record.info.UpdatableInfo.ShouldAdvertise,
			Cooldown:     cooldown,
			CooldownSecs: cooldown.Seconds(),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OwnerUserID < result[j].OwnerUserID
	})
	return result
}

// QueueSummary returns the queue buckets in matching order, biggest
// parties first.
func (m *Matchmaker) QueueSummary() []QueueSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]QueueSnapshot, 0, len(m.capacities))
	for _, capacity := range m.capacities {
		result = append(result, QueueSnapshot{
			RequiredCapacity: capacity,
			Waiting:          len(m.buckets[capacity]),
		})
	}
	return result
}
