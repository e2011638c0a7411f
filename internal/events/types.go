// Package events implements the asynchronous publish-subscribe backbone
// connecting the matchmaking core to its observers (match history,
// telemetry, operator tooling).
package events

// EventType identifies a class of event.
type EventType string

const (
	EventConnectionOpened EventType = "connection.opened"
	EventConnectionClosed EventType = "connection.closed"
	EventUserLoggedIn     EventType = "user.login"
	EventUserLoggedOut    EventType = "user.logout"
	EventSessionCreated   EventType = "session.created"
	EventSessionUpdated   EventType = "session.updated"
	EventSessionDestroyed EventType = "session.destroyed"
	EventMatchCommitted   EventType = "match.committed"
	EventQueueExpired     EventType = "matchmaking.expired"
	EventShutdown         EventType = "shutdown"
)

// Event is a single occurrence published on the bus.
type Event struct {
	Type    EventType
	Source  string
	Payload any
}

// ConnectionPayload describes a transport-level connection event.
type ConnectionPayload struct {
	RemoteAddr string
	Reason     string
	WasClean   bool
}

// UserPayload describes a login or logout.
type UserPayload struct {
	UserID     uint64
	RemoteAddr string
}

// SessionPayload describes a session registry change.
type SessionPayload struct {
	OwnerUserID uint64
	SessionID   uint64
}

// MatchPayload describes one committed match: a session filled exactly
// by one or more queued parties.
type MatchPayload struct {
	SessionID   uint64
	OwnerUserID uint64
	Parties     int
	Players     int32
}

// QueueExpiredPayload describes a matchmaking entry that timed out.
type QueueExpiredPayload struct {
	RequiredCapacity int32
}
