// Package protocol implements the Atto wire codec: the binary framing
// shared by the matchmaking server and its clients. Every frame starts
// with an int64 request id followed by a tagged-union payload. All
// integers are little-endian and fixed width, strings and blobs are
// int32-length-prefixed, union discriminants are a single byte in
// variant-declaration order.
package protocol

// DefaultPort is the well-known Atto listen port.
const DefaultPort = 27777

// SubprotocolName is the WebSocket subprotocol negotiated during upgrade.
const SubprotocolName = "atto"

// ServerPushRequestID is the reserved request id marking a server-initiated
// push frame. Clients must never send it and the server must never use it
// for a correlated response.
const ServerPushRequestID int64 = 0

// MaxFrameSize is the absolute upper bound on a single frame. The
// configured receive buffer size may lower this further.
const MaxFrameSize = 1 << 20

// RequestKind discriminates the client request union. The paired result
// union reuses the same discriminant values.
type RequestKind uint8

const (
	KindLogin RequestKind = iota
	KindLogout
	KindCreateSession
	KindUpdateSession
	KindDestroySession
	KindFindSessions
	KindQueryServerUtcTime
	KindStartMatchmaking
	KindCancelMatchmaking

	requestKindCount
)

// String returns the request kind name for logging.
func (k RequestKind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindLogout:
		return "logout"
	case KindCreateSession:
		return "create_session"
	case KindUpdateSession:
		return "update_session"
	case KindDestroySession:
		return "destroy_session"
	case KindFindSessions:
		return "find_sessions"
	case KindQueryServerUtcTime:
		return "query_server_utc_time"
	case KindStartMatchmaking:
		return "start_matchmaking"
	case KindCancelMatchmaking:
		return "cancel_matchmaking"
	default:
		return "unknown"
	}
}

// PushKind discriminates the server push union.
type PushKind uint8

const (
	KindServerNotice PushKind = iota

	pushKindCount
)

// Well-known search keys resolved against synthetic session fields
// instead of free-form settings. The names match the ones game clients
// already send.
const (
	SearchDedicatedOnly     = "DEDICATEDONLY"
	SearchEmptyServersOnly  = "EMPTYONLY"
	SearchNonEmptyServers   = "NONEMPTYONLY"
	SearchSecureServersOnly = "SECUREONLY"
	SearchMinSlotsAvailable = "MINSLOTSAVAILABLE"
)

// ComparisonOp is the comparison applied by a FindSessionsParam.
type ComparisonOp uint8

const (
	CompareEquals ComparisonOp = iota
	CompareNotEquals
	CompareGreaterThan
	CompareGreaterThanEquals
	CompareLessThan
	CompareLessThanEquals

	comparisonOpCount
)

// SessionState tracks the lifecycle of an advertised game session.
type SessionState int32

const (
	StateNoSession SessionState = iota
	StateCreating
	StatePending
	StateStarting
	StateInProgress
	StateEnding
	StateEnded
	StateDestroying
)

func (s SessionState) String() string {
	switch s {
	case StateNoSession:
		return "NoSession"
	case StateCreating:
		return "Creating"
	case StatePending:
		return "Pending"
	case StateStarting:
		return "Starting"
	case StateInProgress:
		return "InProgress"
	case StateEnding:
		return "Ending"
	case StateEnded:
		return "Ended"
	case StateDestroying:
		return "Destroying"
	default:
		return "Unknown"
	}
}
