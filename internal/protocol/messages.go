package protocol

import (
	"bytes"
	"time"
)

// ClientRequest is the closed union of client-to-server requests.
type ClientRequest interface {
	Kind() RequestKind
	encode(w *bytes.Buffer)
}

// ServerResult is the closed union of correlated server responses. Each
// request kind has exactly one result type, identified by the same
// discriminant value.
type ServerResult interface {
	Kind() RequestKind
	encode(w *bytes.Buffer)
}

// ServerPush is the closed union of uncorrelated server-to-client frames.
type ServerPush interface {
	PushKind() PushKind
	encode(w *bytes.Buffer)
}

// CredentialKind discriminates login credentials.
type CredentialKind uint8

const (
	CredentialUsernamePassword CredentialKind = iota
	CredentialPlatformTicket

	credentialKindCount
)

// Credential carries one of the supported login credential shapes.
type Credential struct {
	Kind CredentialKind

	// Username/password pair (placeholder auth: username must equal password).
	Username string
	Password string

	// Opaque platform ticket verified by an external provider.
	Ticket string
}

func UsernamePassword(username, password string) Credential {
	return Credential{Kind: CredentialUsernamePassword, Username: username, Password: password}
}

func PlatformTicket(ticket string) Credential {
	return Credential{Kind: CredentialPlatformTicket, Ticket: ticket}
}

// LoginRequest authenticates one user on the connection. A connection may
// authenticate several users (a local party).
type LoginRequest struct {
	Credential    Credential
	BuildUniqueID int32
}

func (*LoginRequest) Kind() RequestKind { return KindLogin }

func (m *LoginRequest) encode(w *bytes.Buffer) {
	writeU8(w, uint8(m.Credential.Kind))
	switch m.Credential.Kind {
	case CredentialUsernamePassword:
		writeString(w, m.Credential.Username)
		writeString(w, m.Credential.Password)
	case CredentialPlatformTicket:
		writeString(w, m.Credential.Ticket)
	}
	writeI32(w, m.BuildUniqueID)
}

func decodeLoginRequest(r *bytes.Reader) (*LoginRequest, error) {
	m := &LoginRequest{}
	kind, err := readU8(r, "credential kind")
	if err != nil {
		return nil, err
	}
	if CredentialKind(kind) >= credentialKindCount {
		return nil, parseErrorf("unknown credential kind 0x%02X", kind)
	}
	m.Credential.Kind = CredentialKind(kind)
	switch m.Credential.Kind {
	case CredentialUsernamePassword:
		if m.Credential.Username, err = readString(r, "username"); err != nil {
			return nil, err
		}
		if m.Credential.Password, err = readString(r, "password"); err != nil {
			return nil, err
		}
	case CredentialPlatformTicket:
		if m.Credential.Ticket, err = readString(r, "ticket"); err != nil {
			return nil, err
		}
	}
	if m.BuildUniqueID, err = readI32(r, "build id"); err != nil {
		return nil, err
	}
	return m, nil
}

// LoginResult is either a freshly assigned user id or an error string.
type LoginResult struct {
	UserID uint64
	Error  string
}

func (*LoginResult) Kind() RequestKind { return KindLogin }

func (m *LoginResult) encode(w *bytes.Buffer) {
	if m.Error == "" {
		writeU8(w, 0)
		writeU64(w, m.UserID)
	} else {
		writeU8(w, 1)
		writeString(w, m.Error)
	}
}

func decodeLoginResult(r *bytes.Reader) (*LoginResult, error) {
	variant, err := readU8(r, "login result variant")
	if err != nil {
		return nil, err
	}
	m := &LoginResult{}
	switch variant {
	case 0:
		if m.UserID, err = readU64(r, "user id"); err != nil {
			return nil, err
		}
	case 1:
		if m.Error, err = readString(r, "login error"); err != nil {
			return nil, err
		}
	default:
		return nil, parseErrorf("unknown login result variant 0x%02X", variant)
	}
	return m, nil
}

// LogoutRequest removes one authenticated user from the connection.
type LogoutRequest struct {
	UserID uint64
}

func (*LogoutRequest) Kind() RequestKind { return KindLogout }

func (m *LogoutRequest) encode(w *bytes.Buffer) { writeU64(w, m.UserID) }

func decodeLogoutRequest(r *bytes.Reader) (*LogoutRequest, error) {
	id, err := readU64(r, "user id")
	if err != nil {
		return nil, err
	}
	return &LogoutRequest{UserID: id}, nil
}

// LogoutResult reports whether the user was logged in.
type LogoutResult struct {
	Success bool
}

func (*LogoutResult) Kind() RequestKind { return KindLogout }

func (m *LogoutResult) encode(w *bytes.Buffer) { writeBool(w, m.Success) }

func decodeLogoutResult(r *bytes.Reader) (*LogoutResult, error) {
	ok, err := readBool(r, "logout success")
	if err != nil {
		return nil, err
	}
	return &LogoutResult{Success: ok}, nil
}

// CreateSessionRequest registers (or overwrites) the session owned by one
// authenticated user.
type CreateSessionRequest struct {
	OwningUserID uint64
	SessionInfo  SessionInfo
}

func (*CreateSessionRequest) Kind() RequestKind { return KindCreateSession }

func (m *CreateSessionRequest) encode(w *bytes.Buffer) {
	writeU64(w, m.OwningUserID)
	m.SessionInfo.encode(w)
}

func decodeCreateSessionRequest(r *bytes.Reader) (*CreateSessionRequest, error) {
	m := &CreateSessionRequest{}
	var err error
	if m.OwningUserID, err = readU64(r, "owning user id"); err != nil {
		return nil, err
	}
	if m.SessionInfo, err = decodeSessionInfo(r); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateSessionResult reports registration success.
type CreateSessionResult struct {
	Success bool
}

func (*CreateSessionResult) Kind() RequestKind { return KindCreateSession }

func (m *CreateSessionResult) encode(w *bytes.Buffer) { writeBool(w, m.Success) }

func decodeCreateSessionResult(r *bytes.Reader) (*CreateSessionResult, error) {
	ok, err := readBool(r, "create session success")
	if err != nil {
		return nil, err
	}
	return &CreateSessionResult{Success: ok}, nil
}

// UpdateSessionRequest replaces the updatable part of the owner's session.
type UpdateSessionRequest struct {
	OwningUserID  uint64
	UpdatableInfo SessionUpdatableInfo
}

func (*UpdateSessionRequest) Kind() RequestKind { return KindUpdateSession }

func (m *UpdateSessionRequest) encode(w *bytes.Buffer) {
	writeU64(w, m.OwningUserID)
	m.UpdatableInfo.encode(w)
}

func decodeUpdateSessionRequest(r *bytes.Reader) (*UpdateSessionRequest, error) {
	m := &UpdateSessionRequest{}
	var err error
	if m.OwningUserID, err = readU64(r, "owning user id"); err != nil {
		return nil, err
	}
	if m.UpdatableInfo, err = decodeSessionUpdatableInfo(r); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateSessionResult reports whether the session existed.
type UpdateSessionResult struct {
	Success bool
}

func (*UpdateSessionResult) Kind() RequestKind { return KindUpdateSession }

func (m *UpdateSessionResult) encode(w *bytes.Buffer) { writeBool(w, m.Success) }

func decodeUpdateSessionResult(r *bytes.Reader) (*UpdateSessionResult, error) {
	ok, err := readBool(r, "update session success")
	if err != nil {
		return nil, err
	}
	return &UpdateSessionResult{Success: ok}, nil
}

// DestroySessionRequest removes the owner's session from the registry.
type DestroySessionRequest struct {
	OwningUserID uint64
}

func (*DestroySessionRequest) Kind() RequestKind { return KindDestroySession }

func (m *DestroySessionRequest) encode(w *bytes.Buffer) { writeU64(w, m.OwningUserID) }

func decodeDestroySessionRequest(r *bytes.Reader) (*DestroySessionRequest, error) {
	id, err := readU64(r, "owning user id")
	if err != nil {
		return nil, err
	}
	return &DestroySessionRequest{OwningUserID: id}, nil
}

// DestroySessionResult reports whether a session was removed.
type DestroySessionResult struct {
	Success bool
}

func (*DestroySessionResult) Kind() RequestKind { return KindDestroySession }

func (m *DestroySessionResult) encode(w *bytes.Buffer) { writeBool(w, m.Success) }

func decodeDestroySessionResult(r *bytes.Reader) (*DestroySessionResult, error) {
	ok, err := readBool(r, "destroy session success")
	if err != nil {
		return nil, err
	}
	return &DestroySessionResult{Success: ok}, nil
}

// FindSessionsRequest is a one-shot session search. SearchID is an
// application-level correlation id chosen by the searching client,
// echoed back in the result; it is unrelated to the frame request id.
type FindSessionsRequest struct {
	SearchingUserID uint64
	Params          map[string]FindSessionsParam
	SearchID        int32
	MaxResults      int32
}

func (*FindSessionsRequest) Kind() RequestKind { return KindFindSessions }

func (m *FindSessionsRequest) encode(w *bytes.Buffer) {
	writeU64(w, m.SearchingUserID)
	encodeParams(w, m.Params)
	writeI32(w, m.SearchID)
	writeI32(w, m.MaxResults)
}

func decodeFindSessionsRequest(r *bytes.Reader) (*FindSessionsRequest, error) {
	m := &FindSessionsRequest{}
	var err error
	if m.SearchingUserID, err = readU64(r, "searching user id"); err != nil {
		return nil, err
	}
	if m.Params, err = decodeParams(r); err != nil {
		return nil, err
	}
	if m.SearchID, err = readI32(r, "search id"); err != nil {
		return nil, err
	}
	if m.MaxResults, err = readI32(r, "max results"); err != nil {
		return nil, err
	}
	return m, nil
}

// FindSessionsResult carries the matching sessions for one search.
type FindSessionsResult struct {
	SearchID int32
	Sessions []SessionInfo
}

func (*FindSessionsResult) Kind() RequestKind { return KindFindSessions }

func (m *FindSessionsResult) encode(w *bytes.Buffer) {
	writeI32(w, m.SearchID)
	writeI32(w, int32(len(m.Sessions)))
	for i := range m.Sessions {
		m.Sessions[i].encode(w)
	}
}

func decodeFindSessionsResult(r *bytes.Reader) (*FindSessionsResult, error) {
	m := &FindSessionsResult{}
	var err error
	if m.SearchID, err = readI32(r, "search id"); err != nil {
		return nil, err
	}
	count, err := readI32(r, "sessions count")
	if err != nil {
		return nil, err
	}
	if count < 0 || int(count) > r.Len() {
		return nil, parseErrorf("implausible sessions count %d", count)
	}
	for i := int32(0); i < count; i++ {
		session, err := decodeSessionInfo(r)
		if err != nil {
			return nil, err
		}
		m.Sessions = append(m.Sessions, session)
	}
	return m, nil
}

// QueryServerUtcTimeRequest asks for the server's wall clock.
type QueryServerUtcTimeRequest struct{}

func (*QueryServerUtcTimeRequest) Kind() RequestKind { return KindQueryServerUtcTime }

func (m *QueryServerUtcTimeRequest) encode(w *bytes.Buffer) {}

func decodeQueryServerUtcTimeRequest(r *bytes.Reader) (*QueryServerUtcTimeRequest, error) {
	return &QueryServerUtcTimeRequest{}, nil
}

// QueryServerUtcTimeResult carries the server UTC time with microsecond
// precision.
type QueryServerUtcTimeResult struct {
	ServerTime time.Time
}

func (*QueryServerUtcTimeResult) Kind() RequestKind { return KindQueryServerUtcTime }

func (m *QueryServerUtcTimeResult) encode(w *bytes.Buffer) {
	writeI64(w, m.ServerTime.UnixMicro())
}

func decodeQueryServerUtcTimeResult(r *bytes.Reader) (*QueryServerUtcTimeResult, error) {
	micros, err := readI64(r, "server time")
	if err != nil {
		return nil, err
	}
	return &QueryServerUtcTimeResult{ServerTime: time.UnixMicro(micros).UTC()}, nil
}

// StartMatchmakingRequest enqueues the connection's whole party into the
// matchmaking queue. Timeout of zero or less means wait forever.
type StartMatchmakingRequest struct {
	Users   []uint64
	Params  map[string]FindSessionsParam
	Timeout time.Duration
}

func (*StartMatchmakingRequest) Kind() RequestKind { return KindStartMatchmaking }

func (m *StartMatchmakingRequest) encode(w *bytes.Buffer) {
	writeI32(w, int32(len(m.Users)))
	for _, u := range m.Users {
		writeU64(w, u)
	}
	encodeParams(w, m.Params)
	writeI64(w, m.Timeout.Microseconds())
}

func decodeStartMatchmakingRequest(r *bytes.Reader) (*StartMatchmakingRequest, error) {
	m := &StartMatchmakingRequest{}
	count, err := readI32(r, "users count")
	if err != nil {
		return nil, err
	}
	if count < 0 || int(count) > r.Len() {
		return nil, parseErrorf("implausible users count %d", count)
	}
	for i := int32(0); i < count; i++ {
		u, err := readU64(r, "party user id")
		if err != nil {
			return nil, err
		}
		m.Users = append(m.Users, u)
	}
	if m.Params, err = decodeParams(r); err != nil {
		return nil, err
	}
	micros, err := readI64(r, "matchmaking timeout")
	if err != nil {
		return nil, err
	}
	m.Timeout = time.Duration(micros) * time.Microsecond
	return m, nil
}

// MatchmakingOutcome discriminates the terminal states of a matchmaking
// request. TimedOut and Canceled are first-class outcomes, not errors.
type MatchmakingOutcome uint8

const (
	MatchmakingMatched MatchmakingOutcome = iota
	MatchmakingTimedOut
	MatchmakingCanceled
	MatchmakingFailed

	matchmakingOutcomeCount
)

// String returns the outcome name for logging.
func (o MatchmakingOutcome) String() string {
	switch o {
	case MatchmakingMatched:
		return "matched"
	case MatchmakingTimedOut:
		return "timed_out"
	case MatchmakingCanceled:
		return "canceled"
	case MatchmakingFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StartMatchmakingResult resolves a matchmaking request exactly once with
// one of: a session to join, a timeout, a cancellation, or an error.
type StartMatchmakingResult struct {
	Outcome MatchmakingOutcome
	Session *SessionInfo // set when Outcome == MatchmakingMatched
	Error   string       // set when Outcome == MatchmakingFailed
}

func (*StartMatchmakingResult) Kind() RequestKind { return KindStartMatchmaking }

func (m *StartMatchmakingResult) encode(w *bytes.Buffer) {
	writeU8(w, uint8(m.Outcome))
	switch m.Outcome {
	case MatchmakingMatched:
		m.Session.encode(w)
	case MatchmakingFailed:
		writeString(w, m.Error)
	}
}

func decodeStartMatchmakingResult(r *bytes.Reader) (*StartMatchmakingResult, error) {
	variant, err := readU8(r, "matchmaking outcome")
	if err != nil {
		return nil, err
	}
	if MatchmakingOutcome(variant) >= matchmakingOutcomeCount {
		return nil, parseErrorf("unknown matchmaking outcome 0x%02X", variant)
	}
	m := &StartMatchmakingResult{Outcome: MatchmakingOutcome(variant)}
	switch m.Outcome {
	case MatchmakingMatched:
		session, err := decodeSessionInfo(r)
		if err != nil {
			return nil, err
		}
		m.Session = &session
	case MatchmakingFailed:
		if m.Error, err = readString(r, "matchmaking error"); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CancelMatchmakingRequest withdraws the connection's pending matchmaking
// request, if any.
type CancelMatchmakingRequest struct {
	UserID uint64
}

func (*CancelMatchmakingRequest) Kind() RequestKind { return KindCancelMatchmaking }

func (m *CancelMatchmakingRequest) encode(w *bytes.Buffer) { writeU64(w, m.UserID) }

func decodeCancelMatchmakingRequest(r *bytes.Reader) (*CancelMatchmakingRequest, error) {
	id, err := readU64(r, "user id")
	if err != nil {
		return nil, err
	}
	return &CancelMatchmakingRequest{UserID: id}, nil
}

// CancelMatchmakingResult reports whether a queue entry was withdrawn.
type CancelMatchmakingResult struct {
	Success bool
}

func (*CancelMatchmakingResult) Kind() RequestKind { return KindCancelMatchmaking }

func (m *CancelMatchmakingResult) encode(w *bytes.Buffer) { writeBool(w, m.Success) }

func decodeCancelMatchmakingResult(r *bytes.Reader) (*CancelMatchmakingResult, error) {
	ok, err := readBool(r, "cancel matchmaking success")
	if err != nil {
		return nil, err
	}
	return &CancelMatchmakingResult{Success: ok}, nil
}

// ServerNoticePush is a server-initiated informational message, e.g. an
// impending shutdown announcement.
type ServerNoticePush struct {
	Message string
}

func (*ServerNoticePush) PushKind() PushKind { return KindServerNotice }

func (m *ServerNoticePush) encode(w *bytes.Buffer) { writeString(w, m.Message) }

func decodeServerNoticePush(r *bytes.Reader) (*ServerNoticePush, error) {
	msg, err := readString(r, "notice message")
	if err != nil {
		return nil, err
	}
	return &ServerNoticePush{Message: msg}, nil
}
