package protocol

import (
	"bytes"
	"sort"
)

// SessionAddress is the raw network address of the authoritative game
// server hosting a session.
type SessionAddress struct {
	Host []byte
	Port int32
}

func (a SessionAddress) encode(w *bytes.Buffer) {
	writeBlob(w, a.Host)
	writeI32(w, a.Port)
}

func decodeSessionAddress(r *bytes.Reader) (SessionAddress, error) {
	host, err := readBlob(r, "session host")
	if err != nil {
		return SessionAddress{}, err
	}
	port, err := readI32(r, "session port")
	if err != nil {
		return SessionAddress{}, err
	}
	return SessionAddress{Host: host, Port: port}, nil
}

// SessionUpdatableInfo is the part of a session that may change after
// creation. UpdateSession replaces it wholesale.
type SessionUpdatableInfo struct {
	NumOpenPublicConnections int32
	NumPublicConnections     int32
	State                    SessionState
	AllowJoinInProgress      bool
	ShouldAdvertise          bool
}

func (i SessionUpdatableInfo) encode(w *bytes.Buffer) {
	writeI32(w, i.NumOpenPublicConnections)
	writeI32(w, i.NumPublicConnections)
	writeI32(w, int32(i.State))
	writeBool(w, i.AllowJoinInProgress)
	writeBool(w, i.ShouldAdvertise)
}

func decodeSessionUpdatableInfo(r *bytes.Reader) (SessionUpdatableInfo, error) {
	var info SessionUpdatableInfo
	var err error
	if info.NumOpenPublicConnections, err = readI32(r, "open public connections"); err != nil {
		return info, err
	}
	if info.NumPublicConnections, err = readI32(r, "public connections"); err != nil {
		return info, err
	}
	state, err := readI32(r, "session state")
	if err != nil {
		return info, err
	}
	if state < int32(StateNoSession) || state > int32(StateDestroying) {
		return info, parseErrorf("unknown session state %d", state)
	}
	info.State = SessionState(state)
	if info.AllowJoinInProgress, err = readBool(r, "allow join in progress"); err != nil {
		return info, err
	}
	if info.ShouldAdvertise, err = readBool(r, "should advertise"); err != nil {
		return info, err
	}
	return info, nil
}

// SessionInfo is a hostable game session advertised by one owning user.
// Everything outside UpdatableInfo is immutable after creation.
type SessionInfo struct {
	SessionID          uint64
	HostAddress        SessionAddress
	BuildUniqueID      int32
	Settings           map[string]Value
	UpdatableInfo      SessionUpdatableInfo
	IsDedicated        bool
	AntiCheatProtected bool
}

func (s SessionInfo) encode(w *bytes.Buffer) {
	writeU64(w, s.SessionID)
	s.HostAddress.encode(w)
	writeI32(w, s.BuildUniqueID)

	// Settings are written in sorted key order so encoding is deterministic.
	writeI32(w, int32(len(s.Settings)))
	keys := make([]string, 0, len(s.Settings))
	for k := range s.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeString(w, k)
		s.Settings[k].encode(w)
	}

	s.UpdatableInfo.encode(w)
	writeBool(w, s.IsDedicated)
	writeBool(w, s.AntiCheatProtected)
}

func decodeSessionInfo(r *bytes.Reader) (SessionInfo, error) {
	var s SessionInfo
	var err error
	if s.SessionID, err = readU64(r, "session id"); err != nil {
		return s, err
	}
	if s.HostAddress, err = decodeSessionAddress(r); err != nil {
		return s, err
	}
	if s.BuildUniqueID, err = readI32(r, "build id"); err != nil {
		return s, err
	}

	count, err := readI32(r, "settings count")
	if err != nil {
		return s, err
	}
	if count < 0 || int(count) > r.Len() {
		return s, parseErrorf("implausible settings count %d", count)
	}
	if count > 0 {
		s.Settings = make(map[string]Value, count)
		for i := int32(0); i < count; i++ {
			key, err := readString(r, "setting key")
			if err != nil {
				return s, err
			}
			value, err := decodeValue(r)
			if err != nil {
				return s, err
			}
			s.Settings[key] = value
		}
	}

	if s.UpdatableInfo, err = decodeSessionUpdatableInfo(r); err != nil {
		return s, err
	}
	if s.IsDedicated, err = readBool(r, "is dedicated"); err != nil {
		return s, err
	}
	if s.AntiCheatProtected, err = readBool(r, "anti-cheat protected"); err != nil {
		return s, err
	}
	return s, nil
}

// FindSessionsParam is one search filter criterion, evaluated against a
// synthetic session field or a free-form setting of the same name.
type FindSessionsParam struct {
	Op    ComparisonOp
	Value Value
	ID    int32
}

func (p FindSessionsParam) encode(w *bytes.Buffer) {
	writeU8(w, uint8(p.Op))
	p.Value.encode(w)
	writeI32(w, p.ID)
}

func decodeFindSessionsParam(r *bytes.Reader) (FindSessionsParam, error) {
	var p FindSessionsParam
	op, err := readU8(r, "comparison op")
	if err != nil {
		return p, err
	}
	if ComparisonOp(op) >= comparisonOpCount {
		return p, parseErrorf("unknown comparison op 0x%02X", op)
	}
	p.Op = ComparisonOp(op)
	if p.Value, err = decodeValue(r); err != nil {
		return p, err
	}
	if p.ID, err = readI32(r, "param id"); err != nil {
		return p, err
	}
	return p, nil
}

func encodeParams(w *bytes.Buffer, params map[string]FindSessionsParam) {
	writeI32(w, int32(len(params)))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeString(w, k)
		params[k].encode(w)
	}
}

func decodeParams(r *bytes.Reader) (map[string]FindSessionsParam, error) {
	count, err := readI32(r, "params count")
	if err != nil {
		return nil, err
	}
	if count < 0 || int(count) > r.Len() {
		return nil, parseErrorf("implausible params count %d", count)
	}
	if count == 0 {
		return nil, nil
	}
	params := make(map[string]FindSessionsParam, count)
	for i := int32(0); i < count; i++ {
		key, err := readString(r, "param name")
		if err != nil {
			return nil, err
		}
		param, err := decodeFindSessionsParam(r)
		if err != nil {
			return nil, err
		}
		params[key] = param
	}
	return params, nil
}
