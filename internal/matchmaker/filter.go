package matchmaker

import (
	"bytes"

	"github.com/slonopotamus/Atto/internal/protocol"
)

// isJoinable reports whether anyone may join the session right now. A
// session on matchmaker cooldown, one not advertised, or one in progress
// without join-in-progress is closed to everyone.
func (r *sessionRecord) isJoinable() bool {
	if r.cooldown > 0 {
		return false
	}
	if !r.info.UpdatableInfo.ShouldAdvertise {
		return false
	}
	if !r.info.UpdatableInfo.AllowJoinInProgress && r.info.UpdatableInfo.State == protocol.StateInProgress {
		return false
	}
	return true
}

func (r *sessionRecord) isEmpty() bool {
	return r.info.UpdatableInfo.NumOpenPublicConnections >= r.info.UpdatableInfo.NumPublicConnections
}

// openCapacity returns the number of open public slots. An advertisement
// outside [0, NumPublicConnections] is nonsense from a misbehaving host
// and counts as no capacity at all.
func (r *sessionRecord) openCapacity() int32 {
	open := r.info.UpdatableInfo.NumOpenPublicConnections
	if open < 0 || open > r.info.UpdatableInfo.NumPublicConnections {
		return 0
	}
	return open
}

func (r *sessionRecord) hasCapacity(needed int32) bool {
	return r.openCapacity() >= needed
}

func (r *sessionRecord) canJoin(params map[string]protocol.FindSessionsParam, requesterCount int32) bool {
	return r.isJoinable() && r.hasCapacity(requesterCount) && r.matchesParams(params)
}

// matchesParams evaluates every search param against the session. A few
// well-known keys compare against derived session properties instead of
// the settings map. A param naming a setting the session does not carry
// never filters the session out.
func (r *sessionRecord) matchesParams(params map[string]protocol.FindSessionsParam) bool {
	for name, param := range params {
		switch name {
		case protocol.SearchDedicatedOnly:
			if !evalParam(param, protocol.BoolValue(r.info.IsDedicated)) {
				return false
			}
		case protocol.SearchNonEmptyServers:
			if !evalParam(param, protocol.BoolValue(!r.isEmpty())) {
				return false
			}
		case protocol.SearchEmptyServersOnly:
			if !evalParam(param, protocol.BoolValue(r.isEmpty())) {
				return false
			}
		case protocol.SearchMinSlotsAvailable:
			if !evalParam(param, protocol.Int32Value(r.info.UpdatableInfo.NumOpenPublicConnections)) {
				return false
			}
		case protocol.SearchSecureServersOnly:
			if !evalParam(param, protocol.BoolValue(r.info.AntiCheatProtected)) {
				return false
			}
		default:
			if setting, ok := r.info.Settings[name]; ok {
				if !evalParam(param, setting) {
					return false
				}
			}
		}
	}
	return true
}

// evalParam compares a session value against a search param. Values of
// different kinds never match. Numeric and string kinds support the full
// ordered operator set; bool and blob support only equality.
func evalParam(param protocol.FindSessionsParam, sessionValue protocol.Value) bool {
	if sessionValue.Kind != param.Value.Kind {
		return false
	}

	op := param.Op
	switch sessionValue.Kind {
	case protocol.ValueBool:
		return evalLogical(op, sessionValue.Bool == param.Value.Bool)
	case protocol.ValueInt32, protocol.ValueInt64:
		return evalOrdered(op, sessionValue.Int64, param.Value.Int64)
	case protocol.ValueUInt32, protocol.ValueUInt64:
		return evalOrdered(op, sessionValue.UInt64, param.Value.UInt64)
	case protocol.ValueFloat, protocol.ValueDouble:
		return evalOrdered(op, sessionValue.Float64, param.Value.Float64)
	case protocol.ValueString:
		return evalOrdered(op, sessionValue.Str, param.Value.Str)
	case protocol.ValueBlob:
		return evalLogical(op, bytes.Equal(sessionValue.Blob, param.Value.Blob))
	default:
		return false
	}
}

func evalOrdered[T int64 | uint64 | float64 | string](op protocol.ComparisonOp, a, b T) bool {
	switch op {
	case protocol.CompareEquals:
		return a == b
	case protocol.CompareNotEquals:
		return a != b
	case protocol.CompareGreaterThan:
		return a > b
	case protocol.CompareGreaterThanEquals:
		return a >= b
	case protocol.CompareLessThan:
		return a < b
	case protocol.CompareLessThanEquals:
		return a <= b
	default:
		return false
	}
}

func evalLogical(op protocol.ComparisonOp, equal bool) bool {
	switch op {
	case protocol.CompareEquals:
		return equal
	case protocol.CompareNotEquals:
		return !equal
	default:
		return false
	}
}
