package matchmaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slonopotamus/Atto/internal/protocol"
)

func param(op protocol.ComparisonOp, v protocol.Value) protocol.FindSessionsParam {
	return protocol.FindSessionsParam{Op: op, Value: v}
}

func TestEvalParamKindMismatchNeverMatches(t *testing.T) {
	assert.False(t, evalParam(param(protocol.CompareEquals, protocol.Int32Value(1)), protocol.StringValue("1")))
	assert.False(t, evalParam(param(protocol.CompareEquals, protocol.BoolValue(true)), protocol.Int32Value(1)))
	assert.False(t, evalParam(param(protocol.CompareEquals, protocol.Int32Value(1)), protocol.Int64Value(1)),
		"int32 and int64 are distinct kinds")
}

func TestEvalParamOrderedOperators(t *testing.T) {
	session := protocol.Int32Value(80)

	assert.True(t, evalParam(param(protocol.CompareEquals, protocol.Int32Value(80)), session))
	assert.True(t, evalParam(param(protocol.CompareNotEquals, protocol.Int32Value(81)), session))
	assert.True(t, evalParam(param(protocol.CompareGreaterThan, protocol.Int32Value(79)), session))
	assert.False(t, evalParam(param(protocol.CompareGreaterThan, protocol.Int32Value(80)), session))
	assert.True(t, evalParam(param(protocol.CompareGreaterThanEquals, protocol.Int32Value(80)), session))
	assert.True(t, evalParam(param(protocol.CompareLessThan, protocol.Int32Value(81)), session))
	assert.True(t, evalParam(param(protocol.CompareLessThanEquals, protocol.Int32Value(80)), session))
	assert.False(t, evalParam(param(protocol.CompareLessThanEquals, protocol.Int32Value(79)), session))
}

func TestEvalParamStringsAreOrdered(t *testing.T) {
	session := protocol.StringValue("Highlands")

	assert.True(t, evalParam(param(protocol.CompareEquals, protocol.StringValue("Highlands")), session))
	assert.True(t, evalParam(param(protocol.CompareLessThan, protocol.StringValue("Lowlands")), session))
	assert.False(t, evalParam(param(protocol.CompareGreaterThan, protocol.StringValue("Lowlands")), session))
}

func TestEvalParamBoolSupportsOnlyEquality(t *testing.T) {
	session := protocol.BoolValue(true)

	assert.True(t, evalParam(param(protocol.CompareEquals, protocol.BoolValue(true)), session))
	assert.True(t, evalParam(param(protocol.CompareNotEquals, protocol.BoolValue(false)), session))
	assert.False(t, evalParam(param(protocol.CompareGreaterThan, protocol.BoolValue(false)), session),
		"ordered operators are undefined for booleans")
}

func TestEvalParamBlobSupportsOnlyEquality(t *testing.T) {
	session := protocol.BlobValue([]byte{1, 2, 3})

	assert.True(t, evalParam(param(protocol.CompareEquals, protocol.BlobValue([]byte{1, 2, 3})), session))
	assert.True(t, evalParam(param(protocol.CompareNotEquals, protocol.BlobValue([]byte{9})), session))
	assert.False(t, evalParam(param(protocol.CompareLessThan, protocol.BlobValue([]byte{9})), session))
}

func TestMatchesParamsMissingSettingIsPermissive(t *testing.T) {
	record := &sessionRecord{info: testSession(100, 4, 8)}

	params := map[string]protocol.FindSessionsParam{
		"MUTATORS": param(protocol.CompareEquals, protocol.StringValue("instagib")),
	}
	assert.True(t, record.matchesParams(params),
		"a param naming a setting the session does not carry never filters it out")
}

func TestMatchesParamsSettingComparison(t *testing.T) {
	info := testSession(100, 4, 8)
	info.Settings = map[string]protocol.Value{
		"MAPNAME": protocol.StringValue("Highlands"),
		"MAXPING": protocol.Int32Value(120),
	}
	record := &sessionRecord{info: info}

	assert.True(t, record.matchesParams(map[string]protocol.FindSessionsParam{
		"MAPNAME": param(protocol.CompareEquals, protocol.StringValue("Highlands")),
		"MAXPING": param(protocol.CompareLessThanEquals, protocol.Int32Value(150)),
	}))
	assert.False(t, record.matchesParams(map[string]protocol.FindSessionsParam{
		"MAPNAME": param(protocol.CompareEquals, protocol.StringValue("Facing Worlds")),
	}))
}

func TestMatchesParamsSyntheticKeys(t *testing.T) {
	info := testSession(100, 3, 8) // 3 open of 8 total: neither empty nor full
	info.IsDedicated = true
	info.AntiCheatProtected = true
	record := &sessionRecord{info: info}

	tests := []struct {
		name  string
		key   string
		value protocol.Value
		want  bool
	}{
		{"dedicated only matches dedicated host", protocol.SearchDedicatedOnly, protocol.BoolValue(true), true},
		{"dedicated only rejects when asked for listen", protocol.SearchDedicatedOnly, protocol.BoolValue(false), false},
		{"non-empty matches occupied session", protocol.SearchNonEmptyServers, protocol.BoolValue(true), true},
		{"empty only rejects occupied session", protocol.SearchEmptyServersOnly, protocol.BoolValue(true), false},
		{"secure only matches protected host", protocol.SearchSecureServersOnly, protocol.BoolValue(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := record.matchesParams(map[string]protocol.FindSessionsParam{
				tt.key: param(protocol.CompareEquals, tt.value),
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchesParamsMinSlotsAvailable(t *testing.T) {
	record := &sessionRecord{info: testSession(100, 3, 8)}

	assert.True(t, record.matchesParams(map[string]protocol.FindSessionsParam{
		protocol.SearchMinSlotsAvailable: param(protocol.CompareGreaterThanEquals, protocol.Int32Value(3)),
	}))
	assert.False(t, record.matchesParams(map[string]protocol.FindSessionsParam{
		protocol.SearchMinSlotsAvailable: param(protocol.CompareGreaterThanEquals, protocol.Int32Value(4)),
	}))
}

func TestOpenCapacityOutOfRangeIsZero(t *testing.T) {
	negative := &sessionRecord{info: testSession(100, -2, 8)}
	assert.Equal(t, int32(0), negative.openCapacity())

	overAdvertised := &sessionRecord{info: testSession(100, 12, 8)}
	assert.Equal(t, int32(0), overAdvertised.openCapacity(),
		"more open slots than total slots is nonsense, not capacity")
	assert.False(t, overAdvertised.hasCapacity(1))

	normal := &sessionRecord{info: testSession(100, 3, 8)}
	assert.Equal(t, int32(3), normal.openCapacity())
	assert.True(t, normal.hasCapacity(3))
	assert.False(t, normal.hasCapacity(4))
}

func TestOverAdvertisedSessionNeverMatches(t *testing.T) {
	m := newTestMatchmaker()
	m.CreateSession(1, testSession(100, 12, 8))

	_, outcome := enqueueParty(m, 8, time.Minute)
	m.Tick(time.Second)

	_, resolved := tryReceive(t, outcome)
	assert.False(t, resolved, "a host advertising more open slots than it has must not receive players")
	assert.Empty(t, m.FindSessions(1, nil, 10))
}

func TestIsEmptyUsesAdvertisedCounts(t *testing.T) {
	empty := &sessionRecord{info: testSession(100, 8, 8)}
	assert.True(t, empty.isEmpty())

	occupied := &sessionRecord{info: testSession(100, 5, 8)}
	assert.False(t, occupied.isEmpty())
}
