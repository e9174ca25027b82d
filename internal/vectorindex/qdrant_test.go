package vectorindex

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQdrantURLRemapsRESTPortToGRPC(t *testing.T) {
	host, port, useTLS, err := parseQdrantURL("http://localhost:6333")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6334, port)
	assert.False(t, useTLS)
}

func TestParseQdrantURLKeepsExplicitGRPCPort(t *testing.T) {
	host, port, useTLS, err := parseQdrantURL("https://qdrant.internal:6334")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", host)
	assert.Equal(t, 6334, port)
	assert.True(t, useTLS)
}

func TestParseQdrantURLDefaultsToGRPCPortWhenAbsent(t *testing.T) {
	_, port, _, err := parseQdrantURL("http://localhost")
	require.NoError(t, err)
	assert.Equal(t, 6334, port)
}

func TestParseQdrantURLRejectsInvalid(t *testing.T) {
	_, _, _, err := parseQdrantURL("not a url at all")
	assert.Error(t, err)
}

func TestMapCosineToUnitCoversFullRange(t *testing.T) {
	assert.InDelta(t, 0.0, mapCosineToUnit(-1), 1e-6)
	assert.InDelta(t, 0.5, mapCosineToUnit(0), 1e-6)
	assert.InDelta(t, 1.0, mapCosineToUnit(1), 1e-6)
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func doubleValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func TestQdrantValueToAnyConvertsPrimitives(t *testing.T) {
	assert.Equal(t, "x", qdrantValueToAny(stringValue("x")))
	assert.Equal(t, true, qdrantValueToAny(&qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: true}}))
	assert.Equal(t, float64(42), qdrantValueToAny(&qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: 42}}))
	assert.Equal(t, 3.5, qdrantValueToAny(doubleValue(3.5)))
}

func TestQdrantValueToAnyConvertsList(t *testing.T) {
	list := &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{
		Values: []*qdrant.Value{stringValue("a"), stringValue("b")},
	}}}
	got := qdrantValueToAny(list)
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestPayloadToMapConvertsEveryField(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"domain":     stringValue("engineering"),
		"importance": doubleValue(0.8),
	}
	got := payloadToMap(payload)
	assert.Equal(t, "engineering", got["domain"])
	assert.Equal(t, 0.8, got["importance"])
}
