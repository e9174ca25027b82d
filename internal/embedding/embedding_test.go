package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProviderIsDeterministic(t *testing.T) {
	p := NewNoopProvider(16)
	v1, err := p.Embed(context.Background(), "remember to rotate the keys")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "remember to rotate the keys")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestNoopProviderDiffersByInput(t *testing.T) {
	p := NewNoopProvider(16)
	v1, err := p.Embed(context.Background(), "alpha")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "beta")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestNoopProviderIsUnitNorm(t *testing.T) {
	p := NewNoopProvider(32)
	v, err := p.Embed(context.Background(), "unit norm check")
	require.NoError(t, err)

	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-3)
}

func TestNoopProviderRespectsDimensions(t *testing.T) {
	p := NewNoopProvider(4)
	v, err := p.Embed(context.Background(), "four dims")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, 4, p.Dimensions())
}

func TestTruncateTextNoOpBelowLimit(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 100))
}

func TestTruncateTextCutsAtWordBoundary(t *testing.T) {
	s := "one two three four five"
	got := truncateText(s, 12)
	assert.LessOrEqual(t, len(got), 12)
	assert.Equal(t, "one two", got)
}

func TestTruncateTextNoSpaceFallsBackToHardCut(t *testing.T) {
	s := "abcdefghijklmnop"
	got := truncateText(s, 5)
	assert.Equal(t, "abcde", got)
}

func TestNewOpenAIProviderRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "text-embedding-3-small", 1536)
	assert.Error(t, err)
}

func TestNewOpenAIProviderDefaultsDimensions(t *testing.T) {
	p, err := NewOpenAIProvider("sk-test", "text-embedding-3-small", 0)
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimensions())
}
