package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionIDRoundTrip(t *testing.T) {
	ctx := WithSessionID(context.Background(), "session-abc")
	assert.Equal(t, "session-abc", SessionIDFromContext(ctx))
}

func TestSessionIDAbsentReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", SessionIDFromContext(context.Background()))
}
