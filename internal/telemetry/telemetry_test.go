package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithEmptyEndpointReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "elefante", "test", true)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerReturnsNonNilTracer(t *testing.T) {
	tr := Tracer("elefante/test")
	assert.NotNil(t, tr)
}
