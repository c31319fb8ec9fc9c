package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/instrumentation"
)

func TestNewServerContext_RequiresPipeline(t *testing.T) {
	_, err := NewServerContext(context.Background(), nil)
	assert.Error(t, err)
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestContext(t, testSource{}, testAnalyzer{}, nil)

	assert.False(t, sc.IsShutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.ErrorIs(t, sc.Context().Err(), context.Canceled)

	// Second shutdown is a no-op
	require.NoError(t, sc.Shutdown())
}

func TestServerContext_Instrumentation(t *testing.T) {
	sc := newTestContext(t, testSource{}, testAnalyzer{}, nil)

	assert.Nil(t, sc.Metrics())
	assert.Nil(t, sc.AuditLogger())

	al := instrumentation.NewAuditLogger(nil)
	sc.SetAuditLogger(al)
	assert.Same(t, al, sc.AuditLogger())
}
