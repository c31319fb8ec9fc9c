package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/instrumentation"
)

func newTestProvider(t *testing.T, enabled bool) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(t.Context(), instrumentation.Config{
		ServiceName:     "inboxdigest-test",
		Enabled:         enabled,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracingExporter: instrumentation.ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(t.Context()) })
	return provider
}

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		provider func(t *testing.T) *instrumentation.Provider
		wantAddr string
		wantErr  string
	}{
		{
			name:     "explicit addr",
			addr:     ":9191",
			provider: func(t *testing.T) *instrumentation.Provider { return newTestProvider(t, true) },
			wantAddr: ":9191",
		},
		{
			name:     "default addr",
			provider: func(t *testing.T) *instrumentation.Provider { return newTestProvider(t, true) },
			wantAddr: DefaultMetricsAddr,
		},
		{
			name:     "nil provider",
			provider: func(*testing.T) *instrumentation.Provider { return nil },
			wantErr:  "instrumentation provider is required",
		},
		{
			name:     "disabled provider",
			provider: func(t *testing.T) *instrumentation.Provider { return newTestProvider(t, false) },
			wantErr:  "instrumentation provider is not enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewMetricsServer(MetricsServerConfig{Addr: tt.addr, InstrumentationProvider: tt.provider(t)})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, s.Addr())
			assert.Empty(t, s.ListenAddr())
		})
	}
}

func TestMetricsServer_Serve(t *testing.T) {
	provider := newTestProvider(t, true)
	provider.Metrics().RecordRun(t.Context(), instrumentation.TriggerCLI, instrumentation.StatusSuccess, "", time.Second)

	s, err := NewMetricsServer(MetricsServerConfig{Addr: "127.0.0.1:0", InstrumentationProvider: provider})
	require.NoError(t, err)

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.StartWithReadySignal(ready) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("metrics server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not start")
	}

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get("http://" + s.ListenAddr() + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	require.NoError(t, s.Shutdown(t.Context()))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestMetricsServer_ShutdownWithoutStart(t *testing.T) {
	s, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: newTestProvider(t, true)})
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown(t.Context()))
}

func TestInstrumentHandler(t *testing.T) {
	t.Run("nil metrics returns the handler unchanged", func(t *testing.T) {
		called := false
		h := InstrumentHandler(nil, "/x", http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.True(t, called)
	})

	t.Run("status is passed through", func(t *testing.T) {
		h := InstrumentHandler(&instrumentation.Metrics{}, "/api/reports",
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotImplemented)
			}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("recorder forwards flush", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
		sr.Flush()
		assert.True(t, rec.Flushed)
		_, _, err := sr.Hijack()
		assert.Error(t, err)
	})
}
