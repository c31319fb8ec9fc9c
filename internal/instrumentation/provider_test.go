package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(t.Context(), Config{ServiceName: "digest-test", Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	require.NotNil(t, p.Metrics())
	// No-op recorders must be safe to call.
	p.Metrics().RecordRun(t.Context(), TriggerCLI, StatusSuccess, "user@example.com", 0)
	assert.NoError(t, p.Shutdown(t.Context()))
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name    string
		metrics string
		tracing string
	}{
		{name: "prometheus without tracing", metrics: ExporterPrometheus, tracing: ExporterNone},
		{name: "stdout metrics", metrics: ExporterStdout, tracing: ExporterNone},
		{name: "prometheus with stdout traces", metrics: ExporterPrometheus, tracing: ExporterStdout},
		{name: "empty names fall back to defaults", metrics: "", tracing: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(t.Context(), Config{
				ServiceName:     "digest-test",
				ServiceVersion:  "0.0.1",
				InstanceID:      "worker-1",
				Enabled:         true,
				MetricsExporter: tt.metrics,
				TracingExporter: tt.tracing,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = p.Shutdown(t.Context()) })

			assert.True(t, p.Enabled())
			assert.NotNil(t, p.Metrics())
			assert.Same(t, p.meters, otel.GetMeterProvider())
		})
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "unknown metrics exporter",
			cfg:     Config{Enabled: true, MetricsExporter: "statsd", TracingExporter: ExporterNone},
			wantErr: `invalid metrics exporter "statsd"`,
		},
		{
			name:    "metrics exporter none",
			cfg:     Config{Enabled: true, MetricsExporter: ExporterNone},
			wantErr: "invalid metrics exporter",
		},
		{
			name:    "unknown tracing exporter",
			cfg:     Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: "jaeger"},
			wantErr: `invalid tracing exporter "jaeger"`,
		},
		{
			name:    "otlp traces without endpoint",
			cfg:     Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP},
			wantErr: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(t.Context(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResourceAttributes(t *testing.T) {
	attrs := resourceAttributes(Config{
		ServiceName:    "inboxdigest",
		ServiceVersion: "1.2.3",
		InstanceID:     "pod-7",
		K8sNamespace:   "mail",
	})

	values := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		values[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "inboxdigest", values["service.name"])
	assert.Equal(t, "1.2.3", values["service.version"])
	assert.Equal(t, "pod-7", values["service.instance.id"])
	assert.Equal(t, "mail", values["k8s.namespace.name"])
}
