package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/inboxdigest/internal/sink"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnreachable  = "unreachable"
)

// sinkPingTimeout bounds the readiness probe of a remote sink.
const sinkPingTimeout = 2 * time.Second

// pinger is implemented by sinks backed by a remote service (valkey, s3).
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker serves the liveness and readiness probes. It starts ready;
// the HTTP server flips it to not ready when shutdown begins.
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	started time.Time
}

// NewHealthChecker creates a ready HealthChecker. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness state.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Source string `json:"source,omitempty"`
	Sink   string `json:"sink,omitempty"`
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

func (h *HealthChecker) reportSink() sink.Sink {
	if h.sc == nil || h.sc.Pipeline() == nil {
		return nil
	}
	return h.sc.Pipeline().Sink()
}

// checks evaluates every readiness condition. The sink is only probed when
// it can be pinged.
func (h *HealthChecker) checks(ctx context.Context) (map[string]string, bool) {
	result := map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}
	healthy := true

	if !h.ready.Load() {
		result["ready"] = healthStatusNotReady
		healthy = false
	}
	if h.shuttingDown() {
		result["shutdown"] = healthStatusShuttingDown
		healthy = false
	}
	if p, ok := h.reportSink().(pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, sinkPingTimeout)
		defer cancel()
		result["sink"] = healthStatusOK
		if err := p.Ping(ctx); err != nil {
			result["sink"] = healthStatusUnreachable
			healthy = false
		}
	}
	return result, healthy
}

func writeHealth(w http.ResponseWriter, healthy bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers /healthz. It only proves the process serves HTTP.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, true, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers /readyz with the result of every check.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, healthy := h.checks(r.Context())
		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		if !healthy {
			resp.Status = healthStatusNotReady
		}
		writeHealth(w, healthy, resp)
	})
}

// DetailedHealthHandler answers /healthz/detailed with uptime and the
// configured source and sink.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.started).Truncate(time.Second).String(),
		}
		if h.sc != nil && h.sc.Pipeline() != nil {
			resp.Source = h.sc.Pipeline().SourceKind()
			resp.Sink = sink.NameOf(h.reportSink())
		}

		switch {
		case !h.ready.Load():
			resp.Status = healthStatusNotReady
		case h.shuttingDown():
			resp.Status = healthStatusShuttingDown
		}
		writeHealth(w, resp.Status == healthStatusOK, resp)
	})
}

// RegisterHealthEndpoints mounts /healthz, /readyz and /healthz/detailed.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
