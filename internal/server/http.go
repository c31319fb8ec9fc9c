package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	// DefaultHTTPAddr is the default address of the report API.
	DefaultHTTPAddr = ":8080"

	// DefaultHTTPWriteTimeout bounds a report request, which includes the model call.
	DefaultHTTPWriteTimeout = 3 * time.Minute

	corsMaxAge = "600"
)

// HTTPServerConfig configures the report API server.
type HTTPServerConfig struct {
	// Addr is the listen address (e.g., ":8080").
	Addr string

	// AllowedOrigins lists the browser origins allowed by CORS and the
	// websocket endpoint. "*" allows any origin; empty allows none.
	AllowedOrigins []string

	// DisableStreaming turns off SSE streaming on the MCP endpoint.
	DisableStreaming bool

	// RateLimitPerMinute limits report generation per client IP. Zero
	// disables the limit.
	RateLimitPerMinute float64

	// RateLimitBurst is the number of reports a client may request at once.
	// Zero derives it from RateLimitPerMinute.
	RateLimitBurst int

	// TrustProxy keys the rate limit on X-Forwarded-For and X-Real-IP.
	TrustProxy bool

	// APIToken, sent as "Authorization: Bearer <token>", marks the operator.
	// It is required to run fixed-mailbox sources and to read any user's
	// reports. Without it, only Gmail users can use the API, with their own
	// credentials.
	APIToken string
}

// HTTPServer serves the report API, the progress websocket, the MCP
// endpoint and health probes.
type HTTPServer struct {
	serverContext  *ServerContext
	mcpServer      *mcpserver.MCPServer
	health         *HealthChecker
	allowedOrigins []string
	upgrader       websocket.Upgrader
	rateLimiter    *RateLimiter
	httpServer     *http.Server
	addr           string
	listenAddr     string
	disableStream  bool
	apiToken       string
}

// NewHTTPServer creates the report API server. mcpSrv may be nil, in which
// case /mcp is not served.
func NewHTTPServer(sc *ServerContext, mcpSrv *mcpserver.MCPServer, config HTTPServerConfig) (*HTTPServer, error) {
	if sc == nil {
		return nil, errors.New("server context is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultHTTPAddr
	}

	s := &HTTPServer{
		serverContext:  sc,
		mcpServer:      mcpSrv,
		health:         NewHealthChecker(sc),
		allowedOrigins: config.AllowedOrigins,
		addr:           config.Addr,
		disableStream:  config.DisableStreaming,
		apiToken:       config.APIToken,
		rateLimiter:    NewRateLimiter(config.RateLimitPerMinute, config.RateLimitBurst, config.TrustProxy),
	}
	if s.rateLimiter != nil {
		go s.rateLimiter.Run(sc.Context())
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no origin
			return origin == "" || s.originAllowed(origin)
		},
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      DefaultHTTPWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// HealthChecker returns the health checker of the server.
func (s *HTTPServer) HealthChecker() *HealthChecker {
	return s.health
}

// Handler builds the routing tree.
func (s *HTTPServer) Handler() http.Handler {
	metrics := s.serverContext.Metrics()
	mux := http.NewServeMux()

	mux.Handle("/api/generate-report", InstrumentHandler(metrics, "/api/generate-report",
		s.cors(s.rateLimit(http.HandlerFunc(s.handleGenerateReport)))))
	mux.Handle("/api/reports", InstrumentHandler(metrics, "/api/reports",
		s.cors(http.HandlerFunc(s.handleListReports))))
	mux.Handle("/ws/report", InstrumentHandler(metrics, "/ws/report",
		s.rateLimit(http.HandlerFunc(s.handleReportWebSocket))))

	if s.mcpServer != nil {
		opts := []mcpserver.StreamableHTTPOption{
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithHTTPContextFunc(mcpContext),
		}
		if s.disableStream {
			opts = append(opts, mcpserver.WithDisableStreaming(true))
		}
		mux.Handle("/mcp", InstrumentHandler(metrics, "/mcp",
			mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...)))
	}

	s.health.RegisterHealthEndpoints(mux)
	return s.authenticate(mux)
}

// originAllowed reports whether a browser origin may call the API.
func (s *HTTPServer) originAllowed(origin string) bool {
	if slices.Contains(s.allowedOrigins, "*") {
		return true
	}
	origin = strings.TrimSuffix(origin, "/")
	for _, allowed := range s.allowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// cors answers preflight requests and sets CORS headers for allowed origins.
func (s *HTTPServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start binds the listener and serves until Shutdown.
func (s *HTTPServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal is Start that closes ready once the listener is bound.
func (s *HTTPServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listenAddr = ln.Addr().String()

	slog.Info("starting report API server", "addr", s.listenAddr)
	if ready != nil {
		close(ready)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// ListenAddr returns the bound address once the server started, or "".
func (s *HTTPServer) ListenAddr() string {
	return s.listenAddr
}
