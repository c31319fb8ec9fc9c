package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/resources"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/report_tools"
)

// Transports accepted by --transport.
const (
	transportStdio = "stdio"
	transportHTTP  = "http"
	// transportStreamableHTTP is accepted as an alias of http.
	transportStreamableHTTP = "streamable-http"
)

// MetricsConfig holds configuration for the dedicated metrics listener.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

type serveOptions struct {
	digestOptions

	transport        string
	httpAddr         string
	allowedOrigins   string
	disableStreaming bool
	rateLimit        float64
	rateLimitBurst   int
	trustProxy       bool
	apiToken         string
	metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the report server",
		Long: `Start inboxdigest as a server.

With the http transport a single listener serves:
  POST /api/generate-report  generate a report and return it as JSON
  GET  /api/reports          list the recent reports of a user
  GET  /ws/report            generate a report with live progress over a WebSocket
  /mcp                       MCP streamable HTTP endpoint (tools and resources)
  /healthz, /readyz          liveness and readiness probes

With the stdio transport only the MCP tools are served, on stdin/stdout.

Examples:
  # HTTP API for a web frontend
  inboxdigest serve --allowed-origins https://app.example.com --sink valkey --valkey-url redis://localhost:6379/0

  # MCP tools for a desktop assistant
  inboxdigest serve --transport stdio --source mbox --mbox-path inbox.mbox`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.loadEnv(cmd)
			opts.loadServeEnv(cmd)
			return runServe(opts)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.transport, "transport", transportHTTP, "Transport type: http or stdio")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", server.DefaultHTTPAddr, "HTTP listen address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&opts.allowedOrigins, "allowed-origins", "", "Comma-separated list of browser origins allowed to call the API, * for any. Can also use ALLOWED_ORIGINS env var.")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Disable SSE streaming on the MCP endpoint")
	cmd.Flags().Float64Var(&opts.rateLimit, "rate-limit", 10, "Report generations per minute per client IP, 0 for no limit. Can also use RATE_LIMIT_PER_MINUTE env var.")
	cmd.Flags().IntVar(&opts.rateLimitBurst, "rate-limit-burst", 0, "Report generations a client may start at once (default: derived from --rate-limit)")
	cmd.Flags().BoolVar(&opts.trustProxy, "trust-proxy", false, "Use X-Forwarded-For and X-Real-IP to identify clients. Enable only behind a trusted proxy.")
	cmd.Flags().StringVar(&opts.apiToken, "api-token", "", "Bearer token that grants operator access to the HTTP API: fixed mailbox sources and reports of any user. Can also use API_TOKEN env var.")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", false, "Serve Prometheus metrics on a dedicated listener. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", ":9090", "Metrics listen address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadServeEnv fills server options from environment variables that were
// not overridden by flags.
func (o *serveOptions) loadServeEnv(cmd *cobra.Command) {
	envString(cmd, "http-addr", "HTTP_ADDR", &o.httpAddr)
	envString(cmd, "allowed-origins", "ALLOWED_ORIGINS", &o.allowedOrigins)
	envString(cmd, "metrics-addr", "METRICS_ADDR", &o.metrics.Addr)
	envString(cmd, "api-token", "API_TOKEN", &o.apiToken)

	if !cmd.Flags().Changed("rate-limit") {
		if v, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_PER_MINUTE"), 64); err == nil {
			o.rateLimit = v
		}
	}
	if !cmd.Flags().Changed("metrics-enabled") {
		if v, err := strconv.ParseBool(os.Getenv("METRICS_ENABLED")); err == nil {
			o.metrics.Enabled = v
		}
	}

	o.transport = strings.ToLower(strings.TrimSpace(o.transport))
	if o.transport == transportStreamableHTTP {
		o.transport = transportHTTP
	}
}

func runServe(opts *serveOptions) error {
	if opts.transport != transportStdio && opts.transport != transportHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: http, stdio)", opts.transport)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the MCP stream in stdio mode, so logs always go to stderr.
	logger, err := opts.newLogger(os.Stderr)
	if err != nil {
		return err
	}
	logger = logging.WithOperation(logger, "serve")
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var metricsServer *server.MetricsServer
	if opts.transport != transportStdio && opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err = startMetricsServer(logger, opts.metrics.Addr, provider)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	p, cleanup, err := opts.buildPipeline(shutdownCtx, logger, provider, instrConfig.AuditLogging)
	if err != nil {
		return err
	}
	defer cleanup()

	serverContext, err := server.NewServerContext(shutdownCtx, p)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("inboxdigest", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := report_tools.RegisterReportTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register report tools: %w", err)
	}
	if err := resources.RegisterReportResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register report resources: %w", err)
	}

	switch opts.transport {
	case transportStdio:
		return runStdioServer(mcpSrv)
	default:
		httpServer, err := server.NewHTTPServer(serverContext, mcpSrv, server.HTTPServerConfig{
			Addr:               opts.httpAddr,
			AllowedOrigins:     parseCommaSeparatedList(opts.allowedOrigins),
			DisableStreaming:   opts.disableStreaming,
			RateLimitPerMinute: opts.rateLimit,
			RateLimitBurst:     opts.rateLimitBurst,
			TrustProxy:         opts.trustProxy,
			APIToken:           opts.apiToken,
		})
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		return runHTTPServer(shutdownCtx, logger, httpServer)
	}
}

// startMetricsServer starts the metrics listener and waits until it accepts
// connections.
func startMetricsServer(logger *slog.Logger, addr string, provider *instrumentation.Provider) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", "addr", metricsServer.ListenAddr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

// runStdioServer serves MCP on stdin/stdout until EOF or a signal.
// ServeStdio installs its own SIGINT/SIGTERM handling. The stdio peer is the
// process that started the server, so its calls are trusted.
func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv, mcpserver.WithStdioContextFunc(pipeline.WithTrustedCaller)); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, logger *slog.Logger, httpServer *server.HTTPServer) error {
	ready := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.StartWithReadySignal(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ready:
		logger.Info("HTTP server started", "addr", httpServer.ListenAddr())
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server failed to start: %w", err)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
