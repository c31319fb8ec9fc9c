package common

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
)

// InstrumentedToolHandler wraps a tool handler in an "mcp.tool" span and
// logs the outcome at debug level.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", handler))
func InstrumentedToolHandler(toolName string, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartSpan(ctx, "mcp.tool", attribute.String("mcp.tool", toolName))
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
		default:
			instrumentation.SetSpanSuccess(span)
		}

		slog.Debug("mcp tool invoked",
			"tool", toolName,
			logging.Status(status),
			"duration", time.Since(start))

		return result, err
	}
}
