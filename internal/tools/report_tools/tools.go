package report_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/sink"
	"github.com/teemow/inboxdigest/internal/tools/batch"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// RegisterReportTools registers the report tools with the MCP server
func RegisterReportTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil || sc.Pipeline() == nil {
		return errors.New("server context with a pipeline is required")
	}

	generateTool := mcp.NewTool("generate_email_report",
		mcp.WithDescription("Analyze a user's recent email and return a digest with summary, important topics, action items, key contacts and overall sentiment"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("user_email",
			mcp.Required(),
			mcp.Description("Email address of the mailbox owner"),
		),
		mcp.WithNumber("days",
			mcp.Description(fmt.Sprintf("Number of days to look back (default: %d)", pipeline.DefaultDays)),
			mcp.Min(1),
		),
		mcp.WithString("credentials",
			mcp.Description("Google OAuth credentials as JSON (token, refresh_token, token_uri, client_id, client_secret, scopes). Required for the Gmail source."),
		),
	)

	s.AddTool(generateTool, common.InstrumentedToolHandler("generate_email_report",
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerateReport(ctx, request, sc)
		}))

	recentTool := mcp.NewTool("list_recent_reports",
		mcp.WithDescription("List the most recent stored email reports of a user, newest first"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("user_email",
			mcp.Required(),
			mcp.Description("Email address of the mailbox owner"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of reports to return (default: %d)", sink.DefaultRecentLimit)),
			mcp.Min(1),
		),
		mcp.WithString("credentials",
			mcp.Description("Google OAuth credentials of the mailbox as JSON. Required unless the caller is trusted by the server."),
		),
	)

	s.AddTool(recentTool, common.InstrumentedToolHandler("list_recent_reports",
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListRecentReports(ctx, request, sc)
		}))

	latestTool := mcp.NewTool("get_latest_reports",
		mcp.WithDescription(fmt.Sprintf("Get the newest stored email report of one or more users (at most %d per call). Users without reports are listed as errors.", batch.MaxItems)),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("user_emails",
			mcp.Required(),
			mcp.Description("Email address, comma-separated list or JSON array of email addresses"),
		),
		mcp.WithString("credentials",
			mcp.Description("Google OAuth credentials of the mailboxes as JSON. Required unless the caller is trusted by the server."),
		),
	)

	s.AddTool(latestTool, common.InstrumentedToolHandler("get_latest_reports",
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetLatestReports(ctx, request, sc)
		}))

	return nil
}

func handleGenerateReport(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	userEmail := common.StringArg(args, "user_email")
	if userEmail == "" {
		return mcp.NewToolResultError("user_email is required"), nil
	}

	creds, err := common.CredentialsFromArgs(args, "credentials")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Pipeline().AuthorizeRun(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := sc.Pipeline().Run(ctx, pipeline.Request{
		UserEmail:   userEmail,
		Credentials: creds,
		Days:        common.IntArg(args, "days", pipeline.DefaultDays),
		Trigger:     instrumentation.TriggerMCP,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate report: %v", err)), nil
	}

	return jsonResult(report)
}

func handleListRecentReports(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	userEmail := common.StringArg(args, "user_email")
	if userEmail == "" {
		return mcp.NewToolResultError("user_email is required"), nil
	}

	creds, err := common.CredentialsFromArgs(args, "credentials")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sc.Pipeline().AuthorizeReportRead(ctx, userEmail, creds); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lister, ok := sc.Pipeline().Sink().(sink.Lister)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("The %s report sink does not support listing reports", sink.NameOf(sc.Pipeline().Sink()))), nil
	}

	limit := common.IntArg(args, "limit", sink.DefaultRecentLimit)
	if limit <= 0 {
		limit = sink.DefaultRecentLimit
	}

	reports, err := lister.Recent(ctx, logging.HashEmail(userEmail), limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list reports: %v", err)), nil
	}
	if reports == nil {
		reports = []json.RawMessage{}
	}

	return jsonResult(map[string]any{"reports": reports})
}

func handleGetLatestReports(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	emails, err := batch.ParseStringOrArray(args["user_emails"], "user_emails")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	creds, err := common.CredentialsFromArgs(args, "credentials")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reportSink := sc.Pipeline().Sink()
	if _, ok := reportSink.(sink.Lister); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("The %s report sink does not support listing reports", sink.NameOf(reportSink))), nil
	}

	results := batch.ProcessBatch(ctx, emails, batch.DefaultConcurrency,
		func(ctx context.Context, email string) (json.RawMessage, error) {
			// One set of credentials opens one mailbox, so untrusted callers
			// get at most one entry back.
			if err := sc.Pipeline().AuthorizeReportRead(ctx, email, creds); err != nil {
				return nil, err
			}
			return sink.Latest(ctx, reportSink, logging.HashEmail(email))
		})

	text, err := batch.FormatResults(results)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
