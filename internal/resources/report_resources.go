package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/sink"
)

// Resource URIs.
const (
	ConfigURI            = "digest://config"
	LatestReportTemplate = "digest://reports/{user_email}/latest"
)

const mimeJSON = "application/json"

// Resource describes a registered resource or resource template.
type Resource struct {
	URI         string
	Name        string
	Description string
	Template    bool
}

var (
	configResource = Resource{
		URI:         ConfigURI,
		Name:        "Digest Configuration",
		Description: "Mail source, report sink, model and limits used to build email reports",
	}
	latestReportResource = Resource{
		URI:         LatestReportTemplate,
		Name:        "Latest Email Report",
		Description: "The newest stored email report of a user",
		Template:    true,
	}
)

// Catalog lists the resources RegisterReportResources adds.
func Catalog() []Resource {
	return []Resource{configResource, latestReportResource}
}

// ConfigInfo describes how the server builds reports.
type ConfigInfo struct {
	Source               string `json:"source"`
	Sink                 string `json:"sink"`
	ListingSupported     bool   `json:"listing_supported"`
	Provider             string `json:"provider"`
	Model                string `json:"model"`
	MaxEmailsForModel    int    `json:"max_emails_for_model"`
	MaxApproxTokenBudget int    `json:"max_approx_token_budget"`
	MaxResults           int    `json:"max_results"`
}

// RegisterReportResources registers the report resources with the MCP server.
func RegisterReportResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil || sc.Pipeline() == nil {
		return errors.New("server context with a pipeline is required")
	}

	s.AddResource(mcp.NewResource(
		configResource.URI,
		configResource.Name,
		mcp.WithResourceDescription(configResource.Description),
		mcp.WithMIMEType(mimeJSON),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleConfig(ctx, request, sc)
	})

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		latestReportResource.URI,
		latestReportResource.Name,
		mcp.WithTemplateDescription(latestReportResource.Description),
		mcp.WithTemplateMIMEType(mimeJSON),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleLatestReport(ctx, request, sc)
	})

	return nil
}

func handleConfig(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	p := sc.Pipeline()
	cfg := p.Config()
	provider, model := p.Model()
	_, listing := p.Sink().(sink.Lister)

	data, err := json.MarshalIndent(ConfigInfo{
		Source:               p.SourceKind(),
		Sink:                 sink.NameOf(p.Sink()),
		ListingSupported:     listing,
		Provider:             provider,
		Model:                model,
		MaxEmailsForModel:    cfg.MaxEmailsForModel,
		MaxApproxTokenBudget: cfg.MaxApproxTokenBudget,
		MaxResults:           cfg.MaxResults,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	return textContents(request.Params.URI, data), nil
}

func handleLatestReport(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	userEmail := userEmailFromRequest(request)
	if userEmail == "" {
		return nil, fmt.Errorf("user_email is required in %s", request.Params.URI)
	}

	// Resource reads carry no credentials, so only trusted callers pass.
	if err := sc.Pipeline().AuthorizeReportRead(ctx, userEmail, nil); err != nil {
		return nil, err
	}

	report, err := sink.Latest(ctx, sc.Pipeline().Sink(), logging.HashEmail(userEmail))
	if err != nil {
		return nil, fmt.Errorf("failed to read latest report: %w", err)
	}

	return textContents(request.Params.URI, report), nil
}

// userEmailFromRequest returns the user_email template variable. Matched
// variables arrive as a string slice; the URI is parsed when they are absent.
func userEmailFromRequest(request mcp.ReadResourceRequest) string {
	switch v := request.Params.Arguments["user_email"].(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}

	rest, ok := strings.CutPrefix(request.Params.URI, "digest://reports/")
	if !ok {
		return ""
	}
	email, ok := strings.CutSuffix(rest, "/latest")
	if !ok || strings.Contains(email, "/") {
		return ""
	}
	if unescaped, err := url.PathUnescape(email); err == nil {
		email = unescaped
	}
	return strings.TrimSpace(email)
}

func textContents(uri string, data []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mimeJSON,
			Text:     string(data),
		},
	}
}
