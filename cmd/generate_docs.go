package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/resources"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/report_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation of the MCP tools and resources.
The tools are registered exactly as "serve" registers them, so the output
always matches what clients see.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Context(), outputFile, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// docsAnalyzer stands in for the model when tools are only listed.
type docsAnalyzer struct{}

func (docsAnalyzer) Analyze(context.Context, string) (string, error) {
	return "", errors.New("analysis is not available while generating docs")
}

// newDocsMCPServer registers every tool against a pipeline that is never run.
func newDocsMCPServer(ctx context.Context) (*mcpserver.MCPServer, func(), error) {
	p, err := pipeline.New(pipeline.DefaultConfig(), &pipeline.GmailSourceFactory{}, docsAnalyzer{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	serverContext, err := server.NewServerContext(ctx, p)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server context: %w", err)
	}
	cleanup := func() { _ = serverContext.Shutdown() }

	mcpSrv := mcpserver.NewMCPServer("inboxdigest", version, mcpserver.WithToolCapabilities(true))
	if err := report_tools.RegisterReportTools(mcpSrv, serverContext); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to register report tools: %w", err)
	}
	return mcpSrv, cleanup, nil
}

func runGenerateDocs(ctx context.Context, outputFile string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mcpSrv, cleanup, err := newDocsMCPServer(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tools := make([]mcp.Tool, 0, len(mcpSrv.ListTools()))
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	markdown := generateToolsMarkdown(tools)

	if outputFile == "" {
		_, err := io.WriteString(stdout, markdown)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	return nil
}

type argDoc struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

type toolDoc struct {
	Name        string
	Description string
	Args        []argDoc
}

type categoryDoc struct {
	Title string
	Tools []toolDoc
}

func (c categoryDoc) Anchor() string {
	return strings.ToLower(strings.ReplaceAll(c.Title, " ", "-"))
}

var docsTemplate = template.Must(template.New("docs").Parse(`# MCP Tools Reference

This document lists the tools and resources available when running inboxdigest as an MCP server.

**Note:** This documentation is generated from the tool definitions.

## Table of Contents

{{range .Categories}}- [{{.Title}}](#{{.Anchor}})
{{end}}- [Resources](#resources)

## Credentials

With the Gmail source, ` + "`generate_email_report`" + ` needs the user's Google OAuth credentials in the ` + "`credentials`" + ` argument. IMAP and mbox sources are configured on the server and ignore it.

{{range .Categories}}## {{.Title}}

{{range .Tools}}{{template "tool" .}}
{{end}}{{end}}## Resources

{{range .Resources}}- ` + "`{{.URI}}`" + `{{if .Template}} (template){{end}}: {{.Description}}
{{end}}`))

var toolTemplate = template.Must(docsTemplate.New("tool").Parse(`### {{.Name}}

{{with .Description}}{{.}}

{{end}}{{with .Args}}**Arguments:**
{{range .}}- ` + "`{{.Name}}`" + ` ({{.Type}}, {{if .Required}}required{{else}}optional{{end}}): {{.Description}}
{{end}}
{{end}}`))

func generateToolsMarkdown(tools []mcp.Tool) string {
	grouped := make(map[string][]toolDoc)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		grouped[category] = append(grouped[category], describeTool(tool))
	}

	categories := make([]categoryDoc, 0, len(grouped))
	for title, docs := range grouped {
		slices.SortFunc(docs, func(a, b toolDoc) int { return strings.Compare(a.Name, b.Name) })
		categories = append(categories, categoryDoc{Title: title, Tools: docs})
	}
	slices.SortFunc(categories, func(a, b categoryDoc) int { return strings.Compare(a.Title, b.Title) })

	var sb strings.Builder
	// Templates are static and the data contains only strings.
	_ = docsTemplate.Execute(&sb, struct {
		Categories []categoryDoc
		Resources  []resources.Resource
	}{categories, resources.Catalog()})
	return sb.String()
}

func getCategoryFromToolName(name string) string {
	if strings.HasSuffix(name, "_report") || strings.HasSuffix(name, "_reports") {
		return "Report Tools"
	}
	return "Other"
}

func describeTool(tool mcp.Tool) toolDoc {
	doc := toolDoc{Name: tool.Name, Description: tool.Description}
	for name, raw := range tool.InputSchema.Properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		arg := argDoc{
			Name:     name,
			Type:     "any",
			Required: slices.Contains(tool.InputSchema.Required, name),
		}
		if t, ok := prop["type"].(string); ok {
			arg.Type = t
		}
		arg.Description, _ = prop["description"].(string)
		if arg.Description == "" {
			arg.Description = arg.Type + " parameter"
		}
		doc.Args = append(doc.Args, arg)
	}
	slices.SortFunc(doc.Args, func(a, b argDoc) int { return strings.Compare(a.Name, b.Name) })
	return doc
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder
	_ = toolTemplate.Execute(&sb, describeTool(tool))
	return sb.String()
}
