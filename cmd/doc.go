// Package cmd implements the command-line interface for inboxdigest.
//
// This package provides the following commands:
//   - report: Generate one email digest and print it as JSON
//   - serve: Start the HTTP API, WebSocket progress stream and MCP server
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
