// Package common provides shared helpers for MCP tool implementations:
// argument decoding and handler tracing.
package common
