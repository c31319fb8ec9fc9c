// Package batch provides helpers for MCP tools that act on several items
// in one call.
//
// This package includes helpers for:
//   - Parsing parameters that accept a single value, a comma-separated list or an array
//   - Processing items concurrently while keeping their order
//   - Reporting partial failures in a consistent structure
package batch
