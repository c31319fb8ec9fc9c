// Package resources provides MCP resources for stored email reports.
// Resources are read-only data MCP clients can fetch without running a
// digest: the server configuration and the latest report of a user.
package resources
