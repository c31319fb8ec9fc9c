// Package server exposes the report pipeline over HTTP.
//
// # Key Components
//
// ServerContext holds the pipeline together with the optional metrics
// recorder and audit logger shared by all surfaces.
//
// HTTPServer serves:
//   - POST /api/generate-report: runs a report and answers with a stable
//     envelope {success, report_id, report, error} and HTTP 200
//   - GET /api/reports?user_email=: the last stored reports when the sink
//     supports listing
//   - GET /ws/report: a websocket that streams run progress
//   - /mcp: the MCP streamable HTTP transport, when an MCP server is given
//   - /healthz, /readyz, /healthz/detailed: health probes
//
// MetricsServer serves Prometheus metrics on a dedicated port.
package server
