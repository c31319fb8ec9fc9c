// Package report_tools registers the email report MCP tools:
// generate_email_report runs a digest and list_recent_reports returns the
// last stored reports of a user.
package report_tools
