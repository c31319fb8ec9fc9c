package instrumentation

import "strings"

// Google API operations.
const (
	OperationList    = "list"
	OperationGet     = "get"
	OperationProfile = "profile"
)

// Run triggers.
const (
	TriggerCLI       = "cli"
	TriggerHTTP      = "http"
	TriggerWebSocket = "websocket"
	TriggerMCP       = "mcp"
)

// ExtractUserDomain returns the domain of an email address, or "unknown".
// Metrics carry the domain instead of the address to bound label cardinality.
func ExtractUserDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "unknown"
	}
	return domain
}
