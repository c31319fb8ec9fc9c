package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/inboxdigest/internal/google"
)

// StringArg returns a trimmed string argument, or "" when absent or not a string.
func StringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// IntArg returns a numeric argument as int. JSON numbers arrive as float64.
func IntArg(args map[string]interface{}, name string, defaultValue int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultValue
}

// CredentialsFromArgs decodes Google OAuth credentials given either as a
// JSON object or as a JSON encoded string. It returns nil, nil when the
// argument is absent.
func CredentialsFromArgs(args map[string]interface{}, name string) (*google.Credentials, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	var creds google.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &creds, nil
}
