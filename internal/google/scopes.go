package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultScopes are the scopes assumed when stored credentials do not list any.
// Report runs only ever read mail.
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
}
