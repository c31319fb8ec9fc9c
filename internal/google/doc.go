// Package google turns the stored Google OAuth credentials of a mailbox owner
// into oauth2 token sources for the Gmail API.
//
// Credentials arrive per run, either in a request body or from a JSON file,
// in the shape the web front end persists after its OAuth consent flow.
package google
