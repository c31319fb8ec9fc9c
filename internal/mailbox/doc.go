// Package mailbox provides mail sources other than the Gmail API.
//
// Raw RFC 5322 messages, read from an mbox file or fetched over IMAP, are
// parsed with go-message and converted into the gmail package's message
// shape, so header normalization and body extraction are shared by every
// source.
package mailbox
