package pipeline

import (
	"context"
	"fmt"

	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/instrumentation"
)

// Source lists and fetches the messages of one mailbox.
type Source interface {
	ListMessageIDs(ctx context.Context, q gmail.Query) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
}

// SourceFactory opens the mail source for a request.
type SourceFactory interface {
	// Kind names the source in logs, metrics and reports.
	Kind() string
	Open(ctx context.Context, req Request) (Source, error)
}

// GmailSourceFactory opens a Gmail API client from the request credentials.
type GmailSourceFactory struct {
	Metrics *instrumentation.Metrics
}

// Kind implements SourceFactory.
func (f *GmailSourceFactory) Kind() string { return instrumentation.ServiceGmail }

// VerifiesOwner implements OwnerVerifier. Gmail clients report the address
// of the account their token belongs to.
func (f *GmailSourceFactory) VerifiesOwner() bool { return true }

// Open implements SourceFactory.
func (f *GmailSourceFactory) Open(ctx context.Context, req Request) (Source, error) {
	if req.Credentials == nil {
		return nil, fmt.Errorf("%w: credentials are required for the gmail source", ErrInvalidRequest)
	}

	ts, err := req.Credentials.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	client, err := gmail.NewClient(ctx, ts, gmail.WithMetrics(f.Metrics))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// StaticSourceFactory serves every request from one preconfigured source,
// such as an IMAP account or an mbox file. Request credentials are ignored.
type StaticSourceFactory struct {
	Name   string
	Source Source
}

// Kind implements SourceFactory.
func (f *StaticSourceFactory) Kind() string { return f.Name }

// Open implements SourceFactory.
func (f *StaticSourceFactory) Open(context.Context, Request) (Source, error) {
	if f.Source == nil {
		return nil, fmt.Errorf("no %s source configured", f.Name)
	}
	return f.Source, nil
}
