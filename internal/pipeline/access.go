package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/inboxdigest/internal/google"
)

var (
	// ErrUnauthenticated is returned when a caller presents no usable
	// credentials for a mailbox.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller's credentials do not belong
	// to the requested mailbox, or when the source cannot tell who owns it.
	ErrForbidden = errors.New("access denied")
)

// IdentifiedSource is a Source that knows the address of the mailbox it
// reads, as confirmed by the mail provider.
type IdentifiedSource interface {
	EmailAddress(ctx context.Context) (string, error)
}

// OwnerVerifier is implemented by source factories that open the mailbox
// from the caller's own credentials. Only their sources prove ownership.
type OwnerVerifier interface {
	VerifiesOwner() bool
}

type trustedCallerKey struct{}

// WithTrustedCaller marks ctx as coming from the operator: the CLI, the
// stdio MCP transport or a request carrying the server's API token.
func WithTrustedCaller(ctx context.Context) context.Context {
	return context.WithValue(ctx, trustedCallerKey{}, true)
}

// IsTrustedCaller reports whether ctx was marked by WithTrustedCaller.
func IsTrustedCaller(ctx context.Context) bool {
	trusted, _ := ctx.Value(trustedCallerKey{}).(bool)
	return trusted
}

// VerifiesOwners reports whether the configured source proves who owns the
// mailbox it opens.
func (p *Pipeline) VerifiesOwners() bool {
	v, ok := p.sources.(OwnerVerifier)
	return ok && v.VerifiesOwner()
}

// AuthorizeRun checks that an untrusted caller may start a run. Sources that
// verify ownership check the run itself; any other source serves the
// operator's mailbox and is reserved for trusted callers.
func (p *Pipeline) AuthorizeRun(ctx context.Context) error {
	if IsTrustedCaller(ctx) || p.VerifiesOwners() {
		return nil
	}
	return fmt.Errorf("%w: the %s source serves a fixed mailbox and requires the API token", ErrUnauthenticated, p.sources.Kind())
}

// AuthorizeReportRead checks that the caller may read the stored reports of
// email. Untrusted callers must present credentials of that mailbox.
func (p *Pipeline) AuthorizeReportRead(ctx context.Context, email string, creds *google.Credentials) error {
	if IsTrustedCaller(ctx) {
		return nil
	}
	if creds == nil {
		return fmt.Errorf("%w: credentials of %s are required to read its reports", ErrUnauthenticated, email)
	}
	if !p.VerifiesOwners() {
		return fmt.Errorf("%w: the %s source cannot verify mailbox ownership", ErrForbidden, p.sources.Kind())
	}

	src, err := p.sources.Open(ctx, Request{UserEmail: email, Credentials: creds})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	_, err = mailboxOwner(ctx, src, email)
	return err
}

// mailboxOwner returns the provider's address of the mailbox behind src when
// it matches email. Sources without an identity return email unchanged.
func mailboxOwner(ctx context.Context, src Source, email string) (string, error) {
	id, ok := src.(IdentifiedSource)
	if !ok {
		return email, nil
	}
	owner, err := id.EmailAddress(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: failed to verify mailbox owner: %v", ErrUnauthenticated, err)
	}
	if !strings.EqualFold(strings.TrimSpace(owner), strings.TrimSpace(email)) {
		return "", fmt.Errorf("%w: credentials belong to a different mailbox than %s", ErrForbidden, email)
	}
	return strings.TrimSpace(owner), nil
}
