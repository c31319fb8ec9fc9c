package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/teemow/inboxdigest/internal/google"
	"github.com/teemow/inboxdigest/internal/pipeline"
)

const authRealm = `Bearer realm="inboxdigest"`

// bearerToken returns the credential of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// hasAPIToken reports whether r carries the configured API token.
func (s *HTTPServer) hasAPIToken(r *http.Request) bool {
	if s.apiToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bearerToken(r)), []byte(s.apiToken)) == 1
}

// authenticate marks requests carrying the API token as trusted callers.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.hasAPIToken(r) {
			r = r.WithContext(pipeline.WithTrustedCaller(r.Context()))
		}
		next.ServeHTTP(w, r)
	})
}

// mcpContext carries the caller trust of an HTTP request into MCP handlers.
func mcpContext(ctx context.Context, r *http.Request) context.Context {
	if pipeline.IsTrustedCaller(r.Context()) {
		return pipeline.WithTrustedCaller(ctx)
	}
	return ctx
}

// readCredentials treats a bearer token other than the API token as a
// Google access token of the mailbox owner.
func readCredentials(r *http.Request) *google.Credentials {
	if pipeline.IsTrustedCaller(r.Context()) {
		return nil
	}
	if token := bearerToken(r); token != "" {
		return &google.Credentials{Token: token}
	}
	return nil
}

// writeAuthError answers 403 for a refused identity and 401 otherwise.
func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrForbidden) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("WWW-Authenticate", authRealm)
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
}
