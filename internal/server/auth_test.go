package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/sink"
)

// Google access tokens understood by googleTestFactory.
const (
	ownerGoogleToken   = "owner-google-token"
	malloryGoogleToken = "mallory-google-token"
)

// identifiedTestSource is a testSource whose provider knows the mailbox
// address.
type identifiedTestSource struct {
	testSource
	owner string
	err   error
}

func (s identifiedTestSource) EmailAddress(context.Context) (string, error) {
	return s.owner, s.err
}

// googleTestFactory opens mailboxes from request credentials and verifies
// their owner, like the Gmail source.
type googleTestFactory struct {
	src testSource
}

func (f googleTestFactory) Kind() string        { return "gmail" }
func (f googleTestFactory) VerifiesOwner() bool { return true }

func (f googleTestFactory) Open(_ context.Context, req pipeline.Request) (pipeline.Source, error) {
	if req.Credentials == nil {
		return nil, fmt.Errorf("%w: credentials are required", pipeline.ErrInvalidRequest)
	}
	switch req.Credentials.Token {
	case ownerGoogleToken:
		return identifiedTestSource{testSource: f.src, owner: "owner@example.com"}, nil
	case malloryGoogleToken:
		return identifiedTestSource{testSource: f.src, owner: "mallory@example.com"}, nil
	default:
		return identifiedTestSource{testSource: f.src, err: errors.New("invalid_token")}, nil
	}
}

func newGoogleTestServer(t *testing.T, src testSource) (http.Handler, *sink.FileSink) {
	t.Helper()
	fileSink, err := sink.NewFileSink(t.TempDir())
	require.NoError(t, err)

	p, err := pipeline.New(pipeline.DefaultConfig(), googleTestFactory{src: src}, testAnalyzer{}, fileSink)
	require.NoError(t, err)
	sc, err := NewServerContext(context.Background(), p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	return newTestHTTPServer(t, sc).Handler(), fileSink
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "Bearer", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			assert.Equal(t, tt.want, bearerToken(req))
		})
	}
}

func TestListReports_RequiresMailboxOwner(t *testing.T) {
	h, _ := newGoogleTestServer(t, testSource{ids: []string{"a"}})

	// The owner stores a report with their own credentials
	resp := postReport(t, h, `{"user_email":"owner@example.com","credentials":{"token":"`+ownerGoogleToken+`"}}`)
	require.True(t, resp.Success, "%+v", resp.Error)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
		wantListed int
	}{
		{name: "no credentials", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", auth: "Bearer not-a-token", wantStatus: http.StatusUnauthorized},
		{name: "another mailbox's token", auth: "Bearer " + malloryGoogleToken, wantStatus: http.StatusForbidden},
		{name: "owner's token", auth: "Bearer " + ownerGoogleToken, wantStatus: http.StatusOK, wantListed: 1},
		{name: "api token", auth: "Bearer " + testAPIToken, wantStatus: http.StatusOK, wantListed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/reports?user_email=owner@example.com", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, authRealm, rec.Header().Get("WWW-Authenticate"))
			}
			if tt.wantStatus != http.StatusOK {
				assert.NotContains(t, rec.Body.String(), "Quiet week.")
				return
			}

			var listed struct {
				Reports []pipeline.RunReport `json:"reports"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
			assert.Len(t, listed.Reports, tt.wantListed)
		})
	}
}

func TestGenerateReport_RejectsForeignMailbox(t *testing.T) {
	h, fileSink := newGoogleTestServer(t, testSource{ids: []string{"a"}})

	tests := []struct {
		name  string
		token string
	}{
		{name: "credentials of another mailbox", token: malloryGoogleToken},
		{name: "invalid credentials", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/generate-report",
				strings.NewReader(`{"user_email":"owner@example.com","credentials":{"token":"`+tt.token+`"}}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var resp ReportResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrorTypeUnauthorized, resp.Error.Type)
		})
	}

	reports, err := fileSink.Recent(context.Background(), logging.HashEmail("owner@example.com"), 10)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestGenerateReport_FixedMailboxRequiresAPIToken(t *testing.T) {
	sc := newTestContext(t, testSource{ids: []string{"a"}}, testAnalyzer{}, nil)
	h := newTestHTTPServer(t, sc).Handler()

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", auth: "Bearer guess", wantStatus: http.StatusUnauthorized},
		{name: "api token", auth: "Bearer " + testAPIToken, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/generate-report", strings.NewReader(`{"user_email":"owner@example.com"}`))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestReportWebSocket_FixedMailboxRequiresAPIToken(t *testing.T) {
	sc := newTestContext(t, testSource{ids: []string{"a"}}, testAnalyzer{}, nil)
	srv := httptest.NewServer(newTestHTTPServer(t, sc).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/report"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(pipeline.Request{UserEmail: "owner@example.com"}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg CompleteMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsTypeComplete, msg.Type)
	assert.False(t, msg.Success)
	require.NotNil(t, msg.Error)
	assert.Equal(t, ErrorTypeUnauthorized, msg.Error.Type)
}
