package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/sink"
)

const analysisJSON = `{"summary":"Quiet week.","important_topics":["hiring"],"action_items":["sign offer"],"key_contacts":["hr@example.com"],"sentiment":"positive"}`

type testSource struct {
	ids     []string
	listErr error
}

func (s testSource) ListMessageIDs(context.Context, gmail.Query) ([]string, error) {
	return s.ids, s.listErr
}

func (s testSource) GetMessage(_ context.Context, id string) (*gmail.Message, error) {
	return &gmail.Message{
		ID:      id,
		Snippet: fmt.Sprintf("snippet of %s", id),
		Headers: []gmail.Header{
			{Name: "From", Value: "hr@example.com"},
			{Name: "Subject", Value: "Offer " + id},
		},
	}, nil
}

type testAnalyzer struct {
	err error
}

func (a testAnalyzer) Analyze(context.Context, string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return analysisJSON, nil
}

var errModelDown = errors.New("model unavailable")

// testAPIToken is the operator token of servers built by newTestHTTPServer.
const testAPIToken = "operator-token"

func withAPIToken(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	return req
}

// newTestContext builds a ServerContext around a pipeline with in-memory
// collaborators.
func newTestContext(t *testing.T, src pipeline.Source, analyzer pipeline.Analyzer, s sink.Sink) *ServerContext {
	t.Helper()
	p, err := pipeline.New(pipeline.DefaultConfig(),
		&pipeline.StaticSourceFactory{Name: "test", Source: src},
		analyzer, s)
	require.NoError(t, err)

	sc, err := NewServerContext(context.Background(), p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func newTestHTTPServer(t *testing.T, sc *ServerContext, origins ...string) *HTTPServer {
	t.Helper()
	s, err := NewHTTPServer(sc, nil, HTTPServerConfig{
		Addr:           "127.0.0.1:0",
		AllowedOrigins: origins,
		APIToken:       testAPIToken,
	})
	require.NoError(t, err)
	return s
}
