package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/sink"
)

func writeTestMbox(t *testing.T) string {
	t.Helper()
	sent := time.Now().Add(-24 * time.Hour).UTC()
	content := fmt.Sprintf(`From alice@example.com %s
From: Alice <alice@example.com>
Subject: Budget review
Date: %s
Message-Id: <budget@example.com>

Please send the numbers by Friday.

`, sent.Format(time.ANSIC), sent.Format(time.RFC1123Z))

	path := filepath.Join(t.TempDir(), "inbox.mbox")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newTestModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	analysis := `{"summary":"Alice needs budget numbers.","important_topics":["Budget"],"action_items":["Send numbers by Friday"],"key_contacts":["Alice"],"sentiment":"neutral"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": analysis}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunReport_Mbox(t *testing.T) {
	modelSrv := newTestModelServer(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_BASE_URL", modelSrv.URL)
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("TRACING_EXPORTER", "none")

	outDir := t.TempDir()
	opts := &reportOptions{
		digestOptions: digestOptions{
			source:      sourceMbox,
			mboxPath:    writeTestMbox(t),
			sink:        sink.KindFile,
			outputDir:   outDir,
			concurrency: 2,
		},
		userEmail: "jane@example.com",
		days:      7,
	}

	var stdout, stderr bytes.Buffer
	require.NoError(t, runReport(t.Context(), opts, &stdout, &stderr))

	var report pipeline.RunReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, "Alice needs budget numbers.", report.Summary)
	assert.Equal(t, 1, report.TotalEmails)
	assert.Equal(t, 1, report.SummarizedEmails)
	assert.Equal(t, "last 7 days", report.Period)
	assert.Equal(t, sourceMbox, report.Source)
	require.NotEmpty(t, report.StorageKey)

	_, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(report.StorageKey)))
	assert.NoError(t, err, "report should be stored by the file sink")
}

func TestRunReport_Errors(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("TRACING_EXPORTER", "none")

	tests := []struct {
		name    string
		opts    reportOptions
		wantErr string
	}{
		{
			name: "missing credentials file",
			opts: reportOptions{
				digestOptions:   digestOptions{source: sourceGmail, sink: sink.KindNone, concurrency: 1},
				userEmail:       "jane@example.com",
				credentialsFile: filepath.Join(t.TempDir(), "missing.json"),
			},
			wantErr: "missing.json",
		},
		{
			name: "gmail without credentials",
			opts: reportOptions{
				digestOptions: digestOptions{source: sourceGmail, sink: sink.KindNone, concurrency: 1},
				userEmail:     "jane@example.com",
			},
			wantErr: "credentials are required",
		},
		{
			name: "blank email",
			opts: reportOptions{
				digestOptions: digestOptions{source: sourceMbox, mboxPath: "inbox.mbox", sink: sink.KindNone, concurrency: 1},
				userEmail:     "   ",
			},
			wantErr: "user_email is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := runReport(t.Context(), &tt.opts, &stdout, &stderr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, stdout.String())
		})
	}
}
