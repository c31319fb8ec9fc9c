package sink

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserHashFromKey(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{key: "reports/abc/2024-01-01/r.json", want: "abc", wantOK: true},
		{key: "reports//2024-01-01/r.json", wantOK: false},
		{key: "reports/abc", wantOK: false},
		{key: "other/abc/r.json", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := userHashFromKey(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNewValkeySink_Validation(t *testing.T) {
	_, err := NewValkeySink(ValkeyConfig{})
	assert.Error(t, err)

	_, err = NewValkeySink(ValkeyConfig{URL: "http://not-redis"})
	assert.Error(t, err)
}

// TestValkeySink_Integration runs against a live server when VALKEY_URL is set.
func TestValkeySink_Integration(t *testing.T) {
	url := os.Getenv("VALKEY_URL")
	if url == "" {
		t.Skip("VALKEY_URL not set")
	}

	s, err := NewValkeySink(ValkeyConfig{URL: url, KeyPrefix: "inboxdigest-test:" + uuid.NewString() + ":"})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Ping(ctx))

	at := time.Now()
	for _, run := range []string{"r1", "r2"} {
		require.NoError(t, s.Put(ctx, ReportKey("u1", run, at), map[string]string{"run_id": run}))
	}

	reports, err := s.Recent(ctx, "u1", DefaultRecentLimit)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	var newest map[string]string
	require.NoError(t, json.Unmarshal(reports[0], &newest))
	assert.Equal(t, "r2", newest["run_id"])
}
