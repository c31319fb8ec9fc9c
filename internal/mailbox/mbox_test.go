package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/gmail"
)

const testMbox = `From alice@example.com Mon Jan  8 09:00:00 2024
From: alice@example.com
Subject: Newest
Date: Mon, 08 Jan 2024 09:00:00 +0000
Message-Id: <newest@example.com>

newest body

From bob@example.com Fri Jan  5 09:00:00 2024
From: bob@example.com
Subject: Middle
Date: Fri, 05 Jan 2024 09:00:00 +0000
Message-Id: <middle@example.com>

middle body

From carol@example.com Mon Dec  4 09:00:00 2023
From: carol@example.com
Subject: Too old
Date: Mon, 04 Dec 2023 09:00:00 +0000
Message-Id: <old@example.com>

old body

From dave@example.com Sat Jan  6 09:00:00 2024
From: dave@example.com
Subject: No date

undated body

From bob@example.com Fri Jan  5 09:00:00 2024
From: bob@example.com
Subject: Middle again
Date: Fri, 05 Jan 2024 09:00:00 +0000
Message-Id: <middle@example.com>

duplicate
`

func newTestMbox(t *testing.T) *MboxSource {
	t.Helper()

	path := filepath.Join(t.TempDir(), "inbox.mbox")
	require.NoError(t, os.WriteFile(path, []byte(testMbox), 0o600))

	src, err := NewMboxSource(path, nil)
	require.NoError(t, err)
	src.now = func() time.Time { return time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC) }
	return src
}

func TestNewMboxSource_EmptyPath(t *testing.T) {
	_, err := NewMboxSource("  ", nil)
	assert.Error(t, err)
}

func TestMboxSource_ListMessageIDs(t *testing.T) {
	tests := []struct {
		name  string
		query gmail.Query
		want  []string
	}{
		{
			name:  "window keeps dated recent messages newest first",
			query: gmail.Query{Days: 7},
			want:  []string{"newest@example.com", "middle@example.com"},
		},
		{
			name:  "max results caps the newest",
			query: gmail.Query{Days: 7, MaxResults: 1},
			want:  []string{"newest@example.com"},
		},
		{
			name:  "wide window includes old messages",
			query: gmail.Query{Days: 60},
			want:  []string{"newest@example.com", "middle@example.com", "old@example.com"},
		},
		{
			name:  "one day window",
			query: gmail.Query{Days: 1},
			want:  []string{"newest@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestMbox(t)

			ids, err := src.ListMessageIDs(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMboxSource_GetMessage(t *testing.T) {
	src := newTestMbox(t)
	ctx := context.Background()

	msg, err := src.GetMessage(ctx, "middle@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Middle", gmail.HeaderValue(msg.Headers, "Subject"))

	_, err = src.GetMessage(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMboxSource_MissingFile(t *testing.T) {
	src, err := NewMboxSource(filepath.Join(t.TempDir(), "nope.mbox"), nil)
	require.NoError(t, err)

	_, err = src.ListMessageIDs(context.Background(), gmail.Query{Days: 7})
	assert.Error(t, err)
}
