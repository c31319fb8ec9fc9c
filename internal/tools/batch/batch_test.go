package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringOrArray(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    []string
		wantErr bool
	}{
		{
			name:  "single string",
			input: "jane@example.com",
			want:  []string{"jane@example.com"},
		},
		{
			name:  "comma-separated string",
			input: "jane@example.com, joe@example.com",
			want:  []string{"jane@example.com", "joe@example.com"},
		},
		{
			name:  "array of strings",
			input: []interface{}{"a@example.com", "b@example.com", "c@example.com"},
			want:  []string{"a@example.com", "b@example.com", "c@example.com"},
		},
		{
			name:  "typed string slice",
			input: []string{"a@example.com"},
			want:  []string{"a@example.com"},
		},
		{
			name:  "JSON string array",
			input: `["a@example.com", "b@example.com"]`,
			want:  []string{"a@example.com", "b@example.com"},
		},
		{
			name:  "duplicates removed",
			input: []interface{}{"a@example.com", " a@example.com ", "b@example.com"},
			want:  []string{"a@example.com", "b@example.com"},
		},
		{
			name:    "nil input",
			input:   nil,
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only commas",
			input:   " , ,",
			wantErr: true,
		},
		{
			name:    "empty array",
			input:   []interface{}{},
			wantErr: true,
		},
		{
			name:    "JSON string empty array",
			input:   `[]`,
			wantErr: true,
		},
		{
			name:    "array with non-string",
			input:   []interface{}{"a@example.com", 123},
			wantErr: true,
		},
		{
			name:    "array with empty string",
			input:   []interface{}{"a@example.com", ""},
			wantErr: true,
		},
		{
			name:    "invalid type",
			input:   123,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, "user_emails")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStringOrArray_TooMany(t *testing.T) {
	items := make([]interface{}, MaxItems+1)
	for i := range items {
		items[i] = fmt.Sprintf("user%d@example.com", i)
	}

	_, err := ParseStringOrArray(items, "user_emails")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most")
}

func TestFormatResults(t *testing.T) {
	results := []Result{
		NewSuccessResult("id1", json.RawMessage(`{"summary":"one"}`)),
		NewSuccessResult("id2", json.RawMessage(`{"summary":"two"}`)),
		NewErrorResult("id3", errors.New("something went wrong")),
	}

	output, err := FormatResults(results)
	require.NoError(t, err)

	var br BatchResult
	require.NoError(t, json.Unmarshal([]byte(output), &br))
	assert.Equal(t, 3, br.Total)
	assert.Equal(t, 2, br.Successful)
	assert.Equal(t, 1, br.Failed)
	require.Len(t, br.Results, 3)
	assert.JSONEq(t, `{"summary":"one"}`, string(br.Results[0].Result))
	assert.Equal(t, "something went wrong", br.Results[2].Error)
}

func TestProcessBatch(t *testing.T) {
	ids := []string{"id1", "id2", "id3", "id4"}

	fn := func(_ context.Context, id string) (json.RawMessage, error) {
		if id == "id2" {
			return nil, errors.New("failed to process id2")
		}
		// Later ids finish first; order must still follow ids.
		time.Sleep(time.Duration(len(ids)-int(id[2]-'0')) * time.Millisecond)
		return json.RawMessage(fmt.Sprintf(`"processed %s"`, id)), nil
	}

	results := ProcessBatch(context.Background(), ids, 4, fn)

	require.Len(t, results, 4)
	for i, id := range ids {
		assert.Equal(t, id, results[i].ID)
	}
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, `"processed id1"`, string(results[0].Result))
	assert.Equal(t, StatusError, results[1].Status)
	assert.Equal(t, "failed to process id2", results[1].Error)
	assert.Equal(t, StatusSuccess, results[3].Status)
}

func TestProcessBatch_RespectsConcurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}

	ProcessBatch(context.Background(), ids, 2, func(context.Context, string) (json.RawMessage, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return json.RawMessage(`null`), nil
	})

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestProcessBatch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := ProcessBatch(ctx, []string{"id1", "id2"}, 1, func(context.Context, string) (json.RawMessage, error) {
		calls.Add(1)
		return nil, nil
	})

	assert.Zero(t, calls.Load())
	for _, r := range results {
		assert.Equal(t, StatusError, r.Status)
		assert.Equal(t, context.Canceled.Error(), r.Error)
	}
}

func TestNewResults(t *testing.T) {
	ok := NewSuccessResult("test-id", json.RawMessage(`1`))
	assert.Equal(t, Result{ID: "test-id", Status: StatusSuccess, Result: json.RawMessage(`1`)}, ok)

	failed := NewErrorResult("test-id", errors.New("test error"))
	assert.Equal(t, Result{ID: "test-id", Status: StatusError, Error: "test error"}, failed)
}
