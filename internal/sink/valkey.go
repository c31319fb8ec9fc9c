package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"
)

// DefaultValkeyKeyPrefix namespaces every key written by ValkeySink.
const DefaultValkeyKeyPrefix = "inboxdigest:"

// recentListCap bounds the per-user list of recent report keys.
const recentListCap = 50

// ValkeyConfig configures a ValkeySink.
type ValkeyConfig struct {
	// URL is a redis:// or rediss:// URL, e.g. "redis://localhost:6379/0".
	URL       string
	Password  string
	KeyPrefix string
}

// ValkeySink stores reports as string values in Valkey and keeps a capped
// list of recent report keys per user.
type ValkeySink struct {
	client valkey.Client
	prefix string
}

// NewValkeySink connects to Valkey.
func NewValkeySink(cfg ValkeyConfig) (*ValkeySink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("valkey URL is required")
	}

	opt, err := valkey.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse valkey URL: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return NewValkeySinkFromClient(client, cfg.KeyPrefix), nil
}

// NewValkeySinkFromClient wraps an existing client.
func NewValkeySinkFromClient(client valkey.Client, keyPrefix string) *ValkeySink {
	if keyPrefix == "" {
		keyPrefix = DefaultValkeyKeyPrefix
	}
	return &ValkeySink{client: client, prefix: keyPrefix}
}

// Name implements Named.
func (s *ValkeySink) Name() string { return KindValkey }

// Put implements Sink. The report value and the recent list are updated in
// one round trip.
func (s *ValkeySink) Put(ctx context.Context, key string, payload any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := marshal(payload)
	if err != nil {
		return err
	}

	userHash, ok := userHashFromKey(key)
	if !ok {
		return fmt.Errorf("invalid report key %q", key)
	}
	listKey := s.recentKey(userHash)

	cmds := []valkey.Completed{
		s.client.B().Set().Key(s.prefix + key).Value(string(data)).Build(),
		s.client.B().Lpush().Key(listKey).Element(key).Build(),
		s.client.B().Ltrim().Key(listKey).Start(0).Stop(recentListCap - 1).Build(),
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to store report in valkey: %w", err)
		}
	}
	return nil
}

// Recent implements Lister. Keys whose value has expired or been removed
// are skipped.
func (s *ValkeySink) Recent(ctx context.Context, userHash string, n int) ([]json.RawMessage, error) {
	if err := validateUserHash(userHash); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultRecentLimit
	}

	keys, err := s.client.Do(ctx, s.client.B().Lrange().Key(s.recentKey(userHash)).Start(0).Stop(int64(n-1)).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	if len(keys) == 0 {
		return []json.RawMessage{}, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}

	values, err := s.client.Do(ctx, s.client.B().Mget().Key(prefixed...).Build()).ToArray()
	if err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}

	reports := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		str, err := v.ToString()
		if valkey.IsValkeyNil(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reports: %w", err)
		}
		reports = append(reports, json.RawMessage(str))
	}
	return reports, nil
}

// Ping checks connectivity.
func (s *ValkeySink) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (s *ValkeySink) Close() error {
	s.client.Close()
	return nil
}

func (s *ValkeySink) recentKey(userHash string) string {
	return s.prefix + "recent:" + userHash
}

// userHashFromKey extracts <user_hash> from reports/<user_hash>/...
func userHashFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "reports/")
	if !ok {
		return "", false
	}
	hash, _, ok := strings.Cut(rest, "/")
	return hash, ok && hash != ""
}
