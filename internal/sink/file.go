package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileSink writes reports as JSON files below a root directory.
type FileSink struct {
	root string
}

// NewFileSink creates a sink rooted at dir. The directory is created on
// first write.
func NewFileSink(dir string) (*FileSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	return &FileSink{root: dir}, nil
}

// Name implements Named.
func (s *FileSink) Name() string { return KindFile }

// Put implements Sink. Files are written atomically.
func (s *FileSink) Put(ctx context.Context, key string, payload any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".report-*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to store report file: %w", err)
	}
	return nil
}

// Recent implements Lister, ordering by file modification time.
func (s *FileSink) Recent(ctx context.Context, userHash string, n int) ([]json.RawMessage, error) {
	if err := validateUserHash(userHash); err != nil {
		return nil, err
	}

	type entry struct {
		path    string
		modUnix int64
	}
	var entries []entry

	dir := filepath.Join(s.root, filepath.FromSlash(userPrefix(userHash)))
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".json" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, entry{path: p, modUnix: info.ModTime().UnixNano()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		switch {
		case a.modUnix > b.modUnix:
			return -1
		case a.modUnix < b.modUnix:
			return 1
		}
		return strings.Compare(b.path, a.path)
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}

	reports := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(e.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read report: %w", err)
		}
		reports = append(reports, json.RawMessage(data))
	}
	return reports, nil
}
