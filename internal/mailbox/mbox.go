package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/logging"
)

// SourceMbox names the mbox source in logs and metrics.
const SourceMbox = "mbox"

// ErrMessageNotFound is returned by GetMessage for an unknown message ID.
var ErrMessageNotFound = errors.New("message not found")

// MboxSource serves messages from a local mbox file.
//
// The file is parsed once, on the first ListMessageIDs call.
type MboxSource struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	once     sync.Once
	loadErr  error
	messages map[string]*gmail.Message
	order    []string
}

// NewMboxSource creates a source reading the mbox file at path.
func NewMboxSource(path string, logger *slog.Logger) (*MboxSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MboxSource{
		path:   path,
		logger: logger.With(logging.Source(SourceMbox)),
		now:    time.Now,
	}, nil
}

// ListMessageIDs returns the IDs of messages dated inside the query window,
// newest first. Messages without a parseable Date header are skipped.
// Category exclusions are a Gmail concept and are ignored.
func (s *MboxSource) ListMessageIDs(ctx context.Context, q gmail.Query) ([]string, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	since := q.Since(s.now())
	var ids []string
	for _, id := range s.order {
		msg := s.messages[id]
		if msg.InternalDate.IsZero() || msg.InternalDate.Before(since) {
			continue
		}
		ids = append(ids, id)
	}

	slices.SortStableFunc(ids, func(a, b string) int {
		return s.messages[b].InternalDate.Compare(s.messages[a].InternalDate)
	})

	if q.MaxResults > 0 && len(ids) > q.MaxResults {
		ids = ids[:q.MaxResults]
	}
	return ids, nil
}

// GetMessage returns a previously listed message.
func (s *MboxSource) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("failed to get message %s: %w", id, ErrMessageNotFound)
	}
	return msg, nil
}

func (s *MboxSource) load(ctx context.Context) error {
	s.once.Do(func() {
		s.loadErr = s.read(ctx)
	})
	return s.loadErr
}

func (s *MboxSource) read(ctx context.Context) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	s.messages = make(map[string]*gmail.Message)
	reader := mboxlib.NewReader(file)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read mbox message %d: %w", idx, err)
		}

		msg, err := ParseMessage("mbox-"+strconv.Itoa(idx), msgReader)
		if err != nil {
			s.logger.Warn("skipping unparseable mbox message", slog.Int("index", idx), logging.Err(err))
			continue
		}

		if id := trimAngles(gmail.HeaderValue(msg.Headers, "Message-Id")); id != "" {
			msg.ID = id
		}
		if _, dup := s.messages[msg.ID]; dup {
			s.logger.Debug("skipping duplicate mbox message", logging.MessageID(msg.ID))
			continue
		}

		s.messages[msg.ID] = msg
		s.order = append(s.order, msg.ID)
	}

	s.logger.Debug("loaded mbox", slog.String("path", s.path), slog.Int("messages", len(s.order)))
	return nil
}
