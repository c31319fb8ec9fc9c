package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/logging"
)

// SourceIMAP names the IMAP source in logs and metrics.
const SourceIMAP = "imap"

// DefaultIMAPMailbox is the mailbox searched when none is configured.
const DefaultIMAPMailbox = "INBOX"

// IMAPConfig configures an IMAP mail source.
type IMAPConfig struct {
	// Addr is host:port of the server, e.g. "imap.example.com:993".
	Addr     string
	Username string
	Password string
	// Mailbox defaults to INBOX.
	Mailbox string
	// Insecure dials without TLS. Only for local test servers.
	Insecure  bool
	TLSConfig *tls.Config
}

// Validate checks the required connection settings.
func (c *IMAPConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("imap address is required")
	}
	if c.Username == "" {
		return fmt.Errorf("imap username is required")
	}
	return nil
}

// IMAPSource serves messages from an IMAP mailbox over a single, lazily
// opened, read-only session. Commands are serialized.
type IMAPSource struct {
	cfg    IMAPConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	client   *imapclient.Client
	selected bool
}

// NewIMAPSource creates an IMAP source. No connection is made until first use.
func NewIMAPSource(cfg IMAPConfig, logger *slog.Logger) (*IMAPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = DefaultIMAPMailbox
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IMAPSource{
		cfg:    cfg,
		logger: logger.With(logging.Source(SourceIMAP)),
		now:    time.Now,
	}, nil
}

// ListMessageIDs returns the UIDs, as decimal strings, of messages received
// inside the query window, newest first. IMAP SINCE has day granularity so
// the window may start up to a day early.
func (s *IMAPSource) ListMessageIDs(ctx context.Context, q gmail.Query) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	since := q.Since(s.now())
	criteria := &imap.SearchCriteria{
		Since: time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location()),
	}

	data, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		s.dropBrokenSession(err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	uids := data.AllUIDs()
	slices.SortFunc(uids, func(a, b imap.UID) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	if q.MaxResults > 0 && len(uids) > q.MaxResults {
		uids = uids[:q.MaxResults]
	}

	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return ids, nil
}

// GetMessage fetches and parses one message by UID without setting \Seen.
func (s *IMAPSource) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	var uidSet imap.UIDSet
	uidSet.AddNum(uid)

	fetchCmd := c.Fetch(uidSet, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	})
	raw, readErr := readBodySection(fetchCmd.Next())
	if err := fetchCmd.Close(); err != nil {
		s.dropBrokenSession(err)
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, readErr)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("failed to get message %s: empty body", id)
	}

	return ParseMessage(id, bytes.NewReader(raw))
}

func readBodySection(msgData *imapclient.FetchMessageData) ([]byte, error) {
	if msgData == nil {
		return nil, ErrMessageNotFound
	}
	var raw []byte
	for {
		item := msgData.Next()
		if item == nil {
			return raw, nil
		}
		body, ok := item.(imapclient.FetchItemDataBodySection)
		if !ok || body.Literal == nil {
			continue
		}
		b, err := io.ReadAll(body.Literal)
		if err != nil {
			return nil, err
		}
		raw = b
	}
}

// dropBrokenSession forgets the session after a failure that was not a
// tagged NO or BAD from the server, so the next call dials again.
// Must be called with s.mu held.
func (s *IMAPSource) dropBrokenSession(err error) {
	var imapErr *imap.Error
	if s.client == nil || errors.As(err, &imapErr) {
		return
	}
	s.logger.Debug("imap session lost, reconnecting on next use", logging.Err(err))
	_ = s.client.Close()
	s.client = nil
	s.selected = false
}

// Close logs out and closes the connection, if one was opened.
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout failed", logging.Err(err))
	}
	err := s.client.Close()
	s.client = nil
	s.selected = false
	return err
}

// session returns a logged-in client with the mailbox selected.
// Must be called with s.mu held.
func (s *IMAPSource) session(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.client == nil {
		c, err := s.dial()
		if err != nil {
			return nil, err
		}
		if err := c.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
			c.Close()
			return nil, fmt.Errorf("imap login failed: %w", err)
		}
		s.client = c
		s.logger.Debug("imap session opened",
			slog.String("addr", s.cfg.Addr),
			slog.String("password", logging.SanitizeToken(s.cfg.Password)))
	}

	if !s.selected {
		if _, err := s.client.Select(s.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
			s.dropBrokenSession(err)
			return nil, fmt.Errorf("SELECT %s failed: %w", s.cfg.Mailbox, err)
		}
		s.selected = true
	}

	return s.client, nil
}

func (s *IMAPSource) dial() (*imapclient.Client, error) {
	var (
		c   *imapclient.Client
		err error
	)
	if s.cfg.Insecure {
		c, err = imapclient.DialInsecure(s.cfg.Addr, nil)
	} else {
		c, err = imapclient.DialTLS(s.cfg.Addr, &imapclient.Options{TLSConfig: s.cfg.TLSConfig})
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s failed: %w", s.cfg.Addr, err)
	}
	return c, nil
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid IMAP UID %q", id)
	}
	return imap.UID(n), nil
}
