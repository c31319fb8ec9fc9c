package mailbox

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/gmail"
)

func TestIMAPConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     IMAPConfig
		wantErr bool
	}{
		{name: "valid", cfg: IMAPConfig{Addr: "imap.example.com:993", Username: "jane"}},
		{name: "missing addr", cfg: IMAPConfig{Username: "jane"}, wantErr: true},
		{name: "missing user", cfg: IMAPConfig{Addr: "imap.example.com:993"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewIMAPSource_DefaultsMailbox(t *testing.T) {
	src, err := NewIMAPSource(IMAPConfig{Addr: "imap.example.com:993", Username: "jane"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultIMAPMailbox, src.cfg.Mailbox)

	// Closing an unopened source is a no-op
	assert.NoError(t, src.Close())
}

func TestParseUID(t *testing.T) {
	tests := []struct {
		id      string
		want    imap.UID
		wantErr bool
	}{
		{id: "42", want: 42},
		{id: " 7 ", want: 7},
		{id: "0", wantErr: true},
		{id: "-1", wantErr: true},
		{id: "abc", wantErr: true},
		{id: "99999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := parseUID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const testIMAPMessage = "From: Bob <bob@example.com>\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"Date: Mon, 8 Jan 2024 10:00:00 +0000\r\n" +
	"Message-ID: <q1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Numbers attached.\r\n"

func newMemUser(t *testing.T) *imapmemserver.User {
	t.Helper()
	user := imapmemserver.NewUser("jane", "secret")
	require.NoError(t, user.Create("INBOX", nil))
	_, err := user.Append("INBOX", bytes.NewReader([]byte(testIMAPMessage)), &imap.AppendOptions{
		Time: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return user
}

// serveIMAP serves user over plain IMAP on addr ("127.0.0.1:0" picks a port)
// and returns the bound address and a stop function.
func serveIMAP(t *testing.T, addr string, user *imapmemserver.User) (string, func()) {
	t.Helper()
	mem := imapmemserver.New()
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps:         imap.CapSet{imap.CapIMAP4rev1: {}, imap.CapIMAP4rev2: {}},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	stopped := false
	stop := func() {
		if !stopped {
			stopped = true
			_ = srv.Close()
		}
	}
	t.Cleanup(stop)
	return ln.Addr().String(), stop
}

func newTestIMAPSource(t *testing.T, addr string) *IMAPSource {
	t.Helper()
	src, err := NewIMAPSource(IMAPConfig{Addr: addr, Username: "jane", Password: "secret", Insecure: true}, nil)
	require.NoError(t, err)
	src.now = func() time.Time { return time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestIMAPSource_ListAndGet(t *testing.T) {
	addr, _ := serveIMAP(t, "127.0.0.1:0", newMemUser(t))
	src := newTestIMAPSource(t, addr)
	ctx := context.Background()

	ids, err := src.ListMessageIDs(ctx, gmail.Query{Days: 7, MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	msg, err := src.GetMessage(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Quarterly numbers", gmail.HeaderValue(msg.HeaderList(), "Subject"))

	_, err = src.GetMessage(ctx, "999")
	assert.Error(t, err)
}

func TestIMAPSource_ReconnectsAfterServerRestart(t *testing.T) {
	user := newMemUser(t)
	addr, stop := serveIMAP(t, "127.0.0.1:0", user)
	src := newTestIMAPSource(t, addr)
	ctx := context.Background()
	q := gmail.Query{Days: 7, MaxResults: 10}

	ids, err := src.ListMessageIDs(ctx, q)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	stop()

	// The cached session is dead; the failing call drops it.
	_, err = src.ListMessageIDs(ctx, q)
	require.Error(t, err)

	newAddr, _ := serveIMAP(t, "127.0.0.1:0", user)
	src.cfg.Addr = newAddr

	ids, err = src.ListMessageIDs(ctx, q)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	msg, err := src.GetMessage(ctx, ids[0])
	require.NoError(t, err)
	assert.Contains(t, gmail.HeaderValue(msg.HeaderList(), "From"), "bob@example.com")
}
