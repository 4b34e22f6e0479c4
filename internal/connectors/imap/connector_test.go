package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"exteroid/internal/config"
)

func TestNewConnectorRequiresCredentials(t *testing.T) {
	_, err := NewConnector(config.Config{IMAPHost: "mail.example.com", IMAPUser: "ops"})
	assert.EqualError(t, err, "missing required env var: IMAP_PASSWORD")

	c, err := NewConnector(config.Config{IMAPHost: "mail.example.com", IMAPPort: 993, IMAPUser: "ops", IMAPPassword: "x"})
	assert.NoError(t, err)
	assert.Equal(t, 993, c.port)
}

func TestToFetched(t *testing.T) {
	c := &Connector{now: func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }}

	bare := c.toFetched(&imap.Message{Uid: 42}, []byte("raw"))
	assert.Equal(t, "imap-42", bare.MessageID)
	assert.Equal(t, "2026-01-01T00:00:00Z", bare.ReceivedAt)

	full := c.toFetched(&imap.Message{
		Uid:          7,
		InternalDate: time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC),
		Envelope: &imap.Envelope{
			MessageId: "<m@x>",
			Subject:   "Leads",
			From:      []*imap.Address{{PersonalName: "Ops", MailboxName: "ops", HostName: "example.com"}, nil, {MailboxName: "b", HostName: "x.org"}},
		},
	}, []byte("raw"))
	assert.Equal(t, "<m@x>", full.MessageID)
	assert.Equal(t, "Leads", full.Subject)
	assert.Equal(t, "Ops <ops@example.com>, b@x.org", full.From)
	assert.Equal(t, "2026-02-08T10:00:00Z", full.ReceivedAt)
}
