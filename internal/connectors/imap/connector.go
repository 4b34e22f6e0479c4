package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"exteroid/internal"
	"exteroid/internal/config"
)

const dialTries = 3

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
	now      func() time.Time
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range [][2]string{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}
	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
		now:      time.Now,
	}, nil
}

func (c *Connector) dial(ctx context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	op := func() (*imapclient.Client, error) {
		if c.secure {
			return imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
		}
		return imapclient.Dial(addr)
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(dialTries))
}

// FetchInbox reads the newest max unseen messages of the mailbox. The
// connection is dropped when ctx is cancelled.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	defer client.Logout()

	stop := context.AfterFunc(ctx, func() { _ = client.Terminate() })
	defer stop()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", label, err)
	}

	ids, err := newestUnseen(client, max)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	out, seqs, err := c.fetchBodies(client, ids)
	if err != nil {
		return nil, err
	}
	if c.markSeen && len(seqs) > 0 {
		if err := markSeen(client, seqs); err != nil {
			return nil, fmt.Errorf("imap mark seen: %w", err)
		}
	}
	return out, nil
}

func newestUnseen(client *imapclient.Client, max int) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	return ids, nil
}

// fetchBodies peeks at full bodies so nothing is flagged seen as a side
// effect. It returns the sequence numbers it actually read.
func (c *Connector) fetchBodies(client *imapclient.Client, ids []uint32) ([]internal.FetchedMailMessage, []uint32, error) {
	set := new(imap.SeqSet)
	set.AddNum(ids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() { done <- client.Fetch(set, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	var seqs []uint32
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = err
			continue
		}
		out = append(out, c.toFetched(msg, raw))
		seqs = append(seqs, msg.SeqNum)
	}
	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("imap fetch: %w", err)
	}
	if readErr != nil {
		return nil, nil, readErr
	}
	return out, seqs, nil
}

func markSeen(client *imapclient.Client, seqs []uint32) error {
	set := new(imap.SeqSet)
	set.AddNum(seqs...)
	return client.Store(set, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}, nil)
}

func (c *Connector) toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{
		Provider:   "imap",
		MessageID:  fmt.Sprintf("imap-%d", msg.Uid),
		ReceivedAt: c.now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if msg.Envelope != nil {
		if msg.Envelope.MessageId != "" {
			out.MessageID = msg.Envelope.MessageId
		}
		out.Subject = msg.Envelope.Subject
		out.From = formatAddresses(msg.Envelope.From)
	}
	if !msg.InternalDate.IsZero() {
		out.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return out
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(a.MailboxName+"@"+a.HostName, "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
