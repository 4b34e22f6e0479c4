package connectors

import (
	"context"
	"fmt"
	"strings"

	"exteroid/internal"
	"exteroid/internal/config"
	gmailconnector "exteroid/internal/connectors/gmail"
	imapconnector "exteroid/internal/connectors/imap"
)

// MailConnector pulls raw messages from one mailbox. label is a Gmail label
// id or an IMAP mailbox name.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector for provider ("gmail" or "imap").
func New(ctx context.Context, provider string, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
