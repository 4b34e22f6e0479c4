package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"exteroid/internal"
	"exteroid/internal/config"
)

const pageSize = 100

type Connector struct {
	service *gmail.Service
	now     func() time.Time
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc, now: time.Now}, nil
}

// FetchInbox lists up to max messages under label, newest first, and
// downloads each one in raw form.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	var refs []*gmail.Message
	pageToken := ""
	for len(refs) < max {
		call := c.service.Users.Messages.List("me").LabelIds(label).MaxResults(int64(min(pageSize, max-len(refs)))).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list gmail messages: %w", err)
		}
		refs = append(refs, resp.Messages...)
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	out := make([]internal.FetchedMailMessage, 0, len(refs))
	for _, ref := range refs {
		if ref.Id == "" {
			continue
		}
		rawResp, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get gmail message %s: %w", ref.Id, err)
		}
		if rawResp.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c.toFetched(ref.Id, raw))
	}
	return out, nil
}

func (c *Connector) toFetched(id string, raw []byte) internal.FetchedMailMessage {
	msg := internal.FetchedMailMessage{
		Provider:   "gmail",
		MessageID:  id,
		ReceivedAt: c.now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return msg
	}
	if v := strings.TrimSpace(env.GetHeader("Message-ID")); v != "" {
		msg.MessageID = v
	}
	msg.Subject = env.GetHeader("Subject")
	msg.From = env.GetHeader("From")
	if t, err := env.Date(); err == nil {
		msg.ReceivedAt = t.UTC().Format(time.RFC3339)
	}
	return msg
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
