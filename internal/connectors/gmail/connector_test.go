package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "Message-ID: <abc@mail.example>\r\n" +
	"Subject: =?UTF-8?Q?Lead_list_=E2=9C=93?=\r\n" +
	"From: Ops <ops@example.com>\r\n" +
	"Date: Sun, 08 Feb 2026 10:30:00 +0530\r\n" +
	"\r\n" +
	"body\r\n"

func TestToFetched(t *testing.T) {
	c := &Connector{now: func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }}

	msg := c.toFetched("18c", []byte(sample))
	assert.Equal(t, "gmail", msg.Provider)
	assert.Equal(t, "<abc@mail.example>", msg.MessageID)
	assert.Equal(t, "Lead list ✓", msg.Subject)
	assert.Equal(t, "Ops <ops@example.com>", msg.From)
	assert.Equal(t, "2026-02-08T05:00:00Z", msg.ReceivedAt)

	encoded := c.toFetched("18e", []byte("From: =?UTF-8?B?QXNoYSBSYW8=?= <asha@example.com>\r\n"+
		"Subject: =?ISO-8859-1?Q?Caf=E9_leads?=\r\n\r\nbody\r\n"))
	assert.Equal(t, "18e", encoded.MessageID)
	assert.Equal(t, "Asha Rao <asha@example.com>", encoded.From)
	assert.Equal(t, "Café leads", encoded.Subject)
	assert.Equal(t, "2026-01-01T00:00:00Z", encoded.ReceivedAt)

	bare := c.toFetched("18d", []byte("not a message"))
	assert.Equal(t, "18d", bare.MessageID)
	assert.Equal(t, "2026-01-01T00:00:00Z", bare.ReceivedAt)
}

func TestDecodeBase64URL(t *testing.T) {
	raw := []byte("Subject: hi?\r\n\r\n>>")
	got, err := decodeBase64URL(base64.RawURLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeBase64URL(base64.URLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeBase64URL("***")
	assert.Error(t, err)
}
