package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "plus91", cfg.PhoneFormat)
	assert.Equal(t, "YYYY-MM-DD", cfg.DateFormat)
	assert.Equal(t, 2, cfg.MinFiles)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.Equal(t, 15.0, cfg.OCRRowTolerance)
	assert.Equal(t, 20.0, cfg.OCRColumnTolerance)
	assert.Equal(t, 30.0, cfg.OCRHeaderBand)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileBytes())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PHONE_FORMAT", "digits")
	t.Setenv("MAX_FILES", "3")
	t.Setenv("OCR_ROW_TOLERANCE", "9.5")
	t.Setenv("IMAP_SECURE", "off")
	t.Setenv("MIN_FILES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "digits", cfg.PhoneFormat)
	assert.Equal(t, 3, cfg.MaxFiles)
	assert.Equal(t, 9.5, cfg.OCRRowTolerance)
	assert.False(t, cfg.IMAPSecure)
	assert.Equal(t, 2, cfg.MinFiles)
}

func TestRequire(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.Require("OCR_API_TOKEN", "  "))
	assert.NoError(t, cfg.Require("OCR_API_TOKEN", "x"))
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"PHONE_FORMAT":           "e164",
		"DUPLICATE_POLICY":       "drop",
		"MAIL_LISTENER_PROVIDER": "pop3",
		"OCR_ROW_TOLERANCE":      "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(key, value)
			_, err := Load()
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoadNormalizesCase(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PHONE_FORMAT", "DIGITS")
	t.Setenv("MAIL_LISTENER_PROVIDER", "Gmail")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "digits", cfg.PhoneFormat)
	assert.Equal(t, "gmail", cfg.MailListenerProvider)
}

func TestMaxFilesBelowMinFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MIN_FILES", "4")
	t.Setenv("MAX_FILES", "3")
	_, err := Load()
	assert.ErrorContains(t, err, "MaxFiles")
}
