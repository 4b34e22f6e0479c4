package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is read once from the environment (and .env when present).
type Config struct {
	DBPath     string `validate:"required"`
	RawMailDir string `validate:"required"`
	OutputDir  string `validate:"required"`
	LogEnv     string
	HTTPAddr   string

	PhoneFormat     string `validate:"oneof=plus91 digits"`
	DateFormat      string `validate:"oneof=YYYY-MM-DD DD/MM/YYYY"`
	DuplicatePolicy string `validate:"oneof=keep_first keep_last flag"`
	MinFiles        int    `validate:"min=1"`
	MaxFiles        int    `validate:"gtefield=MinFiles"`
	MaxFileMB       int    `validate:"min=1"`

	OCREngine          string `validate:"oneof=tesseract http"`
	OCRTesseractBin    string
	OCRLang            string
	OCRAPIBaseURL      string `validate:"omitempty,url"`
	OCRAPIToken        string
	OCRRateLimitRPS    int     `validate:"min=1"`
	OCRTimeoutMs       int     `validate:"min=1"`
	OCRRowTolerance    float64 `validate:"gt=0"`
	OCRColumnTolerance float64 `validate:"gt=0"`
	OCRHeaderBand      float64 `validate:"gt=0"`

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int `validate:"min=1,max=65535"`
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string `validate:"oneof=gmail imap"`
	MailListenerLabel        string
	MailListenerIntervalSec  int `validate:"min=1"`
	MailListenerFetchMax     int `validate:"min=1"`
	MailListenerProcessBatch int `validate:"min=1"`
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "exteroid.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		LogEnv:     getEnv("LOG_ENV", "development"),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),

		PhoneFormat:     getEnv("PHONE_FORMAT", "plus91"),
		DateFormat:      getEnv("DATE_FORMAT", "YYYY-MM-DD"),
		DuplicatePolicy: getEnv("DUPLICATE_POLICY", "keep_first"),
		MinFiles:        getEnvInt("MIN_FILES", 2),
		MaxFiles:        getEnvInt("MAX_FILES", 5),
		MaxFileMB:       getEnvInt("MAX_FILE_MB", 10),

		OCREngine:          getEnv("OCR_ENGINE", "tesseract"),
		OCRTesseractBin:    getEnv("OCR_TESSERACT_BIN", "tesseract"),
		OCRLang:            getEnv("OCR_LANG", "eng"),
		OCRAPIBaseURL:      getEnv("OCR_API_BASE_URL", "http://localhost:8884/api/v1"),
		OCRAPIToken:        getEnv("OCR_API_TOKEN", ""),
		OCRRateLimitRPS:    getEnvInt("OCR_RATE_LIMIT_RPS", 2),
		OCRTimeoutMs:       getEnvInt("OCR_TIMEOUT_MS", 60000),
		OCRRowTolerance:    getEnvFloat("OCR_ROW_TOLERANCE", 15),
		OCRColumnTolerance: getEnvFloat("OCR_COLUMN_TOLERANCE", 20),
		OCRHeaderBand:      getEnvFloat("OCR_HEADER_BAND", 30),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}
	cfg.PhoneFormat = strings.ToLower(cfg.PhoneFormat)
	cfg.OCREngine = strings.ToLower(cfg.OCREngine)
	cfg.MailListenerProvider = strings.ToLower(cfg.MailListenerProvider)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting by its field name.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s=%v (%s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
		}
		return err
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) * 1024 * 1024
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// envParsed falls back on a missing or unparsable value.
func envParsed[T any](key string, fallback T, parse func(string) (T, error)) T {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	parsed, err := parse(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	return envParsed(key, fallback, strconv.Atoi)
}

func getEnvFloat(key string, fallback float64) float64 {
	return envParsed(key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getEnvBool(key string, fallback bool) bool {
	return envParsed(key, fallback, parseSwitch)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a switch: %q", s)
}
