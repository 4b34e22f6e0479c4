package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"exteroid/internal"
	"exteroid/internal/config"
	"exteroid/internal/logger"
	"exteroid/internal/metrics"
	"exteroid/internal/ocr"
	"exteroid/internal/storage"
	"exteroid/internal/util"
)

const (
	StatusFetched  = "fetched"
	StatusSkipped  = "skipped"
	StatusEmpty    = "empty"
	StatusExported = "exported"
	StatusFailed   = "failed"

	mailTool = "mail"
)

// ProcessingService turns stored mail into one consolidated export per
// message.
type ProcessingService struct {
	db      *storage.DB
	cfg     config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	ocr     *ocr.Runner
	now     func() time.Time
}

// NewProcessingService wires the service. runner may be nil, in which case
// image attachments are reported as failures.
func NewProcessingService(db *storage.DB, cfg config.Config, log *logger.Logger, m *metrics.Metrics, runner *ocr.Runner) *ProcessingService {
	if log == nil {
		log = logger.Nop()
	}
	return &ProcessingService{db: db, cfg: cfg, log: log, metrics: m, ocr: runner, now: time.Now}
}

type ProcessResult struct {
	EmailID    int                    `json:"emailId"`
	TraceID    string                 `json:"traceId"`
	Status     string                 `json:"status"`
	Sheets     int                    `json:"sheets"`
	Rows       int                    `json:"rows"`
	OutputPath string                 `json:"outputPath,omitempty"`
	Failures   []internal.FileFailure `json:"failures,omitempty"`
}

type MailPayload struct {
	Subject     string
	Text        string
	HTML        string
	Attachments []File
}

func (p MailPayload) AttachmentNames() []string {
	out := make([]string, len(p.Attachments))
	for i, a := range p.Attachments {
		out[i] = a.Name
	}
	return out
}

// ParseMail reads a raw message. Inline parts are treated as attachments so
// pasted screenshots are not lost.
func ParseMail(raw []byte) (MailPayload, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return MailPayload{}, err
	}
	p := MailPayload{Subject: env.GetHeader("Subject"), Text: env.Text, HTML: env.HTML}
	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for i, part := range parts {
		name := strings.TrimSpace(part.FileName)
		if name == "" {
			name = fmt.Sprintf("attachment-%d", i+1)
		}
		p.Attachments = append(p.Attachments, File{Name: name, Content: part.Content})
	}
	return p, nil
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessPending handles fetched mail in arrival order. A failing message is
// marked failed and the batch continues.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus(StatusFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	exportedRows := 0
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return processedEmails, exportedRows, err
		}
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			s.log.WarnwCtx(ctx, "mail processing failed", "email_id", email.ID, "error", err)
			_ = s.db.UpdateEmailStatus(email.ID, StatusFailed)
			continue
		}
		processedEmails++
		exportedRows += res.Rows
	}
	return processedEmails, exportedRows, nil
}

func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	traceID := NewTraceID()
	ctx = logger.ContextWithTraceID(ctx, traceID)
	res := ProcessResult{EmailID: email.ID, TraceID: traceID}

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return res, err
	}
	payload, err := ParseMail(raw)
	if err != nil {
		return res, err
	}

	detect := DetectContactPayload(firstNonEmpty(payload.Subject, email.Subject), payload.Text, payload.HTML, payload.AttachmentNames())
	if !detect.HasContacts {
		s.log.InfowCtx(ctx, "mail skipped", "email_id", email.ID, "score", detect.Score, "reason", detect.Reason)
		return s.finish(ctx, email, res, StatusSkipped, internal.CleanStats{}, nil)
	}

	sheets, failures := s.CollectSheets(ctx, payload)
	res.Failures = failures
	res.Sheets = len(sheets)
	if len(sheets) == 0 {
		return s.finish(ctx, email, res, StatusEmpty, internal.CleanStats{}, nil)
	}

	session, err := NewSession(Options{
		MinFiles:     1,
		MaxFiles:     len(sheets),
		MaxFileBytes: s.cfg.MaxFileBytes(),
		Extensions:   SpreadsheetExtensions,
	})
	if err != nil {
		return res, err
	}
	for _, sh := range sheets {
		if err := session.AddSheet(sh); err != nil {
			return res, err
		}
	}
	if _, err := session.Merge(); err != nil {
		return res, err
	}
	opts := ConsolidationOptions(util.PhoneFormat(s.cfg.PhoneFormat))
	opts.Duplicates = DuplicatePolicy(s.cfg.DuplicatePolicy)
	t, stats, err := session.Clean(opts)
	if errors.Is(err, ErrNoRows) {
		return s.finish(ctx, email, res, StatusEmpty, stats, nil)
	}
	if err != nil {
		return res, err
	}

	res.OutputPath = filepath.Join(s.cfg.OutputDir, "mail", fmt.Sprintf("%d_%s_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID), s.now().Format("2006-01-02")))
	if err := ExportRows(t.Rows, res.OutputPath); err != nil {
		return res, err
	}
	res.Rows = len(t.Rows)
	return s.finish(ctx, email, res, StatusExported, stats, session.FileNames())
}

func (s *ProcessingService) finish(ctx context.Context, email internal.EmailRow, res ProcessResult, status string, stats internal.CleanStats, files []string) (ProcessResult, error) {
	res.Status = status
	if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
		return res, err
	}
	_, err := s.db.InsertRun(internal.RunRecord{
		TraceID:    res.TraceID,
		Tool:       mailTool,
		Source:     email.Provider,
		Files:      files,
		Stats:      stats,
		Failures:   res.Failures,
		OutputPath: res.OutputPath,
	}, email.ID)
	if err != nil {
		s.log.WarnwCtx(ctx, "run log insert failed", "error", err)
	}
	s.metrics.ObserveRun(mailTool, stats, len(res.Failures), nil)
	s.log.InfowCtx(ctx, "mail processed",
		"email_id", email.ID,
		"status", status,
		"sheets", res.Sheets,
		"rows", res.Rows,
		"failures", len(res.Failures),
		"output", res.OutputPath,
	)
	return res, nil
}

// CollectSheets turns every usable part of a message into sheets: spreadsheet
// attachments, HTML body tables, PDF text tables and recognized images.
func (s *ProcessingService) CollectSheets(ctx context.Context, p MailPayload) ([]internal.Sheet, []internal.FileFailure) {
	var sheets []internal.Sheet
	var failures []internal.FileFailure
	fail := func(name string, err error) {
		s.log.WarnwCtx(ctx, "attachment skipped", "file", name, "error", err)
		failures = append(failures, internal.FileFailure{Name: name, Error: err.Error()})
	}
	tol := ocr.TolerancesFromConfig(s.cfg)

	for _, att := range p.Attachments {
		if !IsProcessableAttachment(att.Name) {
			continue
		}
		if int64(len(att.Content)) > s.cfg.MaxFileBytes() {
			fail(att.Name, ErrFileTooLarge)
			continue
		}
		switch {
		case hasExtension(att.Name, SpreadsheetExtensions):
			sheet, err := ReadSheet(att.Name, att.Content)
			if err != nil {
				fail(att.Name, err)
				continue
			}
			sheet.Source = internal.SourceMailAttachment
			sheets = append(sheets, sheet)
		case hasExtension(att.Name, DocumentExtensions):
			pdfSheets, err := PDFSheets(att.Name, att.Content, tol)
			if err != nil {
				fail(att.Name, err)
				continue
			}
			sheets = append(sheets, pdfSheets...)
		case hasExtension(att.Name, ImageExtensions):
			if s.ocr == nil {
				fail(att.Name, errors.New("ocr engine not configured"))
				continue
			}
			page, err := s.ocr.Recognize(ctx, ocr.Image{Name: att.Name, Data: att.Content})
			if err != nil {
				fail(att.Name, err)
				continue
			}
			grid := ocr.Reconstruct(page.Tokens, tol)
			if len(grid.Rows) == 0 {
				fail(att.Name, fmt.Errorf("%w: no table recognized", ErrEmptyFile))
				continue
			}
			sheets = append(sheets, SheetFromRows(att.Name, internal.SourceImage, grid.ColumnNames(), grid.Rows))
		}
	}

	if p.HTML != "" {
		sheets = append(sheets, ReadHTMLTables("body.html", p.HTML)...)
	}
	return sheets, failures
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
