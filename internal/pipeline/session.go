package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"exteroid/internal"
)

var (
	SpreadsheetExtensions = []string{".xlsx", ".xls", ".csv"}
	ImageExtensions       = []string{".png", ".jpg", ".jpeg", ".bmp", ".webp", ".tif", ".tiff"}
	DocumentExtensions    = []string{".pdf"}
)

type Options struct {
	MinFiles     int      `validate:"min=1"`
	MaxFiles     int      `validate:"gtefield=MinFiles"`
	MaxFileBytes int64    `validate:"gt=0"`
	Extensions   []string `validate:"min=1"`
}

func ConsolidateLimits(minFiles, maxFiles int, maxBytes int64) Options {
	return Options{MinFiles: minFiles, MaxFiles: maxFiles, MaxFileBytes: maxBytes, Extensions: SpreadsheetExtensions}
}

func SingleFileLimits(maxBytes int64) Options {
	return Options{MinFiles: 1, MaxFiles: 1, MaxFileBytes: maxBytes, Extensions: SpreadsheetExtensions}
}

// Session owns one pipeline run. Parsed sheets are frozen once added; merge
// and clean results replace the current table only when they succeed.
type Session struct {
	opts     Options
	sheets   []internal.Sheet
	failures []internal.FileFailure
	columns  []internal.UnifiedColumn
	selected []string
	merged   *internal.Table
	current  internal.Table
	stats    internal.CleanStats
}

func NewSession(opts Options) (*Session, error) {
	if err := structValidator().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}
	return &Session{opts: opts}, nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Accept checks a file before parsing. It does not change the session.
func (s *Session) Accept(name string, size int64) error {
	if !hasExtension(name, s.opts.Extensions) {
		return rejectFile(name, ErrUnsupportedFile, "allowed: "+strings.Join(s.opts.Extensions, ", "))
	}
	if size == 0 {
		return rejectFile(name, ErrEmptyFile, "")
	}
	if size > s.opts.MaxFileBytes {
		return rejectFile(name, ErrFileTooLarge, fmt.Sprintf("%d bytes, limit %d", size, s.opts.MaxFileBytes))
	}
	if len(s.sheets) >= s.opts.MaxFiles {
		return rejectFile(name, ErrTooManyFiles, fmt.Sprintf("limit %d", s.opts.MaxFiles))
	}
	return nil
}

// AddFile accepts and parses one file. Rejections come back as *InputError;
// a parse failure is recorded and the session carries on without the file.
func (s *Session) AddFile(name string, content []byte) error {
	if err := s.Accept(name, int64(len(content))); err != nil {
		return err
	}
	sheet, err := ReadSheet(name, content)
	if err != nil {
		s.failures = append(s.failures, internal.FileFailure{Name: name, Error: err.Error()})
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return s.AddSheet(sheet)
}

// AddSheet adds an already parsed sheet, such as an OCR reconstruction.
func (s *Session) AddSheet(sheet internal.Sheet) error {
	if len(s.sheets) >= s.opts.MaxFiles {
		return rejectFile(sheet.Name, ErrTooManyFiles, fmt.Sprintf("limit %d", s.opts.MaxFiles))
	}
	s.sheets = append(s.sheets, sheet)
	s.columns = nil
	s.merged = nil
	return nil
}

func (s *Session) RecordFailure(name string, err error) {
	s.failures = append(s.failures, internal.FileFailure{Name: name, Error: err.Error()})
}

func (s *Session) Sheets() []internal.Sheet {
	return append([]internal.Sheet(nil), s.sheets...)
}

func (s *Session) Failures() []internal.FileFailure {
	return append([]internal.FileFailure(nil), s.failures...)
}

func (s *Session) FileNames() []string {
	out := make([]string, len(s.sheets))
	for i, sh := range s.sheets {
		out[i] = sh.Name
	}
	return out
}

func (s *Session) Reconcile() ([]internal.UnifiedColumn, error) {
	if len(s.sheets) < s.opts.MinFiles {
		return nil, rejectFile("", ErrTooFewFiles, fmt.Sprintf("have %d, need %d", len(s.sheets), s.opts.MinFiles))
	}
	s.columns = Reconcile(s.sheets)
	s.selected = SelectColumns(s.columns, len(s.sheets), SelectAuto)
	return append([]internal.UnifiedColumn(nil), s.columns...), nil
}

func (s *Session) Columns() []internal.UnifiedColumn {
	return append([]internal.UnifiedColumn(nil), s.columns...)
}

func (s *Session) Selected() []string {
	return append([]string(nil), s.selected...)
}

func (s *Session) SelectMode(mode Selection) []string {
	s.selected = SelectColumns(s.columns, len(s.sheets), mode)
	return s.Selected()
}

func (s *Session) Select(keys []string) error {
	known := map[string]bool{}
	for _, c := range s.columns {
		known[c.Key] = true
	}
	for _, k := range keys {
		if !known[k] {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, k)
		}
	}
	s.selected = append([]string(nil), keys...)
	return nil
}

func (s *Session) Merge() (internal.Table, error) {
	if s.columns == nil {
		if _, err := s.Reconcile(); err != nil {
			return internal.Table{}, err
		}
	}
	t, err := Merge(s.sheets, s.columns, s.selected)
	if err != nil {
		return internal.Table{}, err
	}
	s.merged = &t
	s.current = t.Clone()
	s.stats = internal.CleanStats{TotalBefore: len(t.Rows), Final: len(t.Rows)}
	return t.Clone(), nil
}

// Load takes a single sheet as it is, under its own headers, each typed by
// its header. It stands in for Reconcile and Merge when only one file is
// cleaned, so no column is folded into another.
func (s *Session) Load() (internal.Table, error) {
	if len(s.sheets) != 1 {
		return internal.Table{}, rejectFile("", ErrTooFewFiles, fmt.Sprintf("have %d, need exactly 1", len(s.sheets)))
	}
	t := SheetTable(s.sheets[0])
	s.columns = nil
	s.selected = t.ColumnNames()
	s.merged = &t
	s.current = t.Clone()
	s.stats = internal.CleanStats{TotalBefore: len(t.Rows), Final: len(t.Rows)}
	return t.Clone(), nil
}

// SheetTable turns a sheet into a table with one column per header.
func SheetTable(sheet internal.Sheet) internal.Table {
	cols := make([]internal.Column, len(sheet.Headers))
	for i, h := range sheet.Headers {
		cols[i] = internal.Column{Name: h, Field: ClassifyHeader(h).Field}
	}
	rows := make([]internal.Row, len(sheet.Rows))
	for i, raw := range sheet.Rows {
		row := internal.NewRow()
		for _, h := range sheet.Headers {
			row.Set(h, raw[h])
		}
		rows[i] = row
	}
	return TableFromRows(cols, rows, sheet.Name)
}

// Clean always starts from the merged rows, so it can be re-run with other
// options. The current table is replaced only on success.
func (s *Session) Clean(opts CleanOptions) (internal.Table, internal.CleanStats, error) {
	if s.merged == nil {
		return internal.Table{}, internal.CleanStats{}, ErrNotMerged
	}
	t, stats, err := Clean(*s.merged, opts)
	if err != nil {
		return s.current.Clone(), stats, err
	}
	s.current = t
	s.stats = stats
	return t.Clone(), stats, nil
}

// Apply runs a column operation against the current table.
func (s *Session) Apply(op func(internal.Table) (internal.Table, error)) error {
	if s.merged == nil {
		return ErrNotMerged
	}
	t, err := op(s.current.Clone())
	if err != nil {
		return err
	}
	s.current = t
	return nil
}

func (s *Session) Reset() error {
	if s.merged == nil {
		return ErrNotMerged
	}
	s.current = s.merged.Clone()
	s.stats = internal.CleanStats{TotalBefore: len(s.current.Rows), Final: len(s.current.Rows)}
	return nil
}

func (s *Session) Result() internal.Table {
	return s.current.Clone()
}

func (s *Session) Stats() internal.CleanStats {
	return s.stats
}

func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
