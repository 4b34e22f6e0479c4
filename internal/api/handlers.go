package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"exteroid/internal"
	"exteroid/internal/logger"
	"exteroid/internal/pipeline"
	"exteroid/internal/util"
)

const (
	multipartMemory = 32 << 20
	formatJSON      = "json"
	defaultRunLimit = 20
)

type errorResponse struct {
	Error    string                 `json:"error"`
	TraceID  string                 `json:"traceId,omitempty"`
	Failures []internal.FileFailure `json:"failures,omitempty"`
}

type runResponse struct {
	TraceID  string                 `json:"traceId"`
	Columns  []string               `json:"columns"`
	Rows     []internal.Row         `json:"rows"`
	Stats    internal.CleanStats    `json:"stats"`
	Failures []internal.FileFailure `json:"failures"`
}

// requestError is a malformed request, answered with 400.
type requestError struct {
	msg string
}

func (e requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return requestError{msg: fmt.Sprintf(format, args...)}
}

func statusFor(err error) int {
	var reqErr requestError
	var valErr validator.ValidationErrors
	switch {
	case errors.Is(err, pipeline.ErrNoRows):
		return http.StatusUnprocessableEntity
	case pipeline.IsInputError(err),
		errors.As(err, &reqErr),
		errors.As(err, &valErr),
		errors.Is(err, pipeline.ErrNumericMerge),
		errors.Is(err, pipeline.ErrUnknownColumn),
		errors.Is(err, pipeline.ErrInvalidColumnOp),
		errors.Is(err, pipeline.ErrNoColumnsSelected):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, failures []internal.FileFailure) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorwCtx(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), TraceID: logger.TraceID(r.Context()), Failures: failures})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) phoneFormat(v string) (util.PhoneFormat, error) {
	if v == "" {
		v = s.cfg.PhoneFormat
	}
	switch util.PhoneFormat(v) {
	case util.PhonePlus91, util.PhoneDigits:
		return util.PhoneFormat(v), nil
	case "":
		return util.PhonePlus91, nil
	}
	return "", badRequest("unknown phone format: %s", v)
}

func (s *Server) dateFormat(v string) (util.DateFormat, error) {
	if v == "" {
		v = s.cfg.DateFormat
	}
	switch util.DateFormat(v) {
	case util.DateISO, util.DateDMY:
		return util.DateFormat(v), nil
	case "":
		return util.DateISO, nil
	}
	return "", badRequest("unknown date format: %s", v)
}

func (s *Server) duplicatePolicy(v string) pipeline.DuplicatePolicy {
	if v == "" {
		v = s.cfg.DuplicatePolicy
	}
	if v == "" {
		return pipeline.KeepFirst
	}
	return pipeline.DuplicatePolicy(v)
}

func parseFormat(v string) (string, error) {
	switch strings.ToLower(v) {
	case "", string(pipeline.FormatXLSX):
		return string(pipeline.FormatXLSX), nil
	case string(pipeline.FormatCSV), formatJSON:
		return strings.ToLower(v), nil
	}
	return "", badRequest("unknown format: %s", v)
}

func parseSelection(v string) (pipeline.Selection, error) {
	switch sel := pipeline.Selection(strings.ToLower(v)); sel {
	case "":
		return pipeline.SelectAuto, nil
	case pipeline.SelectAuto, pipeline.SelectCommon, pipeline.SelectAll:
		return sel, nil
	}
	return "", badRequest("unknown selection: %s", v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// columnOps reads merge, split and case edits. case takes "Column:mode".
func columnOps(q url.Values) (pipeline.ColumnOps, error) {
	ops := pipeline.ColumnOps{
		Merge:      splitList(q.Get("merge")),
		MergeSep:   q.Get("merge_sep"),
		MergeAs:    strings.TrimSpace(q.Get("merge_as")),
		Split:      strings.TrimSpace(q.Get("split")),
		SplitDelim: q.Get("split_delim"),
	}
	if v := q.Get("split_parts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ops, badRequest("invalid split_parts: %s", v)
		}
		ops.SplitParts = n
	}
	if v := strings.TrimSpace(q.Get("case")); v != "" {
		col, mode, _ := strings.Cut(v, ":")
		ops.Case, ops.CaseMode = strings.TrimSpace(col), pipeline.CaseMode(strings.TrimSpace(mode))
	}
	return ops, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// readUploads reads every multipart file under the given field names. Each is
// cut one byte past the size limit so the session rejects it as too large.
func (s *Server) readUploads(r *http.Request, fields ...string) ([]pipeline.File, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, badRequest("invalid multipart form: %v", err)
	}
	limit := s.cfg.MaxFileBytes() + 1
	var out []pipeline.File
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			content, err := io.ReadAll(io.LimitReader(f, limit))
			_ = f.Close()
			if err != nil {
				return nil, err
			}
			out = append(out, pipeline.File{Name: fh.Filename, Content: content})
		}
	}
	return out, nil
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	phone, err := s.phoneFormat(q.Get("phone"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	format, err := parseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	sel, err := parseSelection(q.Get("select"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	files, err := s.readUploads(r, "files")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	ops, err := columnOps(q)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	opts := pipeline.ConsolidationOptions(phone)
	opts.Duplicates = s.duplicatePolicy(q.Get("duplicates"))
	opts.PhoneOnly = queryBool(r, "phone_only")
	s.respondRun(w, r, pipeline.Request{
		Tool:      "consolidate",
		Source:    "http",
		Files:     files,
		Limits:    pipeline.ConsolidateLimits(s.cfg.MinFiles, s.cfg.MaxFiles, s.cfg.MaxFileBytes()),
		Selection: sel,
		Columns:   splitList(q.Get("columns")),
		Clean:     opts,
		Ops:       ops,
	}, format)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	phone, err := s.phoneFormat(q.Get("phone"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	date, err := s.dateFormat(q.Get("date"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	format, err := parseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	files, err := s.readUploads(r, "file", "files")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	ops, err := columnOps(q)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	opts := pipeline.SmartCleanOptions(phone, date)
	opts.Duplicates = s.duplicatePolicy(q.Get("duplicates"))
	opts.TitleCaseNames = queryBool(r, "title_case")
	opts.SplitNames = queryBool(r, "split_names")
	opts.StripSymbols = queryBool(r, "strip_symbols")
	opts.PhoneOnly = queryBool(r, "phone_only")
	s.respondRun(w, r, pipeline.Request{
		Tool:      "clean",
		Source:    "http",
		Files:     files,
		Limits:    pipeline.SingleFileLimits(s.cfg.MaxFileBytes()),
		Selection: pipeline.SelectAll,
		Clean:     opts,
		AsIs:      true,
		Ops:       ops,
	}, format)
}

func (s *Server) respondRun(w http.ResponseWriter, r *http.Request, req pipeline.Request, format string) {
	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, res.Failures)
		return
	}
	s.recordRun(r.Context(), internal.RunRecord{
		TraceID:  res.TraceID,
		Tool:     req.Tool,
		Source:   req.Source,
		Files:    fileNames(req.Files),
		Stats:    res.Stats,
		Failures: res.Failures,
	})

	if format == formatJSON {
		writeJSON(w, http.StatusOK, runResponse{
			TraceID:  res.TraceID,
			Columns:  res.Table.ColumnNames(),
			Rows:     res.Table.Rows,
			Stats:    res.Stats,
			Failures: res.Failures,
		})
		return
	}

	var buf bytes.Buffer
	exportFormat := pipeline.ExportFormat(format)
	if err := pipeline.Write(&buf, res.Table.Rows, exportFormat); err != nil {
		s.writeError(w, r, err, res.Failures)
		return
	}
	contentType := "text/csv; charset=utf-8"
	if exportFormat == pipeline.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pipeline.DefaultExportName(time.Now(), exportFormat)))
	h.Set("X-Rows-Before", strconv.Itoa(res.Stats.TotalBefore))
	h.Set("X-Rows-After", strconv.Itoa(res.Stats.Final))
	h.Set("X-Duplicates-Removed", strconv.Itoa(res.Stats.DuplicatesRemoved))
	h.Set("X-File-Failures", strconv.Itoa(len(res.Failures)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) recordRun(ctx context.Context, run internal.RunRecord) {
	if s.db == nil {
		return
	}
	if _, err := s.db.InsertRun(run, 0); err != nil {
		s.log.WarnwCtx(ctx, "run log insert failed", "error", err)
	}
}

func fileNames(files []pipeline.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run log not configured"})
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, badRequest("invalid limit: %s", v), nil)
			return
		}
		limit = n
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if runs == nil {
		runs = []internal.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}
