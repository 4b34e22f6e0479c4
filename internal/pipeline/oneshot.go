package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"exteroid/internal"
	"exteroid/internal/logger"
	"exteroid/internal/metrics"
)

type File struct {
	Name    string
	Content []byte
}

// ReadFiles loads files from disk keeping only their base names.
func ReadFiles(paths []string) ([]File, error) {
	out := make([]File, 0, len(paths))
	for _, p := range paths {
		blob, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, File{Name: filepath.Base(p), Content: blob})
	}
	return out, nil
}

type Request struct {
	Tool      string
	Source    string
	Files     []File
	Limits    Options
	Selection Selection
	// Columns overrides Selection with explicit unified column keys.
	Columns []string
	Clean   CleanOptions
	Ops     ColumnOps
	// AsIs cleans a single file under its own headers instead of
	// reconciling and merging columns.
	AsIs bool
}

type Result struct {
	TraceID  string
	Columns  []internal.UnifiedColumn
	Selected []string
	Table    internal.Table
	Stats    internal.CleanStats
	Failures []internal.FileFailure
}

func NewTraceID() string {
	return uuid.NewString()
}

// Runner drives one-shot consolidate and clean runs for the CLI and the API.
type Runner struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewRunner(log *logger.Logger, m *metrics.Metrics) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{log: log, metrics: m}
}

// Run parses the request files, reconciles and merges their columns and
// applies the cleaning passes. Input rejections abort the run; files that fail
// to parse are reported in Result.Failures.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{TraceID: logger.TraceID(ctx)}
	if res.TraceID == "" {
		res.TraceID = NewTraceID()
		ctx = logger.ContextWithTraceID(ctx, res.TraceID)
	}

	res, err := r.run(ctx, req, res)
	r.metrics.ObserveRun(req.Tool, res.Stats, len(res.Failures), err)
	if err != nil {
		r.log.WarnwCtx(ctx, "run failed", "tool", req.Tool, "files", len(req.Files), "error", err)
		return res, err
	}
	r.log.InfowCtx(ctx, "run done",
		"tool", req.Tool,
		"files", len(req.Files),
		"failures", len(res.Failures),
		"rows_before", res.Stats.TotalBefore,
		"rows_after", res.Stats.Final,
		"duplicates", res.Stats.DuplicatesRemoved,
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, req Request, res Result) (Result, error) {
	session, err := NewSession(req.Limits)
	if err != nil {
		return res, err
	}
	if len(req.Files) > req.Limits.MaxFiles {
		return res, rejectFile("", ErrTooManyFiles, fmt.Sprintf("got %d, limit %d", len(req.Files), req.Limits.MaxFiles))
	}
	for _, f := range req.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := session.AddFile(f.Name, f.Content); err != nil {
			if IsInputError(err) {
				return res, err
			}
			r.log.WarnwCtx(ctx, "file skipped", "file", f.Name, "error", err)
		}
	}
	res.Failures = session.Failures()

	if req.AsIs {
		t, err := session.Load()
		if err != nil {
			return res, err
		}
		res.Selected = t.ColumnNames()
	} else if err := r.merge(session, req, &res); err != nil {
		return res, err
	}

	t, stats, err := session.Clean(req.Clean)
	res.Stats = stats
	if err != nil {
		return res, err
	}
	if !req.Ops.Empty() {
		if err := session.ApplyOps(req.Ops); err != nil {
			return res, err
		}
		t = session.Result()
	}
	res.Table = t
	return res, nil
}

func (r *Runner) merge(session *Session, req Request, res *Result) error {
	if _, err := session.Reconcile(); err != nil {
		return err
	}
	mode := req.Selection
	if mode == "" {
		mode = SelectAuto
	}
	session.SelectMode(mode)
	if len(req.Columns) > 0 {
		if err := session.Select(req.Columns); err != nil {
			return err
		}
	}
	res.Columns = session.Columns()
	res.Selected = session.Selected()
	_, err := session.Merge()
	return err
}

