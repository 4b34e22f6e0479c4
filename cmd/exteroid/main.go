package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"exteroid/internal"
	"exteroid/internal/api"
	"exteroid/internal/config"
	"exteroid/internal/connectors"
	"exteroid/internal/listener"
	"exteroid/internal/logger"
	"exteroid/internal/metrics"
	"exteroid/internal/ocr"
	"exteroid/internal/pipeline"
	"exteroid/internal/storage"
	"exteroid/internal/util"
)

type app struct {
	cfg config.Config
	log *logger.Logger
	db  *storage.DB
}

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := logger.Init("exteroid", cfg.LogEnv)
	defer log.SafeSync()

	must(os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))
	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	a := &app{cfg: cfg, log: log, db: db}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "consolidate":
		a.consolidate(ctx, cmd, args)
	case "clean":
		a.clean(ctx, cmd, args)
	case "ocr:extract":
		a.ocrExtract(ctx, cmd, args)
	case "pdf:extract":
		a.pdfExtract(ctx, cmd, args)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(args)
		conn, err := connectors.New(ctx, *provider, cfg)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, log)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		printJSON(result)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		id := fs.Int("id", 0, "stored email id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(args)
		processor := a.processor(nil)
		if *id > 0 {
			email, err := db.GetEmailByID(*id)
			must(err)
			if email == nil {
				must(fmt.Errorf("email %d not found", *id))
			}
			res, err := processor.ProcessEmail(ctx, *email)
			must(err)
			printJSON(res)
			return
		}
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			printJSON(res)
			return
		}
		emails, rows, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		printJSON(map[string]int{"emails": emails, "rows": rows})
	case "mail:listen":
		m, err := metrics.New()
		must(err)
		s := listener.NewService(db, cfg, log, a.processor(m))
		must(s.Run(ctx))
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "number of runs")
		_ = fs.Parse(args)
		runs, err := db.ListRuns(*limit)
		must(err)
		printJSON(runs)
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(args)
		m, err := metrics.New()
		must(err)
		must(api.New(cfg, log, m, db).Serve(ctx, *addr))
	default:
		usage()
		os.Exit(1)
	}
}

// processor builds the mail processor. Image attachments are skipped when no
// OCR engine can be set up.
func (a *app) processor(m *metrics.Metrics) *pipeline.ProcessingService {
	runner, err := ocr.NewRunnerFromConfig(a.cfg, a.log)
	if err != nil {
		a.log.Warnw("ocr disabled", "error", err)
		runner = nil
	} else {
		runner.WithObserver(m.OCRObserver())
	}
	return pipeline.NewProcessingService(a.db, a.cfg, a.log, m, runner)
}

type outputFlags struct {
	out    *string
	format *string
	phone  *string
}

func addOutputFlags(fs *flag.FlagSet, cfg config.Config) outputFlags {
	return outputFlags{
		out:    fs.String("out", "", "output path (default OUTPUT_DIR/EXTEROID_CONSOLIDATED_<date>.<format>)"),
		format: fs.String("format", "xlsx", "xlsx|csv when --out is not given"),
		phone:  fs.String("phone", cfg.PhoneFormat, "plus91|digits"),
	}
}

func (o outputFlags) path(cfg config.Config) string {
	if strings.TrimSpace(*o.out) != "" {
		return *o.out
	}
	return filepath.Join(cfg.OutputDir, pipeline.DefaultExportName(time.Now(), pipeline.ExportFormat(*o.format)))
}

type runSummary struct {
	TraceID  string                 `json:"traceId"`
	Output   string                 `json:"output"`
	Columns  []string               `json:"columns"`
	Stats    internal.CleanStats    `json:"stats"`
	Failures []internal.FileFailure `json:"failures,omitempty"`
}

// finish exports rows, records the run and prints the summary.
func (a *app) finish(run internal.RunRecord, t internal.Table, out string) {
	sum, err := a.record(run, t, out)
	must(err)
	printJSON(sum)
}

// record exports rows and writes the run log entry. A failed log insert is
// only logged.
func (a *app) record(run internal.RunRecord, t internal.Table, out string) (runSummary, error) {
	if err := pipeline.ExportRows(t.Rows, out); err != nil {
		return runSummary{}, err
	}
	run.OutputPath = out
	if _, err := a.db.InsertRun(run, 0); err != nil {
		a.log.Warnw("run log insert failed", "error", err)
	}
	return runSummary{TraceID: run.TraceID, Output: out, Columns: t.ColumnNames(), Stats: run.Stats, Failures: run.Failures}, nil
}

func (a *app) runPipeline(ctx context.Context, req pipeline.Request, paths []string, out string) {
	files, err := pipeline.ReadFiles(paths)
	must(err)
	req.Files = files
	req.Source = "cli"
	res, err := pipeline.NewRunner(a.log, nil).Run(ctx, req)
	if err != nil {
		printFailures(res.Failures)
		must(err)
	}
	a.finish(internal.RunRecord{
		TraceID:  res.TraceID,
		Tool:     req.Tool,
		Source:   req.Source,
		Files:    fileNames(files),
		Stats:    res.Stats,
		Failures: res.Failures,
	}, res.Table, out)
}

type columnFlags struct {
	merge      *string
	mergeSep   *string
	mergeAs    *string
	split      *string
	splitDelim *string
	splitParts *int
	caseCol    *string
}

func addColumnFlags(fs *flag.FlagSet) columnFlags {
	return columnFlags{
		merge:      fs.String("merge", "", "comma separated columns to merge"),
		mergeSep:   fs.String("merge-sep", " ", "separator for --merge"),
		mergeAs:    fs.String("merge-as", "", "name of the merged column"),
		split:      fs.String("split", "", "column to split"),
		splitDelim: fs.String("split-delim", " ", "delimiter for --split"),
		splitParts: fs.Int("split-parts", 2, "number of parts for --split"),
		caseCol:    fs.String("case", "", "Column:upper|lower|proper"),
	}
}

func (f columnFlags) ops() pipeline.ColumnOps {
	ops := pipeline.ColumnOps{
		Merge:      splitList(*f.merge),
		MergeSep:   *f.mergeSep,
		MergeAs:    *f.mergeAs,
		Split:      strings.TrimSpace(*f.split),
		SplitDelim: *f.splitDelim,
		SplitParts: *f.splitParts,
	}
	if col, mode, ok := strings.Cut(*f.caseCol, ":"); ok {
		ops.Case, ops.CaseMode = strings.TrimSpace(col), pipeline.CaseMode(strings.TrimSpace(mode))
	} else if strings.TrimSpace(*f.caseCol) != "" {
		ops.Case = strings.TrimSpace(*f.caseCol)
	}
	return ops
}

func (a *app) consolidate(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	of := addOutputFlags(fs, a.cfg)
	sel := fs.String("select", "auto", "auto|common|all")
	columns := fs.String("columns", "", "comma separated column keys, overrides --select")
	phoneOnly := fs.Bool("phone-only", false, "keep only rows with a phone number")
	dupes := fs.String("duplicates", a.cfg.DuplicatePolicy, "keep_first|keep_last|flag")
	cf := addColumnFlags(fs)
	_ = fs.Parse(args)

	opts := pipeline.ConsolidationOptions(util.PhoneFormat(*of.phone))
	opts.Duplicates = pipeline.DuplicatePolicy(*dupes)
	opts.PhoneOnly = *phoneOnly
	a.runPipeline(ctx, pipeline.Request{
		Tool:      "consolidate",
		Limits:    pipeline.ConsolidateLimits(a.cfg.MinFiles, a.cfg.MaxFiles, a.cfg.MaxFileBytes()),
		Selection: pipeline.Selection(*sel),
		Columns:   splitList(*columns),
		Clean:     opts,
		Ops:       cf.ops(),
	}, fs.Args(), of.path(a.cfg))
}

func (a *app) clean(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	of := addOutputFlags(fs, a.cfg)
	date := fs.String("date", a.cfg.DateFormat, "YYYY-MM-DD|DD/MM/YYYY")
	titleCase := fs.Bool("title-case", false, "title case name columns")
	splitNames := fs.Bool("split-names", false, "split Name into First Name / Last Name")
	stripSymbols := fs.Bool("strip-symbols", false, "strip symbols from free text columns")
	yesNo := fs.String("yes-no", "", "comma separated columns to normalize to Yes/No")
	phoneOnly := fs.Bool("phone-only", false, "keep only rows with a phone number")
	cf := addColumnFlags(fs)
	_ = fs.Parse(args)

	opts := pipeline.SmartCleanOptions(util.PhoneFormat(*of.phone), util.DateFormat(*date))
	opts.Duplicates = pipeline.DuplicatePolicy(a.cfg.DuplicatePolicy)
	opts.TitleCaseNames = *titleCase
	opts.SplitNames = *splitNames
	opts.StripSymbols = *stripSymbols
	opts.YesNoColumns = splitList(*yesNo)
	opts.PhoneOnly = *phoneOnly
	a.runPipeline(ctx, pipeline.Request{
		Tool:      "clean",
		Limits:    pipeline.SingleFileLimits(a.cfg.MaxFileBytes()),
		Selection: pipeline.SelectAll,
		Clean:     opts,
		AsIs:      true,
		Ops:       cf.ops(),
	}, fs.Args(), of.path(a.cfg))
}

func (a *app) ocrExtract(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	of := addOutputFlags(fs, a.cfg)
	strategy := fs.String("strategy", "pattern", "pattern|spatial|lines")
	fields := fs.String("fields", "", "comma separated fields for the pattern strategy")
	_ = fs.Parse(args)

	req := pipeline.OCRRequest{Phone: util.PhoneFormat(*of.phone), Tolerances: ocr.TolerancesFromConfig(a.cfg)}
	var err error
	req.Strategy, err = pipeline.ParseStrategy(*strategy)
	must(err)
	for _, name := range splitList(*fields) {
		f, ok := ocr.ParseField(name)
		if !ok {
			must(fmt.Errorf("unknown field: %s", name))
		}
		req.Fields = append(req.Fields, f)
	}

	files, err := pipeline.ReadFiles(fs.Args())
	must(err)
	if len(files) == 0 {
		must(fmt.Errorf("at least one image is required"))
	}

	runner, err := ocr.NewRunnerFromConfig(a.cfg, a.log)
	must(err)
	sum, err := a.extractImages(ctx, runner, req, files, of.path(a.cfg))
	must(err)
	printJSON(sum)
}

// extractImages recognizes every image, exports the stacked table and logs the
// run with the images that failed.
func (a *app) extractImages(ctx context.Context, runner *ocr.Runner, req pipeline.OCRRequest, files []pipeline.File, out string) (runSummary, error) {
	images := make([]ocr.Image, 0, len(files))
	for _, f := range files {
		images = append(images, ocr.Image{Name: f.Name, Data: f.Content})
	}
	traceID := pipeline.NewTraceID()
	ctx = logger.ContextWithTraceID(ctx, traceID)
	t, stats, failures, err := pipeline.RecognizeImages(ctx, runner, images, req)
	if err != nil {
		printFailures(failures)
		return runSummary{}, err
	}
	return a.record(internal.RunRecord{
		TraceID:  traceID,
		Tool:     "ocr:" + string(req.Strategy),
		Source:   "cli",
		Files:    fileNames(files),
		Stats:    stats,
		Failures: failures,
	}, t, out)
}

// pdfExtract reconstructs the text tables of PDF pages and consolidates them
// like spreadsheets.
func (a *app) pdfExtract(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	of := addOutputFlags(fs, a.cfg)
	_ = fs.Parse(args)

	files, err := pipeline.ReadFiles(fs.Args())
	must(err)
	if len(files) == 0 {
		must(fmt.Errorf("at least one pdf is required"))
	}

	tol := ocr.TolerancesFromConfig(a.cfg)
	var sheets []internal.Sheet
	var failures []internal.FileFailure
	for _, f := range files {
		pages, err := pipeline.PDFSheets(f.Name, f.Content, tol)
		if err != nil {
			failures = append(failures, internal.FileFailure{Name: f.Name, Error: err.Error()})
			continue
		}
		sheets = append(sheets, pages...)
	}
	if len(sheets) == 0 {
		printFailures(failures)
		must(pipeline.ErrNoRows)
	}

	session, err := pipeline.NewSession(pipeline.Options{
		MinFiles:     1,
		MaxFiles:     len(sheets),
		MaxFileBytes: a.cfg.MaxFileBytes(),
		Extensions:   pipeline.DocumentExtensions,
	})
	must(err)
	for _, sh := range sheets {
		must(session.AddSheet(sh))
	}
	for _, f := range failures {
		session.RecordFailure(f.Name, errors.New(f.Error))
	}
	_, err = session.Merge()
	must(err)
	opts := pipeline.ConsolidationOptions(util.PhoneFormat(*of.phone))
	opts.Duplicates = pipeline.DuplicatePolicy(a.cfg.DuplicatePolicy)
	t, stats, err := session.Clean(opts)
	must(err)

	traceID := pipeline.NewTraceID()
	a.log.InfowCtx(logger.ContextWithTraceID(ctx, traceID), "pdf extracted", "files", len(files), "pages", len(sheets), "rows", len(t.Rows))
	a.finish(internal.RunRecord{
		TraceID:  traceID,
		Tool:     "pdf",
		Source:   "cli",
		Files:    session.FileNames(),
		Stats:    stats,
		Failures: session.Failures(),
	}, t, of.path(a.cfg))
}

func fileNames(files []pipeline.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
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

func printFailures(failures []internal.FileFailure) {
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "failed: %s: %s\n", f.Name, f.Error)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: exteroid <command>")
	fmt.Println("commands:")
	fmt.Println("  consolidate [--select=auto|common|all] [--columns=name,phone] [--phone-only] [--out=...] a.xlsx b.csv ...")
	fmt.Println("  clean [--date=YYYY-MM-DD] [--title-case] [--split-names] [--out=...] file.xlsx")
	fmt.Println("    consolidate and clean also take --merge=A,B --merge-as=C --split=Col --split-parts=N --case=Col:upper")
	fmt.Println("  ocr:extract --strategy=pattern|spatial|lines [--fields=name,mobile] [--out=...] image.png ...")
	fmt.Println("  pdf:extract [--out=...] file.pdf ...")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...|--id=N] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  runs:list [--limit=20]")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
