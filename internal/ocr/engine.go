package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"exteroid/internal"
	"exteroid/internal/config"
	"exteroid/internal/logger"
)

var ErrTimeout = errors.New("ocr recognition timed out")

// Engine hands out workers. Each worker serves a single image and must be
// released afterwards.
type Engine interface {
	Acquire(ctx context.Context) (Worker, error)
}

type Worker interface {
	Recognize(ctx context.Context, image []byte) (internal.Recognition, error)
	Release() error
}

// NewEngine picks the engine named by OCR_ENGINE.
func NewEngine(cfg config.Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.OCREngine)) {
	case "", "tesseract":
		return NewTesseractEngine(cfg.OCRTesseractBin, cfg.OCRLang), nil
	case "http":
		if err := cfg.Require("OCR_API_TOKEN", cfg.OCRAPIToken); err != nil {
			return nil, err
		}
		return NewHTTPEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported ocr engine: %s", cfg.OCREngine)
	}
}

// NewRunnerFromConfig builds the engine and wraps it with the configured
// per-image timeout.
func NewRunnerFromConfig(cfg config.Config, log *logger.Logger) (*Runner, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return NewRunner(engine, time.Duration(cfg.OCRTimeoutMs)*time.Millisecond, log), nil
}

type Image struct {
	Name string
	Data []byte
}

type PageResult struct {
	Name        string
	Recognition internal.Recognition
	Tokens      []internal.TextToken
	Duration    time.Duration
}

// Observer is told about every image, successful or not.
type Observer func(name string, d time.Duration, err error)

type Runner struct {
	engine   Engine
	timeout  time.Duration
	log      *logger.Logger
	observer Observer
}

func NewRunner(engine Engine, timeout time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{engine: engine, timeout: timeout, log: log}
}

func (r *Runner) WithObserver(o Observer) *Runner {
	r.observer = o
	return r
}

// Recognize runs one image through a freshly acquired worker. The worker is
// released even when recognition fails.
func (r *Runner) Recognize(ctx context.Context, img Image) (PageResult, error) {
	start := time.Now()
	res, err := r.recognize(ctx, img)
	res.Duration = time.Since(start)
	if r.observer != nil {
		r.observer(img.Name, res.Duration, err)
	}
	return res, err
}

func (r *Runner) recognize(ctx context.Context, img Image) (PageResult, error) {
	res := PageResult{Name: img.Name}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	w, err := r.engine.Acquire(ctx)
	if err != nil {
		return res, fmt.Errorf("acquire ocr worker: %w", timeoutErr(ctx, err))
	}
	defer func() {
		if err := w.Release(); err != nil {
			r.log.Warnw("ocr worker release failed", "image", img.Name, "error", err)
		}
	}()

	rec, err := w.Recognize(ctx, img.Data)
	if err != nil {
		return res, fmt.Errorf("recognize %s: %w", img.Name, timeoutErr(ctx, err))
	}
	res.Recognition = rec
	res.Tokens = CleanTokens(rec.Tokens)
	return res, nil
}

func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// RecognizeAll processes images one after another. A failing image is
// reported and skipped; the rest of the batch still runs.
func (r *Runner) RecognizeAll(ctx context.Context, images []Image) ([]PageResult, []internal.FileFailure) {
	var results []PageResult
	var failures []internal.FileFailure
	for _, img := range images {
		if ctx.Err() != nil {
			failures = append(failures, internal.FileFailure{Name: img.Name, Error: ctx.Err().Error()})
			continue
		}
		res, err := r.Recognize(ctx, img)
		if err != nil {
			r.log.WarnwCtx(ctx, "ocr image failed", "image", img.Name, "error", err)
			failures = append(failures, internal.FileFailure{Name: img.Name, Error: err.Error()})
			continue
		}
		r.log.DebugwCtx(ctx, "ocr image done", "image", img.Name, "tokens", len(res.Tokens), "ms", res.Duration.Milliseconds())
		results = append(results, res)
	}
	return results, failures
}
