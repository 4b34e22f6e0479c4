package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exteroid/internal"
	"exteroid/internal/config"
	"exteroid/internal/logger"
	"exteroid/internal/ocr"
	"exteroid/internal/pipeline"
	"exteroid/internal/storage"
	"exteroid/internal/util"
)

type fakeEngine map[string]internal.Recognition

func (e fakeEngine) Acquire(context.Context) (ocr.Worker, error) { return fakeWorker(e), nil }

type fakeWorker fakeEngine

func (w fakeWorker) Recognize(_ context.Context, image []byte) (internal.Recognition, error) {
	if rec, ok := w[string(image)]; ok {
		return rec, nil
	}
	return internal.Recognition{}, errors.New("unreadable image")
}

func (w fakeWorker) Release() error { return nil }

func token(text string, x, y, w float64) internal.TextToken {
	return internal.TextToken{Text: text, X: x, Y: y, Width: w, Height: 12, Confidence: 90}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &app{cfg: config.Config{}, log: logger.Nop(), db: db}
}

func TestExtractImagesRecordsFailures(t *testing.T) {
	a := newTestApp(t)
	engine := fakeEngine{"good": {Tokens: []internal.TextToken{
		token("Name", 10, 10, 40), token("Mobile", 200, 10, 60),
		token("ravi", 12, 60, 30), token("9876543210", 198, 60, 80),
	}}}
	out := filepath.Join(t.TempDir(), "contacts.csv")

	sum, err := a.extractImages(context.Background(), ocr.NewRunner(engine, 0, nil), pipeline.OCRRequest{
		Strategy:   pipeline.StrategySpatial,
		Tolerances: ocr.DefaultTolerances(),
		Phone:      util.PhoneDigits,
	}, []pipeline.File{
		{Name: "good.png", Content: []byte("good")},
		{Name: "bad.png", Content: []byte("bad")},
	}, out)
	require.NoError(t, err)

	blob, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(blob), "9876543210")

	assert.Equal(t, out, sum.Output)
	assert.NotEmpty(t, sum.TraceID)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "bad.png", sum.Failures[0].Name)

	runs, err := a.db.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ocr:spatial", runs[0].Tool)
	assert.Equal(t, sum.TraceID, runs[0].TraceID)
	assert.Equal(t, []string{"good.png", "bad.png"}, runs[0].Files)
	require.Len(t, runs[0].Failures, 1)
	assert.Equal(t, "bad.png", runs[0].Failures[0].Name)
	assert.Equal(t, out, runs[0].OutputPath)
}

func TestExtractImagesNoRows(t *testing.T) {
	a := newTestApp(t)
	out := filepath.Join(t.TempDir(), "contacts.csv")

	_, err := a.extractImages(context.Background(), ocr.NewRunner(fakeEngine{}, 0, nil), pipeline.OCRRequest{
		Strategy: pipeline.StrategyLines,
		Phone:    util.PhoneDigits,
	}, []pipeline.File{{Name: "bad.png", Content: []byte("bad")}}, out)
	assert.ErrorIs(t, err, pipeline.ErrNoRows)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
