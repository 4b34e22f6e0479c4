package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exteroid/internal"
)

func gatheredNames(t *testing.T, m *Metrics) map[string]bool {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestObserveRun(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveRun("consolidate", internal.CleanStats{TotalBefore: 5, Final: 3, DuplicatesRemoved: 2}, 1, nil)
	m.ObserveRun("clean", internal.CleanStats{}, 0, errors.New("boom"))
	m.OCRObserver()("a.png", 1500*time.Millisecond, nil)

	names := gatheredNames(t, m)
	assert.True(t, names["exteroid_runs_total"])
	assert.True(t, names["exteroid_rows_in_total"])
	assert.True(t, names["exteroid_duplicates_removed_total"])
	assert.True(t, names["exteroid_ocr_image_duration_seconds"])
	assert.True(t, names["go_goroutines"])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("clean", internal.CleanStats{Final: 1}, 0, nil)
		m.OCRObserver()("x", time.Second, nil)
	})
}
