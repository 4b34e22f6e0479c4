package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"exteroid/internal"
	"exteroid/internal/ocr"
)

const namespace = "exteroid"

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	runs         *prometheus.CounterVec
	rowsIn       *prometheus.CounterVec
	rowsOut      *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	emptyRemoved *prometheus.CounterVec
	fileFailures *prometheus.CounterVec
	ocrDuration  *prometheus.HistogramVec
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	m := &Metrics{
		Registry:     reg,
		runs:         counter("runs_total", "Pipeline runs by tool and outcome", "tool", "outcome"),
		rowsIn:       counter("rows_in_total", "Rows entering cleaning", "tool"),
		rowsOut:      counter("rows_out_total", "Rows left after cleaning", "tool"),
		duplicates:   counter("duplicates_removed_total", "Duplicate rows removed", "tool"),
		emptyRemoved: counter("empty_rows_removed_total", "Empty rows removed", "tool"),
		fileFailures: counter("file_failures_total", "Input files that failed to parse or recognize", "tool"),
		ocrDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_image_duration_seconds",
			Help:      "Time spent recognizing one image",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.runs, m.rowsIn, m.rowsOut, m.duplicates, m.emptyRemoved, m.fileFailures, m.ocrDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRun records a finished run. stats may be zero when the run failed
// before cleaning.
func (m *Metrics) ObserveRun(tool string, stats internal.CleanStats, failures int, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(tool, outcome(err)).Inc()
	m.rowsIn.WithLabelValues(tool).Add(float64(stats.TotalBefore))
	m.rowsOut.WithLabelValues(tool).Add(float64(stats.Final))
	m.duplicates.WithLabelValues(tool).Add(float64(stats.DuplicatesRemoved))
	m.emptyRemoved.WithLabelValues(tool).Add(float64(stats.EmptyRemoved))
	m.fileFailures.WithLabelValues(tool).Add(float64(failures))
}

// OCRObserver feeds the image duration histogram from an ocr.Runner.
func (m *Metrics) OCRObserver() ocr.Observer {
	return func(_ string, d time.Duration, err error) {
		if m == nil {
			return
		}
		m.ocrDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
	}
}
