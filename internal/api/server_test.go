package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exteroid/internal"
	"exteroid/internal/config"
	"exteroid/internal/metrics"
	"exteroid/internal/storage"
)

const (
	csvA = "Name,Mobile\nRavi,9876543210\nAsha,9123456789\n"
	csvB = "Full Name,Phone,Email\nRavi K,+91 98765 43210,r@x.com\n"
)

func testConfig() config.Config {
	return config.Config{
		PhoneFormat:        "plus91",
		DateFormat:         "YYYY-MM-DD",
		DuplicatePolicy:    "keep_first",
		MinFiles:           2,
		MaxFiles:           5,
		MaxFileMB:          1,
		OCRRowTolerance:    15,
		OCRColumnTolerance: 20,
		OCRHeaderBand:      30,
	}
}

func newTestServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	m, err := metrics.New()
	require.NoError(t, err)
	return New(testConfig(), nil, m, db), db
}

func multipartBody(t *testing.T, field string, files map[string]string, order ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))

	rec = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestConsolidateCSV(t *testing.T) {
	s, db := newTestServer(t)
	body, ct := multipartBody(t, "files", map[string]string{"a.csv": csvA, "b.csv": csvB}, "a.csv", "b.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/consolidate?format=csv", body)
	req.Header.Set("Content-Type", ct)

	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Name,Phone\nRavi,+919876543210\nAsha,+919123456789\n", rec.Body.String())
	assert.Equal(t, "3", rec.Header().Get("X-Rows-Before"))
	assert.Equal(t, "1", rec.Header().Get("X-Duplicates-Removed"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "EXTEROID_CONSOLIDATED_")

	runs, err := db.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "consolidate", runs[0].Tool)
	assert.Equal(t, []string{"a.csv", "b.csv"}, runs[0].Files)
	assert.Equal(t, rec.Header().Get("X-Trace-Id"), runs[0].TraceID)

	metricsRec := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsRec.Body.String(), `exteroid_runs_total{outcome="ok",tool="consolidate"} 1`)
}

func TestConsolidateJSON(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "files", map[string]string{"a.csv": csvA, "b.csv": csvB}, "a.csv", "b.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/consolidate?format=json&select=all&phone=digits", body)
	req.Header.Set("Content-Type", ct)

	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Columns []string            `json:"columns"`
		Rows    []map[string]string `json:"rows"`
		Stats   internal.CleanStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []string{"Name", "Phone", "Email"}, out.Columns)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "9876543210", out.Rows[0]["Phone"])
	assert.Equal(t, 2, out.Stats.Final)
}

func TestConsolidateColumnOps(t *testing.T) {
	s, _ := newTestServer(t)
	post := func(query string) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, "files", map[string]string{"a.csv": csvA, "b.csv": csvB}, "a.csv", "b.csv")
		req := httptest.NewRequest(http.MethodPost, "/v1/consolidate?format=csv&"+query, body)
		req.Header.Set("Content-Type", ct)
		return do(s, req)
	}

	rec := post("case=Name:upper")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Name,Phone\nRAVI,+919876543210\nASHA,+919123456789\n", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, post("case=Name:shout").Code)
	assert.Equal(t, http.StatusBadRequest, post("merge=Name,Phone").Code)
	assert.Equal(t, http.StatusBadRequest, post("split=Name&split_parts=x").Code)
}

func TestConsolidateRejections(t *testing.T) {
	s, _ := newTestServer(t)

	body, ct := multipartBody(t, "files", map[string]string{"a.csv": csvA}, "a.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/consolidate", body)
	req.Header.Set("Content-Type", ct)
	rec := do(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not enough files")

	body, ct = multipartBody(t, "files", map[string]string{"a.csv": csvA, "notes.txt": "x"}, "a.csv", "notes.txt")
	req = httptest.NewRequest(http.MethodPost, "/v1/consolidate", body)
	req.Header.Set("Content-Type", ct)
	rec = do(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")

	req = httptest.NewRequest(http.MethodPost, "/v1/consolidate?phone=e164", strings.NewReader(""))
	rec = do(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanNoRows(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "file", map[string]string{"blank.csv": "Name,Phone\nNA,-\n"}, "blank.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/clean", body)
	req.Header.Set("Content-Type", ct)

	rec := do(s, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no rows to export")
}

func TestCleanXLSX(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "file", map[string]string{"leads.csv": "full_name,phone\n  ravi  ,98765-43210\n"}, "leads.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/clean?title_case=true", body)
	req.Header.Set("Content-Type", ct)

	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestListRuns(t *testing.T) {
	s, db := newTestServer(t)
	_, err := db.InsertRun(internal.RunRecord{TraceID: "t1", Tool: "clean", Source: "cli"}, 0)
	require.NoError(t, err)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []internal.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "t1", runs[0].TraceID)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bare := New(testConfig(), nil, nil, nil)
	rec = do(bare, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(bare, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
