package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableTokens = `[
	{"text":"Name","x":10,"y":10,"width":40,"height":12,"confidence":95},
	{"text":"Mobile","x":200,"y":10,"width":60,"height":12,"confidence":95},
	{"text":"ravi","x":12,"y":60,"width":30,"height":12,"confidence":90},
	{"text":"9876543210","x":198,"y":60,"width":80,"height":12,"confidence":90},
	{"text":"asha","x":10,"y":100,"width":35,"height":12,"confidence":90},
	{"text":"9123456789","x":198,"y":100,"width":80,"height":12,"confidence":90}
]`

type ocrOut struct {
	Strategy   string              `json:"strategy"`
	Columns    []string            `json:"columns"`
	Rows       []map[string]string `json:"rows"`
	Tolerances struct {
		Row    float64 `json:"row"`
		Column float64 `json:"column"`
	} `json:"tolerances"`
}

func postOCR(t *testing.T, s *Server, path, body string) (*httptest.ResponseRecorder, ocrOut) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := do(s, req)
	var out ocrOut
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestReconstructSpatial(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := postOCR(t, s, "/v1/ocr/reconstruct", `{"strategy":"spatial","phone":"digits","tokens":`+tableTokens+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "spatial", out.Strategy)
	assert.Equal(t, []string{"Name", "Mobile"}, out.Columns)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "9876543210", out.Rows[0]["Mobile"])
	assert.Equal(t, 20.0, out.Tolerances.Column)
}

func TestReconstructLinesFromText(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := postOCR(t, s, "/v1/ocr/reconstruct", `{"strategy":"lines","text":"Ravi 9876543210\nAsha - 91234 56789"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"S.No", "Name", "Phone Number"}, out.Columns)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "+919123456789", out.Rows[1]["Phone Number"])
}

func TestReanalyzeWidens(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := postOCR(t, s, "/v1/ocr/reanalyze", `{"tolerances":{"row":10,"column":20},"tokens":`+tableTokens+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "spatial", out.Strategy)
	assert.InDelta(t, 26.0, out.Tolerances.Column, 1e-9)
	assert.InDelta(t, 12.0, out.Tolerances.Row, 1e-9)
}

func TestReconstructRejections(t *testing.T) {
	s, _ := newTestServer(t)
	cases := map[string]string{
		"bad json":       `{`,
		"no tokens":      `{"strategy":"spatial"}`,
		"bad strategy":   `{"strategy":"magic","tokens":` + tableTokens + `}`,
		"unknown field":  `{"fields":["shoe"],"tokens":` + tableTokens + `}`,
		"bad phone mode": `{"phone":"e164","tokens":` + tableTokens + `}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := postOCR(t, s, "/v1/ocr/reconstruct", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec, _ := postOCR(t, s, "/v1/ocr/reconstruct", `{"strategy":"lines","text":"no numbers"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
