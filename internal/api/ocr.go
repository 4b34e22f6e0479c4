package api

import (
	"encoding/json"
	"net/http"

	"exteroid/internal"
	"exteroid/internal/logger"
	"exteroid/internal/ocr"
	"exteroid/internal/pipeline"
)

const maxOCRBody = 8 << 20

type ocrRequest struct {
	Strategy   string               `json:"strategy" validate:"omitempty,oneof=pattern spatial lines"`
	Fields     []string             `json:"fields"`
	Phone      string               `json:"phone" validate:"omitempty,oneof=plus91 digits"`
	Tolerances ocr.Tolerances       `json:"tolerances"`
	Tokens     []internal.TextToken `json:"tokens" validate:"required_without=Text"`
	Text       string               `json:"text"`
	Source     string               `json:"source"`
}

type ocrResponse struct {
	TraceID    string              `json:"traceId"`
	Strategy   string              `json:"strategy"`
	Columns    []string            `json:"columns"`
	Rows       []internal.Row      `json:"rows"`
	Stats      internal.CleanStats `json:"stats"`
	Tolerances ocr.Tolerances      `json:"tolerances"`
}

func (s *Server) decodeOCR(w http.ResponseWriter, r *http.Request) (ocrRequest, pipeline.OCRRequest, error) {
	var body ocrRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOCRBody))
	if err := dec.Decode(&body); err != nil {
		return body, pipeline.OCRRequest{}, badRequest("invalid json body: %v", err)
	}
	if err := s.validate.Struct(body); err != nil {
		return body, pipeline.OCRRequest{}, err
	}

	strategy, err := pipeline.ParseStrategy(body.Strategy)
	if err != nil {
		return body, pipeline.OCRRequest{}, badRequest("%v", err)
	}
	phone, err := s.phoneFormat(body.Phone)
	if err != nil {
		return body, pipeline.OCRRequest{}, err
	}
	req := pipeline.OCRRequest{Strategy: strategy, Phone: phone, Tolerances: s.tolerances(body.Tolerances)}
	for _, name := range body.Fields {
		f, ok := ocr.ParseField(name)
		if !ok {
			return body, pipeline.OCRRequest{}, badRequest("unknown field: %s", name)
		}
		req.Fields = append(req.Fields, f)
	}
	if body.Source == "" {
		body.Source = "upload"
	}
	return body, req, nil
}

// tolerances fills unset request tolerances from configuration.
func (s *Server) tolerances(t ocr.Tolerances) ocr.Tolerances {
	base := ocr.TolerancesFromConfig(s.cfg)
	if t.Row > 0 {
		base.Row = t.Row
	}
	if t.Column > 0 {
		base.Column = t.Column
	}
	if t.HeaderBand > 0 {
		base.HeaderBand = t.HeaderBand
	}
	return base
}

func (s *Server) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	body, req, err := s.decodeOCR(w, r)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	var t internal.Table
	var stats internal.CleanStats
	switch req.Strategy {
	case pipeline.StrategyLines:
		text := body.Text
		if text == "" {
			text = ocr.PDFText([][]internal.TextToken{body.Tokens}, req.Tolerances.Row)
		}
		t, stats, err = pipeline.LinesTable(text, req, body.Source)
	default:
		t, stats, err = pipeline.OCRTable(ocr.PageResult{Name: body.Source, Tokens: ocr.CleanTokens(body.Tokens)}, req)
	}
	s.respondOCR(w, r, req, t, stats, err)
}

// handleReanalyze rebuilds a spatial grid with tolerances widened from the
// ones the client last used.
func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	body, req, err := s.decodeOCR(w, r)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	req.Strategy = pipeline.StrategySpatial
	req.Tolerances = req.Tolerances.Widen()
	t, stats, err := pipeline.SpatialTable(ocr.CleanTokens(body.Tokens), req, body.Source)
	s.respondOCR(w, r, req, t, stats, err)
}

func (s *Server) respondOCR(w http.ResponseWriter, r *http.Request, req pipeline.OCRRequest, t internal.Table, stats internal.CleanStats, err error) {
	tool := "ocr:" + string(req.Strategy)
	s.metrics.ObserveRun(tool, stats, 0, err)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	traceID := logger.TraceID(r.Context())
	s.recordRun(r.Context(), internal.RunRecord{TraceID: traceID, Tool: tool, Source: "http", Stats: stats})
	writeJSON(w, http.StatusOK, ocrResponse{
		TraceID:    traceID,
		Strategy:   string(req.Strategy),
		Columns:    t.ColumnNames(),
		Rows:       t.Rows,
		Stats:      stats,
		Tolerances: req.Tolerances,
	})
}
