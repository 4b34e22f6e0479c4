package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"exteroid/internal"
	"exteroid/internal/ocr"
	"exteroid/internal/util"
)

type OCRStrategy string

const (
	StrategyPattern OCRStrategy = "pattern"
	StrategySpatial OCRStrategy = "spatial"
	StrategyLines   OCRStrategy = "lines"
)

func ParseStrategy(s string) (OCRStrategy, error) {
	switch OCRStrategy(s) {
	case StrategyPattern, StrategySpatial, StrategyLines:
		return OCRStrategy(s), nil
	case "":
		return StrategyPattern, nil
	}
	return "", fmt.Errorf("unknown ocr strategy: %s", s)
}

type OCRRequest struct {
	Strategy   OCRStrategy
	Fields     []ocr.Field
	Tolerances ocr.Tolerances
	Phone      util.PhoneFormat
}

// PatternTable runs field-pattern extraction and the image cleaning passes.
func PatternTable(tokens []internal.TextToken, req OCRRequest, source string) (internal.Table, internal.CleanStats, error) {
	return cleanOCR(patternRaw(tokens, req, source), req)
}

func patternRaw(tokens []internal.TextToken, req OCRRequest, source string) internal.Table {
	res := ocr.PatternScan(tokens, req.Fields, req.Tolerances.Row)
	return TableFromRows(res.Columns, res.All(), source)
}

// GridTable types a reconstructed grid's columns from their headers so the
// usual cleaning passes apply.
func GridTable(grid ocr.Grid, source string) internal.Table {
	cols := make([]internal.Column, len(grid.Columns))
	for i, c := range grid.Columns {
		cols[i] = internal.Column{Name: c.Name, Field: ClassifyHeader(c.Name).Field}
	}
	return TableFromRows(cols, grid.Rows, source)
}

// SpatialTable reconstructs a grid and cleans it like a merged spreadsheet.
func SpatialTable(tokens []internal.TextToken, req OCRRequest, source string) (internal.Table, internal.CleanStats, error) {
	req.Strategy = StrategySpatial
	return cleanOCR(GridTable(ocr.Reconstruct(tokens, req.Tolerances), source), req)
}

// LinesTable reads one contact per text line.
func LinesTable(text string, req OCRRequest, source string) (internal.Table, internal.CleanStats, error) {
	req.Strategy = StrategyLines
	return cleanOCR(linesRaw(text, req, source), req)
}

func linesRaw(text string, req OCRRequest, source string) internal.Table {
	return TableFromRows(ocr.LineColumns, ocr.LineRows(ocr.LineScan(text), req.Phone), source)
}

// LinesOptions only drops repeated numbers; line rows are already formatted.
func LinesOptions(phone util.PhoneFormat) CleanOptions {
	return CleanOptions{
		PhoneFormat:      phone,
		DateFormat:       util.DateISO,
		Duplicates:       KeepFirst,
		RemoveDuplicates: true,
	}
}

// rawOCRTable builds the uncleaned table for one page.
func rawOCRTable(page ocr.PageResult, req OCRRequest) internal.Table {
	switch req.Strategy {
	case StrategySpatial:
		return GridTable(ocr.Reconstruct(page.Tokens, req.Tolerances), page.Name)
	case StrategyLines:
		return linesRaw(page.Recognition.Text, req, page.Name)
	default:
		return patternRaw(page.Tokens, req, page.Name)
	}
}

// cleanOCR applies the cleaning passes of the request's strategy.
func cleanOCR(t internal.Table, req OCRRequest) (internal.Table, internal.CleanStats, error) {
	switch req.Strategy {
	case StrategySpatial:
		return Clean(t, ConsolidationOptions(req.Phone))
	case StrategyLines:
		out, stats, err := Clean(t, LinesOptions(req.Phone))
		for i := range out.Rows {
			out.Rows[i].Set("S.No", strconv.Itoa(i+1))
		}
		return out, stats, err
	default:
		return Clean(t, OCROptions(req.Phone))
	}
}

// OCRTable builds a table from one page with the requested strategy.
func OCRTable(page ocr.PageResult, req OCRRequest) (internal.Table, internal.CleanStats, error) {
	return cleanOCR(rawOCRTable(page, req), req)
}

// RecognizeImages runs every image through the OCR runner, stacks the raw
// per-image tables and cleans them together, so a contact repeated across
// images is kept once. Images that fail or yield no rows are reported.
func RecognizeImages(ctx context.Context, runner *ocr.Runner, images []ocr.Image, req OCRRequest) (internal.Table, internal.CleanStats, []internal.FileFailure, error) {
	pages, failures := runner.RecognizeAll(ctx, images)

	var stacked internal.Table
	for _, page := range pages {
		t := rawOCRTable(page, req)
		if rows, _ := RemoveEmptyRows(t.Rows); len(rows) == 0 {
			failures = append(failures, internal.FileFailure{Name: page.Name, Error: ErrNoRows.Error()})
			continue
		}
		stacked = appendTable(stacked, t)
	}
	if len(stacked.Rows) == 0 {
		return stacked, internal.CleanStats{}, failures, ErrNoRows
	}
	out, stats, err := cleanOCR(stacked, req)
	return out, stats, failures, err
}

// appendTable stacks b under a, adding any of b's columns that a lacks.
func appendTable(a, b internal.Table) internal.Table {
	for _, c := range b.Columns {
		if !a.HasColumn(c.Name) {
			a.Columns = append(a.Columns, c)
			for i := range a.Rows {
				a.Rows[i].Set(c.Name, "")
			}
		}
	}
	for _, row := range b.Rows {
		r := internal.NewRow()
		for _, c := range a.Columns {
			r.Set(c.Name, row.Get(c.Name))
		}
		for _, k := range row.Keys() {
			if internal.IsInternalKey(k) {
				r.Set(k, row.Get(k))
			}
		}
		a.Rows = append(a.Rows, r)
	}
	return a
}

// PDFSheets reconstructs each text page of a PDF as a sheet.
func PDFSheets(name string, content []byte, tol ocr.Tolerances) ([]internal.Sheet, error) {
	pages, err := ocr.PDFTokens(content)
	if err != nil {
		return nil, err
	}
	var sheets []internal.Sheet
	for i, tokens := range pages {
		grid := ocr.Reconstruct(tokens, tol)
		if len(grid.Rows) == 0 {
			continue
		}
		sheetName := name
		if len(pages) > 1 {
			sheetName = name + "#p" + strconv.Itoa(i+1)
		}
		sheets = append(sheets, SheetFromRows(sheetName, internal.SourcePDF, grid.ColumnNames(), grid.Rows))
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no text table in %s", ErrEmptyFile, name)
	}
	return sheets, nil
}
