package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"exteroid/internal"
	"exteroid/internal/util"
)

const blankHeader = "__EMPTY"

// ReadSheet parses a spreadsheet, csv or html upload. Only the first sheet or
// table is read and the first non-empty row holds the headers.
func ReadSheet(name string, content []byte) (internal.Sheet, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls":
		rows, err = readWorkbook(content)
	case ".csv":
		rows, err = readCSV(content)
	case ".html", ".htm":
		tables := ReadHTMLTables(name, string(content))
		if len(tables) == 0 {
			return internal.Sheet{}, fmt.Errorf("%w: no table found", ErrEmptyFile)
		}
		return tables[0], nil
	default:
		return internal.Sheet{}, ErrUnsupportedFile
	}
	if err != nil {
		return internal.Sheet{}, err
	}
	return BuildSheet(name, internal.SourceUpload, rows)
}

func readWorkbook(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	return f.GetRows(sheets[0])
}

func readCSV(content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// BuildSheet turns a header row plus data rows into a Sheet. Blank data rows
// are skipped and short rows are padded with "".
func BuildSheet(name string, source internal.SheetSource, rows [][]string) (internal.Sheet, error) {
	start := -1
	for i, row := range rows {
		if !blankCells(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return internal.Sheet{}, ErrEmptyFile
	}

	headers := UniqueHeaders(rows[start])
	sheet := internal.Sheet{Name: name, Source: source, Headers: headers}
	for _, cells := range rows[start+1:] {
		if blankCells(cells) {
			continue
		}
		raw := make(internal.RawRow, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				raw[h] = cells[i]
			} else {
				raw[h] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, raw)
	}
	return sheet, nil
}

// UniqueHeaders trims headers, names blank ones __EMPTY, __EMPTY_1, ... and
// suffixes repeats with _1, _2.
func UniqueHeaders(raw []string) []string {
	used := map[string]bool{}
	counts := map[string]int{}
	out := make([]string, len(raw))
	for i, h := range raw {
		base := strings.TrimSpace(h)
		if base == "" {
			base = blankHeader
		}
		name := base
		for used[name] {
			counts[base]++
			name = base + "_" + strconv.Itoa(counts[base])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func blankCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ReadHTMLTables returns one sheet per table with a header row and data.
func ReadHTMLTables(name, html string) []internal.Sheet {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.Sheet{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		trs := table.Find("tr")
		if trs.Length() < 2 {
			return
		}
		rows := [][]string{}
		trs.Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.CollapseSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		sheetName := name
		if i > 0 {
			sheetName = fmt.Sprintf("%s#%d", name, i+1)
		}
		sheet, err := BuildSheet(sheetName, internal.SourceMailHTMLTable, rows)
		if err != nil || len(sheet.Rows) == 0 {
			return
		}
		out = append(out, sheet)
	})
	return out
}

// SheetFromRows wraps reconstructed rows as a sheet so they can be merged
// with spreadsheet input.
func SheetFromRows(name string, source internal.SheetSource, columns []string, rows []internal.Row) internal.Sheet {
	sheet := internal.Sheet{Name: name, Source: source, Headers: append([]string(nil), columns...)}
	for _, r := range rows {
		raw := make(internal.RawRow, len(columns))
		for _, c := range columns {
			raw[c] = r.Get(c)
		}
		sheet.Rows = append(sheet.Rows, raw)
	}
	return sheet
}

// TableFromRows builds a working table with explicit column types.
func TableFromRows(columns []internal.Column, rows []internal.Row, source string) internal.Table {
	t := internal.Table{Columns: append([]internal.Column(nil), columns...)}
	for _, r := range rows {
		row := internal.NewRow()
		for _, c := range columns {
			row.Set(c.Name, r.Get(c.Name))
		}
		if source != "" {
			row.Set(internal.KeySource, source)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
