package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"exteroid/internal"
)

const (
	ExportSheetName  = "Merged Data"
	exportNamePrefix = "EXTEROID_CONSOLIDATED_"
)

type ExportFormat string

const (
	FormatXLSX ExportFormat = "xlsx"
	FormatCSV  ExportFormat = "csv"
)

func FormatFromPath(path string) ExportFormat {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

func DefaultExportName(now time.Time, format ExportFormat) string {
	return exportNamePrefix + now.Format("2006-01-02") + "." + string(format)
}

// ExportColumns is the first row's key order without internal keys.
func ExportColumns(rows []internal.Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	cols := rows[0].PublicKeys()
	if len(cols) == 0 {
		return nil, ErrNoColumnsSelected
	}
	return cols, nil
}

func WriteXLSX(w io.Writer, rows []internal.Row) error {
	headers, err := ExportColumns(rows)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, ExportSheetName); err != nil {
		return err
	}
	sheet = ExportSheetName

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, row.Get(h))
		}
	}
	return f.Write(w)
}

func WriteCSV(w io.Writer, rows []internal.Row) error {
	headers, err := ExportColumns(rows)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = row.Get(h)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func Write(w io.Writer, rows []internal.Row, format ExportFormat) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportRows writes rows to outputPath, picking the format from its
// extension. Nothing is written for an empty row set.
func ExportRows(rows []internal.Row, outputPath string) error {
	var buf bytes.Buffer
	if err := Write(&buf, rows, FormatFromPath(outputPath)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, buf.Bytes(), 0o644)
}
