package pipeline

import (
	"encoding/json"
	"strings"

	"exteroid/internal"
)

type DuplicatePolicy string

const (
	KeepFirst DuplicatePolicy = "keep_first"
	KeepLast  DuplicatePolicy = "keep_last"
	FlagDupes DuplicatePolicy = "flag"
)

func IsEmptyRow(row internal.Row) bool {
	for _, key := range row.PublicKeys() {
		if strings.TrimSpace(row.Get(key)) != "" {
			return false
		}
	}
	return true
}

func RemoveEmptyRows(rows []internal.Row) ([]internal.Row, int) {
	out := make([]internal.Row, 0, len(rows))
	for _, row := range rows {
		if IsEmptyRow(row) {
			continue
		}
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

type DedupeOptions struct {
	Policy DuplicatePolicy
	// PhoneColumn keys rows on their phone value when non-empty.
	PhoneColumn string
	// KeyColumns narrows the full-row key. Empty means every public column.
	KeyColumns []string
}

// DuplicateKey is the phone value when one is present, otherwise a JSON
// serialisation of the key columns in order.
func DuplicateKey(row internal.Row, columns []string, phoneColumn string) string {
	if phoneColumn != "" {
		if phone := strings.TrimSpace(row.Get(phoneColumn)); phone != "" {
			return "phone\x00" + phone
		}
	}
	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = row.Get(c)
	}
	blob, _ := json.Marshal(values)
	return "row\x00" + string(blob)
}

func keyColumns(t internal.Table, opts DedupeOptions) []string {
	if len(opts.KeyColumns) > 0 {
		return opts.KeyColumns
	}
	cols := make([]string, 0, len(t.Columns))
	for _, name := range t.ColumnNames() {
		if !internal.IsInternalKey(name) {
			cols = append(cols, name)
		}
	}
	return cols
}

// Dedupe returns a new table without duplicates, or with later duplicates
// marked under the flag policy. The counts are removed and flagged rows.
func Dedupe(t internal.Table, opts DedupeOptions) (internal.Table, int, int) {
	cols := keyColumns(t, opts)
	keys := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		keys[i] = DuplicateKey(row, cols, opts.PhoneColumn)
	}

	out := internal.Table{Columns: append([]internal.Column(nil), t.Columns...)}
	switch opts.Policy {
	case KeepLast:
		last := map[string]int{}
		for i, k := range keys {
			last[k] = i
		}
		for i, row := range t.Rows {
			if last[keys[i]] == i {
				out.Rows = append(out.Rows, row.Clone())
			}
		}
		return out, len(t.Rows) - len(out.Rows), 0
	case FlagDupes:
		seen := map[string]bool{}
		flagged := 0
		for i, row := range t.Rows {
			row = row.Clone()
			if seen[keys[i]] {
				row.Set(internal.KeyDuplicate, "true")
				flagged++
			}
			seen[keys[i]] = true
			out.Rows = append(out.Rows, row)
		}
		return out, 0, flagged
	default:
		seen := map[string]bool{}
		for i, row := range t.Rows {
			if seen[keys[i]] {
				continue
			}
			seen[keys[i]] = true
			out.Rows = append(out.Rows, row.Clone())
		}
		return out, len(t.Rows) - len(out.Rows), 0
	}
}
