package pipeline

import (
	"fmt"

	"exteroid/internal"
)

// Merge projects every source row onto the selected unified columns. Missing
// values become "" and each row records its source sheet under KeySource.
func Merge(sheets []internal.Sheet, cols []internal.UnifiedColumn, selected []string) (internal.Table, error) {
	if len(selected) == 0 {
		return internal.Table{}, ErrNoColumnsSelected
	}

	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.Key] = true
	}
	want := make(map[string]bool, len(selected))
	for _, key := range selected {
		if !known[key] {
			return internal.Table{}, fmt.Errorf("%w: %s", ErrUnknownColumn, key)
		}
		want[key] = true
	}
	chosen := make([]internal.UnifiedColumn, 0, len(want))
	for _, c := range cols {
		if want[c.Key] {
			chosen = append(chosen, c)
		}
	}

	table := internal.Table{Columns: make([]internal.Column, len(chosen))}
	for i, c := range chosen {
		table.Columns[i] = internal.Column{Name: c.Name, Field: c.Field}
	}

	for fi, sheet := range sheets {
		headers := make([]string, len(chosen))
		present := make([]bool, len(chosen))
		for i, c := range chosen {
			headers[i], present[i] = c.OccurrenceFor(fi)
		}
		for _, raw := range sheet.Rows {
			row := internal.NewRow()
			for i, c := range chosen {
				value := ""
				if present[i] {
					value = raw[headers[i]]
				}
				row.Set(c.Name, value)
			}
			row.Set(internal.KeySource, sheet.Name)
			table.Rows = append(table.Rows, row)
		}
	}
	return table, nil
}
