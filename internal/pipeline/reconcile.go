package pipeline

import (
	"math"
	"sort"

	"exteroid/internal"
)

type Selection string

const (
	SelectAuto   Selection = "auto"
	SelectCommon Selection = "common"
	SelectAll    Selection = "all"
	SelectNone   Selection = "none"
)

const autoSelectCoverage = 0.6

// Reconcile builds one unified column per grouping key across sheets, ordered
// by how many files carry it. A second header in the same file mapping to the
// same key replaces the first.
func Reconcile(sheets []internal.Sheet) []internal.UnifiedColumn {
	index := map[string]int{}
	cols := []internal.UnifiedColumn{}

	for fi, sheet := range sheets {
		for _, header := range sheet.Headers {
			c := ClassifyHeader(header)
			pos, ok := index[c.Key]
			if !ok {
				pos = len(cols)
				index[c.Key] = pos
				cols = append(cols, internal.UnifiedColumn{Key: c.Key, Field: c.Field, Name: c.Label})
			}

			col := &cols[pos]
			occ := internal.Occurrence{FileIndex: fi, FileName: sheet.Name, Header: header}
			replaced := false
			for i := range col.Occurrences {
				if col.Occurrences[i].FileIndex == fi {
					col.Occurrences[i] = occ
					replaced = true
					break
				}
			}
			if !replaced {
				col.Occurrences = append(col.Occurrences, occ)
				col.FileCount++
			}
		}
	}

	sort.SliceStable(cols, func(i, j int) bool {
		return cols[i].FileCount > cols[j].FileCount
	})
	return cols
}

func coverageThreshold(fileCount int) int {
	return int(math.Ceil(autoSelectCoverage * float64(fileCount)))
}

// SelectColumns returns the keys picked by mode, in column order. Auto mode
// always includes Phone columns regardless of coverage.
func SelectColumns(cols []internal.UnifiedColumn, fileCount int, mode Selection) []string {
	threshold := coverageThreshold(fileCount)
	out := []string{}
	for _, c := range cols {
		keep := false
		switch mode {
		case SelectAll:
			keep = true
		case SelectCommon:
			keep = c.FileCount >= threshold
		case SelectAuto:
			keep = c.FileCount >= threshold || c.Field == internal.FieldPhone
		}
		if keep {
			out = append(out, c.Key)
		}
	}
	return out
}
