package ocr

import (
	"math"
	"sort"
	"strings"

	"exteroid/internal"
)

const (
	DefaultRowTolerance    = 15.0
	DefaultColumnTolerance = 20.0
	DefaultHeaderBand      = 30.0
)

// CleanTokens drops tokens whose text is blank.
func CleanTokens(tokens []internal.TextToken) []internal.TextToken {
	out := make([]internal.TextToken, 0, len(tokens))
	for _, t := range tokens {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// GroupRows sorts tokens top to bottom and starts a new row whenever a token
// is more than tol below the previous token of the current row.
func GroupRows(tokens []internal.TextToken, tol float64) [][]internal.TextToken {
	sorted := append([]internal.TextToken(nil), tokens...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	var rows [][]internal.TextToken
	var cur []internal.TextToken
	for _, t := range sorted {
		if len(cur) > 0 && math.Abs(t.Y-cur[len(cur)-1].Y) <= tol {
			cur = append(cur, t)
			continue
		}
		if len(cur) > 0 {
			rows = append(rows, cur)
		}
		cur = []internal.TextToken{t}
	}
	if len(cur) > 0 {
		rows = append(rows, cur)
	}
	return rows
}

func byX(tokens []internal.TextToken) []internal.TextToken {
	out := append([]internal.TextToken(nil), tokens...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

// rowText joins a row's tokens left to right.
func rowText(row []internal.TextToken) string {
	parts := make([]string, 0, len(row))
	for _, t := range byX(row) {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}
