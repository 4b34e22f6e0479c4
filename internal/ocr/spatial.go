package ocr

import (
	"math"
	"strconv"
	"strings"

	"exteroid/internal"
	"exteroid/internal/config"
	"exteroid/internal/util"
)

type Tolerances struct {
	Row        float64 `json:"row"`
	Column     float64 `json:"column"`
	HeaderBand float64 `json:"headerBand"`
}

func DefaultTolerances() Tolerances {
	return Tolerances{Row: DefaultRowTolerance, Column: DefaultColumnTolerance, HeaderBand: DefaultHeaderBand}
}

func (t Tolerances) withDefaults() Tolerances {
	d := DefaultTolerances()
	if t.Row <= 0 {
		t.Row = d.Row
	}
	if t.Column <= 0 {
		t.Column = d.Column
	}
	if t.HeaderBand <= 0 {
		t.HeaderBand = d.HeaderBand
	}
	return t
}

// Widen is the re-analysis step: columns 1.3x, rows 1.2x.
func (t Tolerances) Widen() Tolerances {
	t = t.withDefaults()
	t.Column *= 1.3
	t.Row *= 1.2
	return t
}

type ColumnRange struct {
	Name string  `json:"name"`
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
}

func (c ColumnRange) Center() float64 {
	return (c.MinX + c.MaxX) / 2
}

type Grid struct {
	Tolerances Tolerances     `json:"tolerances"`
	Columns    []ColumnRange  `json:"columns"`
	Rows       []internal.Row `json:"rows"`
}

func (g Grid) ColumnNames() []string {
	out := make([]string, len(g.Columns))
	for i, c := range g.Columns {
		out[i] = c.Name
	}
	return out
}

// ClusterColumns sweeps tokens left to right, growing the current column while
// a token starts within tol of its right edge.
func ClusterColumns(tokens []internal.TextToken, tol float64) []ColumnRange {
	sorted := byX(tokens)
	var cols []ColumnRange
	for _, t := range sorted {
		right := t.X + t.Width
		if n := len(cols); n > 0 && t.X <= cols[n-1].MaxX+tol {
			cols[n-1].MaxX = math.Max(cols[n-1].MaxX, right)
			continue
		}
		cols = append(cols, ColumnRange{MinX: t.X, MaxX: right})
	}
	return cols
}

// nearestColumn compares centres; the first of equally near columns wins.
func nearestColumn(cols []ColumnRange, t internal.TextToken) int {
	best, bestDist := -1, math.Inf(1)
	cx := t.CenterX()
	for i, c := range cols {
		if d := math.Abs(cx - c.Center()); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

var shortHeaderWords = map[string]bool{
	"no": true, "sr": true, "sno": true, "s.no": true, "id": true,
	"pin": true, "zip": true, "dob": true, "age": true,
}

func isHeaderToken(text string) bool {
	if len([]rune(text)) > 3 {
		return true
	}
	return shortHeaderWords[strings.Trim(strings.ToLower(text), ".:#")]
}

// Reconstruct rebuilds a table from positioned tokens: columns by X overlap,
// headers from the top band, rows by Y proximity.
func Reconstruct(tokens []internal.TextToken, tol Tolerances) Grid {
	tol = tol.withDefaults()
	tokens = CleanTokens(tokens)
	grid := Grid{Tolerances: tol}
	if len(tokens) == 0 {
		return grid
	}

	cols := ClusterColumns(tokens, tol.Column)

	minY := math.Inf(1)
	for _, t := range tokens {
		minY = math.Min(minY, t.Y)
	}
	headerParts := make([][]internal.TextToken, len(cols))
	body := make([]internal.TextToken, 0, len(tokens))
	for _, t := range tokens {
		if t.Y <= minY+tol.HeaderBand && isHeaderToken(t.Text) {
			if idx := nearestColumn(cols, t); idx >= 0 {
				headerParts[idx] = append(headerParts[idx], t)
				continue
			}
		}
		body = append(body, t)
	}

	used := map[string]int{}
	for i := range cols {
		name := "Column " + strconv.Itoa(i+1)
		if len(headerParts[i]) > 0 {
			name = util.CollapseSpaces(rowText(headerParts[i]))
		}
		used[name]++
		if n := used[name]; n > 1 {
			name = name + " " + strconv.Itoa(n)
		}
		cols[i].Name = name
	}
	grid.Columns = cols

	for _, group := range GroupRows(body, tol.Row) {
		cells := make([][]string, len(cols))
		for _, t := range byX(group) {
			idx := nearestColumn(cols, t)
			cells[idx] = append(cells[idx], t.Text)
		}
		row := internal.NewRow()
		filled := false
		for i, c := range cols {
			v := util.CollapseSpaces(strings.Join(cells[i], " "))
			if v != "" {
				filled = true
			}
			row.Set(c.Name, v)
		}
		if filled {
			grid.Rows = append(grid.Rows, row)
		}
	}
	return grid
}

func TolerancesFromConfig(cfg config.Config) Tolerances {
	return Tolerances{Row: cfg.OCRRowTolerance, Column: cfg.OCRColumnTolerance, HeaderBand: cfg.OCRHeaderBand}.withDefaults()
}
