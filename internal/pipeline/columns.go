package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"exteroid/internal"
	"exteroid/internal/util"
)

type ValueKind string

const (
	KindEmpty    ValueKind = "empty"
	KindNumber   ValueKind = "number"
	KindCurrency ValueKind = "currency"
	KindDate     ValueKind = "date"
	KindBoolean  ValueKind = "boolean"
	KindText     ValueKind = "text"
	KindMixed    ValueKind = "mixed"
)

const (
	kindSampleSize = 100
	kindThreshold  = 0.7
)

var reHeaderSeparators = regexp.MustCompile(`[_\-.]+`)

func valueKind(v string) ValueKind {
	if _, ok := util.ParseCurrency(v); ok {
		return KindCurrency
	}
	if _, ok := util.ParseNumber(v); ok {
		return KindNumber
	}
	if _, ok := util.ParseDate(strings.TrimSpace(v)); ok {
		return KindDate
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "no", "true", "false", "y", "n":
		return KindBoolean
	}
	return KindText
}

// DetectKind samples up to 100 non-empty values. A kind needs 70% of the
// sample to win, otherwise the column is mixed.
func DetectKind(values []string) ValueKind {
	counts := map[ValueKind]int{}
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		counts[valueKind(v)]++
		n++
		if n == kindSampleSize {
			break
		}
	}
	if n == 0 {
		return KindEmpty
	}
	for _, k := range []ValueKind{KindCurrency, KindNumber, KindDate, KindBoolean, KindText} {
		if float64(counts[k])/float64(n) >= kindThreshold {
			return k
		}
	}
	return KindMixed
}

func columnValues(t internal.Table, name string) []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Get(name)
	}
	return out
}

func ColumnKind(t internal.Table, name string) ValueKind {
	return DetectKind(columnValues(t, name))
}

func columnIndex(t internal.Table, name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// rebuild copies t with a new column list, filling each row through fill.
func rebuild(t internal.Table, cols []internal.Column, fill func(src internal.Row, dst *internal.Row)) internal.Table {
	out := internal.Table{Columns: cols, Rows: make([]internal.Row, len(t.Rows))}
	for i, src := range t.Rows {
		dst := internal.NewRow()
		fill(src, &dst)
		for _, k := range src.Keys() {
			if internal.IsInternalKey(k) {
				dst.Set(k, src.Get(k))
			}
		}
		out.Rows[i] = dst
	}
	return out
}

// MergeColumns joins the non-empty values of sources with sep into newName,
// placed where the first source was. Number and currency columns are refused.
func MergeColumns(t internal.Table, sources []string, sep, newName string) (internal.Table, error) {
	if len(sources) < 2 {
		return t, fmt.Errorf("%w: merge needs at least two columns", ErrInvalidColumnOp)
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		newName = strings.Join(sources, " ")
	}
	drop := map[string]bool{}
	field := internal.FieldOther
	for i, s := range sources {
		idx := columnIndex(t, s)
		if idx < 0 {
			return t, fmt.Errorf("%w: %s", ErrUnknownColumn, s)
		}
		if k := ColumnKind(t, s); k == KindNumber || k == KindCurrency {
			return t, fmt.Errorf("%w: %q is %s", ErrNumericMerge, s, k)
		}
		if i == 0 {
			field = t.Columns[idx].Field
		} else if t.Columns[idx].Field != field {
			field = internal.FieldOther
		}
		drop[s] = true
	}
	if columnIndex(t, newName) >= 0 && !drop[newName] {
		return t, fmt.Errorf("%w: column %q already exists", ErrInvalidColumnOp, newName)
	}

	cols := []internal.Column{}
	for _, c := range t.Columns {
		if c.Name == sources[0] {
			cols = append(cols, internal.Column{Name: newName, Field: field})
			continue
		}
		if !drop[c.Name] {
			cols = append(cols, c)
		}
	}
	return rebuild(t, cols, func(src internal.Row, dst *internal.Row) {
		for _, c := range cols {
			if c.Name != newName {
				dst.Set(c.Name, src.Get(c.Name))
				continue
			}
			parts := []string{}
			for _, s := range sources {
				if v := strings.TrimSpace(src.Get(s)); v != "" {
					parts = append(parts, v)
				}
			}
			dst.Set(newName, strings.Join(parts, sep))
		}
	}), nil
}

// SplitColumn splits name on delim into parts columns "<name> 1".."<name> N".
// The remainder after N-1 splits stays in the last part.
func SplitColumn(t internal.Table, name, delim string, parts int) (internal.Table, error) {
	if parts < 2 || parts > 10 {
		return t, fmt.Errorf("%w: split parts must be between 2 and 10, got %d", ErrInvalidColumnOp, parts)
	}
	if delim == "" {
		return t, fmt.Errorf("%w: split delimiter is empty", ErrInvalidColumnOp)
	}
	if columnIndex(t, name) < 0 {
		return t, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}

	names := make([]string, parts)
	for i := range names {
		names[i] = name + " " + strconv.Itoa(i+1)
	}
	if n, ok := collides(t, name, names...); ok {
		return t, fmt.Errorf("%w: split would overwrite column %s", ErrInvalidColumnOp, n)
	}
	cols := []internal.Column{}
	for _, c := range t.Columns {
		if c.Name != name {
			cols = append(cols, c)
			continue
		}
		for _, n := range names {
			cols = append(cols, internal.Column{Name: n, Field: internal.FieldOther})
		}
	}
	return rebuild(t, cols, func(src internal.Row, dst *internal.Row) {
		pieces := strings.SplitN(src.Get(name), delim, parts)
		for _, c := range t.Columns {
			if c.Name != name {
				dst.Set(c.Name, src.Get(c.Name))
				continue
			}
			for i, n := range names {
				v := ""
				if i < len(pieces) {
					v = strings.TrimSpace(pieces[i])
				}
				dst.Set(n, v)
			}
		}
	}), nil
}

type CaseMode string

const (
	CaseUpper  CaseMode = "upper"
	CaseLower  CaseMode = "lower"
	CaseProper CaseMode = "proper"
)

func ChangeCase(t internal.Table, name string, mode CaseMode) (internal.Table, error) {
	if columnIndex(t, name) < 0 {
		return t, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	var fn func(string) string
	switch mode {
	case CaseUpper:
		fn = strings.ToUpper
	case CaseLower:
		fn = strings.ToLower
	case CaseProper:
		fn = util.TitleCase
	default:
		return t, fmt.Errorf("%w: unknown case mode %q", ErrInvalidColumnOp, mode)
	}
	out := t.Clone()
	for i := range out.Rows {
		out.Rows[i].Set(name, fn(out.Rows[i].Get(name)))
	}
	return out, nil
}

// FixHeader turns "first_name" or "e-mail.addr" into title-cased words.
func FixHeader(header string) string {
	s := reHeaderSeparators.ReplaceAllString(strings.TrimSpace(header), " ")
	return util.TitleCase(util.CollapseSpaces(s))
}

// FixHeaders cleans every column name; clashes get " 2", " 3" suffixes.
func FixHeaders(t internal.Table) internal.Table {
	fixed := make([]string, len(t.Columns))
	taken := map[string]bool{}
	for i, c := range t.Columns {
		n := FixHeader(c.Name)
		if n == "" {
			n = "Column"
		}
		fixed[i] = n
		taken[n] = true
	}
	cols := make([]internal.Column, len(t.Columns))
	rename := map[string]string{}
	used := map[string]bool{}
	for i, c := range t.Columns {
		n := fixed[i]
		if used[n] {
			n = uniqueName(n, taken)
			taken[n] = true
		}
		used[n] = true
		rename[c.Name] = n
		cols[i] = internal.Column{Name: n, Field: c.Field}
	}
	return rebuild(t, cols, func(src internal.Row, dst *internal.Row) {
		for _, c := range t.Columns {
			dst.Set(rename[c.Name], src.Get(c.Name))
		}
	})
}

func RemoveEmptyColumns(t internal.Table) (internal.Table, int) {
	cols := []internal.Column{}
	for _, c := range t.Columns {
		if ColumnKind(t, c.Name) != KindEmpty {
			cols = append(cols, c)
		}
	}
	removed := len(t.Columns) - len(cols)
	if removed == 0 {
		return t, 0
	}
	return rebuild(t, cols, func(src internal.Row, dst *internal.Row) {
		for _, c := range cols {
			dst.Set(c.Name, src.Get(c.Name))
		}
	}), removed
}

const (
	FirstNameColumn = "First Name"
	LastNameColumn  = "Last Name"
)

// SplitNames replaces a name column with First Name and Last Name. The first
// word is the first name, the rest the last name.
func SplitNames(t internal.Table, name string) (internal.Table, error) {
	if columnIndex(t, name) < 0 {
		return t, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	if n, ok := collides(t, name, FirstNameColumn, LastNameColumn); ok {
		return t, fmt.Errorf("%w: split would overwrite column %s", ErrInvalidColumnOp, n)
	}
	cols := []internal.Column{}
	for _, c := range t.Columns {
		if c.Name == name {
			cols = append(cols,
				internal.Column{Name: FirstNameColumn, Field: internal.FieldName},
				internal.Column{Name: LastNameColumn, Field: internal.FieldName},
			)
			continue
		}
		cols = append(cols, c)
	}
	return rebuild(t, cols, func(src internal.Row, dst *internal.Row) {
		for _, c := range t.Columns {
			if c.Name != name {
				dst.Set(c.Name, src.Get(c.Name))
				continue
			}
			words := strings.Fields(src.Get(name))
			first, last := "", ""
			if len(words) > 0 {
				first = words[0]
				last = strings.Join(words[1:], " ")
			}
			dst.Set(FirstNameColumn, first)
			dst.Set(LastNameColumn, last)
		}
	}), nil
}

// uniqueName returns base, or base with the lowest numeric suffix from 2 up
// that is not taken.
func uniqueName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		n := base + " " + strconv.Itoa(i)
		if !taken[n] {
			return n
		}
	}
}

// collides reports the first of names that is already a column of t other
// than the one being replaced.
func collides(t internal.Table, replaced string, names ...string) (string, bool) {
	for _, n := range names {
		if n != replaced && t.HasColumn(n) {
			return n, true
		}
	}
	return "", false
}
