package ocr

import (
	"regexp"
	"strconv"
	"strings"

	"exteroid/internal"
	"exteroid/internal/util"
)

type Field string

const (
	FieldName    Field = "name"
	FieldMobile  Field = "mobile"
	FieldEmail   Field = "email"
	FieldAddress Field = "address"
	FieldCity    Field = "city"
	FieldState   Field = "state"
	FieldPincode Field = "pincode"
	FieldDate    Field = "date"
	FieldID      Field = "id"
	FieldCustom  Field = "custom"
)

var DefaultFields = []Field{FieldName, FieldMobile, FieldEmail}

var fieldPatterns = map[Field]*regexp.Regexp{
	FieldMobile:  regexp.MustCompile(`[\+\d][\d\s\-\.]{4,20}`),
	FieldEmail:   regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`),
	FieldPincode: regexp.MustCompile(`\b\d{6}\b`),
	FieldDate:    regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2}`),
	FieldID:      regexp.MustCompile(`[A-Z]{2,4}\d{4,}`),
}

var fieldMeta = map[Field]struct {
	label    string
	semantic internal.SemanticField
}{
	FieldName:    {"Name", internal.FieldName},
	FieldMobile:  {"Mobile", internal.FieldPhone},
	FieldEmail:   {"Email", internal.FieldEmail},
	FieldAddress: {"Address", internal.FieldAddress},
	FieldCity:    {"City", internal.FieldCity},
	FieldState:   {"State", internal.FieldState},
	FieldPincode: {"Pincode", internal.FieldPincode},
	FieldDate:    {"Date", internal.FieldDate},
	FieldID:      {"ID", internal.FieldOther},
	FieldCustom:  {"Custom", internal.FieldOther},
}

func ParseField(s string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	_, ok := fieldMeta[f]
	return f, ok
}

func (f Field) Label() string {
	if m, ok := fieldMeta[f]; ok {
		return m.label
	}
	return string(f)
}

func (f Field) Semantic() internal.SemanticField {
	if m, ok := fieldMeta[f]; ok {
		return m.semantic
	}
	return internal.FieldOther
}

func columnsFor(fields []Field) []internal.Column {
	cols := make([]internal.Column, len(fields))
	for i, f := range fields {
		cols[i] = internal.Column{Name: f.Label(), Field: f.Semantic()}
	}
	return cols
}

// extractField pulls one field out of a row of text. Name is whatever is left
// once phone, email and pincode matches are removed.
func extractField(f Field, text string) string {
	if re, ok := fieldPatterns[f]; ok {
		return re.FindString(text)
	}
	switch f {
	case FieldName:
		name := text
		for _, g := range []Field{FieldMobile, FieldEmail, FieldPincode} {
			name = fieldPatterns[g].ReplaceAllString(name, "")
		}
		name = strings.TrimSpace(name)
		if len([]rune(name)) > 2 {
			return name
		}
	case FieldAddress, FieldCity, FieldState:
		if len([]rune(text)) > 3 {
			return text
		}
	case FieldCustom:
		return text
	}
	return ""
}

type PatternResult struct {
	Columns   []internal.Column
	Rows      []internal.Row
	Scattered []internal.Row
}

// All returns the row-grouped rows followed by the scattered ones.
func (r PatternResult) All() []internal.Row {
	out := make([]internal.Row, 0, len(r.Rows)+len(r.Scattered))
	out = append(out, r.Rows...)
	return append(out, r.Scattered...)
}

func emptyRow(cols []internal.Column) internal.Row {
	row := internal.NewRow()
	for _, c := range cols {
		row.Set(c.Name, "")
	}
	return row
}

// PatternScan extracts fields row by row, then scans the whole page once more
// for every patterned field so values outside any row are not lost.
func PatternScan(tokens []internal.TextToken, fields []Field, rowTol float64) PatternResult {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	if rowTol <= 0 {
		rowTol = DefaultRowTolerance
	}
	res := PatternResult{Columns: columnsFor(fields)}

	groups := GroupRows(CleanTokens(tokens), rowTol)
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		text := rowText(g)
		lines = append(lines, text)

		row := emptyRow(res.Columns)
		hasData := false
		for _, f := range fields {
			v := strings.TrimSpace(extractField(f, text))
			if v != "" {
				hasData = true
			}
			row.Set(f.Label(), v)
		}
		if hasData {
			res.Rows = append(res.Rows, row)
		}
	}

	page := strings.Join(lines, "\n")
	for _, f := range fields {
		re, ok := fieldPatterns[f]
		if !ok {
			continue
		}
		for _, m := range re.FindAllString(page, -1) {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			row := emptyRow(res.Columns)
			row.Set(f.Label(), m)
			res.Scattered = append(res.Scattered, row)
		}
	}
	return res
}

var (
	reLineNoise = regexp.MustCompile(`[0-9+\-()]`)
	reLineEdges = regexp.MustCompile(`^[:.\-_]+|[:.\-_]+$`)
)

type LineContact struct {
	Name  string
	Phone string
}

// LineScan reads one contact per text line: the last ten digits as a mobile
// number and the remaining text as the name.
func LineScan(text string) []LineContact {
	seen := map[string]bool{}
	out := []LineContact{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		d := util.Digits(line)
		if len(d) < 10 {
			continue
		}
		phone := d[len(d)-10:]
		if phone[0] < '6' || phone[0] > '9' || seen[phone] {
			continue
		}
		seen[phone] = true

		name := reLineNoise.ReplaceAllString(line, "")
		name = reLineEdges.ReplaceAllString(strings.TrimSpace(name), "")
		name = util.CollapseSpaces(name)
		if len([]rune(name)) < 2 {
			name = "Unknown"
		}
		out = append(out, LineContact{Name: name, Phone: phone})
	}
	return out
}

var LineColumns = []internal.Column{
	{Name: "S.No", Field: internal.FieldOther},
	{Name: "Name", Field: internal.FieldName},
	{Name: "Phone Number", Field: internal.FieldPhone},
}

func LineRows(contacts []LineContact, format util.PhoneFormat) []internal.Row {
	rows := make([]internal.Row, len(contacts))
	for i, c := range contacts {
		rows[i] = internal.NewRow(
			"S.No", strconv.Itoa(i+1),
			"Name", c.Name,
			"Phone Number", util.FormatPhone(c.Phone, format),
		)
	}
	return rows
}
