package internal

import (
	"bytes"
	"encoding/json"
	"strings"
)

type SemanticField string

const (
	FieldName    SemanticField = "Name"
	FieldPhone   SemanticField = "Phone"
	FieldEmail   SemanticField = "Email"
	FieldAddress SemanticField = "Address"
	FieldDate    SemanticField = "Date"
	FieldCity    SemanticField = "City"
	FieldState   SemanticField = "State"
	FieldPincode SemanticField = "Pincode"
	FieldOther   SemanticField = "Other"
)

// Internal row keys. Anything starting with InternalPrefix is never exported.
const (
	InternalPrefix  = "_"
	KeySource       = "_source"
	KeyDuplicate    = "_duplicate"
	KeyInvalidPhone = "_invalid_phone"
)

func IsInternalKey(key string) bool {
	return strings.HasPrefix(key, InternalPrefix)
}

type SheetSource string

const (
	SourceUpload         SheetSource = "upload"
	SourceMailAttachment SheetSource = "mail_attachment"
	SourceMailHTMLTable  SheetSource = "mail_html_table"
	SourcePDF            SheetSource = "pdf"
	SourceImage          SheetSource = "image"
)

// RawRow maps an original header to its cell value. Blank cells are "".
type RawRow map[string]string

// Sheet is one parsed input file: headers in file order plus its records.
type Sheet struct {
	Name    string
	Source  SheetSource
	Headers []string
	Rows    []RawRow
}

type Occurrence struct {
	FileIndex int    `json:"fileIndex"`
	FileName  string `json:"fileName"`
	Header    string `json:"header"`
}

type UnifiedColumn struct {
	Key         string        `json:"key"`
	Field       SemanticField `json:"field"`
	Name        string        `json:"name"`
	FileCount   int           `json:"fileCount"`
	Occurrences []Occurrence  `json:"occurrences"`
}

// OccurrenceFor returns the header a file contributed to the column.
func (c UnifiedColumn) OccurrenceFor(fileIndex int) (string, bool) {
	for _, occ := range c.Occurrences {
		if occ.FileIndex == fileIndex {
			return occ.Header, true
		}
	}
	return "", false
}

// Row is an insertion-ordered string record.
type Row struct {
	keys   []string
	values map[string]string
}

func NewRow(pairs ...string) Row {
	r := Row{values: make(map[string]string, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], pairs[i+1])
	}
	return r
}

func (r *Row) Set(key, value string) {
	if r.values == nil {
		r.values = map[string]string{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *Row) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

func (r Row) Get(key string) string {
	return r.values[key]
}

func (r Row) Lookup(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// PublicKeys returns keys in order without internal ones.
func (r Row) PublicKeys() []string {
	out := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		if !IsInternalKey(k) {
			out = append(out, k)
		}
	}
	return out
}

func (r Row) Len() int {
	return len(r.keys)
}

func (r Row) Clone() Row {
	out := Row{keys: append([]string(nil), r.keys...), values: make(map[string]string, len(r.values))}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Column struct {
	Name  string        `json:"name"`
	Field SemanticField `json:"field"`
}

// Table is a working row set. Cleaning passes return a new Table.
type Table struct {
	Columns []Column
	Rows    []Row
}

func (t Table) Clone() Table {
	out := Table{
		Columns: append([]Column(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnsOf returns the names of columns typed as field.
func (t Table) ColumnsOf(field SemanticField) []string {
	var out []string
	for _, c := range t.Columns {
		if c.Field == field {
			out = append(out, c.Name)
		}
	}
	return out
}

func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

type TextToken struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

func (t TextToken) CenterX() float64 {
	return t.X + t.Width/2
}

// Recognition is what an OCR engine returns for one image.
type Recognition struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Tokens     []TextToken `json:"words"`
}

type CleanStats struct {
	TotalBefore       int `json:"totalBefore"`
	EmptyRemoved      int `json:"emptyRemoved"`
	DuplicatesRemoved int `json:"duplicatesRemoved"`
	DuplicatesFlagged int `json:"duplicatesFlagged"`
	PhonesCleaned     int `json:"phonesCleaned"`
	InvalidPhones     int `json:"invalidPhones"`
	DatesStandardized int `json:"datesStandardized"`
	Final             int `json:"final"`
}

type FileFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type RunRecord struct {
	ID         int           `json:"id"`
	TraceID    string        `json:"traceId"`
	Tool       string        `json:"tool"`
	Source     string        `json:"source"`
	Files      []string      `json:"files"`
	Stats      CleanStats    `json:"stats"`
	Failures   []FileFailure `json:"failures"`
	OutputPath string        `json:"outputPath,omitempty"`
	CreatedAt  string        `json:"createdAt"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
