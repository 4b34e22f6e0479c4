package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exteroid/internal"
	"exteroid/internal/util"
)

func tok(text string, x, y, w float64) internal.TextToken {
	return internal.TextToken{Text: text, X: x, Y: y, Width: w, Height: 12, Confidence: 90}
}

func TestGroupRows(t *testing.T) {
	tokens := []internal.TextToken{tok("c", 0, 50, 5), tok("a", 0, 10, 5), tok("d", 10, 52, 5), tok("b", 10, 12, 5)}

	rows := GroupRows(tokens, 15)
	require.Len(t, rows, 2)
	assert.Equal(t, "a b", rowText(rows[0]))
	assert.Equal(t, "c d", rowText(rows[1]))
}

func TestGroupRowsChainsOnPreviousToken(t *testing.T) {
	tokens := []internal.TextToken{tok("a", 0, 0, 5), tok("b", 10, 10, 5), tok("c", 20, 20, 5)}
	assert.Len(t, GroupRows(tokens, 15), 1)
}

func TestCleanTokensDropsBlanks(t *testing.T) {
	out := CleanTokens([]internal.TextToken{tok("  ", 0, 0, 1), tok(" x ", 0, 0, 1)})
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].Text)
}

func TestPatternScan(t *testing.T) {
	tokens := []internal.TextToken{
		tok("Ravi", 0, 10, 30), tok("Kumar", 50, 10, 40), tok("9876543210", 120, 10, 80), tok("ravi@x.com", 250, 10, 70),
		tok("Asha", 0, 60, 30), tok("9123456789", 120, 60, 80),
	}

	res := PatternScan(tokens, nil, 0)
	assert.Equal(t, []string{"Name", "Mobile", "Email"}, (internal.Table{Columns: res.Columns}).ColumnNames())
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Ravi Kumar", res.Rows[0].Get("Name"))
	assert.Equal(t, "9876543210", res.Rows[0].Get("Mobile"))
	assert.Equal(t, "ravi@x.com", res.Rows[0].Get("Email"))
	assert.Equal(t, "Asha", res.Rows[1].Get("Name"))
	assert.Equal(t, "", res.Rows[1].Get("Email"))

	assert.Len(t, res.Scattered, 3)
	assert.Len(t, res.All(), 5)
	assert.Equal(t, []string{"Name", "Mobile", "Email"}, res.Scattered[0].Keys())
}

func TestParseField(t *testing.T) {
	f, ok := ParseField(" Mobile ")
	assert.True(t, ok)
	assert.Equal(t, FieldMobile, f)
	assert.Equal(t, internal.FieldPhone, f.Semantic())

	_, ok = ParseField("shoe size")
	assert.False(t, ok)
}

func TestLineScan(t *testing.T) {
	text := "1. Ravi Kumar - 98765 43210\nno number here\n2 Asha 9123456789\r\nRavi again 9876543210\n3 x 1234567890"

	contacts := LineScan(text)
	require.Len(t, contacts, 2)
	assert.Equal(t, LineContact{Name: "Ravi Kumar", Phone: "9876543210"}, contacts[0])
	assert.Equal(t, LineContact{Name: "Asha", Phone: "9123456789"}, contacts[1])

	rows := LineRows(contacts, util.PhonePlus91)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[1].Get("S.No"))
	assert.Equal(t, "+919123456789", rows[1].Get("Phone Number"))
}

func TestLineScanUnknownName(t *testing.T) {
	contacts := LineScan("9876543210")
	require.Len(t, contacts, 1)
	assert.Equal(t, "Unknown", contacts[0].Name)
}
