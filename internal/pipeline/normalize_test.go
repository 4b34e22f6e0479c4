package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exteroid/internal"
	"exteroid/internal/util"
)

func mergedFixture() internal.Table {
	t := internal.Table{Columns: []internal.Column{
		{Name: "Name", Field: internal.FieldName},
		{Name: "Phone", Field: internal.FieldPhone},
		{Name: "Email", Field: internal.FieldEmail},
	}}
	add := func(name, phone, email string) {
		t.Rows = append(t.Rows, internal.NewRow("Name", name, "Phone", phone, "Email", email, internal.KeySource, "f.csv"))
	}
	add("  Ravi   Kumar ", "+91 98765 43210", "x@y.com")
	add("Asha", "9876543210", "")
	add("NA", "N/A", "-")
	add("", "", "")
	add("Mohan", "12345", "")
	return t
}

func TestCleanConsolidation(t *testing.T) {
	out, stats, err := Clean(mergedFixture(), ConsolidationOptions(util.PhonePlus91))
	require.NoError(t, err)

	require.Len(t, out.Rows, 2)
	assert.Equal(t, "Ravi Kumar", out.Rows[0].Get("Name"))
	assert.Equal(t, "+919876543210", out.Rows[0].Get("Phone"))
	assert.Equal(t, "Mohan", out.Rows[1].Get("Name"))
	assert.Equal(t, "12345", out.Rows[1].Get("Phone"))

	assert.Equal(t, internal.CleanStats{
		TotalBefore:       5,
		EmptyRemoved:      2,
		DuplicatesRemoved: 1,
		PhonesCleaned:     2,
		Final:             2,
	}, stats)
}

func TestCleanLeavesInputUntouched(t *testing.T) {
	in := mergedFixture()
	_, _, err := Clean(in, ConsolidationOptions(util.PhoneDigits))
	require.NoError(t, err)
	assert.Equal(t, "  Ravi   Kumar ", in.Rows[0].Get("Name"))
	assert.Len(t, in.Rows, 5)
}

func TestCleanPhoneOnly(t *testing.T) {
	in := contactTable([2]string{"A", "9876543210"}, [2]string{"B", ""})
	opts := ConsolidationOptions(util.PhoneDigits)
	opts.PhoneOnly = true

	out, stats, err := Clean(in, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(out))
	assert.Equal(t, 1, stats.Final)
}

func TestCleanFlagPolicy(t *testing.T) {
	in := contactTable([2]string{"A", "9876543210"}, [2]string{"B", "+91 98765 43210"})
	opts := ConsolidationOptions(util.PhonePlus91)
	opts.Duplicates = FlagDupes

	out, stats, err := Clean(in, opts)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, 1, stats.DuplicatesFlagged)
	assert.Equal(t, "true", out.Rows[1].Get(internal.KeyDuplicate))
}

func TestCleanOCRStrictPhones(t *testing.T) {
	in := internal.Table{Columns: []internal.Column{
		{Name: "Name", Field: internal.FieldName},
		{Name: "Mobile", Field: internal.FieldPhone},
		{Name: "Email", Field: internal.FieldEmail},
	}}
	in.Rows = []internal.Row{
		internal.NewRow("Name", "ravi kumar", "Mobile", "call 98765 43210 now", "Email", "RAVI@GMAI1.COM"),
		internal.NewRow("Name", "bad number", "Mobile", "12345", "Email", ""),
		internal.NewRow("Name", "", "Mobile", "", "Email", "solo@x.com"),
	}

	out, stats, err := Clean(in, OCROptions(util.PhonePlus91))
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "Ravi Kumar", out.Rows[0].Get("Name"))
	assert.Equal(t, "+919876543210", out.Rows[0].Get("Mobile"))
	assert.Equal(t, "ravi@gmail.com", out.Rows[0].Get("Email"))
	assert.Equal(t, 1, stats.InvalidPhones)
	assert.Equal(t, 1, stats.Final)

	opts := OCROptions(util.PhonePlus91)
	opts.RequirePhone = false
	out, _, err = Clean(in, opts)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "solo@x.com", out.Rows[1].Get("Email"))
}

func TestCleanRequirePhoneDropsRowsWithoutMobile(t *testing.T) {
	in := internal.Table{Columns: []internal.Column{
		{Name: "Name", Field: internal.FieldName},
		{Name: "Phone", Field: internal.FieldPhone},
		{Name: "Email", Field: internal.FieldEmail},
	}}
	in.Rows = []internal.Row{
		internal.NewRow("Name", "Asha", "Phone", "9876543210", "Email", ""),
		internal.NewRow("Name", "", "Phone", "", "Email", "only@mail.com"),
		internal.NewRow("Name", "Only Name", "Phone", "", "Email", ""),
	}
	out, _, err := Clean(in, OCROptions(util.PhoneDigits))
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "9876543210", out.Rows[0].Get("Phone"))

	// Without a phone column there is nothing to require.
	noPhone := internal.Table{Columns: []internal.Column{{Name: "Email", Field: internal.FieldEmail}}}
	noPhone.Rows = []internal.Row{internal.NewRow("Email", "only@mail.com")}
	out, _, err = Clean(noPhone, OCROptions(util.PhoneDigits))
	require.NoError(t, err)
	assert.Len(t, out.Rows, 1)
}

func TestCleanInvalidPhoneFlag(t *testing.T) {
	in := contactTable([2]string{"A", "12345"})
	opts := OCROptions(util.PhoneDigits)
	opts.InvalidPhones = InvalidPhoneFlag
	opts.RequirePhone = false

	out, _, err := Clean(in, opts)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "12345", out.Rows[0].Get("Phone"))
	assert.Equal(t, "true", out.Rows[0].Get(internal.KeyInvalidPhone))
}

func TestCleanSmart(t *testing.T) {
	in := internal.Table{Columns: []internal.Column{
		{Name: "full_name", Field: internal.FieldName},
		{Name: "joined", Field: internal.FieldOther},
		{Name: "unused", Field: internal.FieldOther},
	}}
	in.Rows = []internal.Row{
		internal.NewRow("full_name", "Ravi 😀", "joined", "05/01/2024", "unused", ""),
		internal.NewRow("full_name", "Asha", "joined", "2024-02-10", "unused", " "),
	}
	opts := SmartCleanOptions(util.PhonePlus91, util.DateISO)
	opts.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	out, stats, err := Clean(in, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Full Name", "Joined"}, out.ColumnNames())
	assert.Equal(t, "Ravi", out.Rows[0].Get("Full Name"))
	assert.Equal(t, "2024-01-05", out.Rows[0].Get("Joined"))
	assert.Equal(t, 1, stats.DatesStandardized)
}

func TestCleanSplitNames(t *testing.T) {
	in := contactTable([2]string{"Ravi Kumar Singh", "9876543210"})
	opts := ConsolidationOptions(util.PhoneDigits)
	opts.SplitNames = true

	out, _, err := Clean(in, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{FirstNameColumn, LastNameColumn, "Phone"}, out.ColumnNames())
	assert.Equal(t, "Kumar Singh", out.Rows[0].Get(LastNameColumn))
}

func TestCleanNoRows(t *testing.T) {
	in := contactTable([2]string{"", ""}, [2]string{"n/a", "null"})
	_, stats, err := Clean(in, ConsolidationOptions(util.PhonePlus91))
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Equal(t, 2, stats.EmptyRemoved)
	assert.Equal(t, 0, stats.Final)
}

func TestCleanOptionsValidate(t *testing.T) {
	opts := ConsolidationOptions(util.PhonePlus91)
	require.NoError(t, opts.Validate())

	opts.Duplicates = "keep_middle"
	assert.Error(t, opts.Validate())

	opts = ConsolidationOptions("e164")
	assert.Error(t, opts.Validate())
}
