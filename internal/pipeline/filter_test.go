package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exteroid/internal"
)

func contactTable(rows ...[2]string) internal.Table {
	t := internal.Table{Columns: []internal.Column{
		{Name: "Name", Field: internal.FieldName},
		{Name: "Phone", Field: internal.FieldPhone},
	}}
	for i, r := range rows {
		t.Rows = append(t.Rows, internal.NewRow("Name", r[0], "Phone", r[1], internal.KeySource, string(rune('a'+i))))
	}
	return t
}

func TestIsEmptyRowIgnoresInternalKeys(t *testing.T) {
	assert.True(t, IsEmptyRow(internal.NewRow("Name", " ", internal.KeySource, "a.csv")))
	assert.False(t, IsEmptyRow(internal.NewRow("Name", "x")))

	rows, removed := RemoveEmptyRows([]internal.Row{internal.NewRow("Name", ""), internal.NewRow("Name", "x")})
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, removed)
}

func dupesFixture() internal.Table {
	return contactTable(
		[2]string{"A", "1"},
		[2]string{"B", "1"},
		[2]string{"C", ""},
		[2]string{"C", ""},
	)
}

func names(t internal.Table) []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Get("Name")
	}
	return out
}

func TestDedupeKeepFirst(t *testing.T) {
	out, removed, flagged := Dedupe(dupesFixture(), DedupeOptions{Policy: KeepFirst, PhoneColumn: "Phone"})
	assert.Equal(t, []string{"A", "C"}, names(out))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, flagged)
}

func TestDedupeKeepLast(t *testing.T) {
	out, removed, _ := Dedupe(dupesFixture(), DedupeOptions{Policy: KeepLast, PhoneColumn: "Phone"})
	require.Len(t, out.Rows, 2)
	assert.Equal(t, []string{"B", "C"}, names(out))
	assert.Equal(t, "d", out.Rows[1].Get(internal.KeySource))
	assert.Equal(t, 2, removed)
}

func TestDedupeFlag(t *testing.T) {
	out, removed, flagged := Dedupe(dupesFixture(), DedupeOptions{Policy: FlagDupes, PhoneColumn: "Phone"})
	require.Len(t, out.Rows, 4)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 2, flagged)
	_, ok := out.Rows[0].Lookup(internal.KeyDuplicate)
	assert.False(t, ok)
	assert.Equal(t, "true", out.Rows[1].Get(internal.KeyDuplicate))
	assert.Equal(t, "true", out.Rows[3].Get(internal.KeyDuplicate))
}

func TestDedupeWithoutPhoneColumnUsesWholeRow(t *testing.T) {
	out, removed, _ := Dedupe(dupesFixture(), DedupeOptions{Policy: KeepFirst})
	assert.Equal(t, []string{"A", "B", "C"}, names(out))
	assert.Equal(t, 1, removed)
}

func TestDedupeKeyColumns(t *testing.T) {
	in := contactTable([2]string{"A", "1"}, [2]string{"A", "2"})
	out, removed, _ := Dedupe(in, DedupeOptions{Policy: KeepFirst, KeyColumns: []string{"Name"}})
	assert.Len(t, out.Rows, 1)
	assert.Equal(t, 1, removed)
}

func TestDedupeDoesNotMutateInput(t *testing.T) {
	in := dupesFixture()
	_, _, _ = Dedupe(in, DedupeOptions{Policy: FlagDupes, PhoneColumn: "Phone"})
	_, ok := in.Rows[1].Lookup(internal.KeyDuplicate)
	assert.False(t, ok)
}
