package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exteroid/internal"
	"exteroid/internal/util"
)

const (
	csvA = "Name,Mobile\nRavi,9876543210\nAsha,9123456789\n"
	csvB = "Full Name,Phone,Email\nRavi K,+91 98765 43210,r@x.com\n"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(ConsolidateLimits(2, 3, 1024))
	require.NoError(t, err)
	return s
}

func TestSessionRejectsInput(t *testing.T) {
	s := newTestSession(t)

	err := s.AddFile("notes.txt", []byte("x"))
	assert.True(t, IsInputError(err))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	assert.ErrorIs(t, s.AddFile("empty.csv", nil), ErrEmptyFile)
	assert.ErrorIs(t, s.AddFile("big.csv", []byte(strings.Repeat("x", 2048))), ErrFileTooLarge)

	require.NoError(t, s.AddFile("a.csv", []byte(csvA)))
	_, err = s.Reconcile()
	assert.ErrorIs(t, err, ErrTooFewFiles)

	require.NoError(t, s.AddFile("b.csv", []byte(csvB)))
	require.NoError(t, s.AddFile("c.csv", []byte(csvA)))
	assert.ErrorIs(t, s.AddFile("d.csv", []byte(csvA)), ErrTooManyFiles)

	assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, s.FileNames())
}

func TestSessionRecordsParseFailures(t *testing.T) {
	s := newTestSession(t)
	err := s.AddFile("broken.xlsx", []byte("not a workbook"))
	require.Error(t, err)
	assert.False(t, IsInputError(err))

	failures := s.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "broken.xlsx", failures[0].Name)
	assert.Empty(t, s.Sheets())
}

func TestSessionMergeAndClean(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.AddFile("a.csv", []byte(csvA)))
	require.NoError(t, s.AddFile("b.csv", []byte(csvB)))

	cols, err := s.Reconcile()
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, []string{"name", "phone"}, s.Selected())

	merged, err := s.Merge()
	require.NoError(t, err)
	assert.Len(t, merged.Rows, 3)

	out, stats, err := s.Clean(ConsolidationOptions(util.PhonePlus91))
	require.NoError(t, err)
	assert.Len(t, out.Rows, 2)
	assert.Equal(t, 1, stats.DuplicatesRemoved)
	assert.Equal(t, stats, s.Stats())
}

func TestSessionKeepsTableOnFailure(t *testing.T) {
	s := newTestSession(t)
	_, _, err := s.Clean(ConsolidationOptions(util.PhonePlus91))
	assert.ErrorIs(t, err, ErrNotMerged)

	require.NoError(t, s.AddFile("a.csv", []byte(csvA)))
	require.NoError(t, s.AddFile("b.csv", []byte(csvB)))
	_, err = s.Merge()
	require.NoError(t, err)
	_, _, err = s.Clean(ConsolidationOptions(util.PhonePlus91))
	require.NoError(t, err)

	bad := ConsolidationOptions(util.PhonePlus91)
	bad.Duplicates = "keep_middle"
	_, _, err = s.Clean(bad)
	require.Error(t, err)
	assert.Len(t, s.Result().Rows, 2)

	err = s.Apply(func(t internal.Table) (internal.Table, error) {
		return MergeColumns(t, []string{"Name", "Phone"}, " ", "")
	})
	assert.ErrorIs(t, err, ErrNumericMerge)
	assert.Equal(t, []string{"Name", "Phone"}, s.Result().ColumnNames())

	require.NoError(t, s.Reset())
	assert.Len(t, s.Result().Rows, 3)
}

func TestSessionSelect(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.AddFile("a.csv", []byte(csvA)))
	require.NoError(t, s.AddFile("b.csv", []byte(csvB)))
	_, err := s.Reconcile()
	require.NoError(t, err)

	assert.ErrorIs(t, s.Select([]string{"salary"}), ErrUnknownColumn)
	require.NoError(t, s.Select([]string{"email"}))

	merged, err := s.Merge()
	require.NoError(t, err)
	assert.Equal(t, []string{"Email"}, merged.ColumnNames())

	assert.Len(t, s.SelectMode(SelectAll), 3)
}

func TestNewSessionValidatesOptions(t *testing.T) {
	_, err := NewSession(Options{MinFiles: 3, MaxFiles: 2, MaxFileBytes: 1, Extensions: SpreadsheetExtensions})
	assert.Error(t, err)
}
