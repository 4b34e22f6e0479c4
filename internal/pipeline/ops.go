package pipeline

import (
	"strings"

	"exteroid/internal"
)

// ColumnOps are the column edits applied after cleaning, in the order merge,
// split, case. Zero values are skipped.
type ColumnOps struct {
	Merge    []string
	MergeSep string
	MergeAs  string

	Split      string
	SplitDelim string
	SplitParts int

	Case     string
	CaseMode CaseMode
}

func (o ColumnOps) Empty() bool {
	return len(o.Merge) == 0 && o.Split == "" && o.Case == ""
}

func (o ColumnOps) steps() []func(internal.Table) (internal.Table, error) {
	var steps []func(internal.Table) (internal.Table, error)
	if len(o.Merge) > 0 {
		sep := o.MergeSep
		if sep == "" {
			sep = " "
		}
		steps = append(steps, func(t internal.Table) (internal.Table, error) {
			return MergeColumns(t, o.Merge, sep, o.MergeAs)
		})
	}
	if o.Split != "" {
		delim, parts := o.SplitDelim, o.SplitParts
		if delim == "" {
			delim = " "
		}
		if parts == 0 {
			parts = 2
		}
		steps = append(steps, func(t internal.Table) (internal.Table, error) {
			return SplitColumn(t, o.Split, delim, parts)
		})
	}
	if o.Case != "" {
		mode := CaseMode(strings.ToLower(string(o.CaseMode)))
		if mode == "" {
			mode = CaseProper
		}
		steps = append(steps, func(t internal.Table) (internal.Table, error) {
			return ChangeCase(t, o.Case, mode)
		})
	}
	return steps
}

// ApplyOps runs every step against the session's current table. A failing
// step leaves the table as the previous step left it.
func (s *Session) ApplyOps(ops ColumnOps) error {
	for _, step := range ops.steps() {
		if err := s.Apply(step); err != nil {
			return err
		}
	}
	return nil
}
