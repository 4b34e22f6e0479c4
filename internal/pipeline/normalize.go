package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"exteroid/internal"
	"exteroid/internal/util"
)

// InvalidPhonePolicy decides what strict phone checking does with a value that
// has no valid mobile number in it.
type InvalidPhonePolicy string

const (
	InvalidPhoneKeep  InvalidPhonePolicy = "keep"
	InvalidPhoneClear InvalidPhonePolicy = "clear"
	InvalidPhoneFlag  InvalidPhonePolicy = "flag"
	InvalidPhoneDrop  InvalidPhonePolicy = "drop"
)

type CleanOptions struct {
	PhoneFormat   util.PhoneFormat   `validate:"oneof=plus91 digits"`
	DateFormat    util.DateFormat    `validate:"oneof=YYYY-MM-DD DD/MM/YYYY"`
	Duplicates    DuplicatePolicy    `validate:"oneof=keep_first keep_last flag"`
	InvalidPhones InvalidPhonePolicy `validate:"omitempty,oneof=keep clear flag drop"`
	DuplicateKey  []string

	FixHeaders         bool
	RemoveEmptyColumns bool
	TrimSpaces         bool
	StandardizeEmpty   bool
	StripEmoji         bool
	StripSymbols       bool
	NormalizePhones    bool
	StrictPhones       bool
	CleanEmails        bool
	StandardizeDates   bool
	TitleCaseNames     bool
	SplitNames         bool
	YesNoColumns       []string
	RemoveDuplicates   bool
	PhoneOnly          bool
	// RequirePhone drops rows without a valid mobile number when the table
	// has a phone column.
	RequirePhone bool

	Now func() time.Time `validate:"-"`
}

// ConsolidationOptions is the cleaning run applied after merging files.
func ConsolidationOptions(phone util.PhoneFormat) CleanOptions {
	return CleanOptions{
		PhoneFormat:      phone,
		DateFormat:       util.DateISO,
		Duplicates:       KeepFirst,
		TrimSpaces:       true,
		StandardizeEmpty: true,
		NormalizePhones:  true,
		RemoveDuplicates: true,
	}
}

// SmartCleanOptions is the single-file cleaning run.
func SmartCleanOptions(phone util.PhoneFormat, date util.DateFormat) CleanOptions {
	return CleanOptions{
		PhoneFormat:        phone,
		DateFormat:         date,
		Duplicates:         KeepFirst,
		FixHeaders:         true,
		RemoveEmptyColumns: true,
		TrimSpaces:         true,
		StandardizeEmpty:   true,
		StripEmoji:         true,
		NormalizePhones:    true,
		CleanEmails:        true,
		StandardizeDates:   true,
		RemoveDuplicates:   true,
	}
}

// OCROptions cleans rows reconstructed from images: phones must be real
// mobile numbers and rows without one are dropped.
func OCROptions(phone util.PhoneFormat) CleanOptions {
	return CleanOptions{
		PhoneFormat:      phone,
		DateFormat:       util.DateISO,
		Duplicates:       KeepFirst,
		InvalidPhones:    InvalidPhoneDrop,
		TrimSpaces:       true,
		StrictPhones:     true,
		CleanEmails:      true,
		TitleCaseNames:   true,
		RemoveDuplicates: true,
		RequirePhone:     true,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func (o CleanOptions) Validate() error {
	if err := structValidator().Struct(o); err != nil {
		return fmt.Errorf("invalid clean options: %w", err)
	}
	return nil
}

func (o CleanOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func isFreeText(f internal.SemanticField) bool {
	switch f {
	case internal.FieldName, internal.FieldAddress, internal.FieldCity, internal.FieldState, internal.FieldOther:
		return true
	}
	return false
}

// Clean runs the cleaning passes over a copy of t. On ErrNoRows the returned
// table is the empty result and stats are still filled in.
func Clean(t internal.Table, opts CleanOptions) (internal.Table, internal.CleanStats, error) {
	stats := internal.CleanStats{TotalBefore: len(t.Rows)}
	if err := opts.Validate(); err != nil {
		return t, stats, err
	}

	work := t.Clone()
	if opts.FixHeaders {
		work = FixHeaders(work)
	}

	var removed int
	work.Rows, removed = RemoveEmptyRows(work.Rows)
	stats.EmptyRemoved += removed

	dateCols := map[string]bool{}
	if opts.StandardizeDates {
		for _, c := range work.Columns {
			if c.Field == internal.FieldDate || ColumnKind(work, c.Name) == KindDate {
				dateCols[c.Name] = true
			}
		}
	}
	yesNo := map[string]bool{}
	for _, c := range opts.YesNoColumns {
		yesNo[c] = true
	}

	now := opts.now()
	kept := work.Rows[:0]
	for _, row := range work.Rows {
		drop := false
		for _, c := range work.Columns {
			v := row.Get(c.Name)
			if opts.TrimSpaces {
				v = util.CollapseSpaces(v)
			}
			if opts.StandardizeEmpty {
				v = util.StandardizeEmpty(v)
			}
			if opts.StripEmoji {
				v = util.StripEmoji(v)
			}
			if opts.StripSymbols && isFreeText(c.Field) {
				v = util.StripSymbols(v)
			}

			switch c.Field {
			case internal.FieldPhone:
				v, drop = cleanPhone(v, opts, &stats, &row)
			case internal.FieldEmail:
				if opts.CleanEmails {
					v = util.NormalizeEmail(v)
				}
			case internal.FieldName:
				if opts.TitleCaseNames {
					v = util.TitleCase(v)
				}
			}
			if dateCols[c.Name] && v != "" {
				if d := util.StandardizeDate(v, opts.DateFormat, now); d != v {
					v = d
					stats.DatesStandardized++
				}
			}
			if yesNo[c.Name] {
				v = util.NormalizeYesNo(v)
			}
			row.Set(c.Name, v)
			if drop {
				break
			}
		}
		if !drop {
			kept = append(kept, row)
		}
	}
	work.Rows = kept

	// Placeholder markers may have emptied rows out.
	work.Rows, removed = RemoveEmptyRows(work.Rows)
	stats.EmptyRemoved += removed

	if opts.RemoveEmptyColumns {
		work, _ = RemoveEmptyColumns(work)
	}
	if opts.SplitNames {
		if names := work.ColumnsOf(internal.FieldName); len(names) > 0 {
			if split, err := SplitNames(work, names[0]); err == nil {
				work = split
			}
		}
	}

	phoneCol := ""
	if phones := work.ColumnsOf(internal.FieldPhone); len(phones) > 0 {
		phoneCol = phones[0]
	}
	if opts.RemoveDuplicates {
		var dupes, flagged int
		work, dupes, flagged = Dedupe(work, DedupeOptions{
			Policy:      opts.Duplicates,
			PhoneColumn: phoneCol,
			KeyColumns:  opts.DuplicateKey,
		})
		stats.DuplicatesRemoved = dupes
		stats.DuplicatesFlagged = flagged
	}
	if opts.PhoneOnly && phoneCol != "" {
		kept := work.Rows[:0]
		for _, row := range work.Rows {
			if strings.TrimSpace(row.Get(phoneCol)) != "" {
				kept = append(kept, row)
			}
		}
		work.Rows = kept
	}
	if opts.RequirePhone && phoneCol != "" {
		kept := work.Rows[:0]
		for _, row := range work.Rows {
			if _, ok := util.StrictMobile(row.Get(phoneCol)); ok {
				kept = append(kept, row)
			}
		}
		work.Rows = kept
	}

	stats.Final = len(work.Rows)
	if stats.Final == 0 {
		return work, stats, ErrNoRows
	}
	return work, stats, nil
}

// cleanPhone returns the cleaned value and whether the row should be dropped.
func cleanPhone(v string, opts CleanOptions, stats *internal.CleanStats, row *internal.Row) (string, bool) {
	if v == "" {
		return v, false
	}
	if opts.StrictPhones {
		if mobile, ok := util.StrictMobile(v); ok {
			out := util.FormatPhone(mobile, opts.PhoneFormat)
			if out != v {
				stats.PhonesCleaned++
			}
			return out, false
		}
		stats.InvalidPhones++
		switch opts.InvalidPhones {
		case InvalidPhoneClear:
			return "", false
		case InvalidPhoneFlag:
			row.Set(internal.KeyInvalidPhone, "true")
			return v, false
		case InvalidPhoneDrop:
			return "", true
		}
		return v, false
	}
	if opts.NormalizePhones {
		if out := util.NormalizePhone(v, opts.PhoneFormat); out != v {
			stats.PhonesCleaned++
			return out, false
		}
	}
	return v, false
}
