package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrEmptyFile         = errors.New("file is empty")
	ErrTooManyFiles      = errors.New("too many files")
	ErrTooFewFiles       = errors.New("not enough files")
	ErrNoColumnsSelected = errors.New("no columns selected")
	ErrNoRows            = errors.New("no rows to export")
	ErrNumericMerge      = errors.New("numeric columns cannot be merged")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrNotMerged         = errors.New("rows have not been merged yet")
	ErrInvalidColumnOp   = errors.New("invalid column operation")
)

// InputError is a rejected file. Files accepted before it stay accepted.
type InputError struct {
	File string
	Err  error
}

func (e *InputError) Error() string {
	if e.File == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func rejectFile(name string, err error, detail string) error {
	if detail != "" {
		err = fmt.Errorf("%w (%s)", err, detail)
	}
	return &InputError{File: name, Err: err}
}
