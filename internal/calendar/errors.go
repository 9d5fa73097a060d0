package calendar

import (
	"errors"
	"fmt"
)

// Kind classifies why a date could not be built or parsed.
type Kind int

const (
	// KindArgument: a field lies outside its enumerated range (month 13, day 0).
	KindArgument Kind = iota + 1
	// KindDomain: fields are individually legal but do not form a real date (30 Feb).
	KindDomain
	// KindRange: a real date outside 01-Jan-1950 .. 31-Dec-2049.
	KindRange
	// KindParse: the input string does not match the format. A KindParse
	// error also matches ErrArgument.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindDomain:
		return "domain"
	case KindRange:
		return "range"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrArgument = errors.New("invalid date argument")
	ErrDomain   = errors.New("date does not exist")
	ErrRange    = errors.New("date out of range")
	ErrParse    = errors.New("date does not match format")
)

// Error is returned by every failing calendar operation.
type Error struct {
	Op   string
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("calendar: %s: %s", e.Op, e.Msg)
}

// Unwrap exposes the sentinel(s) matching the error kind.
func (e *Error) Unwrap() []error {
	switch e.Kind {
	case KindArgument:
		return []error{ErrArgument}
	case KindDomain:
		return []error{ErrDomain}
	case KindRange:
		return []error{ErrRange}
	case KindParse:
		return []error{ErrParse, ErrArgument}
	}
	return nil
}

// KindOf returns the Kind carried by err, or 0 if err is not a calendar error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func errorf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
