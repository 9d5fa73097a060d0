package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

type DayFormat int

const (
	DayNone DayFormat = iota
	DayD              // 4
	DayDD             // 04
)

type MonthFormat int

const (
	MonthNone MonthFormat = iota // full name on output, e.g. January
	MonthM                       // 1
	MonthMM                      // 01
	MonthMMM                     // Jan, output only
)

type YearFormat int

const (
	YearNone YearFormat = iota
	YearYY              // 16
	YearYYYY            // 2016
)

// DefaultSeparator joins fields in Text and splits them in Parse.
const DefaultSeparator = '-'

// pivotYear is the last two-digit year read as 20xx; 50..99 read as 19xx.
const pivotYear = 49

// Format describes how each date field is written and read.
type Format struct {
	Day       DayFormat
	Month     MonthFormat
	Year      YearFormat
	Separator byte // 0 means DefaultSeparator
}

// NewFormat returns a format with the default separator, rejecting
// values outside the enumerations.
func NewFormat(day DayFormat, month MonthFormat, year YearFormat) (Format, error) {
	f := Format{Day: day, Month: month, Year: year, Separator: DefaultSeparator}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}

// Validate checks every descriptor holds one of its enumerated values and
// that the separator cannot be mistaken for part of a field.
func (f Format) Validate() error {
	if c := f.Separator; c != 0 && !validSeparator(c) {
		return errorf("format", KindArgument, "separator %q not allowed", c)
	}
	if f.Day < DayNone || f.Day > DayDD {
		return errorf("format", KindArgument, "day format %d not recognised", f.Day)
	}
	if f.Month < MonthNone || f.Month > MonthMMM {
		return errorf("format", KindArgument, "month format %d not recognised", f.Month)
	}
	if f.Year < YearNone || f.Year > YearYYYY {
		return errorf("format", KindArgument, "year format %d not recognised", f.Year)
	}
	return nil
}

// validSeparator accepts printable ASCII that is neither a digit nor a letter.
func validSeparator(c byte) bool {
	switch {
	case c < ' ' || c > '~':
		return false
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return false
	}
	return true
}

func (f Format) sep() byte {
	if f.Separator == 0 {
		return DefaultSeparator
	}
	return f.Separator
}

// Layout renders f in the notation accepted by ParseLayout, e.g. "dd-mm-yyyy".
func (f Format) Layout() string {
	var parts []string
	switch f.Day {
	case DayD:
		parts = append(parts, "d")
	case DayDD:
		parts = append(parts, "dd")
	}
	switch f.Month {
	case MonthM:
		parts = append(parts, "m")
	case MonthMM:
		parts = append(parts, "mm")
	case MonthMMM:
		parts = append(parts, "mmm")
	}
	switch f.Year {
	case YearYY:
		parts = append(parts, "yy")
	case YearYYYY:
		parts = append(parts, "yyyy")
	}
	return strings.Join(parts, string(f.sep()))
}

func (f Format) String() string { return f.Layout() }

// ParseLayout reads a layout such as "dd-mm-yyyy", "d/m/yy" or "mmm-yyyy".
// Fields appear in day, month, year order; omitted fields are None.
func ParseLayout(layout string) (Format, error) {
	var f Format
	var sep byte
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}
		if sep != 0 && c != sep {
			return Format{}, errorf("layout", KindArgument, "%q mixes separators %q and %q", layout, sep, c)
		}
		sep = c
	}
	if sep == 0 {
		sep = DefaultSeparator
	}
	f.Separator = sep

	stage := 0
	for _, tok := range strings.Split(strings.ToLower(layout), string(sep)) {
		switch {
		case (tok == "d" || tok == "dd") && stage < 1:
			f.Day = DayD
			if tok == "dd" {
				f.Day = DayDD
			}
			stage = 1
		case (tok == "m" || tok == "mm" || tok == "mmm") && stage < 2:
			f.Month = MonthFormat(len(tok))
			stage = 2
		case (tok == "yy" || tok == "yyyy") && stage < 3:
			f.Year = YearYY
			if tok == "yyyy" {
				f.Year = YearYYYY
			}
			stage = 3
		default:
			return Format{}, errorf("layout", KindArgument, "unexpected %q in layout %q", tok, layout)
		}
	}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}

var (
	formatMu sync.RWMutex
	active   = Format{Day: DayDD, Month: MonthMM, Year: YearYYYY, Separator: DefaultSeparator}
)

// ActiveFormat returns the process-wide format used by String, Text and Parse.
func ActiveFormat() Format {
	formatMu.RLock()
	defer formatMu.RUnlock()
	return active
}

// SetFormat replaces the process-wide format. It takes effect for every
// subsequent call in every goroutine.
func SetFormat(f Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	formatMu.Lock()
	active = f
	formatMu.Unlock()
	return nil
}

func (f Format) fields(d Date, verboseMonth bool) []string {
	out := make([]string, 0, 3)
	switch f.Day {
	case DayD:
		out = append(out, strconv.Itoa(d.day))
	case DayDD:
		out = append(out, fmt.Sprintf("%02d", d.day))
	}
	switch f.Month {
	case MonthNone:
		if verboseMonth {
			out = append(out, time.Month(d.month).String())
		}
	case MonthM:
		out = append(out, strconv.Itoa(d.month))
	case MonthMM:
		out = append(out, fmt.Sprintf("%02d", d.month))
	case MonthMMM:
		out = append(out, time.Month(d.month).String()[:3])
	}
	switch f.Year {
	case YearYY:
		out = append(out, fmt.Sprintf("%02d", d.year%100))
	case YearYYYY:
		out = append(out, fmt.Sprintf("%04d", d.year))
	}
	return out
}

// Display writes d the way it is shown on screens and in logs: each field
// followed by a single space. A month without a format is written as its
// full name.
func (f Format) Display(d Date) string {
	var b strings.Builder
	for _, s := range f.fields(d, true) {
		b.WriteString(s)
		b.WriteByte(' ')
	}
	return b.String()
}

// Text writes d as separator-joined fields, the form Parse reads back.
func (f Format) Text(d Date) string {
	return strings.Join(f.fields(d, false), string(f.sep()))
}

// String displays d with the active format.
func (d Date) String() string { return ActiveFormat().Display(d) }

// Text writes d with the active format's separator layout.
func (d Date) Text() string { return ActiveFormat().Text(d) }

// Parse reads s with the active format.
func Parse(s string) (Date, error) {
	return ParseFormat(ActiveFormat(), s)
}

// ParseFormat reads s, which must match f exactly: every field present, the
// separator exactly twice, digits only, and widths as f prescribes.
func ParseFormat(f Format, s string) (Date, error) {
	if err := f.Validate(); err != nil {
		return Date{}, err
	}
	if f.Day == DayNone || f.Month == MonthNone || f.Year == YearNone {
		return Date{}, errorf("parse", KindParse, "format %q omits a field", f.Layout())
	}
	if f.Month == MonthMMM {
		return Date{}, errorf("parse", KindParse, "month names are not accepted as input")
	}
	sep := string(f.sep())
	if n := strings.Count(s, sep); n != 2 {
		return Date{}, errorf("parse", KindParse, "%q: want 2 %q separators, found %d", s, sep, n)
	}
	parts := strings.Split(s, sep)

	day, err := parseField(parts[0], f.Day == DayDD)
	if err != nil {
		return Date{}, errorf("parse", KindParse, "%q day: %s", s, err)
	}
	month, err := parseField(parts[1], f.Month == MonthMM)
	if err != nil {
		return Date{}, errorf("parse", KindParse, "%q month: %s", s, err)
	}
	year, err := parseYear(parts[2], f.Year)
	if err != nil {
		return Date{}, errorf("parse", KindParse, "%q year: %s", s, err)
	}
	return New(day, month, year)
}

// parseField reads a 1-2 digit number. With twoDigits the field must be
// exactly 2 digits; without it a leading zero is a width mismatch.
func parseField(s string, twoDigits bool) (int, error) {
	if !allDigits(s) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if twoDigits {
		if len(s) != 2 {
			return 0, fmt.Errorf("%q: want 2 digits", s)
		}
	} else if len(s) > 2 || len(s) == 2 && s[0] == '0' {
		return 0, fmt.Errorf("%q: want 1 or 2 digits without leading zero", s)
	}
	return strconv.Atoi(s)
}

func parseYear(s string, yf YearFormat) (int, error) {
	if !allDigits(s) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	want := 4
	if yf == YearYY {
		want = 2
	}
	if len(s) != want {
		return 0, fmt.Errorf("%q: want %d digits", s, want)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if yf == YearYY {
		if v <= pivotYear {
			return 2000 + v, nil
		}
		return 1900 + v, nil
	}
	return v, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
