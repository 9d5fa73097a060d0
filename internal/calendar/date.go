// Package calendar implements the controller's date engine: validated
// day/month/year values within 1950..2049, day arithmetic, weekday and
// ISO-style week numbering, and a process-wide display/parse format.
//
// The package has no dependency on the host clock; Today takes the clock
// as a parameter.
package calendar

import (
	"fmt"
	"time"
)

// Supported window, inclusive.
const (
	MinYear = 1950
	MaxYear = 2049
)

// Date is a calendar day in [01-Jan-1950, 31-Dec-2049].
// The zero value is not a valid date; obtain one through New, Parse or Today.
type Date struct {
	day   int
	month int
	year  int
}

// Weekday numbers days Monday=1 through Sunday=7.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (w Weekday) String() string {
	if w < Monday || w > Sunday {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// Week is a week number together with the year it belongs to, which is
// not always the year of the date (01-Jan-2016 is week 53 of 2015).
type Week struct {
	Year   int
	Number int
}

func (w Week) String() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.Number)
}

var daysInMonth = [...]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeapYear reports whether February of year has 29 days.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysIn returns the number of days of month in year. month must be 1..12.
func DaysIn(month, year int) int {
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return daysInMonth[month]
}

// CheckArgs rejects a day outside 1..31 or a month outside 1..12.
func CheckArgs(day, month int) error {
	if day < 1 || day > 31 {
		return errorf("check", KindArgument, "day %d not in 1..31", day)
	}
	if month < 1 || month > 12 {
		return errorf("check", KindArgument, "month %d not in 1..12", month)
	}
	return nil
}

// CheckValid rejects a day past the end of its month. Fields must have
// passed CheckArgs.
func CheckValid(day, month, year int) error {
	if n := DaysIn(month, year); day > n {
		return errorf("check", KindDomain, "%s %d has %d days, got day %d", time.Month(month), year, n, day)
	}
	return nil
}

// CheckInRange rejects dates outside 01-Jan-1950 .. 31-Dec-2049.
func CheckInRange(day, month, year int) error {
	// Lexicographic on (year, month, day); the window starts on 1 Jan and
	// ends on 31 Dec, so comparing the year is enough.
	if year < MinYear || year > MaxYear {
		return errorf("check", KindRange, "%02d-%02d-%d outside %d..%d", day, month, year, MinYear, MaxYear)
	}
	return nil
}

// New builds a date, checking structure, then calendar validity, then range.
func New(day, month, year int) (Date, error) {
	if err := CheckArgs(day, month); err != nil {
		return Date{}, err
	}
	if err := CheckValid(day, month, year); err != nil {
		return Date{}, err
	}
	if err := CheckInRange(day, month, year); err != nil {
		return Date{}, err
	}
	return Date{day: day, month: month, year: year}, nil
}

// MustNew is New for constants known to be valid. It panics otherwise.
func MustNew(day, month, year int) Date {
	d, err := New(day, month, year)
	if err != nil {
		panic(err)
	}
	return d
}

// Today returns the host date reported by now, in its own location.
func Today(now func() time.Time) (Date, error) {
	t := now()
	return New(t.Day(), int(t.Month()), t.Year())
}

// FromTime converts t to a Date in t's location.
func FromTime(t time.Time) (Date, error) {
	return New(t.Day(), int(t.Month()), t.Year())
}

func (d Date) Day() int          { return d.day }
func (d Date) Month() time.Month { return time.Month(d.month) }
func (d Date) Year() int         { return d.year }

// IsZero reports whether d is the (invalid) zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// IsLeapYear reports whether d's year is a leap year.
func (d Date) IsLeapYear() bool { return IsLeapYear(d.year) }

// dayNumber counts days since 0000-03-01 in the proleptic Gregorian
// calendar. Years start in March so the leap day is the last day of the year.
func dayNumber(day, month, year int) int {
	y, m := year, month
	if m <= 2 {
		y--
		m += 12
	}
	return 365*y + y/4 - y/100 + y/400 + (153*(m-3)+2)/5 + day - 1
}

// fromDayNumber is the inverse of dayNumber for n >= 0.
func fromDayNumber(n int) (day, month, year int) {
	era := n / 146097
	doe := n - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	day = doy - (153*mp+2)/5 + 1
	month = mp + 3
	year = yoe + era*400
	if month > 12 {
		month -= 12
		year++
	}
	return day, month, year
}

// Day-counts of the first and last supported dates.
var (
	firstDay = dayNumber(1, 1, MinYear)
	lastDay  = dayNumber(31, 12, MaxYear)
)

// DayNumber returns the day-count of d. Consecutive days have consecutive
// numbers.
func (d Date) DayNumber() int {
	return dayNumber(d.day, d.month, d.year)
}

// Add returns d moved by n days (n may be negative). A result outside the
// supported window is an ErrRange error; it is never clamped.
func (d Date) Add(n int) (Date, error) {
	cur := d.DayNumber()
	if n < firstDay-cur || n > lastDay-cur {
		return Date{}, errorf("add", KindRange, "%s %+d days leaves 01-01-%d .. 31-12-%d", d.Text(), n, MinYear, MaxYear)
	}
	day, month, year := fromDayNumber(cur + n)
	if err := CheckInRange(day, month, year); err != nil {
		return Date{}, errorf("add", KindRange, "%s %+d days: %s", d.Text(), n, err.(*Error).Msg)
	}
	return Date{day: day, month: month, year: year}, nil
}

// Sub returns the number of days between d and o, whichever comes first.
func (d Date) Sub(o Date) int {
	diff := d.DayNumber() - o.DayNumber()
	if diff < 0 {
		return -diff
	}
	return diff
}

// Next is the following day (prefix ++).
func (d Date) Next() (Date, error) { return d.Add(1) }

// Prev is the preceding day (prefix --).
func (d Date) Prev() (Date, error) { return d.Add(-1) }

// NextWeek is the same weekday one week later (postfix ++).
func (d Date) NextWeek() (Date, error) { return d.Add(7) }

// PrevWeek is the same weekday one week earlier (postfix --).
func (d Date) PrevWeek() (Date, error) { return d.Add(-7) }

// Compare returns -1, 0 or +1 ordering d against o by (year, month, day).
func (d Date) Compare(o Date) int {
	switch {
	case d.year != o.year:
		return sign(d.year - o.year)
	case d.month != o.month:
		return sign(d.month - o.month)
	default:
		return sign(d.day - o.day)
	}
}

func (d Date) Equal(o Date) bool  { return d == o }
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// sakamoto offsets per month.
var weekdayOffset = [...]int{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}

// Weekday returns Monday(1) .. Sunday(7).
func (d Date) Weekday() Weekday {
	y := d.year
	if d.month < 3 {
		y--
	}
	w := (y + y/4 - y/100 + y/400 + weekdayOffset[d.month-1] + d.day) % 7
	if w == 0 {
		w = 7
	}
	return Weekday(w)
}

// weekdayOfNumber is Weekday for a raw day-count; day zero was a Wednesday.
func weekdayOfNumber(n int) Weekday {
	return Weekday((n+2)%7 + 1)
}

// firstMonday returns the day-count of the Monday starting week 1 of year:
// the first Monday among 29-31 Dec of the prior year and 1-4 Jan.
func firstMonday(year int) int {
	n := dayNumber(29, 12, year-1)
	for weekdayOfNumber(n) != Monday {
		n++
	}
	return n
}

// Week returns the ISO-style week of d. Week 1 holds the year's first
// Thursday; days before it belong to the previous year's last week and
// days from next year's week 1 onward belong to that week.
func (d Date) Week() Week {
	n := d.DayNumber()
	year := d.year
	start := firstMonday(year)
	if n < start {
		year--
		start = firstMonday(year)
	} else if next := firstMonday(year + 1); n >= next {
		year++
		start = next
	}
	return Week{Year: year, Number: (n-start)/7 + 1}
}
