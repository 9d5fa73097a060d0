package calendar

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestNewRoundTrip(t *testing.T) {
	for year := MinYear; year <= MaxYear; year++ {
		for month := 1; month <= 12; month++ {
			for day := 1; day <= DaysIn(month, year); day++ {
				d, err := New(day, month, year)
				if err != nil {
					t.Fatalf("New(%d, %d, %d): %v", day, month, year, err)
				}
				if d.Day() != day || int(d.Month()) != month || d.Year() != year {
					t.Fatalf("New(%d, %d, %d) read back %d/%d/%d", day, month, year, d.Day(), d.Month(), d.Year())
				}
			}
		}
	}
}

func TestNewErrorKinds(t *testing.T) {
	tests := []struct {
		name             string
		day, month, year int
		want             error
		kind             Kind
	}{
		{"day 32", 32, 1, 2000, ErrArgument, KindArgument},
		{"day 0", 0, 1, 2000, ErrArgument, KindArgument},
		{"month 13", 1, 13, 2000, ErrArgument, KindArgument},
		{"month 0", 1, 0, 2000, ErrArgument, KindArgument},
		{"30 Feb leap", 30, 2, 2000, ErrDomain, KindDomain},
		{"29 Feb common", 29, 2, 2001, ErrDomain, KindDomain},
		{"31 Apr", 31, 4, 2010, ErrDomain, KindDomain},
		{"before window", 1, 1, 1949, ErrRange, KindRange},
		{"after window", 1, 1, 2050, ErrRange, KindRange},
		{"structural before range", 32, 1, 1900, ErrArgument, KindArgument},
		{"domain before range", 29, 2, 1900, ErrDomain, KindDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.day, tt.month, tt.year)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if k := KindOf(err); k != tt.kind {
				t.Errorf("kind: got %s, want %s", k, tt.kind)
			}
		})
	}
}

func TestWindowEdges(t *testing.T) {
	if _, err := New(1, 1, 1950); err != nil {
		t.Errorf("01-01-1950: %v", err)
	}
	if _, err := New(31, 12, 2049); err != nil {
		t.Errorf("31-12-2049: %v", err)
	}
}

func TestIsLeapYear(t *testing.T) {
	tests := []struct {
		year int
		want bool
	}{
		{1950, false},
		{1900, false},
		{2000, true},
		{2016, true},
		{2048, true},
		{2049, false},
		{2100, false},
	}
	for _, tt := range tests {
		if got := IsLeapYear(tt.year); got != tt.want {
			t.Errorf("IsLeapYear(%d): got %v, want %v", tt.year, got, tt.want)
		}
	}
	if !MustNew(1, 3, 2048).IsLeapYear() {
		t.Error("2048 date should report leap year")
	}
}

func TestDayNumberBijection(t *testing.T) {
	prev := MustNew(1, 1, MinYear).DayNumber() - 1
	for year := MinYear; year <= MaxYear; year++ {
		for month := 1; month <= 12; month++ {
			for day := 1; day <= DaysIn(month, year); day++ {
				n := dayNumber(day, month, year)
				if n != prev+1 {
					t.Fatalf("%d-%d-%d: day number %d does not follow %d", day, month, year, n, prev)
				}
				prev = n
				d, m, y := fromDayNumber(n)
				if d != day || m != month || y != year {
					t.Fatalf("fromDayNumber(%d) = %d-%d-%d, want %d-%d-%d", n, d, m, y, day, month, year)
				}
			}
		}
	}
}

func TestAddAndSub(t *testing.T) {
	d := MustNew(28, 2, 2016)

	next, err := d.Add(1)
	if err != nil {
		t.Fatalf("Add(1): %v", err)
	}
	if !next.Equal(MustNew(29, 2, 2016)) {
		t.Errorf("Add(1): got %s", next.Text())
	}

	back, err := d.Add(-59)
	if err != nil {
		t.Fatalf("Add(-59): %v", err)
	}
	if !back.Equal(MustNew(31, 12, 2015)) {
		t.Errorf("Add(-59): got %s", back.Text())
	}

	if got := d.Sub(back); got != 59 {
		t.Errorf("Sub: got %d, want 59", got)
	}
	if got := back.Sub(d); got != 59 {
		t.Errorf("Sub reversed: got %d, want 59", got)
	}
	if got := d.Sub(d); got != 0 {
		t.Errorf("Sub self: got %d, want 0", got)
	}
}

func TestAddOutOfRange(t *testing.T) {
	last := MustNew(31, 12, 2049)
	if _, err := last.Add(1); !errors.Is(err, ErrRange) {
		t.Errorf("31-12-2049 + 1: got %v, want ErrRange", err)
	}
	if _, err := MustNew(1, 6, 2049).Add(400); !errors.Is(err, ErrRange) {
		t.Errorf("+400 past 2049: got %v, want ErrRange", err)
	}
	first := MustNew(1, 1, 1950)
	if _, err := first.Prev(); !errors.Is(err, ErrRange) {
		t.Errorf("01-01-1950 prev: got %v, want ErrRange", err)
	}
	if _, err := first.Add(-1 << 30); !errors.Is(err, ErrRange) {
		t.Errorf("huge negative: got %v, want ErrRange", err)
	}
	_, err := last.Add(math.MaxInt)
	if !errors.Is(err, ErrRange) {
		t.Fatalf("MaxInt days: got %v, want ErrRange", err)
	}
	if msg := err.Error(); strings.Contains(msg, "day zero") || !strings.Contains(msg, "31-12-2049") {
		t.Errorf("MaxInt days: unexpected message %q", msg)
	}
}

func TestAddInverse(t *testing.T) {
	d := MustNew(1, 1, 1950)
	for {
		next, err := d.Add(1)
		if err != nil {
			break
		}
		back, err := next.Add(-1)
		if err != nil {
			t.Fatalf("%s -1: %v", next.Text(), err)
		}
		if !back.Equal(d) {
			t.Fatalf("%s +1 -1 = %s", d.Text(), back.Text())
		}
		d = next
	}
	if !d.Equal(MustNew(31, 12, 2049)) {
		t.Errorf("walk stopped at %s", d.Text())
	}
}

func TestStepOperations(t *testing.T) {
	d := MustNew(31, 12, 2015)

	next, _ := d.Next()
	if !next.Equal(MustNew(1, 1, 2016)) {
		t.Errorf("Next: got %s", next.Text())
	}
	prev, _ := next.Prev()
	if !prev.Equal(d) {
		t.Errorf("Next then Prev: got %s", prev.Text())
	}

	week, _ := d.NextWeek()
	if !week.Equal(MustNew(7, 1, 2016)) {
		t.Errorf("NextWeek: got %s", week.Text())
	}
	if week.Weekday() != d.Weekday() {
		t.Errorf("NextWeek changed weekday: %s vs %s", week.Weekday(), d.Weekday())
	}
	back, _ := week.PrevWeek()
	if !back.Equal(d) {
		t.Errorf("PrevWeek: got %s", back.Text())
	}

	if _, err := MustNew(27, 12, 2049).NextWeek(); !errors.Is(err, ErrRange) {
		t.Errorf("NextWeek past window: got %v, want ErrRange", err)
	}
}

func TestCompare(t *testing.T) {
	a := MustNew(31, 1, 2016)
	b := MustNew(1, 2, 2016)
	c := MustNew(1, 1, 2017)

	if !a.Before(b) || !b.Before(c) || !a.Before(c) {
		t.Error("expected a < b < c")
	}
	if !c.After(a) {
		t.Error("expected c > a")
	}
	if a.Compare(a) != 0 || !a.Equal(MustNew(31, 1, 2016)) {
		t.Error("expected a == a")
	}
	if b.Compare(a) != 1 || a.Compare(b) != -1 {
		t.Errorf("Compare: got %d/%d", b.Compare(a), a.Compare(b))
	}
	if a.Equal(b) {
		t.Error("distinct dates compare equal")
	}
}

func TestWeekday(t *testing.T) {
	tests := []struct {
		date Date
		want Weekday
	}{
		{MustNew(1, 1, 2016), Friday},
		{MustNew(4, 1, 2016), Monday},
		{MustNew(10, 1, 2016), Sunday},
		{MustNew(1, 1, 1950), Sunday},
		{MustNew(29, 2, 2000), Tuesday},
		{MustNew(31, 12, 2049), Friday},
	}
	for _, tt := range tests {
		if got := tt.date.Weekday(); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.date.Text(), got, tt.want)
		}
	}
}

func TestWeekdayMatchesDayNumber(t *testing.T) {
	d := MustNew(1, 1, 1950)
	for {
		if d.Weekday() != weekdayOfNumber(d.DayNumber()) {
			t.Fatalf("%s: closed form %s, day number %s", d.Text(), d.Weekday(), weekdayOfNumber(d.DayNumber()))
		}
		next, err := d.Add(13)
		if err != nil {
			break
		}
		d = next
	}
}

func TestWeek(t *testing.T) {
	for day := 4; day <= 10; day++ {
		d := MustNew(day, 1, 2016)
		if w := d.Week(); w != (Week{Year: 2016, Number: 1}) {
			t.Errorf("%s: got %s, want 2016-W01", d.Text(), w)
		}
	}
	for day := 1; day <= 3; day++ {
		d := MustNew(day, 1, 2016)
		if w := d.Week(); w != (Week{Year: 2015, Number: 53}) {
			t.Errorf("%s: got %s, want 2015-W53", d.Text(), w)
		}
	}

	tests := []struct {
		date Date
		want Week
	}{
		{MustNew(29, 12, 2014), Week{2015, 1}},
		{MustNew(28, 12, 2014), Week{2014, 52}},
		{MustNew(1, 1, 1950), Week{1949, 52}},
		{MustNew(31, 12, 2049), Week{2049, 52}},
		{MustNew(11, 1, 2016), Week{2016, 2}},
	}
	for _, tt := range tests {
		if got := tt.date.Week(); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.date.Text(), got, tt.want)
		}
	}
}

func TestToday(t *testing.T) {
	now := func() time.Time { return time.Date(2016, 1, 4, 23, 59, 0, 0, time.UTC) }
	d, err := Today(now)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if !d.Equal(MustNew(4, 1, 2016)) {
		t.Errorf("Today: got %s", d.Text())
	}

	future := func() time.Time { return time.Date(2050, 1, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := Today(future); !errors.Is(err, ErrRange) {
		t.Errorf("clock in 2050: got %v, want ErrRange", err)
	}
}

func TestZeroDate(t *testing.T) {
	var d Date
	if !d.IsZero() {
		t.Error("zero Date should report IsZero")
	}
	if MustNew(1, 1, 2000).IsZero() {
		t.Error("valid date reports IsZero")
	}
}
