// Package storage persists pump counters and the event log across reboots.
package storage

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
	"github.com/yves-gaignard/poolmanager/internal/pump"
)

// Store defines the interface for controller state persistence.
type Store interface {
	Close() error
	SetValue(key, value string) error
	GetValue(key string) (string, bool, error)
	SavePump(state pump.State) error
	LoadPump(name string) (Saved, bool, error)
	Checkpoint(day calendar.Date) error
	LastDay() (calendar.Date, bool, error)
	InsertEvent(event logic.Event) error
	RecentEvents(limit int) ([]logic.Event, error)
}

// Saved holds the persisted counters of one pump.
type Saved struct {
	UpTime           time.Duration
	TankFill         float64
	MaxUpTime        time.Duration
	CurrentMaxUpTime time.Duration // limit after acknowledged faults
}

// Key names, one set per pump.
const (
	keyUpTime    = "uptime_ms"
	keyTankFill  = "tank_fill"
	keyMaxUpTime = "max_uptime_ms"
	keyLimit     = "current_max_uptime_ms"
	keyDay       = "system.day"
)

// PumpKey returns the settings key of a pump counter, e.g. "ph.uptime_ms".
func PumpKey(name, field string) string {
	return name + "." + field
}

// dayFormat stores dates independently of the active display format.
var dayFormat = calendar.Format{
	Day:       calendar.DayDD,
	Month:     calendar.MonthMM,
	Year:      calendar.YearYYYY,
	Separator: '-',
}

func pumpValues(s pump.State) map[string]string {
	return map[string]string{
		PumpKey(s.Name, keyUpTime):    strconv.FormatInt(s.UpTime.Milliseconds(), 10),
		PumpKey(s.Name, keyTankFill):  strconv.FormatFloat(s.ConfiguredFill, 'f', -1, 64),
		PumpKey(s.Name, keyMaxUpTime): strconv.FormatInt(s.MaxUpTime.Milliseconds(), 10),
		PumpKey(s.Name, keyLimit):     strconv.FormatInt(s.CurrentMaxUpTime.Milliseconds(), 10),
	}
}

// loadPump reads the counters of name through get. found is false when
// no counter was ever saved.
func loadPump(name string, get func(string) (string, bool, error)) (Saved, bool, error) {
	var saved Saved
	found := false

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{keyUpTime, &saved.UpTime},
		{keyMaxUpTime, &saved.MaxUpTime},
		{keyLimit, &saved.CurrentMaxUpTime},
	}
	for _, d := range durations {
		key := PumpKey(name, d.key)
		v, ok, err := get(key)
		if err != nil {
			return Saved{}, false, err
		}
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Saved{}, false, &ValueError{Key: key, Value: v, Err: err}
		}
		*d.dst = time.Duration(ms) * time.Millisecond
		found = true
	}

	key := PumpKey(name, keyTankFill)
	if v, ok, err := get(key); err != nil {
		return Saved{}, false, err
	} else if ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			err = errors.New("not a finite number")
		}
		if err != nil {
			return Saved{}, false, &ValueError{Key: key, Value: v, Err: err}
		}
		saved.TankFill = f
		found = true
	}

	return saved, found, nil
}

func lastDay(get func(string) (string, bool, error)) (calendar.Date, bool, error) {
	v, ok, err := get(keyDay)
	if err != nil || !ok {
		return calendar.Date{}, false, err
	}
	d, err := calendar.ParseFormat(dayFormat, v)
	if err != nil {
		return calendar.Date{}, false, &ValueError{Key: keyDay, Value: v, Err: err}
	}
	return d, true, nil
}

// ValueError reports a stored value that cannot be decoded.
type ValueError struct {
	Key   string
	Value string
	Err   error
}

func (e *ValueError) Error() string {
	return "storage: key " + strconv.Quote(e.Key) + " holds " + strconv.Quote(e.Value) + ": " + e.Err.Error()
}

func (e *ValueError) Unwrap() error { return e.Err }
