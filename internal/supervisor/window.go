package supervisor

import (
	"fmt"
	"time"
)

// Window is a daily run window in whole hours, local to the clock's
// location. A window whose stop hour is before its start hour runs across
// midnight. Equal hours make an empty window.
type Window struct {
	StartHour int
	StopHour  int
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	h := t.Hour()
	switch {
	case w.StartHour == w.StopHour:
		return false
	case w.StartHour < w.StopHour:
		return h >= w.StartHour && h < w.StopHour
	default:
		return h >= w.StartHour || h < w.StopHour
	}
}

// Duration is the daily length of the window.
func (w Window) Duration() time.Duration {
	hours := (w.StopHour - w.StartHour + 24) % 24
	return time.Duration(hours) * time.Hour
}

func (w Window) String() string {
	return fmt.Sprintf("%02dh-%02dh", w.StartHour, w.StopHour)
}
