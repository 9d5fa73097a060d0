package logic

import (
	"time"

	"github.com/yves-gaignard/poolmanager/internal/pump"
)

// Watcher compares consecutive pump snapshots and reports transitions.
type Watcher struct {
	prev          map[string]pump.State
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewWatcher creates a watcher. The startTime is used for calculating
// uptime in heartbeat events.
func NewWatcher(startTime time.Time) *Watcher {
	return &Watcher{
		prev:          make(map[string]pump.State),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process takes the latest snapshots and returns the events they imply.
// The first snapshot of a pump is its baseline and emits nothing.
func (w *Watcher) Process(now time.Time, states []pump.State) []Event {
	var events []Event
	for _, s := range states {
		prev, seen := w.prev[s.Name]
		w.prev[s.Name] = s
		if !seen {
			continue
		}
		for _, t := range transitions(prev, s) {
			events = append(events, Event{
				Timestamp: now,
				Type:      t,
				Pump:      s.Name,
				UpTime:    s.UpTime,
				TankFill:  s.TankFill,
			})
			w.eventCounts.add(t)
		}
	}
	return events
}

// transitions lists what changed between two snapshots of the same pump,
// in a fixed order.
func transitions(prev, cur pump.State) []EventType {
	var out []EventType
	if !prev.Running && cur.Running {
		out = append(out, EventPumpOn)
	}
	if prev.Running && !cur.Running {
		out = append(out, EventPumpOff)
	}
	if !prev.UpTimeError && cur.UpTimeError {
		out = append(out, EventUpTimeFault)
	}
	if prev.UpTimeError && !cur.UpTimeError {
		out = append(out, EventFaultCleared)
	}
	if prev.TankLevel && !cur.TankLevel {
		out = append(out, EventTankLow)
	}
	if !prev.TankLevel && cur.TankLevel {
		out = append(out, EventTankOK)
	}
	return out
}

// IsBaselined reports whether every named pump has been seen once.
func (w *Watcher) IsBaselined(names ...string) bool {
	for _, n := range names {
		if _, ok := w.prev[n]; !ok {
			return false
		}
	}
	return len(w.prev) > 0
}

// Last returns the last snapshot seen for a pump.
func (w *Watcher) Last(name string) (pump.State, bool) {
	s, ok := w.prev[name]
	return s, ok
}

// EventCountsSnapshot returns the counts of events emitted so far.
func (w *Watcher) EventCountsSnapshot() EventCounts {
	return w.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (w *Watcher) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(w.lastHeartbeat) < interval {
		return nil
	}

	w.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(w.startTime),
		Counts:    w.eventCounts,
	}
}
