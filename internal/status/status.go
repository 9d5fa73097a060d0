// Package status provides a thread-safe view of the controller for the
// HTTP and websocket handlers and for MQTT status events.
package status

import (
	"sync"
	"time"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
	"github.com/yves-gaignard/poolmanager/internal/pump"
)

// Config contains controller configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	SaveMs      int64
	Broker      string
	HTTPAddr    string
	DateFormat  string
	Filtration  string // e.g. "filtration 08h-20h"
}

// Snapshot is a point-in-time copy of controller state, safe to use after
// the lock is released.
type Snapshot struct {
	Pumps            []pump.State
	Date             calendar.Date
	FiltrationWanted bool
	Baselined        bool
	Counts           logic.EventCounts
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	Config           Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Pump returns the state of the named pump.
func (s Snapshot) Pump(name string) (pump.State, bool) {
	for _, p := range s.Pumps {
		if p.Name == name {
			return p, true
		}
	}
	return pump.State{}, false
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update records the latest pump states, baseline status and event counts.
// Called by the supervisor on every tick.
func (t *Tracker) Update(pumps []pump.State, baselined bool, counts logic.EventCounts) {
	cp := make([]pump.State, len(pumps))
	copy(cp, pumps)

	t.mu.Lock()
	t.snap.Pumps = cp
	t.snap.Baselined = baselined
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetDate records the current calendar day.
func (t *Tracker) SetDate(d calendar.Date) {
	t.mu.Lock()
	t.snap.Date = d
	t.mu.Unlock()
}

// SetFiltrationWanted records whether the filtration window is open.
func (t *Tracker) SetFiltrationWanted(wanted bool) {
	t.mu.Lock()
	t.snap.FiltrationWanted = wanted
	t.mu.Unlock()
}

func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a copy of the controller state, with Now set by the
// tracker's clock.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Pumps = append([]pump.State(nil), s.Pumps...)
	s.Now = now()
	return s
}
