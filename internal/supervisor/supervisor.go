// Package supervisor runs the control loop: it drives every pump governor
// once per tick, runs the filtration schedule, resets daily budgets at
// midnight, and feeds the event watcher, MQTT, the store and the status
// tracker.
package supervisor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
	"github.com/yves-gaignard/poolmanager/internal/mqtt"
	"github.com/yves-gaignard/poolmanager/internal/pump"
	"github.com/yves-gaignard/poolmanager/internal/status"
	"github.com/yves-gaignard/poolmanager/internal/storage"
)

// ErrUnknownPump is returned by commands naming a pump that does not exist.
var ErrUnknownPump = errors.New("unknown pump")

// Options configures the control loop.
type Options struct {
	Filtration       string // pump run by Window; empty disables the schedule
	Window           Window
	SaveInterval     time.Duration
	Heartbeat        time.Duration // 0 disables
	ClearFaultsDaily bool          // acknowledge uptime faults at day rollover
}

// Deps are the collaborators of the supervisor. Publisher, Conn and
// Tracker may be nil.
type Deps struct {
	Publisher mqtt.Publisher
	Conn      mqtt.ConnectionStatus
	Store     storage.Store
	Tracker   *status.Tracker
}

// Supervisor owns the pumps. Tick and the commands are serialized.
type Supervisor struct {
	mu sync.Mutex

	pumps  []*pump.Pump
	byName map[string]*pump.Pump
	opts   Options
	deps   Deps
	log    zerolog.Logger

	watcher  *logic.Watcher
	day      calendar.Date
	lastSave time.Time
	wanted   bool
	refusal  pump.Reason
	badDate  bool
}

// New creates a supervisor. start is the time uptime of the controller is
// counted from.
func New(pumps []*pump.Pump, opts Options, deps Deps, start time.Time, logger zerolog.Logger) (*Supervisor, error) {
	if deps.Store == nil {
		return nil, errors.New("supervisor: a store is required")
	}
	s := &Supervisor{
		pumps:    pumps,
		byName:   make(map[string]*pump.Pump, len(pumps)),
		opts:     opts,
		deps:     deps,
		log:      logger,
		watcher:  logic.NewWatcher(start),
		lastSave: start,
	}
	for _, p := range pumps {
		s.byName[p.Name()] = p
	}
	if opts.Filtration != "" {
		if _, ok := s.byName[opts.Filtration]; !ok {
			return nil, fmt.Errorf("supervisor: filtration pump %q: %w", opts.Filtration, ErrUnknownPump)
		}
	}
	return s, nil
}

// Restore loads persisted counters. On the same day an extended limit from
// an acknowledged fault is kept. Uptime saved on an earlier day is dropped,
// carrying the tank fill forward, as a rollover would have done.
func (s *Supervisor) Restore(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	today, err := calendar.FromTime(now)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	last, haveDay, err := s.deps.Store.LastDay()
	if err != nil {
		return fmt.Errorf("restore: last day: %w", err)
	}
	sameDay := haveDay && last.Equal(today)

	for _, p := range s.pumps {
		saved, found, err := s.deps.Store.LoadPump(p.Name())
		if err != nil {
			return fmt.Errorf("restore %s: %w", p.Name(), err)
		}
		if !found {
			continue
		}
		p.SetTankFill(saved.TankFill)
		p.SetUpTime(saved.UpTime)
		if sameDay {
			p.SetCurrentMaxUpTime(saved.CurrentMaxUpTime)
		} else {
			carryFill(p)
			p.ResetUpTime()
		}
		s.log.Info().
			Str("pump", p.Name()).
			Dur("uptime", p.UpTime()).
			Float64("tank_fill", p.TankFill()).
			Bool("same_day", sameDay).
			Msg("Pump state restored")
	}

	s.day = today
	if err := s.deps.Store.Checkpoint(today); err != nil {
		return fmt.Errorf("restore: checkpoint: %w", err)
	}
	return nil
}

// carryFill folds the usage since the last reset into the configured fill,
// so that resetting uptime does not refill the tank.
func carryFill(p *pump.Pump) {
	if p.TankUsage() >= 0 {
		p.SetTankFill(p.TankFill())
	}
}

// Tick runs one control cycle at now.
func (s *Supervisor) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollover(now)
	for _, p := range s.pumps {
		p.Loop()
	}
	s.schedule(now)

	states := s.states()
	events := s.watcher.Process(now, states)
	for _, e := range events {
		s.record(e)
	}

	s.updateTracker(states)
	s.heartbeat(now)

	if len(events) > 0 || (s.opts.SaveInterval > 0 && now.Sub(s.lastSave) >= s.opts.SaveInterval) {
		s.save(now, states)
	}
}

// rollover starts a new budget period when the calendar day changes.
func (s *Supervisor) rollover(now time.Time) {
	today, err := calendar.FromTime(now)
	if err != nil {
		if !s.badDate {
			s.log.Error().Err(err).Msg("Clock outside the calendar range, daily reset disabled")
			s.badDate = true
		}
		return
	}
	s.badDate = false
	if s.day.Equal(today) {
		return
	}
	if s.day.IsZero() {
		s.day = today
		s.checkpoint()
		return
	}

	s.log.Info().Str("from", s.day.Text()).Str("to", today.Text()).Msg("Day rollover")
	for _, p := range s.pumps {
		if s.opts.ClearFaultsDaily {
			p.ClearErrors()
		}
		carryFill(p)
		p.ResetUpTime()
	}
	s.day = today
	s.checkpoint()
}

func (s *Supervisor) checkpoint() {
	if err := s.deps.Store.Checkpoint(s.day); err != nil {
		s.log.Error().Err(err).Msg("Failed to checkpoint day")
	}
}

// schedule keeps the filtration pump in line with its window.
func (s *Supervisor) schedule(now time.Time) {
	if s.opts.Filtration == "" {
		return
	}
	p := s.byName[s.opts.Filtration]
	wanted := s.opts.Window.Contains(now)
	if wanted != s.wanted {
		s.log.Info().Bool("open", wanted).Stringer("window", s.opts.Window).Msg("Filtration window changed")
		s.wanted = wanted
		s.refusal = pump.ReasonNone
	}

	if !wanted {
		if p.Stop() {
			s.log.Info().Str("pump", p.Name()).Msg("Filtration stopped")
		}
		return
	}
	if p.IsRunning() {
		return
	}
	if p.Start() {
		s.log.Info().Str("pump", p.Name()).Msg("Filtration started")
		s.refusal = pump.ReasonNone
		return
	}
	// Log each refusal reason once per window.
	if r := p.Blocked(); r != s.refusal {
		s.log.Warn().Str("pump", p.Name()).Stringer("reason", r).Msg("Filtration start refused")
		s.refusal = r
	}
}

func (s *Supervisor) states() []pump.State {
	out := make([]pump.State, len(s.pumps))
	for i, p := range s.pumps {
		out[i] = p.Snapshot()
	}
	return out
}

func (s *Supervisor) record(e logic.Event) {
	s.log.Info().
		Str("pump", e.Pump).
		Str("event", string(e.Type)).
		Dur("uptime", e.UpTime).
		Float64("tank_fill", e.TankFill).
		Msg("Pump event")
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Publish(e); err != nil {
			s.log.Warn().Err(err).Str("event", string(e.Type)).Msg("Failed to publish event")
		}
	}
	if err := s.deps.Store.InsertEvent(e); err != nil {
		s.log.Error().Err(err).Msg("Failed to store event")
	}
}

func (s *Supervisor) names() []string {
	out := make([]string, len(s.pumps))
	for i, p := range s.pumps {
		out[i] = p.Name()
	}
	return out
}

func (s *Supervisor) updateTracker(states []pump.State) {
	t := s.deps.Tracker
	if t == nil {
		return
	}
	t.Update(states, s.watcher.IsBaselined(s.names()...), s.watcher.EventCountsSnapshot())
	t.SetDate(s.day)
	t.SetFiltrationWanted(s.wanted)
	if s.deps.Conn != nil {
		t.SetMQTTConnected(s.deps.Conn.IsConnected())
	}
}

func (s *Supervisor) heartbeat(now time.Time) {
	hb := s.watcher.CheckHeartbeat(now, s.opts.Heartbeat)
	if hb == nil {
		return
	}
	s.log.Debug().Dur("uptime", hb.Uptime).Msg("Heartbeat")
	s.publishSystem(now, "HEARTBEAT", "", false)
}

func (s *Supervisor) publishSystem(now time.Time, event, reason string, retained bool) {
	if s.deps.Publisher == nil {
		return
	}
	e := mqtt.SystemEvent{Timestamp: now, Event: event, Reason: reason, Retained: retained}
	if s.deps.Tracker != nil {
		e.RawPayload = status.FormatStatusEvent(s.deps.Tracker.Snapshot(), event, reason)
	}
	if err := s.deps.Publisher.PublishSystem(e); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("Failed to publish system event")
	}
}

func (s *Supervisor) save(now time.Time, states []pump.State) {
	for _, st := range states {
		if err := s.deps.Store.SavePump(st); err != nil {
			s.log.Error().Err(err).Str("pump", st.Name).Msg("Failed to save pump state")
		}
	}
	s.lastSave = now
}

// Startup refreshes the tracker and announces the controller.
func (s *Supervisor) Startup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateTracker(s.states())
	s.publishSystem(now, "STARTUP", "", true)
}

// Shutdown stops every pump, persists state and announces the shutdown.
func (s *Supervisor) Shutdown(now time.Time, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pumps {
		if p.Stop() {
			s.log.Info().Str("pump", p.Name()).Msg("Stopped for shutdown")
		}
	}
	states := s.states()
	s.save(now, states)
	s.updateTracker(states)
	s.publishSystem(now, "SHUTDOWN", reason, true)
}

// ClearFaults acknowledges the uptime fault of the named pump.
func (s *Supervisor) ClearFaults(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownPump)
	}
	p.ClearErrors()
	return nil
}

// Refill records that the tank of the named pump now holds percent. The
// uptime budget is left alone.
func (s *Supervisor) Refill(name string, percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return fmt.Errorf("refill %q: %v%% outside 0..100", name, percent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownPump)
	}
	fill := percent
	if usage := p.TankUsage(); usage > 0 {
		fill += usage
	}
	p.SetTankFill(fill)
	s.log.Info().Str("pump", name).Float64("tank_fill", percent).Msg("Tank refilled")
	return nil
}

// Pumps returns the current state of every pump.
func (s *Supervisor) Pumps() []pump.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states()
}

// Day returns the calendar day the supervisor is running.
func (s *Supervisor) Day() calendar.Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}
