// Package pump implements the run-time and safety governor for one
// physical pump: daily uptime budget, tank level and interlock gating, and
// tank fill estimation from flow rate.
//
// A Pump is driven by a single control loop: Loop is called every tick and
// Start/Stop are called from the schedule. It is not safe for concurrent use.
package pump

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/yves-gaignard/poolmanager/internal/gpio"
)

// Pin sentinels for optional inputs.
const (
	// NoTank: the pump draws from no tank; the level always reads full.
	NoTank = 255
	// NoLevel: the tank has no level switch; the level is inferred from
	// the computed fill percentage.
	NoLevel = 170
	// NoInterlock: the pump has no interlock input.
	NoInterlock = 255
)

// emptyThreshold is the fill percentage below which a tank without a
// level switch counts as empty.
const emptyThreshold = 5.0

// Config is the static wiring and capacity of a pump.
type Config struct {
	Name         string
	ControlPin   int
	RunningPin   int
	TankLevelPin int // NoTank, NoLevel, or a pin that reads high when full
	InterlockPin int // NoInterlock, or a pin that reads high when OK

	FlowRate   float64 // liters per hour
	TankVolume float64 // liters
	TankFill   float64 // percent at last refill

	// MaxUpTime is the daily run-time budget; 0 disables the limit.
	MaxUpTime time.Duration
}

// Reason explains why Start would refuse to run the pump.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonRunning
	ReasonUpTimeError
	ReasonTankEmpty
	ReasonInterlock
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonRunning:
		return "already running"
	case ReasonUpTimeError:
		return "uptime exceeded"
	case ReasonTankEmpty:
		return "tank empty"
	case ReasonInterlock:
		return "interlock open"
	default:
		return "unknown"
	}
}

// Pump tracks uptime and gates start/stop of one pump.
type Pump struct {
	cfg  Config
	pins gpio.Pins
	now  func() time.Time
	log  zerolog.Logger

	flowRate   float64
	tankVolume float64
	tankFill   float64

	upTime           time.Duration
	maxUpTime        time.Duration
	currentMaxUpTime time.Duration
	upTimeError      bool

	lastLoop  time.Time
	startTime time.Time
	stopTime  time.Time
}

// New creates a pump governor. now is the monotonic clock used for uptime.
func New(cfg Config, pins gpio.Pins, now func() time.Time, logger zerolog.Logger) *Pump {
	return &Pump{
		cfg:              cfg,
		pins:             pins,
		now:              now,
		log:              logger.With().Str("pump", cfg.Name).Logger(),
		flowRate:         cfg.FlowRate,
		tankVolume:       cfg.TankVolume,
		tankFill:         cfg.TankFill,
		maxUpTime:        cfg.MaxUpTime,
		currentMaxUpTime: cfg.MaxUpTime,
		lastLoop:         now(),
	}
}

// Loop accumulates uptime and enforces the safety checks. The tank and
// interlock checks apply whatever the current state.
func (p *Pump) Loop() {
	now := p.now()
	if p.IsRunning() {
		p.upTime += now.Sub(p.lastLoop)
	}
	p.lastLoop = now

	if !p.TankLevel() {
		if p.Stop() {
			p.log.Warn().Float64("tank_fill", p.TankFill()).Msg("stopped: tank empty")
		}
	}
	if p.cfg.InterlockPin != NoInterlock && !p.Interlock() {
		if p.Stop() {
			p.log.Warn().Msg("stopped: interlock open")
		}
	}
	if p.currentMaxUpTime > 0 && p.upTime >= p.currentMaxUpTime {
		p.Stop()
		if !p.upTimeError {
			p.log.Warn().Dur("uptime", p.upTime).Dur("max_uptime", p.currentMaxUpTime).Msg("uptime budget exceeded")
		}
		p.upTimeError = true
	}
}

// Blocked returns why Start would refuse, or ReasonNone.
func (p *Pump) Blocked() Reason {
	switch {
	case p.IsRunning():
		return ReasonRunning
	case p.upTimeError:
		return ReasonUpTimeError
	case !p.TankLevel():
		return ReasonTankEmpty
	case p.cfg.InterlockPin != NoInterlock && !p.Interlock():
		return ReasonInterlock
	}
	return ReasonNone
}

// Start switches the pump on. It returns false, leaving the pump untouched,
// if the pump is already running, faulted, its tank is empty or its
// interlock is open.
func (p *Pump) Start() bool {
	if r := p.Blocked(); r != ReasonNone {
		p.log.Debug().Stringer("reason", r).Msg("start refused")
		return false
	}
	if err := p.pins.Write(p.cfg.ControlPin, true); err != nil {
		p.log.Error().Err(err).Msg("start: drive control pin")
		return false
	}
	now := p.now()
	p.lastLoop = now
	p.startTime = now
	return true
}

// Stop switches the pump off and flushes uptime. It returns false if the
// pump was not running.
func (p *Pump) Stop() bool {
	running, err := p.pins.Read(p.cfg.RunningPin)
	if err != nil {
		p.log.Error().Err(err).Msg("stop: read running sensor")
		if err := p.pins.Write(p.cfg.ControlPin, false); err != nil {
			p.log.Error().Err(err).Msg("stop: drive control pin")
		}
		return false
	}
	if !running {
		return false
	}
	if err := p.pins.Write(p.cfg.ControlPin, false); err != nil {
		p.log.Error().Err(err).Msg("stop: drive control pin")
		return false
	}
	now := p.now()
	p.upTime += now.Sub(p.lastLoop)
	p.lastLoop = now
	p.stopTime = now
	return true
}

// IsRunning reports the running sensor. A read error counts as not running.
func (p *Pump) IsRunning() bool {
	running, err := p.pins.Read(p.cfg.RunningPin)
	if err != nil {
		p.log.Error().Err(err).Msg("read running sensor")
		return false
	}
	return running
}

// TankLevel reports whether the tank holds enough liquid to run.
func (p *Pump) TankLevel() bool {
	switch p.cfg.TankLevelPin {
	case NoTank:
		return true
	case NoLevel:
		return p.TankFill() >= emptyThreshold
	}
	full, err := p.pins.Read(p.cfg.TankLevelPin)
	if err != nil {
		p.log.Error().Err(err).Msg("read tank level")
		return false
	}
	return full
}

// Interlock reports whether the interlock input allows running. A pump
// without an interlock is always OK.
func (p *Pump) Interlock() bool {
	if p.cfg.InterlockPin == NoInterlock {
		return true
	}
	ok, err := p.pins.Read(p.cfg.InterlockPin)
	if err != nil {
		p.log.Error().Err(err).Msg("read interlock")
		return false
	}
	return ok
}

// TankUsage returns the percentage of the tank pumped since the uptime was
// last reset, or -1 when flow rate or tank volume is unknown.
func (p *Pump) TankUsage() float64 {
	if p.flowRate == 0 || p.tankVolume == 0 {
		return -1
	}
	liters := p.flowRate / 60 * p.upTime.Minutes()
	return liters / p.tankVolume * 100
}

// TankFill returns the estimated fill percentage. It goes negative once
// more than the remaining content has been pumped. With unknown usage the
// configured fill is returned unchanged.
func (p *Pump) TankFill() float64 {
	usage := p.TankUsage()
	if usage < 0 {
		return p.tankFill
	}
	return p.tankFill - usage
}

// ClearErrors acknowledges an uptime fault, granting one more MaxUpTime
// of run time. Accumulated uptime is kept.
func (p *Pump) ClearErrors() {
	if !p.upTimeError {
		return
	}
	p.currentMaxUpTime += p.maxUpTime
	p.upTimeError = false
	p.log.Info().Dur("max_uptime", p.currentMaxUpTime).Msg("uptime fault cleared")
}

// ResetUpTime starts a new budget period. It does not clear a fault.
func (p *Pump) ResetUpTime() {
	p.upTime = 0
	p.startTime = time.Time{}
	p.stopTime = time.Time{}
	p.currentMaxUpTime = p.maxUpTime
}

// SetMaxUpTime changes the daily budget and the effective limit.
func (p *Pump) SetMaxUpTime(d time.Duration) {
	p.maxUpTime = d
	p.currentMaxUpTime = d
}

// SetCurrentMaxUpTime restores an effective limit extended by ClearErrors.
// It never lowers the limit below the daily budget and is ignored when the
// budget is disabled.
func (p *Pump) SetCurrentMaxUpTime(d time.Duration) {
	if p.maxUpTime > 0 && d > p.maxUpTime {
		p.currentMaxUpTime = d
	}
}

// SetUpTime restores persisted uptime.
func (p *Pump) SetUpTime(d time.Duration) { p.upTime = d }

// SetTankFill restores the persisted fill, or records a refill.
func (p *Pump) SetTankFill(percent float64) { p.tankFill = percent }

func (p *Pump) SetFlowRate(litersPerHour float64) { p.flowRate = litersPerHour }
func (p *Pump) SetTankVolume(liters float64)      { p.tankVolume = liters }

func (p *Pump) Name() string                    { return p.cfg.Name }
func (p *Pump) Config() Config                  { return p.cfg }
func (p *Pump) UpTime() time.Duration           { return p.upTime }
func (p *Pump) MaxUpTime() time.Duration        { return p.maxUpTime }
func (p *Pump) CurrentMaxUpTime() time.Duration { return p.currentMaxUpTime }
func (p *Pump) UpTimeError() bool               { return p.upTimeError }
func (p *Pump) StartTime() time.Time            { return p.startTime }
func (p *Pump) StopTime() time.Time             { return p.stopTime }
func (p *Pump) ConfiguredFill() float64         { return p.tankFill }
