package pump

import "time"

// State is a point-in-time copy of a pump, read by persistence, status
// and event consumers.
type State struct {
	Name             string
	Running          bool
	UpTime           time.Duration
	MaxUpTime        time.Duration
	CurrentMaxUpTime time.Duration
	UpTimeError      bool
	TankLevel        bool
	TankFill         float64 // estimated, percent
	ConfiguredFill   float64 // percent at last refill
	Interlock        bool
	StartTime        time.Time
	StopTime         time.Time
}

// Snapshot reads the sensors and returns the pump's current state.
func (p *Pump) Snapshot() State {
	return State{
		Name:             p.cfg.Name,
		Running:          p.IsRunning(),
		UpTime:           p.upTime,
		MaxUpTime:        p.maxUpTime,
		CurrentMaxUpTime: p.currentMaxUpTime,
		UpTimeError:      p.upTimeError,
		TankLevel:        p.TankLevel(),
		TankFill:         p.TankFill(),
		ConfiguredFill:   p.tankFill,
		Interlock:        p.Interlock(),
		StartTime:        p.startTime,
		StopTime:         p.stopTime,
	}
}
