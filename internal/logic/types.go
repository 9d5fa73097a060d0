// Package logic contains pure business logic for pump event detection.
// This package has NO I/O (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// EventType represents a pump state transition.
type EventType string

const (
	EventPumpOn       EventType = "PUMP_ON"
	EventPumpOff      EventType = "PUMP_OFF"
	EventUpTimeFault  EventType = "UPTIME_FAULT"
	EventFaultCleared EventType = "FAULT_CLEARED"
	EventTankLow      EventType = "TANK_LOW"
	EventTankOK       EventType = "TANK_OK"
)

// Event represents a state transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Pump      string
	UpTime    time.Duration
	TankFill  float64
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	PumpOn       int
	PumpOff      int
	UpTimeFault  int
	FaultCleared int
	TankLow      int
	TankOK       int
}

func (c *EventCounts) add(t EventType) {
	switch t {
	case EventPumpOn:
		c.PumpOn++
	case EventPumpOff:
		c.PumpOff++
	case EventUpTimeFault:
		c.UpTimeFault++
	case EventFaultCleared:
		c.FaultCleared++
	case EventTankLow:
		c.TankLow++
	case EventTankOK:
		c.TankOK++
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
