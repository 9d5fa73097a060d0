// Package mqtt publishes pump and system events, with a fake for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
)

// Topic is the MQTT topic for pump transition events.
const Topic = "pool/pumps/events"

// TopicSystem is the MQTT topic for lifecycle and heartbeat events.
const TopicSystem = "pool/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pump event. Failures are returned, never fatal.
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event such as STARTUP, SHUTDOWN or HEARTBEAT.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only, e.g. "SIGTERM"
	RawPayload []byte // pre-formatted JSON, sent as is when set
	Retained   bool
}

// Payload is the JSON body of a pump event.
type Payload struct {
	Pump PumpPayload `json:"pump"`
}

// PumpPayload contains the pump event details.
type PumpPayload struct {
	Timestamp     string  `json:"timestamp"`
	Date          string  `json:"date,omitempty"`
	Week          string  `json:"week,omitempty"`
	Event         string  `json:"event"`
	Name          string  `json:"name"`
	UpTimeSeconds int64   `json:"uptime_seconds"`
	TankFill      float64 `json:"tank_fill"`
}

// FormatPayload creates the JSON payload for a pump event. The calendar
// fields use the active date format and are left out for timestamps
// outside the supported years.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := PumpPayload{
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339),
		Event:         string(event.Type),
		Name:          event.Pump,
		UpTimeSeconds: int64(event.UpTime / time.Second),
		TankFill:      event.TankFill,
	}
	if d, err := calendar.FromTime(event.Timestamp); err == nil {
		p.Date = d.Text()
		p.Week = d.Week().String()
	}
	return json.Marshal(Payload{Pump: p})
}

// SystemPayload is the JSON body of simple system events (LWT, RECONNECTED).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// RawPayload, when set, is returned unchanged.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// WillPayload is the last-will message the broker sends if the
// controller drops off without a clean shutdown.
func WillPayload() []byte {
	b, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE"}})
	return b
}
