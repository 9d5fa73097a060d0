package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Ready         bool       `json:"ready"`
	Date          *DateJSON  `json:"date,omitempty"`
	Filtration    bool       `json:"filtration_window"`
	Pumps         []PumpJSON `json:"pumps"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Config        ConfigJSON `json:"config"`
}

// DateJSON is the calendar view of the current day.
type DateJSON struct {
	Text    string `json:"text"`
	Display string `json:"display"`
	Weekday string `json:"weekday"`
	Week    string `json:"week"`
	Leap    bool   `json:"leap_year"`
}

// PumpJSON is the JSON representation of one pump.
type PumpJSON struct {
	Name                    string  `json:"name"`
	Running                 bool    `json:"running"`
	UpTimeSeconds           int64   `json:"uptime_seconds"`
	MaxUpTimeSeconds        int64   `json:"max_uptime_seconds"`
	CurrentMaxUpTimeSeconds int64   `json:"current_max_uptime_seconds"`
	UpTimeError             bool    `json:"uptime_error"`
	TankLevel               string  `json:"tank_level"`
	TankFill                float64 `json:"tank_fill"`
	Interlock               bool    `json:"interlock"`
	StartTime               string  `json:"start_time,omitempty"`
	StopTime                string  `json:"stop_time,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	PumpOn       int `json:"pump_on"`
	PumpOff      int `json:"pump_off"`
	UpTimeFault  int `json:"uptime_fault"`
	FaultCleared int `json:"fault_cleared"`
	TankLow      int `json:"tank_low"`
	TankOK       int `json:"tank_ok"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	SaveMs      int64  `json:"save_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	DateFormat  string `json:"date_format"`
	Filtration  string `json:"filtration,omitempty"`
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Baselined,
		Filtration:    snap.FiltrationWanted,
		Pumps:         make([]PumpJSON, 0, len(snap.Pumps)),
		UptimeSeconds: seconds(snap.Uptime()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PumpOn:       snap.Counts.PumpOn,
			PumpOff:      snap.Counts.PumpOff,
			UpTimeFault:  snap.Counts.UpTimeFault,
			FaultCleared: snap.Counts.FaultCleared,
			TankLow:      snap.Counts.TankLow,
			TankOK:       snap.Counts.TankOK,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			SaveMs:      snap.Config.SaveMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			DateFormat:  snap.Config.DateFormat,
			Filtration:  snap.Config.Filtration,
		},
	}

	if !snap.Date.IsZero() {
		inner.Date = &DateJSON{
			Text:    snap.Date.Text(),
			Display: snap.Date.String(),
			Weekday: snap.Date.Weekday().String(),
			Week:    snap.Date.Week().String(),
			Leap:    snap.Date.IsLeapYear(),
		}
	}

	for _, p := range snap.Pumps {
		level := "OK"
		if !p.TankLevel {
			level = "LOW"
		}
		inner.Pumps = append(inner.Pumps, PumpJSON{
			Name:                    p.Name,
			Running:                 p.Running,
			UpTimeSeconds:           seconds(p.UpTime),
			MaxUpTimeSeconds:        seconds(p.MaxUpTime),
			CurrentMaxUpTimeSeconds: seconds(p.CurrentMaxUpTime),
			UpTimeError:             p.UpTimeError,
			TankLevel:               level,
			TankFill:                p.TankFill,
			Interlock:               p.Interlock,
			StartTime:               timestamp(p.StartTime),
			StopTime:                timestamp(p.StopTime),
		})
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoints (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
