package web

import (
	"encoding/json"
	"time"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
)

// EventsJSON is the JSON envelope of /events.json.
type EventsJSON struct {
	Events []EventJSON `json:"events"`
}

// EventJSON is one entry of the event log.
type EventJSON struct {
	Timestamp     string  `json:"timestamp"`
	Date          string  `json:"date,omitempty"`
	Type          string  `json:"type"`
	Pump          string  `json:"pump"`
	UpTimeSeconds int64   `json:"uptime_seconds"`
	TankFill      float64 `json:"tank_fill"`
}

func formatEvents(events []logic.Event) []byte {
	out := EventsJSON{Events: make([]EventJSON, 0, len(events))}
	for _, e := range events {
		ej := EventJSON{
			Timestamp:     e.Timestamp.UTC().Format(time.RFC3339),
			Type:          string(e.Type),
			Pump:          e.Pump,
			UpTimeSeconds: int64(e.UpTime / time.Second),
			TankFill:      e.TankFill,
		}
		if d, err := calendar.FromTime(e.Timestamp); err == nil {
			ej.Date = d.Text()
		}
		out.Events = append(out.Events, ej)
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return data
}
