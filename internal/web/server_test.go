package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
	"github.com/yves-gaignard/poolmanager/internal/pump"
	"github.com/yves-gaignard/poolmanager/internal/status"
	"github.com/yves-gaignard/poolmanager/internal/storage"
	"github.com/yves-gaignard/poolmanager/internal/supervisor"
)

var start = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

type failingEvents struct{}

func (failingEvents) RecentEvents(int) ([]logic.Event, error) {
	return nil, errors.New("disk gone")
}

func newTestServer(t *testing.T, events EventSource) (*httptest.Server, *status.Tracker, *Server) {
	t.Helper()
	cfg := status.Config{
		PollMs:      1000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
		DateFormat:  "dd-mm-yyyy",
		Filtration:  "filtration 08h-20h",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(Options{
		Addr:           ":0",
		AllowedOrigins: []string{"http://pool.local"},
		PushInterval:   20 * time.Millisecond,
	}, tr, events, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, srv
}

func pumps() []pump.State {
	return []pump.State{
		{Name: "filtration", Running: true, UpTime: time.Hour, TankLevel: true, TankFill: 100, Interlock: true},
		{Name: "ph", UpTimeError: true, UpTime: 30 * time.Minute, MaxUpTime: 30 * time.Minute, TankFill: 42.5, TankLevel: true, Interlock: true},
	}
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t, nil)
	tr.Update(pumps(), true, logic.EventCounts{PumpOn: 5, UpTimeFault: 1})
	tr.SetDate(calendar.MustNew(14, 10, 2026))
	tr.SetMQTTConnected(true)

	sj := getStatus(t, ts.URL)
	if !sj.Status.Ready || !sj.Status.MQTT.Connected {
		t.Error("expected ready and connected")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if len(sj.Status.Pumps) != 2 || sj.Status.Pumps[1].Name != "ph" || !sj.Status.Pumps[1].UpTimeError {
		t.Errorf("pumps: got %+v", sj.Status.Pumps)
	}
	if sj.Status.Counts.PumpOn != 5 {
		t.Errorf("Counts.PumpOn: got %d, want 5", sj.Status.Counts.PumpOn)
	}
	if sj.Status.Date == nil || sj.Status.Date.Text != "14-10-2026" {
		t.Errorf("date: got %+v", sj.Status.Date)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr, _ := newTestServer(t, nil)

	if getStatus(t, ts.URL).Status.Ready {
		t.Error("expected Ready=false initially")
	}

	tr.Update(pumps(), true, logic.EventCounts{PumpOn: 1})
	sj := getStatus(t, ts.URL)
	if !sj.Status.Ready || !sj.Status.Pumps[0].Running {
		t.Error("update not reflected")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr, _ := newTestServer(t, nil)
	tr.Update(pumps(), true, logic.EventCounts{})
	tr.SetDate(calendar.MustNew(14, 10, 2026))

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	html := string(body)
	for _, want := range []string{"pump-ph-state", "FAULT", "42.5%", "2026-W42", "Wednesday", "filtration 08h-20h"} {
		if !strings.Contains(html, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestEventsEndpoint(t *testing.T) {
	store := storage.NewMemoryStore(10)
	for i, typ := range []logic.EventType{logic.EventPumpOn, logic.EventPumpOff, logic.EventTankLow} {
		store.InsertEvent(logic.Event{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Type:      typ,
			Pump:      "ph",
			UpTime:    time.Duration(i) * time.Minute,
		})
	}
	ts, _, _ := newTestServer(t, store)

	resp, err := http.Get(ts.URL + "/events.json?limit=2")
	if err != nil {
		t.Fatalf("GET /events.json: %v", err)
	}
	defer resp.Body.Close()

	var ej EventsJSON
	if err := json.NewDecoder(resp.Body).Decode(&ej); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if len(ej.Events) != 2 {
		t.Fatalf("events: got %d, want 2", len(ej.Events))
	}
	if ej.Events[0].Type != "TANK_LOW" || ej.Events[1].Type != "PUMP_OFF" {
		t.Errorf("order: got %s, %s", ej.Events[0].Type, ej.Events[1].Type)
	}
	if ej.Events[0].Date != "14-10-2026" || ej.Events[0].UpTimeSeconds != 120 {
		t.Errorf("event: got %+v", ej.Events[0])
	}
}

func TestEventsEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		events EventSource
		query  string
		want   int
	}{
		{"bad limit", nil, "?limit=abc", http.StatusBadRequest},
		{"zero limit", nil, "?limit=0", http.StatusBadRequest},
		{"no store", nil, "", http.StatusOK},
		{"store failure", failingEvents{}, "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, _ := newTestServer(t, tt.events)
			resp, err := http.Get(ts.URL + "/events.json" + tt.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestWebSocketPushesStatus(t *testing.T) {
	ts, tr, _ := newTestServer(t, nil)
	tr.Update(pumps(), true, logic.EventCounts{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first status.StatusJSON
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first push: %v", err)
	}
	if len(first.Status.Pumps) != 2 || first.Status.Pumps[0].Running != true {
		t.Errorf("first push: got %+v", first.Status.Pumps)
	}

	stopped := pumps()
	stopped[0].Running = false
	tr.Update(stopped, true, logic.EventCounts{PumpOff: 1})

	// Later pushes carry the new state.
	for {
		var next status.StatusJSON
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("read push: %v", err)
		}
		if next.Status.Counts.PumpOff == 1 {
			if next.Status.Pumps[0].Running {
				t.Error("filtration should be stopped")
			}
			break
		}
	}
}

func TestWebSocketOrigin(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{"http://pool.local", true},
		{ts.URL, true}, // same origin
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			h := http.Header{}
			if tt.origin != "" {
				h.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), h)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("expected rejection")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected 403, got %v", resp)
			}
		})
	}
}

func TestShutdownClosesWebSocket(t *testing.T) {
	ts, _, srv := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("expected going-away close, got %v", err)
			}
			return
		}
	}
}

type fakeCommands struct {
	cleared  []string
	refilled map[string]float64
}

func (f *fakeCommands) ClearFaults(name string) error {
	if name != "ph" {
		return fmt.Errorf("%q: %w", name, supervisor.ErrUnknownPump)
	}
	f.cleared = append(f.cleared, name)
	return nil
}

func (f *fakeCommands) Refill(name string, percent float64) error {
	if name != "ph" {
		return fmt.Errorf("%q: %w", name, supervisor.ErrUnknownPump)
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("refill %q: out of range", name)
	}
	if f.refilled == nil {
		f.refilled = make(map[string]float64)
	}
	f.refilled[name] = percent
	return nil
}

func TestCommands(t *testing.T) {
	cmds := &fakeCommands{}
	tr := status.NewTracker(start, status.Config{})
	srv := New(Options{Commands: cmds}, tr, nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"clear", http.MethodPost, "/pumps/clear?name=ph", http.StatusNoContent},
		{"clear unknown", http.MethodPost, "/pumps/clear?name=heater", http.StatusNotFound},
		{"clear missing name", http.MethodPost, "/pumps/clear", http.StatusBadRequest},
		{"clear by GET", http.MethodGet, "/pumps/clear?name=ph", http.StatusMethodNotAllowed},
		{"refill default", http.MethodPost, "/pumps/refill?name=ph", http.StatusNoContent},
		{"refill bad percent", http.MethodPost, "/pumps/refill?name=ph&percent=lots", http.StatusBadRequest},
		{"refill out of range", http.MethodPost, "/pumps/refill?name=ph&percent=120", http.StatusBadRequest},
		{"refill NaN", http.MethodPost, "/pumps/refill?name=ph&percent=NaN", http.StatusBadRequest},
		{"refill infinite", http.MethodPost, "/pumps/refill?name=ph&percent=-Inf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("%s %s: %v", tt.method, tt.path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	if len(cmds.cleared) != 1 || cmds.cleared[0] != "ph" {
		t.Errorf("cleared: %v", cmds.cleared)
	}
	if cmds.refilled["ph"] != 100 {
		t.Errorf("refilled: %v", cmds.refilled)
	}
}

func TestCommandsDisabled(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/pumps/clear?name=ph", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", resp.StatusCode)
	}
}
