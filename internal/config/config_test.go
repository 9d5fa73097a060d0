package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/pump"
)

const sample = `
date_format: "d/m/yy"
pumps:
  - name: filtration
    control_pin: 17
    running_pin: 27
    interlock_pin: none
  - name: ph
    control_pin: 22
    running_pin: 23
    tank_level_pin: computed
    interlock_pin: 24
    flow_rate: 1.5
    tank_volume: 20
    tank_fill: 80
    max_uptime: 30m
  - name: chlorine
    control_pin: 5
    running_pin: 6
    tank_level_pin: 13
    interlock_pin: 24
filtration:
  pump: filtration
  start_hour: 22
  stop_hour: 6
mqtt:
  broker: "tcp://192.168.1.200:1883"
  password: "secret"
http:
  addr: ":8080"
  allowed_origins: ["http://pool.local"]
database:
  path: "/var/lib/poolmanager/state.db"
logging:
  level: debug
  format: console
poll:
  interval: 500ms
  heartbeat: 15m
  clear_faults_daily: true
`

func parse(t *testing.T, data string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cfg
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolmanager.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.Pumps) != 3 {
		t.Fatalf("Pumps = %d, want 3", len(cfg.Pumps))
	}
	if cfg.Pumps[1].MaxUpTime != 30*time.Minute {
		t.Errorf("ph MaxUpTime = %v, want 30m", cfg.Pumps[1].MaxUpTime)
	}
	if cfg.Filtration.StartHour != 22 || cfg.Filtration.StopHour != 6 {
		t.Errorf("Filtration = %+v", cfg.Filtration)
	}
	if cfg.Poll.Interval != 500*time.Millisecond || cfg.Poll.Heartbeat != 15*time.Minute || !cfg.Poll.ClearFaultsDaily {
		t.Errorf("Poll = %+v", cfg.Poll)
	}
	if cfg.HTTP.AllowedOrigins[0] != "http://pool.local" {
		t.Errorf("AllowedOrigins = %v", cfg.HTTP.AllowedOrigins)
	}
	if got := cfg.Format(); got.Day != calendar.DayD || got.Year != calendar.YearYY || got.Separator != '/' {
		t.Errorf("Format = %+v", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPumpConfigSentinels(t *testing.T) {
	cfg := parse(t, sample)

	tests := []struct {
		idx       int
		tank      int
		interlock int
		fill      float64
	}{
		{0, pump.NoTank, pump.NoInterlock, 100},
		{1, pump.NoLevel, 24, 80},
		{2, 13, 24, 100},
	}
	for _, tt := range tests {
		pc := cfg.Pumps[tt.idx].PumpConfig()
		if pc.TankLevelPin != tt.tank {
			t.Errorf("%s: TankLevelPin = %d, want %d", pc.Name, pc.TankLevelPin, tt.tank)
		}
		if pc.InterlockPin != tt.interlock {
			t.Errorf("%s: InterlockPin = %d, want %d", pc.Name, pc.InterlockPin, tt.interlock)
		}
		if pc.TankFill != tt.fill {
			t.Errorf("%s: TankFill = %v, want %v", pc.Name, pc.TankFill, tt.fill)
		}
	}
}

func TestPins(t *testing.T) {
	cfg := parse(t, sample)

	outputs := cfg.Outputs()
	if len(outputs) != 3 || outputs[0] != 17 || outputs[1] != 22 || outputs[2] != 5 {
		t.Errorf("Outputs = %v", outputs)
	}

	// 24 is shared by two interlocks and listed once.
	want := []int{27, 23, 24, 6, 13}
	inputs := cfg.Inputs()
	if len(inputs) != len(want) {
		t.Fatalf("Inputs = %v, want %v", inputs, want)
	}
	for i := range want {
		if inputs[i] != want[i] {
			t.Errorf("Inputs[%d] = %d, want %d", i, inputs[i], want[i])
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := parse(t, `
pumps:
  - name: filtration
    control_pin: 17
    running_pin: 27
`)

	if cfg.DateFormat != "dd-mm-yyyy" {
		t.Errorf("DateFormat = %q", cfg.DateFormat)
	}
	if cfg.GPIO.Chip != "gpiochip0" {
		t.Errorf("GPIO.Chip = %q", cfg.GPIO.Chip)
	}
	if cfg.Poll.Interval != time.Second || cfg.Poll.SaveInterval != time.Minute || cfg.Poll.Heartbeat != 0 {
		t.Errorf("Poll = %+v", cfg.Poll)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.MQTT.BufferSize != 100 || cfg.MQTT.ClientID != "poolmanager" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.Database.Path != "" || cfg.Database.MaxEvents != 1000 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if *cfg.Pumps[0].TankFill != 100 {
		t.Errorf("TankFill = %v", *cfg.Pumps[0].TankFill)
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("POOL_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("POOL_LOG_LEVEL", "warn")
	t.Setenv("POOL_DATE_FORMAT", "dd.mm.yyyy")
	t.Setenv("POOL_POLL_INTERVAL", "250ms")

	cfg := parse(t, sample)
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("MQTT.Broker = %q", cfg.MQTT.Broker)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Format().Separator != '.' {
		t.Errorf("DateFormat = %q", cfg.DateFormat)
	}
	if cfg.Poll.Interval != 250*time.Millisecond {
		t.Errorf("Poll.Interval = %v", cfg.Poll.Interval)
	}
}

func TestOverrideFromEnvBadDuration(t *testing.T) {
	t.Setenv("POOL_POLL_INTERVAL", "soon")
	if _, err := Parse([]byte(sample)); err == nil {
		t.Error("expected error for bad POOL_POLL_INTERVAL")
	}
}

func TestValidate(t *testing.T) {
	base := `
pumps:
  - name: filtration
    control_pin: 17
    running_pin: 27
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no pumps", "date_format: dd-mm-yyyy\n", "at least one pump"},
		{"bad date format", base + "date_format: yyyy-mm-dd\n", "date_format"},
		{"bad level", base + "logging:\n  level: loud\n", "logging.level"},
		{"bad log format", base + "logging:\n  format: xml\n", "logging.format"},
		{"fast poll", base + "poll:\n  interval: 1ms\n", "poll.interval"},
		{"unknown filtration pump", base + "filtration:\n  pump: heater\n  start_hour: 8\n  stop_hour: 20\n", "unknown pump"},
		{"bad hour", base + "filtration:\n  pump: filtration\n  start_hour: 8\n  stop_hour: 24\n", "0..23"},
		{"equal hours", base + "filtration:\n  pump: filtration\n  start_hour: 8\n  stop_hour: 8\n", "differ"},
		{"missing name", "pumps:\n  - control_pin: 1\n    running_pin: 2\n", "name is required"},
		{"duplicate name", base + "  - name: filtration\n    control_pin: 5\n    running_pin: 6\n", "duplicate"},
		{"shared control pin", base + "  - name: ph\n    control_pin: 17\n    running_pin: 6\n", "already used"},
		{"pin collides with sentinel", "pumps:\n  - name: ph\n    control_pin: 170\n    running_pin: 6\n", "control_pin"},
		{"computed interlock", "pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    interlock_pin: computed\n", "interlock_pin"},
		{"computed level without flow", "pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    tank_level_pin: computed\n", "flow_rate"},
		{"fill over 100", "pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    tank_fill: 150\n", "tank_fill"},
		{"nan fill", "pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    tank_fill: .nan\n", "tank_fill"},
		{"nan flow rate", "pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    flow_rate: .nan\n", "flow_rate"},
		{"infinite volume", "pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    tank_volume: .inf\n", "tank_volume"},
		{"negative uptime", "pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    max_uptime: -1m\n", "max_uptime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestInputPinRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    tank_level_pin: maybe\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid pin") {
		t.Errorf("expected invalid pin error, got %v", err)
	}
	_, err = Parse([]byte("pumps:\n  - name: ph\n    control_pin: 1\n    running_pin: 2\n    tank_level_pin: [1, 2]\n"))
	if err == nil {
		t.Error("expected error for sequence pin")
	}
}

func TestStringHidesPassword(t *testing.T) {
	cfg := parse(t, sample)
	s := cfg.String()
	if strings.Contains(s, "secret") {
		t.Errorf("String leaks the password: %s", s)
	}
	if !strings.Contains(s, "***") {
		t.Errorf("String should mask the password: %s", s)
	}
	if cfg.MQTT.Password != "secret" {
		t.Error("String must not modify the config")
	}
}
