// Package config loads the controller configuration from YAML, with
// defaults and environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/pump"
)

// Config holds all configuration of the controller.
type Config struct {
	Pumps      []PumpConfig     `yaml:"pumps"`
	Filtration FiltrationConfig `yaml:"filtration"`
	DateFormat string           `yaml:"date_format"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Poll       PollConfig       `yaml:"poll"`
}

// PumpConfig describes one pump and its wiring.
type PumpConfig struct {
	Name       string    `yaml:"name"`
	ControlPin int       `yaml:"control_pin"`
	RunningPin int       `yaml:"running_pin"`
	TankLevel  *InputPin `yaml:"tank_level_pin"` // omitted: no tank
	Interlock  *InputPin `yaml:"interlock_pin"`  // omitted: no interlock

	FlowRate   float64       `yaml:"flow_rate"`   // L/h
	TankVolume float64       `yaml:"tank_volume"` // L
	TankFill   *float64      `yaml:"tank_fill"`   // percent, default 100
	MaxUpTime  time.Duration `yaml:"max_uptime"`  // 0 disables the daily limit
}

// FiltrationConfig is the daily run window of the filtration pump.
// An empty Pump disables the schedule.
type FiltrationConfig struct {
	Pump      string `yaml:"pump"`
	StartHour int    `yaml:"start_hour"`
	StopHour  int    `yaml:"stop_hour"`
}

// GPIOConfig selects the GPIO character device.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

// MQTTConfig contains broker settings. An empty Broker disables MQTT.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig contains the status server settings. An empty Addr disables it.
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	PushInterval   time.Duration `yaml:"push_interval"`
}

// DatabaseConfig selects persistence. An empty Path keeps state in memory.
type DatabaseConfig struct {
	Path      string `yaml:"path"`
	MaxEvents int    `yaml:"max_events"` // in-memory event log size
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// PollConfig contains the control loop timing.
type PollConfig struct {
	Interval         time.Duration `yaml:"interval"`
	SaveInterval     time.Duration `yaml:"save_interval"`
	Heartbeat        time.Duration `yaml:"heartbeat"` // 0 disables
	ClearFaultsDaily bool          `yaml:"clear_faults_daily"`
}

// InputPin is an optional input: a pin number or a keyword. "none" means
// the input does not exist; "computed" (tank level only) means the tank
// has no switch and its level follows the computed fill.
type InputPin struct {
	Pin     int
	Keyword string
}

const (
	KeywordNone     = "none"
	KeywordComputed = "computed"
)

// UnmarshalYAML accepts a number or a keyword scalar.
func (p *InputPin) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: pin must be a number or a keyword", n.Line)
	}
	if v, err := strconv.Atoi(n.Value); err == nil {
		*p = InputPin{Pin: v}
		return nil
	}
	switch kw := strings.ToLower(strings.TrimSpace(n.Value)); kw {
	case KeywordNone, KeywordComputed:
		*p = InputPin{Keyword: kw}
		return nil
	}
	return fmt.Errorf("line %d: invalid pin %q", n.Line, n.Value)
}

func (p InputPin) String() string {
	if p.Keyword != "" {
		return p.Keyword
	}
	return strconv.Itoa(p.Pin)
}

// LoadConfig reads, defaults, overrides and validates the file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is LoadConfig for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DateFormat == "" {
		c.DateFormat = "dd-mm-yyyy"
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "poolmanager"
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = 100
	}
	if c.HTTP.PushInterval == 0 {
		c.HTTP.PushInterval = 2 * time.Second
	}
	if c.Database.MaxEvents == 0 {
		c.Database.MaxEvents = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = time.Second
	}
	if c.Poll.SaveInterval == 0 {
		c.Poll.SaveInterval = time.Minute
	}
	for i := range c.Pumps {
		if c.Pumps[i].TankFill == nil {
			full := 100.0
			c.Pumps[i].TankFill = &full
		}
	}
}

// OverrideFromEnv applies POOL_* environment variables.
func (c *Config) OverrideFromEnv() error {
	strs := map[string]*string{
		"POOL_MQTT_BROKER":   &c.MQTT.Broker,
		"POOL_MQTT_USERNAME": &c.MQTT.Username,
		"POOL_MQTT_PASSWORD": &c.MQTT.Password,
		"POOL_HTTP_ADDR":     &c.HTTP.Addr,
		"POOL_DB_PATH":       &c.Database.Path,
		"POOL_LOG_LEVEL":     &c.Logging.Level,
		"POOL_LOG_FORMAT":    &c.Logging.Format,
		"POOL_DATE_FORMAT":   &c.DateFormat,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	if v := os.Getenv("POOL_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("POOL_POLL_INTERVAL: %w", err)
		}
		c.Poll.Interval = d
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := calendar.ParseLayout(c.DateFormat); err != nil {
		return fmt.Errorf("date_format: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Poll.Interval < 10*time.Millisecond {
		return fmt.Errorf("poll.interval must be at least 10ms")
	}
	if c.Poll.SaveInterval < 0 || c.Poll.Heartbeat < 0 {
		return fmt.Errorf("poll intervals must not be negative")
	}

	if len(c.Pumps) == 0 {
		return fmt.Errorf("at least one pump is required")
	}
	names := make(map[string]bool)
	controls := make(map[int]string)
	for i, p := range c.Pumps {
		if p.Name == "" {
			return fmt.Errorf("pumps[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("pumps[%d]: duplicate name %q", i, p.Name)
		}
		names[p.Name] = true
		if err := p.validate(); err != nil {
			return fmt.Errorf("pump %q: %w", p.Name, err)
		}
		if other, ok := controls[p.ControlPin]; ok {
			return fmt.Errorf("pump %q: control pin %d already used by %q", p.Name, p.ControlPin, other)
		}
		controls[p.ControlPin] = p.Name
	}

	f := c.Filtration
	if f.Pump != "" {
		if !names[f.Pump] {
			return fmt.Errorf("filtration.pump: unknown pump %q", f.Pump)
		}
		if f.StartHour < 0 || f.StartHour > 23 || f.StopHour < 0 || f.StopHour > 23 {
			return fmt.Errorf("filtration hours must be in 0..23")
		}
		if f.StartHour == f.StopHour {
			return fmt.Errorf("filtration start and stop hour must differ")
		}
	}
	return nil
}

func validPin(pin int) bool {
	return pin >= 0 && pin < pump.NoLevel
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (p PumpConfig) validate() error {
	if !validPin(p.ControlPin) {
		return fmt.Errorf("control_pin %d out of range", p.ControlPin)
	}
	if !validPin(p.RunningPin) {
		return fmt.Errorf("running_pin %d out of range", p.RunningPin)
	}
	if p.TankLevel != nil && p.TankLevel.Keyword == "" && !validPin(p.TankLevel.Pin) {
		return fmt.Errorf("tank_level_pin %d out of range", p.TankLevel.Pin)
	}
	if p.Interlock != nil {
		if p.Interlock.Keyword == KeywordComputed {
			return fmt.Errorf("interlock_pin cannot be %q", KeywordComputed)
		}
		if p.Interlock.Keyword == "" && !validPin(p.Interlock.Pin) {
			return fmt.Errorf("interlock_pin %d out of range", p.Interlock.Pin)
		}
	}
	if !finite(p.FlowRate) || !finite(p.TankVolume) || p.FlowRate < 0 || p.TankVolume < 0 {
		return fmt.Errorf("flow_rate and tank_volume must be finite and not negative")
	}
	if p.TankFill != nil && (math.IsNaN(*p.TankFill) || *p.TankFill < 0 || *p.TankFill > 100) {
		return fmt.Errorf("tank_fill must be in 0..100")
	}
	if p.MaxUpTime < 0 {
		return fmt.Errorf("max_uptime must not be negative")
	}
	if p.TankLevel != nil && p.TankLevel.Keyword == KeywordComputed && (p.FlowRate == 0 || p.TankVolume == 0) {
		return fmt.Errorf("a computed tank level needs flow_rate and tank_volume")
	}
	return nil
}

// PumpConfig converts to the governor's configuration, mapping omitted
// inputs to their sentinels.
func (p PumpConfig) PumpConfig() pump.Config {
	cfg := pump.Config{
		Name:         p.Name,
		ControlPin:   p.ControlPin,
		RunningPin:   p.RunningPin,
		TankLevelPin: pump.NoTank,
		InterlockPin: pump.NoInterlock,
		FlowRate:     p.FlowRate,
		TankVolume:   p.TankVolume,
		TankFill:     100,
		MaxUpTime:    p.MaxUpTime,
	}
	if p.TankFill != nil {
		cfg.TankFill = *p.TankFill
	}
	if t := p.TankLevel; t != nil {
		switch t.Keyword {
		case "":
			cfg.TankLevelPin = t.Pin
		case KeywordComputed:
			cfg.TankLevelPin = pump.NoLevel
		}
	}
	if i := p.Interlock; i != nil && i.Keyword == "" {
		cfg.InterlockPin = i.Pin
	}
	return cfg
}

// Outputs returns the control pins of all pumps.
func (c *Config) Outputs() []int {
	out := make([]int, 0, len(c.Pumps))
	for _, p := range c.Pumps {
		out = append(out, p.ControlPin)
	}
	return out
}

// Inputs returns the sensor pins of all pumps, without duplicates.
func (c *Config) Inputs() []int {
	seen := make(map[int]bool)
	var in []int
	add := func(pin int) {
		if !seen[pin] {
			seen[pin] = true
			in = append(in, pin)
		}
	}
	for _, p := range c.Pumps {
		pc := p.PumpConfig()
		add(pc.RunningPin)
		if pc.TankLevelPin != pump.NoTank && pc.TankLevelPin != pump.NoLevel {
			add(pc.TankLevelPin)
		}
		if pc.InterlockPin != pump.NoInterlock {
			add(pc.InterlockPin)
		}
	}
	return in
}

// Format returns the parsed date format.
func (c *Config) Format() calendar.Format {
	f, _ := calendar.ParseLayout(c.DateFormat)
	return f
}

// String returns a representation safe to log (password hidden).
func (c *Config) String() string {
	m := c.MQTT
	if m.Password != "" {
		m.Password = "***"
	}
	return fmt.Sprintf("Config{Pumps: %d, Filtration: %+v, DateFormat: %s, MQTT: %+v, HTTP: %+v, Database: %+v, Logging: %+v, Poll: %+v}",
		len(c.Pumps), c.Filtration, c.DateFormat, m, c.HTTP, c.Database, c.Logging, c.Poll)
}
