// Command poolmanager runs the pool pump controller: it governs pump
// run time and safety inputs, runs the filtration schedule, and reports
// over MQTT and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/config"
	"github.com/yves-gaignard/poolmanager/internal/gpio"
	"github.com/yves-gaignard/poolmanager/internal/mqtt"
	"github.com/yves-gaignard/poolmanager/internal/pump"
	"github.com/yves-gaignard/poolmanager/internal/status"
	"github.com/yves-gaignard/poolmanager/internal/storage"
	"github.com/yves-gaignard/poolmanager/internal/supervisor"
	"github.com/yves-gaignard/poolmanager/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/poolmanager/poolmanager.yaml", "Path to the YAML configuration")
	printState := flag.Bool("print-state", false, "Print pump inputs and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poolmanager: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging, os.Stderr)
	logger.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	if err := run(cfg, *printState, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

// newLogger builds the root logger. Level and format were validated with
// the config.
func newLogger(c config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, printState bool, logger zerolog.Logger) error {
	if err := calendar.SetFormat(cfg.Format()); err != nil {
		return fmt.Errorf("date format: %w", err)
	}

	pins, err := gpio.NewRealPins(cfg.GPIO.Chip, cfg.Outputs(), cfg.Inputs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	pumps := buildPumps(cfg, pins, time.Now, logger)

	if printState {
		printStates(os.Stdout, pumps)
		return nil
	}

	store, err := openStore(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		publisher mqtt.Publisher
		conn      mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			BufferSize: cfg.MQTT.BufferSize,
		}, logger.With().Str("component", "mqtt").Logger())
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, conn = p, p
	}

	start := time.Now()
	tracker := status.NewTracker(start, statusConfig(cfg))

	sup, err := supervisor.New(pumps, supervisorOptions(cfg), supervisor.Deps{
		Publisher: publisher,
		Conn:      conn,
		Store:     store,
		Tracker:   tracker,
	}, start, logger.With().Str("component", "supervisor").Logger())
	if err != nil {
		return err
	}
	if err := sup.Restore(start); err != nil {
		logger.Warn().Err(err).Msg("Could not restore saved state, starting fresh")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{
			Addr:           cfg.HTTP.Addr,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			PushInterval:   cfg.HTTP.PushInterval,
			Commands:       sup,
		}, tracker, store, logger.With().Str("component", "web").Logger())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("HTTP server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP status server listening")
	}

	sup.Startup(start)
	logger.Info().
		Int("pumps", len(pumps)).
		Dur("poll", cfg.Poll.Interval).
		Str("broker", cfg.MQTT.Broker).
		Str("date_format", cfg.DateFormat).
		Msg("Started")

	ticker := time.NewTicker(cfg.Poll.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sup, time.Now, ticker.C, sigCh, logger)
}

// runLoop ticks the supervisor until a signal arrives, then shuts it down.
func runLoop(sup *supervisor.Supervisor, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, logger zerolog.Logger) error {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			logger.Info().Str("signal", name).Msg("Shutting down")
			sup.Shutdown(now(), name)
			return nil
		case <-tick:
			sup.Tick(now())
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func buildPumps(cfg *config.Config, pins gpio.Pins, now func() time.Time, logger zerolog.Logger) []*pump.Pump {
	pumps := make([]*pump.Pump, 0, len(cfg.Pumps))
	for _, pc := range cfg.Pumps {
		pumps = append(pumps, pump.New(pc.PumpConfig(), pins, now, logger))
	}
	return pumps
}

func openStore(c config.DatabaseConfig, logger zerolog.Logger) (storage.Store, error) {
	if c.Path == "" {
		logger.Warn().Msg("No database configured, state will not survive a restart")
		return storage.NewMemoryStore(c.MaxEvents), nil
	}
	s, err := storage.NewSQLiteStore(c.Path, logger.With().Str("component", "storage").Logger())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func statusConfig(cfg *config.Config) status.Config {
	c := status.Config{
		PollMs:      cfg.Poll.Interval.Milliseconds(),
		HeartbeatMs: cfg.Poll.Heartbeat.Milliseconds(),
		SaveMs:      cfg.Poll.SaveInterval.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		DateFormat:  cfg.DateFormat,
	}
	if f := cfg.Filtration; f.Pump != "" {
		c.Filtration = fmt.Sprintf("%s %v", f.Pump, supervisor.Window{StartHour: f.StartHour, StopHour: f.StopHour})
	}
	return c
}

func supervisorOptions(cfg *config.Config) supervisor.Options {
	return supervisor.Options{
		Filtration:       cfg.Filtration.Pump,
		Window:           supervisor.Window{StartHour: cfg.Filtration.StartHour, StopHour: cfg.Filtration.StopHour},
		SaveInterval:     cfg.Poll.SaveInterval,
		Heartbeat:        cfg.Poll.Heartbeat,
		ClearFaultsDaily: cfg.Poll.ClearFaultsDaily,
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func okLow(ok bool) string {
	if ok {
		return "OK"
	}
	return "LOW"
}

func printStates(w io.Writer, pumps []*pump.Pump) {
	for _, p := range pumps {
		s := p.Snapshot()
		interlock := "closed"
		if !s.Interlock {
			interlock = "open"
		}
		fmt.Fprintf(w, "%s: %s, tank %s (%.1f%%), interlock %s\n",
			s.Name, onOff(s.Running), okLow(s.TankLevel), s.TankFill, interlock)
	}
}
