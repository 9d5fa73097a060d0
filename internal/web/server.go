// Package web serves the controller status page, its JSON form, the
// recent event log and a websocket feed of live status.
package web

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yves-gaignard/poolmanager/internal/logic"
	"github.com/yves-gaignard/poolmanager/internal/status"
	"github.com/yves-gaignard/poolmanager/internal/supervisor"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	defaultPushInterval = 2 * time.Second
	defaultEventLimit   = 50
	maxEventLimit       = 500
)

// EventSource returns the most recent pump events, newest first.
type EventSource interface {
	RecentEvents(limit int) ([]logic.Event, error)
}

// Commander applies operator commands to the pumps.
type Commander interface {
	ClearFaults(name string) error
	Refill(name string, percent float64) error
}

// Options configures the server.
type Options struct {
	Addr           string
	AllowedOrigins []string      // websocket origins; same-origin is always allowed
	PushInterval   time.Duration // websocket status push period
	Commands       Commander     // nil makes the server read-only
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer   *http.Server
	tracker      *status.Tracker
	events       EventSource
	commands     Commander
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	origins      []string
	pushInterval time.Duration

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a Server that reads state from tracker. events may be nil,
// in which case /events.json returns an empty list.
func New(opts Options, tracker *status.Tracker, events EventSource, logger zerolog.Logger) *Server {
	s := &Server{
		tracker:      tracker,
		events:       events,
		commands:     opts.Commands,
		logger:       logger,
		origins:      opts.AllowedOrigins,
		pushInterval: opts.PushInterval,
		quit:         make(chan struct{}),
	}
	if s.pushInterval <= 0 {
		s.pushInterval = defaultPushInterval
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/events.json", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/pumps/clear", s.handleClear)
	mux.HandleFunc("/pumps/refill", s.handleRefill)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown closes websocket feeds and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > maxEventLimit {
			n = maxEventLimit
		}
		limit = n
	}

	var events []logic.Event
	if s.events != nil {
		var err error
		events, err = s.events.RecentEvents(limit)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to read events")
			http.Error(w, "event log unavailable", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(formatEvents(events))
}

// commandPump validates a command request and returns the pump name.
func (s *Server) commandPump(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	if s.commands == nil {
		http.Error(w, "commands disabled", http.StatusForbidden)
		return "", false
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing pump name", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (s *Server) commandResult(w http.ResponseWriter, name, cmd string, err error) {
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, supervisor.ErrUnknownPump) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	s.logger.Info().Str("pump", name).Str("command", cmd).Msg("Command applied")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	name, ok := s.commandPump(w, r)
	if !ok {
		return
	}
	s.commandResult(w, name, "clear", s.commands.ClearFaults(name))
}

func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request) {
	name, ok := s.commandPump(w, r)
	if !ok {
		return
	}
	percent := 100.0
	if v := r.URL.Query().Get("percent"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			http.Error(w, "invalid percent", http.StatusBadRequest)
			return
		}
		percent = f
	}
	s.commandResult(w, name, "refill", s.commands.Refill(name, percent))
}

// checkOrigin accepts same-origin requests and origins on the allowlist.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, allowed := range s.origins {
		if origin == allowed {
			return true
		}
	}
	s.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// handleWS pushes a status snapshot on connect and then every push
// interval until the client goes away or the server shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Debug().Str("remote", remote).Msg("WebSocket client connected")
	defer s.logger.Debug().Str("remote", remote).Msg("WebSocket client disconnected")

	// Clients only send control frames; the read loop handles pongs and
	// notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug().Err(err).Msg("WebSocket read error")
				}
				return
			}
		}
	}()

	push := time.NewTicker(s.pushInterval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.pushStatus(conn); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case <-s.quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-push.C:
			if err := s.pushStatus(conn); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushStatus(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, status.FormatJSON(s.tracker.Snapshot())); err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket push failed")
		return err
	}
	return nil
}
