// Package ws is the transport adapter: it upgrades HTTP connections,
// binds each socket to a session, and exposes the operational endpoints.
package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/typewire/typewire/internal/auth"
	"github.com/typewire/typewire/internal/config"
	"github.com/typewire/typewire/internal/group"
	"github.com/typewire/typewire/internal/message"
	"github.com/typewire/typewire/internal/session"
)

type Server struct {
	cfg    *config.Config
	dir    *group.Directory
	events *group.Events
	log    zerolog.Logger

	eventField     string
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	started        time.Time
}

func NewServer(cfg *config.Config, dir *group.Directory, events *group.Events, log zerolog.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		dir:            dir,
		events:         events,
		log:            log.With().Str("component", "ws").Logger(),
		eventField:     cfg.Session.EventField,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		started:        time.Now(),
	}
	if s.eventField == "" {
		s.eventField = message.DefaultEventField
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Handle mounts a session type at path. Each upgraded connection becomes
// one session of that type.
func (s *Server) Handle(mux *http.ServeMux, path string, typ *session.Type) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(w, r, typ)
	})
}

// SetupRoutes mounts the operational endpoints.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/event", s.handleEvent)
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, typ *session.Type) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	conn.SetReadLimit(s.cfg.Limits.MaxMessageBytes)

	c := newClient(conn,
		s.cfg.Limits.SendBuffer,
		s.cfg.Limits.WriteTimeout.Std(),
		s.cfg.Limits.PingInterval.Std(),
		s.log.With().Str("remote", r.RemoteAddr).Logger(),
	)
	sess := typ.NewSession(c)

	req := &auth.Request{
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
	}
	if err := sess.Start(r.Context(), req); err != nil {
		// The denial verdict (if enabled) is already on the wire and the
		// transport closed.
		return
	}
	defer sess.Close()

	pongTimeout := s.cfg.Limits.PongTimeout.Std()
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Str("conn_id", sess.ID()).Msg("read error")
			}
			return
		}
		sess.HandleIncoming(raw)
	}
}

// handleEvent is the cross-process injection path: external code POSTs a
// wire-form event ({"<event_field>": name, "payload": ...}) at a group or
// a specific connection.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var env map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var name string
	if raw, ok := env[s.eventField]; ok {
		if err := json.Unmarshal(raw, &name); err != nil || name == "" {
			http.Error(w, fmt.Sprintf("%s must be a non-empty string", s.eventField), http.StatusBadRequest)
			return
		}
	} else {
		http.Error(w, fmt.Sprintf("%s is required", s.eventField), http.StatusBadRequest)
		return
	}
	ev := group.Event{Name: name, Payload: env["payload"]}

	if connID := r.URL.Query().Get("connection"); connID != "" {
		if err := s.events.ToConnection(connID, ev); err != nil {
			http.Error(w, "connection not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if g := r.URL.Query().Get("group"); g != "" {
		s.events.ToGroup(g, ev)
		w.WriteHeader(http.StatusAccepted)
		return
	}
	http.Error(w, "group or connection is required", http.StatusBadRequest)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux, log zerolog.Logger) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Info().Str("addr", addr).Msg("server listening")
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
