// Package health exposes the relay's liveness, readiness and a live outcome
// feed on the gateway port.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/relayx/pkg/logger"
)

// Event is the envelope written to /events subscribers. Each broadcast gets
// its own id so clients can dedup across reconnects.
type Event struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	Data any       `json:"data"`
}

// Server serves /health, /ready and the /events websocket feed.
type Server struct {
	host     string
	port     int
	srv      *http.Server
	ready    atomic.Bool
	statusFn func() map[string]any

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewServer(host string, port int) *Server {
	s := &Server{
		host:    host,
		port:    port,
		clients: make(map[*websocket.Conn]chan []byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/events", s.handleEvents)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetStatusFunc injects the status snapshot rendered on /health.
func (s *Server) SetStatusFunc(fn func() map[string]any) { s.statusFn = fn }

// SetReady flips the /ready answer; the relay sets it once sessions are up.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	for conn, ch := range s.clients {
		conn.Close()
		close(ch)
	}
	s.clients = make(map[*websocket.Conn]chan []byte)
	s.mu.Unlock()

	if err := s.srv.Shutdown(ctx); err != nil {
		logger.ErrorCF("health", "Shutdown error", map[string]any{"error": err.Error()})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.statusFn != nil {
		for k, v := range s.statusFn() {
			body[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ready")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents upgrades the connection and streams every published outcome
// until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("health", "Websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	ch := make(chan []byte, 32)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.removeClient(conn)
		conn.Close()
	}()

	// Drain (and ignore) client frames so pings and closes are processed.
	// Removing the client closes ch, which also unblocks the write loop
	// below when the peer goes away between publishes.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.removeClient(conn)
				conn.Close()
				return
			}
		}
	}()

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// removeClient unregisters conn and closes its channel. Safe to call more
// than once for the same conn.
func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		close(ch)
	}
}

// PublishEvent wraps data in an Event envelope and broadcasts it.
func (s *Server) PublishEvent(kind string, data any) {
	s.Publish(Event{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		Kind: kind,
		Data: data,
	})
}

// Publish broadcasts v as JSON to all connected event clients. Slow clients
// drop messages rather than stalling the relay.
func (s *Server) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
}
