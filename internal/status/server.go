package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gridbot/internal/config"
)

// Server serves the read-only observability surface: GET /api/status and
// the /ws push channel. It is a pure read-through of Cache — it never
// mutates strategy or orchestrator state.
type Server struct {
	cache  *Cache
	hub    *Hub
	cfg    config.StatusConfig
	server *http.Server
	logger *slog.Logger
}

// NewServer wires the HTTP mux: /api/status, /ws, and a trivial /health.
func NewServer(cfg config.StatusConfig, cache *Cache, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	logger = logger.With("component", "status-server")

	mux := http.NewServeMux()
	s := &Server{cache: cache, hub: hub, cfg: cfg, logger: logger}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start runs the hub loop and blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info("status server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Push forwards a fresh snapshot to connected websocket clients. The
// orchestrator calls this right after Cache.Update.
func (s *Server) Push() {
	s.hub.Push(s.cache.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cache.Snapshot()); err != nil {
		s.logger.Error("encode status snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return s.isOriginAllowed(req.Header.Get("Origin"), req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(s.hub, conn)

	data, err := json.Marshal(s.cache.Snapshot())
	if err != nil {
		s.logger.Error("marshal initial snapshot", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		s.logger.Warn("failed to send initial snapshot to client")
	}
}

func (s *Server) isOriginAllowed(origin, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		for _, allowed := range s.cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	return host == normalizeHost(reqHost)
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
