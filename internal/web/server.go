// Package web serves the lamp REST API, a WebSocket event feed and the
// Prometheus endpoint.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"gyverlamp-go-home/internal/automation"
	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/schedule"
)

// maxBodyBytes caps request bodies on every JSON endpoint.
const maxBodyBytes = 1 << 20

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed CORS and WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAutomation sets the automation engine and script manager.
func WithAutomation(engine *automation.Engine, mgr *automation.Manager) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
		s.scriptMgr = mgr
	}
}

// WithScheduler exposes the cron schedule under /api/schedules.
func WithScheduler(sched *schedule.Scheduler) ServerOption {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRateLimit limits /api/ requests per client IP. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = newIPRateLimiter(rate.Limit(rps), burst)
	}
}

// WithVersion sets the application version reported by /api/version.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP server for the API.
type Server struct {
	lamps          *lamp.Lamps
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	limiter        *ipRateLimiter
	metrics        http.Handler
	scriptMgr      *automation.Manager
	autoEngine     *automation.Engine
	scheduler      *schedule.Scheduler
	version        string
	wg             sync.WaitGroup
	unsubs         []func()
}

// NewServer creates the server, starts its WebSocket hub and subscribes
// the hub to every lamp.
func NewServer(lamps *lamp.Lamps, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		lamps:  lamps,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	for _, m := range lamps.All() {
		s.unsubs = append(s.unsubs, m.Subscribe(s.broadcastEvent))
	}

	s.routes()
	return s
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	// Lamps
	s.mux.HandleFunc("GET /api/lamps", s.handleAPIListLamps)
	s.mux.HandleFunc("GET /api/lamps/{id}", s.handleAPIGetLamp)
	s.mux.HandleFunc("GET /api/lamps/{id}/entities", s.handleAPIListEntities)
	s.mux.HandleFunc("POST /api/lamps/{id}/entities/{key}", s.handleAPIApplyEntity)
	s.mux.HandleFunc("POST /api/lamps/{id}/control", s.handleAPIControl)
	s.mux.HandleFunc("PATCH /api/lamps/{id}/settings", s.handleAPIUpdateSettings)
	s.mux.HandleFunc("POST /api/lamps/{id}/settings/upload", s.handleAPIUploadSettings)
	s.mux.HandleFunc("PATCH /api/lamps/{id}/preset", s.handleAPIUpdatePreset)
	s.mux.HandleFunc("PUT /api/lamps/{id}/preset/current", s.handleAPISetCurrentPreset)
	s.mux.HandleFunc("POST /api/lamps/{id}/presets", s.handleAPIAddPreset)
	s.mux.HandleFunc("DELETE /api/lamps/{id}/presets/last", s.handleAPIDeleteLastPreset)
	s.mux.HandleFunc("POST /api/lamps/{id}/presets/reset", s.handleAPIResetPresets)
	s.mux.HandleFunc("PUT /api/lamps/{id}/group", s.handleAPISetGroup)
	s.mux.HandleFunc("PUT /api/lamps/{id}/network-key", s.handleAPISetNetworkKey)
	s.mux.HandleFunc("GET /api/schedules", s.handleAPIListSchedules)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// Automations
	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations", s.handleAPICreateAutomation)
	s.mux.HandleFunc("PUT /api/automations/{id}", s.handleAPIUpdateAutomation)
	s.mux.HandleFunc("DELETE /api/automations/{id}", s.handleAPIDeleteAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/toggle", s.handleAPIToggleAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/run", s.handleAPIRunAutomation)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying CORS, rate limit and auth
// middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		if s.limiter != nil && !s.limiter.limiter(clientIP(r)).Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		// The WebSocket and /metrics are not key-protected: browsers cannot
		// send custom headers on a WS upgrade and scrapers rarely do.
		if s.apiKey != "" {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
