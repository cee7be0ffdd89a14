package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bdobrica/Saikoro/common/version"
)

// HealthServer exposes /health and /status. It is optional; Saikoro runs
// without it when HTTPAddr is empty.
type HealthServer struct {
	addr      string
	stats     statsProvider
	startedAt time.Time
	server    *http.Server
	router    chi.Router
}

// statsProvider is the minimal interface the health server needs from App.
type statsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats is the runtime state reported by /status.
type Stats struct {
	// ActiveSessions counts sessions accepting clicks, per transport.
	ActiveSessions map[string]int `json:"active_sessions"`
	// Rolls counts persisted rolls by outcome; "open" is unfinished.
	Rolls map[string]int `json:"rolls"`
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Commit     string    `json:"commit"`
	BuildTime  string    `json:"build_time"`
	StartedAt  time.Time `json:"started_at"`
	UptimeSecs float64   `json:"uptime_seconds"`
	Stats
}

// NewHealthServer creates and configures the HTTP server (does not start it).
func NewHealthServer(addr string, sp statsProvider) *HealthServer {
	hs := &HealthServer{
		addr:      addr,
		stats:     sp,
		startedAt: time.Now(),
		router:    chi.NewRouter(),
	}
	hs.router.Use(middleware.Recoverer)
	hs.router.Get("/health", hs.handleHealth)
	hs.router.Get("/status", hs.handleStatus)
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Start begins listening in the background. It returns once the listener is
// bound.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()
	return nil
}

// Stop shuts down the HTTP server.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
	}
	if h.stats != nil {
		stats, err := h.stats.Stats(r.Context())
		if err != nil {
			slog.Warn("health: failed to collect stats", "err", err)
			resp.Status = "degraded"
		}
		resp.Stats = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
