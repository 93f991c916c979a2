// Package monitor exposes a small HTTP status endpoint for a running
// workflow, so operators can poll progress without touching the driver
// process.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/gridflow/internal/logging"
)

// Status is the progress report served at /status.
type Status struct {
	Workflow string `json:"workflow"`
	Done     int    `json:"done"`
	Failed   int    `json:"failed"`
	Total    int    `json:"total"`
	Uptime   string `json:"uptime"`
}

// StatusFunc supplies the current task counters.
type StatusFunc func() (done, failed, total int)

// Monitor is the status HTTP server.
type Monitor struct {
	workflow  string
	status    StatusFunc
	logger    *slog.Logger
	startTime time.Time
	server    *http.Server
}

// New builds a monitor serving on addr.
func New(addr, workflow string, status StatusFunc, logger *slog.Logger) *Monitor {
	m := &Monitor{
		workflow:  workflow,
		status:    status,
		logger:    logging.Component(logger, "monitor"),
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", m.handleHealth)
	r.Get("/status", m.handleStatus)

	m.server = &http.Server{Addr: addr, Handler: r}
	return m
}

// Start serves in a background goroutine until Shutdown.
func (m *Monitor) Start() {
	m.logger.Info("monitor listening", "addr", m.server.Addr)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("monitor stopped", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests.
func (m *Monitor) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (m *Monitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.respond(w, map[string]string{
		"status":     "healthy",
		"go_version": runtime.Version(),
		"uptime":     time.Since(m.startTime).Round(time.Second).String(),
	})
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	done, failed, total := m.status()
	m.respond(w, Status{
		Workflow: m.workflow,
		Done:     done,
		Failed:   failed,
		Total:    total,
		Uptime:   time.Since(m.startTime).Round(time.Second).String(),
	})
}

func (m *Monitor) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Error("encode response", "error", err)
	}
}
