package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/minimario/symlaunch/internal/launch"
	"github.com/minimario/symlaunch/internal/metrics"
	"github.com/minimario/symlaunch/pkg/logging"
	"github.com/minimario/symlaunch/pkg/models"
)

// Server exposes read-only observation endpoints for the running launches.
// It observes only; there is no mutation surface.
type Server struct {
	log     *logging.Logger
	handles func() []*launch.Handle
	srv     *http.Server
}

// HostSnapshot is the /api/host payload
type HostSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedPct float64 `json:"memory_used_percent"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	NumCPU        int     `json:"num_cpu"`
	GoVersion     string  `json:"go_version"`
}

// New creates a status server. handles is polled on each request so the
// server always reports live state.
func New(addr string, log *logging.Logger, m *metrics.Launcher, handles func() []*launch.Handle) *Server {
	s := &Server{log: log, handles: handles}

	r := mux.NewRouter()
	r.HandleFunc("/api/launches", s.handleLaunches).Methods("GET")
	r.HandleFunc("/api/host", s.handleHost).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in a background goroutine
func (s *Server) Start() {
	go func() {
		s.log.Info("status server listening", map[string]interface{}{"addr": s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server failed", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleLaunches(w http.ResponseWriter, r *http.Request) {
	statuses := make([]models.LaunchStatus, 0)
	for _, h := range s.handles() {
		statuses = append(statuses, h.Status())
	}
	writeJSON(w, map[string]interface{}{"launches": statuses})
}

func (s *Server) handleHost(w http.ResponseWriter, r *http.Request) {
	snap := HostSnapshot{
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryUsedPct = vm.UsedPercent
		snap.MemoryTotalMB = vm.Total / 1024 / 1024
	}

	writeJSON(w, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
