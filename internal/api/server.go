// Package api serves the processor's read-only status endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Mist/internal/logger"
	"Mist/internal/processor"
)

// StatusProvider exposes the poll loop's progress.
type StatusProvider interface {
	Status() processor.Status
}

// Info is static information about the running processor.
type Info struct {
	Address    string `json:"address"`     // Address is the processor's ledger address
	PackageID  string `json:"package_id"`  // PackageID is the protocol package
	KeyServers int    `json:"key_servers"` // KeyServers counts configured key servers
	Threshold  int    `json:"threshold"`   // Threshold is the configured key-server threshold
	OwnerBound bool   `json:"owner_bound"` // OwnerBound reports whether owner binding is enforced
}

// Server is the HTTP status server.
type Server struct {
	addr     string              // addr is the HTTP listen address
	info     Info                // info is reported by /status
	status   StatusProvider      // status provides loop progress
	gatherer prometheus.Gatherer // gatherer is exposed on /metrics, nil to disable
	maxAge   time.Duration       // maxAge marks the loop unhealthy when its last cycle is older
	server   *http.Server        // server is the underlying HTTP server
	now      func() time.Time    // now is the clock
}

// New creates a status server. A zero maxAge disables the staleness check.
func New(addr string, info Info, status StatusProvider, gatherer prometheus.Gatherer, maxAge time.Duration) *Server {
	return &Server{
		addr:     addr,
		info:     info,
		status:   status,
		gatherer: gatherer,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start binds the listen address and serves in a goroutine. Bind failures
// are returned.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s:\n%w", s.addr, err)
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("status api started", "addr", ln.Addr().String())

		if err := s.server.Serve(ln); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health requests. It fails once the loop has
// stopped completing cycles.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.maxAge > 0 && s.status != nil {
		st := s.status.Status()

		if st.Cycles > 0 && s.now().Sub(st.LastCycle) > s.maxAge {
			writeError(w, http.StatusServiceUnavailable, "poll loop stalled")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Info
		processor.Status
	}{s.info, s.status.Status()})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
