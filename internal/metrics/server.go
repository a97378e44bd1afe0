// internal/metrics/server.go
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/status"
)

// DeviceSource lists per-device status. status.Tracker implements it.
type DeviceSource interface {
	Devices() []status.DeviceStatus
}

// Server serves /metrics and the read-only status API.
type Server struct {
	addr      string
	router    *mux.Router
	server    *http.Server
	devices   DeviceSource
	logger    zerolog.Logger
	startTime time.Time
}

func NewServer(addr string, c *Collector, devices DeviceSource, log zerolog.Logger) *Server {
	s := &Server{
		addr:      addr,
		router:    mux.NewRouter(),
		devices:   devices,
		logger:    log.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}

	s.router.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{})).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/devices", s.handleListDevices).Methods("GET")
	api.HandleFunc("/devices/{name}", s.handleGetDevice).Methods("GET")

	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening in the background.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().Str("listen", s.addr).Msg("starting http server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("stopping http server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	devs := s.devices.Devices()

	healthy := 0
	for _, d := range devs {
		if d.HealthCode == status.HealthOK {
			healthy++
		}
	}

	s.writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"devices": len(devs),
		"healthy": healthy,
	}, http.StatusOK)
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devs := s.devices.Devices()
	s.writeJSON(w, map[string]interface{}{
		"devices": devs,
		"count":   len(devs),
	}, http.StatusOK)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, d := range s.devices.Devices() {
		if d.Device == name {
			s.writeJSON(w, d, http.StatusOK)
			return
		}
	}
	s.writeError(w, "device not found", http.StatusNotFound)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, map[string]string{"error": message}, statusCode)
}
