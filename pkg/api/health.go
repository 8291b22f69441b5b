package api

import (
	"net/http"

	"github.com/cuemby/refit/pkg/metrics"
	"github.com/cuemby/refit/pkg/types"
)

// registerHealth mounts the probe and metrics endpoints. Component state
// is refreshed from the gate and the session on each health request.
func (s *Server) registerHealth() {
	health := metrics.HealthHandler()
	ready := metrics.ReadyHandler()

	s.mux.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.refreshHealth()
		health(w, r)
	}))
	s.mux.Handle("GET /readyz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.refreshHealth()
		ready(w, r)
	}))
	s.mux.Handle("GET /livez", metrics.LivenessHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())
}

func (s *Server) refreshHealth() {
	if s.gate.IsActive() {
		metrics.MarkDegraded(metrics.ComponentMaintenance, "maintenance gate is on")
	} else {
		metrics.UpdateComponent(metrics.ComponentMaintenance, true, "")
	}

	status := s.updater.Status()
	switch {
	case status.Phase == types.PhaseFailed && status.LastError != nil && status.LastError.Kind == types.ErrRollbackFailed:
		metrics.UpdateComponent(metrics.ComponentUpdater, false, status.LastError.Message)
	case status.Phase == types.PhaseFailed:
		metrics.MarkDegraded(metrics.ComponentUpdater, "last update failed")
	case status.Phase.IsActive():
		metrics.MarkDegraded(metrics.ComponentUpdater, "update in progress: "+string(status.Phase))
	default:
		metrics.UpdateComponent(metrics.ComponentUpdater, true, "")
	}
}
