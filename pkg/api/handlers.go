package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cuemby/refit/pkg/maintenance"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/updater"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string          `json:"error"`
	Kind  types.ErrorKind `json:"kind,omitempty"`
}

// StartRequest is the optional body of a start request
type StartRequest struct {
	Version string `json:"version"`
}

// MaintenanceRequest is the body of an enable request
type MaintenanceRequest struct {
	Message          string   `json:"message"`
	Title            string   `json:"title"`
	IPAllowList      []string `json:"ipAllowList"`
	EstimatedMinutes int      `json:"estimatedMinutes"`
}

// MaintenanceResponse reports the gate after a change
type MaintenanceResponse struct {
	Changed bool                    `json:"changed"`
	Config  types.MaintenanceConfig `json:"config"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !s.checks.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, errors.New("too many update checks, try again later"))
		return
	}

	info, err := s.updater.Check(r.Context())
	switch {
	case errors.Is(err, updater.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
	}
	if v := r.URL.Query().Get("version"); v != "" {
		req.Version = v
	}

	result, err := s.updater.Start(r.Context(), req.Version)
	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	case result.Status == updater.StartBusy:
		writeJSON(w, http.StatusConflict, result)
	default:
		s.logger.Info().Str("run_id", result.RunID).Str("target", req.Version).Msg("Update started")
		writeJSON(w, http.StatusAccepted, result)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.updater.Status())
}

func (s *Server) handleBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.updater.ListBackups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if backups == nil {
		backups = []*types.BackupManifest{}
	}
	writeJSON(w, http.StatusOK, backups)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := s.updater.History(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*types.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	status, err := s.updater.Rollback(r.Context(), name)
	switch {
	case errors.Is(err, updater.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, updater.ErrNoBackup):
		writeError(w, http.StatusNotFound, err)
	case types.KindOf(err) != "":
		writeJSON(w, http.StatusInternalServerError, status)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) handleMaintenanceGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Config())
}

func (s *Server) handleMaintenanceEnable(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
	}
	if len(req.IPAllowList) > 0 {
		if err := maintenance.ValidateAllowList(req.IPAllowList); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	changed, err := s.gate.Enable(maintenance.EnableOptions{
		Message:          req.Message,
		Title:            req.Title,
		IPAllowList:      req.IPAllowList,
		EstimatedMinutes: req.EstimatedMinutes,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info().Bool("changed", changed).Msg("Maintenance gate enabled")
	writeJSON(w, http.StatusOK, MaintenanceResponse{Changed: changed, Config: s.gate.Config()})
}

func (s *Server) handleMaintenanceDisable(w http.ResponseWriter, r *http.Request) {
	changed, err := s.gate.Disable()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info().Bool("changed", changed).Msg("Maintenance gate disabled")
	writeJSON(w, http.StatusOK, MaintenanceResponse{Changed: changed, Config: s.gate.Config()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error(), Kind: types.KindOf(err)})
}
