package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleStartScan launches a background scan. ?force=true re-reads
// folders already marked scanned.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	if err := s.scanner.StartScan(force); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"force":  force,
	})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.scanner.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving scan status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	if !s.scanner.CancelScan() {
		writeError(w, http.StatusConflict, "no scan is running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.db.GetOrCreateScanSchedule()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving schedule")
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// handleUpdateSchedule updates the periodic scan cadence and recomputes
// the next due time from now.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled       *bool `json:"enabled"`
		IntervalHours *int  `json:"interval_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	schedule, err := s.db.GetOrCreateScanSchedule()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving schedule")
		return
	}
	if body.Enabled != nil {
		schedule.Enabled = *body.Enabled
	}
	if body.IntervalHours != nil {
		if *body.IntervalHours < 1 {
			writeError(w, http.StatusBadRequest, "interval_hours must be at least 1")
			return
		}
		schedule.IntervalHours = *body.IntervalHours
	}
	next := time.Now().Add(time.Duration(schedule.IntervalHours) * time.Hour)
	schedule.NextScanAt = &next

	if err := s.db.UpdateScanSchedule(schedule); err != nil {
		writeError(w, http.StatusInternalServerError, "error saving schedule")
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// handleDiscographyRefresh triggers catalog reconciliation for all
// identified artists. ?force=true re-fetches artists already done.
func (s *Server) handleDiscographyRefresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	if err := s.scanner.StartDiscographyRefresh(force); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"force":  force,
	})
}
