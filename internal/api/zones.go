package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/propctl/internal/zone"
)

var (
	errInvalidLimit  = errors.New("limit must be an integer between 1 and 200")
	errInvalidZoneID = errors.New("zone id must be a positive integer")
)

type triggerResponse struct {
	RunID string `json:"run_id"`
	Zone  int    `json:"zone"`
}

func (s *Server) handleListZones(w http.ResponseWriter, _ *http.Request) {
	zones := s.zones.Statuses()
	writeJSON(w, http.StatusOK, map[string]any{
		"zones": zones,
		"count": len(zones),
	})
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	id, ok := zoneIDParam(w, r)
	if !ok {
		return
	}
	status, err := s.zones.Status(id)
	if err != nil {
		s.writeZoneError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleTriggerZone answers 202 when the sequence was started and 409 when
// the zone is already running. A busy zone is not queued.
func (s *Server) handleTriggerZone(w http.ResponseWriter, r *http.Request) {
	id, ok := zoneIDParam(w, r)
	if !ok {
		return
	}

	runID, err := s.zones.Trigger(id, zone.SourceAPI)
	if err != nil {
		s.writeZoneError(w, id, err)
		return
	}

	s.logger.Info("zone triggered via api", "zone", id, "run_id", runID)
	writeJSON(w, http.StatusAccepted, triggerResponse{RunID: runID, Zone: id})
}

func (s *Server) handleListZoneRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := zoneIDParam(w, r)
	if !ok {
		return
	}
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "run journal is disabled")
		return
	}
	if _, err := s.zones.Status(id); err != nil {
		s.writeZoneError(w, id, err)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing zone runs", "zone", id, "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "run journal is disabled")
		return
	}

	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, zone.ErrRunNotFound) {
		writeNotFound(w, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("reading zone run", "error", err)
		writeInternalError(w, "failed to read run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func zoneIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeBadRequest(w, errInvalidZoneID.Error())
		return 0, false
	}
	return id, true
}

func (s *Server) writeZoneError(w http.ResponseWriter, id int, err error) {
	switch {
	case errors.Is(err, zone.ErrUnknownZone):
		writeNotFound(w, "zone not found")
	case errors.Is(err, zone.ErrZoneBusy):
		writeError(w, http.StatusConflict, ErrCodeConflict, "zone is already running")
	case errors.Is(err, zone.ErrStopping):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "shutting down")
	default:
		s.logger.Error("zone request failed", "zone", id, "error", err)
		writeInternalError(w, "zone request failed")
	}
}
