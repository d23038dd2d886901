package api

import (
	"net/http"
	"strconv"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type stateResponse struct {
	States    []int     `json:"states"`
	Devices   int       `json:"devices"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	states := s.states.States()
	writeJSON(w, http.StatusOK, stateResponse{
		States:    states,
		Devices:   len(states),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is disabled")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading state history", "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// parseLimit accepts an empty value (default 50) or 1..200.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, errInvalidLimit
	}
	return n, nil
}
