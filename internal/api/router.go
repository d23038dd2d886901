package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/propctl/internal/panel"
)

const healthCheckTimeout = 2 * time.Second

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleGetState)
		r.Get("/history", s.handleGetHistory)

		r.Route("/zones", func(r chi.Router) {
			r.Get("/", s.handleListZones)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetZone)
				r.Post("/trigger", s.handleTriggerZone)
				r.Get("/runs", s.handleListZoneRuns)
			})
		})
		r.Get("/runs/{runID}", s.handleGetRun)
	})

	if s.wsCfg.Enabled && s.backlog != nil {
		path := s.wsCfg.Path
		if path == "" {
			path = "/ws"
		}
		r.Get(path, s.handleWebSocket)

		r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(panel.Options{
			Dir:           s.wsCfg.PanelDir,
			WebSocketPath: path,
		})))
		r.Get("/panel", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/panel/", http.StatusMovedPermanently)
		})
	}

	return r
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	UptimeSec  int64             `json:"uptime_seconds"`
	Clients    int               `json:"clients"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth answers 200 when every registered component is healthy and
// 503 with the failing component's error otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   s.version,
		UptimeSec: int64(time.Since(s.started).Seconds()),
	}
	if s.clients != nil {
		resp.Clients = s.clients.Count()
	}

	status := http.StatusOK
	if len(s.health) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		names := make([]string, 0, len(s.health))
		for name := range s.health {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Components = make(map[string]string, len(names))
		for _, name := range names {
			if err := s.health[name].HealthCheck(ctx); err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
