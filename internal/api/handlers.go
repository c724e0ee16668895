package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/UoA-CARES/pyboy-environment/internal/curriculum"
)

const maxPerPage = 200

// Build information, set with -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// HealthResponse reports liveness and build information.
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Uptime        string `json:"uptime"`
	Version       string `json:"version"`
	GitCommit     string `json:"gitCommit,omitempty"`
	Episode       bool   `json:"episodeRunning"`
	Persistence   bool   `json:"persistence"`
	NumGoroutines int    `json:"numGoroutines"`
}

// CheckpointsResponse lists reachable checkpoints.
type CheckpointsResponse struct {
	Checkpoints []curriculum.Checkpoint `json:"checkpoints"`
	Count       int                     `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, running := s.episodes.Snapshot()
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Version:       Version,
		GitCommit:     GitCommit,
		Episode:       running,
		Persistence:   s.history != nil,
		NumGoroutines: runtime.NumGoroutine(),
	})
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.episodes.Snapshot()
	if !ok {
		s.writeError(w, http.StatusNotFound, NewError(ErrTypeNotFound, "No episode has started").WithRequest(r).Build())
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps := s.checkpoints.Checkpoints()
	s.writeJSON(w, http.StatusOK, CheckpointsResponse{Checkpoints: cps, Count: len(cps)})
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable,
			NewError(ErrTypeUnavailable, "Episode persistence is disabled").WithRequest(r).Build())
		return
	}

	page, ok := s.queryInt(w, r, "page", 1, 1, 0)
	if !ok {
		return
	}
	perPage, ok := s.queryInt(w, r, "perPage", 20, 1, maxPerPage)
	if !ok {
		return
	}

	result, err := s.history.ListEpisodes(r.Context(), page, perPage)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError,
			NewError(ErrTypeInternal, "Failed to list episodes").WithRequest(r).WithCause(err).Build())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional integer query parameter. hi of 0 means no
// upper bound. On failure it writes a validation error and returns false.
func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		s.writeError(w, http.StatusBadRequest,
			NewError(ErrTypeValidation, "Invalid "+name).
				WithRequest(r).
				WithContext("field", name).
				WithContext("value", raw).
				Build())
		return 0, false
	}
	return n, true
}
