// Package api serves read-only introspection of a training session over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/UoA-CARES/pyboy-environment/internal/curriculum"
	"github.com/UoA-CARES/pyboy-environment/internal/episode"
	"github.com/UoA-CARES/pyboy-environment/internal/store"
)

// EpisodeSource reports the running episode.
type EpisodeSource interface {
	Snapshot() (episode.Summary, bool)
}

// CheckpointSource lists reachable checkpoints.
type CheckpointSource interface {
	Checkpoints() []curriculum.Checkpoint
}

// EpisodeHistory lists finished and running episodes.
type EpisodeHistory interface {
	ListEpisodes(ctx context.Context, page, perPage int) (*store.EpisodesPage, error)
}

// Server handles HTTP requests.
type Server struct {
	episodes    EpisodeSource
	checkpoints CheckpointSource
	history     EpisodeHistory
	logger      *log.Logger
	startTime   time.Time
}

// NewServer creates a server. history may be nil when persistence is
// disabled.
func NewServer(episodes EpisodeSource, checkpoints CheckpointSource, history EpisodeHistory) *Server {
	return &Server{
		episodes:    episodes,
		checkpoints: checkpoints,
		history:     history,
		logger:      log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		startTime:   time.Now(),
	}
}

// SetLogger replaces the default logger.
func (s *Server) SetLogger(l *log.Logger) {
	s.logger = l
}

// Routes sets up the HTTP routes with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/episode", s.handleEpisode)
		r.Get("/checkpoints", s.handleCheckpoints)
		r.Get("/episodes", s.handleEpisodes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, NewError(ErrTypeNotFound, "Route not found").WithRequest(r).Build())
	})
	return r
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Version", Version)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed err=%v", err)
	}
}
