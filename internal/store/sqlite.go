// Package store provides SQLite persistence for checkpoints and episode
// records.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/UoA-CARES/pyboy-environment/internal/curriculum"
	"github.com/UoA-CARES/pyboy-environment/internal/episode"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrNotFound = errors.New("store: not found")

// Episode is a persisted episode record.
type Episode struct {
	ID            uuid.UUID  `json:"id"`
	Number        int        `json:"number"`
	StartIndex    int        `json:"startIndex"`
	FinalIndex    int        `json:"finalIndex"`
	TaskCount     int        `json:"taskCount"`
	Steps         int        `json:"steps"`
	TotalReward   float64    `json:"totalReward"`
	FinalCounter  float64    `json:"finalCounter"`
	FinalRate     float64    `json:"finalRate"`
	NoveltyFrames int        `json:"noveltyFrames"`
	Outcome       string     `json:"outcome"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
}

// EpisodesPage is a paginated episode listing.
type EpisodesPage struct {
	Episodes   []Episode `json:"episodes"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}

// Store provides SQLite persistence. It implements curriculum.Persister and
// episode.Recorder.
type Store struct {
	db *sql.DB
}

var (
	_ curriculum.Persister = (*Store)(nil)
	_ episode.Recorder     = (*Store)(nil)
)

// Open opens (creating if needed) the database at dbPath and applies
// migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	s := &Store{db: db}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, multierr.Append(fmt.Errorf("store: %s: %w", pragma, err), db.Close())
		}
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return s, nil
}

// Migrate applies pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("store: goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCheckpoint records a checkpoint. Saving the same id twice is a no-op.
func (s *Store) SaveCheckpoint(ctx context.Context, cp curriculum.Checkpoint) error {
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, task_index, task_name, path, episode_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		cp.ID.String(), cp.TaskIndex, cp.TaskName, cp.Path, cp.EpisodeID.String(), cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns every stored checkpoint ordered by stage, oldest
// first within a stage.
func (s *Store) ListCheckpoints(ctx context.Context) ([]curriculum.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_index, task_name, path, episode_id, created_at
		 FROM checkpoints ORDER BY task_index, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []curriculum.Checkpoint
	for rows.Next() {
		var cp curriculum.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.TaskIndex, &cp.TaskName, &cp.Path, &cp.EpisodeID, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list checkpoints: %w", err)
	}
	return out, nil
}

// StartEpisode inserts a running episode.
func (s *Store) StartEpisode(ctx context.Context, sum episode.Summary) error {
	startedAt := sum.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (id, number, start_index, final_index, task_count, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sum.EpisodeID.String(), sum.Number, sum.StartIndex, sum.TaskIndex, sum.TaskCount, startedAt,
	)
	if err != nil {
		return fmt.Errorf("store: start episode: %w", err)
	}
	return nil
}

// EndEpisode stores an episode's final figures.
func (s *Store) EndEpisode(ctx context.Context, sum episode.Summary) error {
	outcome := sum.Outcome
	if outcome == "" {
		outcome = "ended"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET
			final_index = ?, steps = ?, total_reward = ?, final_counter = ?,
			final_rate = ?, novelty_frames = ?, outcome = ?, ended_at = ?
		 WHERE id = ?`,
		sum.TaskIndex, sum.Steps, sum.TotalReward, sum.Counter,
		sum.DecayRate, sum.NoveltyFrames, outcome, time.Now().UTC(),
		sum.EpisodeID.String(),
	)
	if err != nil {
		return fmt.Errorf("store: end episode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: episode %s", ErrNotFound, sum.EpisodeID)
	}
	return nil
}

const episodeColumns = `id, number, start_index, final_index, task_count, steps, total_reward,
	final_counter, final_rate, novelty_frames, outcome, started_at, ended_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (Episode, error) {
	var e Episode
	err := row.Scan(
		&e.ID, &e.Number, &e.StartIndex, &e.FinalIndex, &e.TaskCount, &e.Steps, &e.TotalReward,
		&e.FinalCounter, &e.FinalRate, &e.NoveltyFrames, &e.Outcome, &e.StartedAt, &e.EndedAt,
	)
	return e, err
}

// GetEpisode fetches an episode by id.
func (s *Store) GetEpisode(ctx context.Context, id uuid.UUID) (*Episode, error) {
	e, err := scanEpisode(s.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: episode %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get episode: %w", err)
	}
	return &e, nil
}

// ListEpisodes returns episodes newest first.
func (s *Store) ListEpisodes(ctx context.Context, page, perPage int) (*EpisodesPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM episodes").Scan(&total); err != nil {
		return nil, fmt.Errorf("store: count episodes: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes ORDER BY started_at DESC, number DESC LIMIT ? OFFSET ?`,
		perPage, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list episodes: %w", err)
	}
	defer rows.Close()

	episodes := []Episode{}
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan episode: %w", err)
		}
		episodes = append(episodes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list episodes: %w", err)
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}
	return &EpisodesPage{
		Episodes:   episodes,
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}
