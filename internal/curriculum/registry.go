// Package curriculum sequences task units within an episode and remembers,
// across episodes, which stages have been reached and where their emulator
// snapshots live.
package curriculum

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownCheckpoint = errors.New("curriculum: unknown checkpoint")

// Checkpoint identifies a persisted emulator snapshot taken on reaching a
// stage. TaskName is the stage that starts at TaskIndex. Index 0 with an
// empty Path is the emulator's power-on state.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	TaskIndex int       `json:"taskIndex"`
	TaskName  string    `json:"taskName,omitempty"`
	Path      string    `json:"path,omitempty"`
	EpisodeID uuid.UUID `json:"episodeId"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsInitial reports whether the checkpoint is the power-on state.
func (c Checkpoint) IsInitial() bool {
	return c.Path == ""
}

// Persister stores checkpoint records outside the process. Optional.
type Persister interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// Registry is the process-scoped set of reachable checkpoints, one per stage.
// A later save for a stage replaces the earlier one. It is created once per
// training session and shared by every episode's Sequencer.
type Registry struct {
	mu      sync.RWMutex
	byIndex map[int]Checkpoint

	persister Persister
	logger    *log.Logger
}

// NewRegistry returns a registry holding only the initial checkpoint.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stdout, "[CURRICULUM] ", log.LstdFlags)
	}
	return &Registry{
		byIndex: map[int]Checkpoint{
			0: {ID: uuid.New(), TaskIndex: 0, TaskName: "initial", CreatedAt: time.Now().UTC()},
		},
		logger: logger,
	}
}

// SetPersister attaches durable storage for recorded checkpoints.
func (r *Registry) SetPersister(p Persister) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persister = p
}

// Restore loads previously persisted checkpoints, keeping the newest per
// stage. Used at startup.
func (r *Registry) Restore(cps []Checkpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cp := range cps {
		if cp.TaskIndex <= 0 {
			continue
		}
		if old, ok := r.byIndex[cp.TaskIndex]; ok && old.CreatedAt.After(cp.CreatedAt) {
			continue
		}
		r.byIndex[cp.TaskIndex] = cp
	}
}

// Record adds or replaces the checkpoint for cp.TaskIndex. A persistence
// failure is logged; the in-memory entry is kept.
func (r *Registry) Record(ctx context.Context, cp Checkpoint) {
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.byIndex[cp.TaskIndex] = cp
	p := r.persister
	r.mu.Unlock()

	if p == nil {
		return
	}
	if err := p.SaveCheckpoint(ctx, cp); err != nil {
		r.logger.Printf("checkpoint_persist_failed index=%d path=%s err=%v", cp.TaskIndex, cp.Path, err)
	}
}

// Checkpoints returns every known checkpoint ordered by stage.
func (r *Registry) Checkpoints() []Checkpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Checkpoint, 0, len(r.byIndex))
	for _, cp := range r.byIndex {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskIndex < out[j].TaskIndex })
	return out
}

// Len returns the number of distinct stages reached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIndex)
}

// Lookup returns the checkpoint for a stage.
func (r *Registry) Lookup(index int) (Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp, ok := r.byIndex[index]
	if !ok {
		return Checkpoint{}, fmt.Errorf("%w: index %d", ErrUnknownCheckpoint, index)
	}
	return cp, nil
}

// Pick chooses uniformly among the checkpoints that start a playable stage of
// a curriculum with the given number of stages. The initial state is always a
// candidate; entries at or past stages are never returned.
func (r *Registry) Pick(rng *rand.Rand, stages int) Checkpoint {
	var playable []Checkpoint
	for _, cp := range r.Checkpoints() {
		if cp.TaskIndex == 0 || cp.TaskIndex < stages {
			playable = append(playable, cp)
		}
	}
	return playable[rng.Intn(len(playable))]
}
