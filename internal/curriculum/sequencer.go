package curriculum

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
	"github.com/UoA-CARES/pyboy-environment/internal/tasks"
)

// Snapshotter persists the emulator state. The returned path must be loadable
// by the same emulator later.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, taskIndex int, episodeID uuid.UUID) (string, error)
}

const (
	DefaultStageBonus = 300
	defaultRetries    = 2
	defaultRetryDelay = 50 * time.Millisecond
)

// Options tune a Sequencer. Zero values select the defaults.
type Options struct {
	StageBonus float64
	Retries    uint64
	RetryDelay time.Duration
	Logger     *log.Logger
}

// Sequencer walks an ordered list of task units. The active index never
// decreases; Len() is the terminal "curriculum complete" state.
type Sequencer struct {
	units     []tasks.Unit
	index     int
	registry  *Registry
	snapshots Snapshotter
	opts      Options

	// Steps since the last checkpoint; level-up extensions push it below zero.
	steps int
}

// NewSequencer starts at stage start, which is clamped to [0, len(units)].
// registry and snapshots may be nil, in which case advances are not
// persisted.
func NewSequencer(units []tasks.Unit, start int, registry *Registry, snapshots Snapshotter, opts Options) *Sequencer {
	if opts.StageBonus == 0 {
		opts.StageBonus = DefaultStageBonus
	}
	if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[CURRICULUM] ", log.LstdFlags)
	}
	start = max(0, min(start, len(units)))
	return &Sequencer{
		units:     units,
		index:     start,
		registry:  registry,
		snapshots: snapshots,
		opts:      opts,
	}
}

// Index returns the active stage.
func (s *Sequencer) Index() int { return s.index }

// Len returns the number of stages.
func (s *Sequencer) Len() int { return len(s.units) }

// Complete reports whether every stage has been cleared. An empty curriculum
// is complete from the start.
func (s *Sequencer) Complete() bool { return s.index >= len(s.units) }

// Active returns the current unit, or false once the curriculum is complete.
func (s *Sequencer) Active() (tasks.Unit, bool) {
	if s.Complete() {
		return nil, false
	}
	return s.units[s.index], true
}

// ActiveName is the active unit's name, or "complete".
func (s *Sequencer) ActiveName() string {
	u, ok := s.Active()
	if !ok {
		return "complete"
	}
	return u.Name()
}

// Reward scores the step for the active unit and applies any step extension
// it granted.
func (s *Sequencer) Reward(prev, curr gamestate.State) float64 {
	u, ok := s.Active()
	if !ok {
		return 0
	}
	r := u.Reward(prev, curr)
	if ext, ok := u.(tasks.Extender); ok {
		s.steps -= ext.TakeExtension()
	}
	return r
}

// Tick counts one step toward the checkpoint step limit.
func (s *Sequencer) Tick() { s.steps++ }

// StepsSinceCheckpoint returns the steps taken since the last stage change.
func (s *Sequencer) StepsSinceCheckpoint() int { return s.steps }

// Advance moves past the active unit if it is complete and returns the stage
// bonus. At most one stage is cleared per call. Unless the curriculum is now
// complete, a snapshot is saved tagged with the new index; if that fails after
// retries the failure is logged and the index advances anyway.
func (s *Sequencer) Advance(ctx context.Context, curr gamestate.State, episodeID uuid.UUID) (float64, bool) {
	u, ok := s.Active()
	if !ok || !u.Complete(curr) {
		return 0, false
	}

	s.index++
	s.steps = 0
	s.opts.Logger.Printf("stage_complete episode=%s task=%q index=%d", episodeID, u.Name(), s.index)

	// The terminal index has no stage to replay, so it is never checkpointed.
	next, ok := s.Active()
	if !ok {
		s.opts.Logger.Printf("curriculum_complete episode=%s stages=%d", episodeID, len(s.units))
		return s.opts.StageBonus, true
	}

	if s.snapshots != nil {
		path, err := s.save(ctx, episodeID)
		if err != nil {
			s.opts.Logger.Printf("checkpoint_save_failed episode=%s index=%d err=%v", episodeID, s.index, err)
		} else if s.registry != nil {
			s.registry.Record(ctx, Checkpoint{
				TaskIndex: s.index,
				TaskName:  next.Name(),
				Path:      path,
				EpisodeID: episodeID,
			})
		}
	}
	return s.opts.StageBonus, true
}

func (s *Sequencer) save(ctx context.Context, episodeID uuid.UUID) (string, error) {
	var path string
	b := retry.WithMaxRetries(s.opts.Retries, retry.NewConstant(s.opts.RetryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		p, err := s.snapshots.SaveSnapshot(ctx, s.index, episodeID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return retry.RetryableError(err)
		}
		path = p
		return nil
	})
	return path, err
}
