// Package episode composes the curriculum, novelty and budget components into
// a reset/step environment over an emulator.
package episode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/UoA-CARES/pyboy-environment/internal/budget"
	"github.com/UoA-CARES/pyboy-environment/internal/curriculum"
	"github.com/UoA-CARES/pyboy-environment/internal/emulator"
	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
	"github.com/UoA-CARES/pyboy-environment/internal/novelty"
	"github.com/UoA-CARES/pyboy-environment/internal/tasks"
)

var ErrNotReset = errors.New("episode: step called before reset")

// Emulator is the game collaborator the driver steps.
type Emulator interface {
	Reset(ctx context.Context) error
	Step(ctx context.Context, action emulator.Action) (gamestate.State, error)
	State(ctx context.Context) (gamestate.State, error)
	Frame(ctx context.Context) (*mat.Dense, error)
	SaveSnapshot(ctx context.Context, taskIndex int, episodeID uuid.UUID) (string, error)
	LoadSnapshot(ctx context.Context, path string) error
}

// Recorder receives episode lifecycle events for persistence. Optional.
type Recorder interface {
	StartEpisode(ctx context.Context, s Summary) error
	EndEpisode(ctx context.Context, s Summary) error
}

// Config holds the driver's tunables.
type Config struct {
	Plan    []tasks.Spec
	Weights tasks.Weights
	Budget  budget.Config

	StepPenalty   float64
	StageBonus    float64
	NoveltyWeight float64
	// NoveltyResetPerEpisode clears the frame store on every Reset.
	NoveltyResetPerEpisode bool

	// MaxStepsSinceCheckpoint truncates an episode that has not cleared a
	// stage for this many steps. 0 disables.
	MaxStepsSinceCheckpoint int
	// MaxEpisodeSteps is a hard cap on episode length. 0 disables.
	MaxEpisodeSteps int
	// WinBadges ends the episode as done once reached. 0 disables.
	WinBadges int

	Seed int64
}

// DefaultConfig returns the first-gym settings.
func DefaultConfig() Config {
	return Config{
		Plan:                    tasks.DefaultPlan(),
		Weights:                 tasks.DefaultWeights(),
		Budget:                  budget.DefaultConfig(),
		StepPenalty:             -1,
		StageBonus:              curriculum.DefaultStageBonus,
		NoveltyWeight:           5,
		MaxStepsSinceCheckpoint: 500,
	}
}

// Observation is what the caller's policy sees.
type Observation struct {
	State gamestate.State
	Frame *mat.Dense
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation Observation
	Reward      float64
	Done        bool
	Truncated   bool
}

// Driver runs one episode at a time. Reset and Step must be called from a
// single goroutine; Snapshot may be called concurrently.
type Driver struct {
	emu      Emulator
	cfg      Config
	registry *curriculum.Registry
	detector *novelty.Detector
	budget   *budget.Controller
	rng      *rand.Rand
	logger   *log.Logger
	recorder Recorder

	mu        sync.RWMutex
	started   bool
	id        uuid.UUID
	number    int
	seq       *curriculum.Sequencer
	startIdx  int
	prev      Observation
	steps     int
	total     float64
	lastScore float64
	done      bool
	truncated bool
	startedAt time.Time
}

// NewDriver wires a driver. registry and detector outlive episodes and may be
// shared with other readers; logger may be nil.
func NewDriver(emu Emulator, cfg Config, registry *curriculum.Registry, detector *novelty.Detector, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.New(os.Stdout, "[EPISODE] ", log.LstdFlags)
	}
	if registry == nil {
		registry = curriculum.NewRegistry(logger)
	}
	if detector == nil {
		detector = novelty.NewDetector(novelty.Options{})
	}
	return &Driver{
		emu:      emu,
		cfg:      cfg,
		registry: registry,
		detector: detector,
		budget:   budget.NewController(cfg.Budget),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		logger:   logger,
	}
}

// SetRecorder attaches episode persistence. Must be called before Reset.
func (d *Driver) SetRecorder(rec Recorder) {
	d.recorder = rec
}

// Registry returns the checkpoint registry.
func (d *Driver) Registry() *curriculum.Registry { return d.registry }

// Reset starts a new episode from a checkpoint picked uniformly from those
// reached so far.
func (d *Driver) Reset(ctx context.Context) (Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started && !d.done && !d.truncated {
		d.finishLocked(ctx, "abandoned")
	}

	cp := d.registry.Pick(d.rng, len(d.cfg.Plan))
	if err := d.emu.LoadSnapshot(ctx, cp.Path); err != nil {
		d.logger.Printf("checkpoint_load_failed index=%d path=%s err=%v", cp.TaskIndex, cp.Path, err)
		cp = curriculum.Checkpoint{}
		if err := d.emu.Reset(ctx); err != nil {
			return Observation{}, fmt.Errorf("episode: reset emulator: %w", err)
		}
	}

	obs, err := d.observe(ctx)
	if err != nil {
		return Observation{}, err
	}

	units, err := tasks.Build(d.cfg.Plan, obs.State, d.cfg.Weights)
	if err != nil {
		return Observation{}, fmt.Errorf("episode: build curriculum: %w", err)
	}

	d.id = uuid.New()
	d.number++
	d.seq = curriculum.NewSequencer(units, cp.TaskIndex, d.registry, d.emu, curriculum.Options{
		StageBonus: d.cfg.StageBonus,
		Logger:     d.logger,
	})
	d.startIdx = d.seq.Index()
	d.budget.Reset()
	if d.cfg.NoveltyResetPerEpisode {
		d.detector.Reset()
	}
	d.prev = obs
	d.steps = 0
	d.total = 0
	d.lastScore = 0
	d.done = d.seq.Complete()
	d.truncated = false
	d.started = true
	d.startedAt = time.Now().UTC()

	d.logger.Printf("episode_start episode=%s number=%d start_index=%d task=%q", d.id, d.number, d.startIdx, d.seq.ActiveName())
	if d.recorder != nil {
		if err := d.recorder.StartEpisode(ctx, d.summaryLocked()); err != nil {
			d.logger.Printf("episode_record_failed episode=%s err=%v", d.id, err)
		}
	}
	if d.done {
		d.finishLocked(ctx, "done")
	}
	return obs, nil
}

// Step applies one action. Once an episode is done or truncated further
// steps return the same flags with zero reward and change nothing.
func (d *Driver) Step(ctx context.Context, action emulator.Action) (StepResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return StepResult{}, ErrNotReset
	}
	if d.done || d.truncated {
		return StepResult{Observation: d.prev, Done: d.done, Truncated: d.truncated}, nil
	}

	state, err := d.emu.Step(ctx, action)
	if err != nil {
		return StepResult{}, fmt.Errorf("episode: step emulator: %w", err)
	}
	frame, err := d.emu.Frame(ctx)
	if err != nil {
		return StepResult{}, fmt.Errorf("episode: read frame: %w", err)
	}
	obs := Observation{State: state, Frame: frame}

	// A rejected frame must leave the step count and task counters untouched.
	score, err := d.detector.Observe(obs.Frame)
	if err != nil {
		return StepResult{}, fmt.Errorf("episode: novelty: %w", err)
	}
	d.lastScore = score

	d.steps++
	d.seq.Tick()

	reward := d.cfg.StepPenalty + d.seq.Reward(d.prev.State, obs.State)
	if score > d.detector.Threshold() {
		reward += d.cfg.NoveltyWeight * score
	}

	bonus, _ := d.seq.Advance(ctx, obs.State, d.id)
	reward += bonus

	exhausted := d.budget.Update(reward)

	d.done = d.seq.Complete() || (d.cfg.WinBadges > 0 && obs.State.Badges >= d.cfg.WinBadges)
	d.truncated = exhausted ||
		(d.cfg.MaxStepsSinceCheckpoint > 0 && d.seq.StepsSinceCheckpoint() >= d.cfg.MaxStepsSinceCheckpoint) ||
		(d.cfg.MaxEpisodeSteps > 0 && d.steps >= d.cfg.MaxEpisodeSteps)

	d.prev = obs
	d.total += reward

	switch {
	case d.done:
		d.finishLocked(ctx, "done")
	case d.truncated:
		d.finishLocked(ctx, "truncated")
	}
	return StepResult{Observation: obs, Reward: reward, Done: d.done, Truncated: d.truncated}, nil
}

// Close releases the emulator and recorder when they hold resources.
func (d *Driver) Close() error {
	var err error
	if c, ok := d.emu.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if c, ok := d.recorder.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (d *Driver) observe(ctx context.Context) (Observation, error) {
	state, err := d.emu.State(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("episode: read state: %w", err)
	}
	frame, err := d.emu.Frame(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("episode: read frame: %w", err)
	}
	return Observation{State: state, Frame: frame}, nil
}

func (d *Driver) finishLocked(ctx context.Context, outcome string) {
	d.logger.Printf("episode_end episode=%s outcome=%s steps=%d reward=%.2f index=%d/%d counter=%.2f",
		d.id, outcome, d.steps, d.total, d.seq.Index(), d.seq.Len(), d.budget.Counter())
	if d.recorder == nil {
		return
	}
	s := d.summaryLocked()
	s.Outcome = outcome
	if err := d.recorder.EndEpisode(ctx, s); err != nil {
		d.logger.Printf("episode_record_failed episode=%s err=%v", d.id, err)
	}
}
