// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/UoA-CARES/pyboy-environment/internal/budget"
	"github.com/UoA-CARES/pyboy-environment/internal/episode"
	"github.com/UoA-CARES/pyboy-environment/internal/novelty"
	"github.com/UoA-CARES/pyboy-environment/internal/tasks"
)

var ErrInvalid = errors.New("config: invalid value")

// Config is the full runtime configuration.
type Config struct {
	ROMScript     string // path to a game script; empty uses the bundled demo
	CheckpointDir string
	DBPath        string // empty disables persistence
	Port          string // empty disables the HTTP server
	Seed          int64
	Episodes      int

	Curriculum string
	Plan       []tasks.Spec

	NoveltyThreshold       float64
	NoveltyWeight          float64
	NoveltyMaxFrames       int
	NoveltyResetPerEpisode bool

	BudgetCounter float64
	BudgetRate    float64
	BudgetWindow  int

	MaxStepsSinceCheckpoint int
	MaxEpisodeSteps         int
	StageBonus              float64
	StepPenalty             float64
	WinBadges               int
}

// Load reads the environment, applying defaults for unset keys, and
// validates the result. Values that do not parse are reported together.
func Load() (Config, error) {
	env := &envReader{}
	cfg := Config{
		ROMScript:               getenv("ROM_SCRIPT", ""),
		CheckpointDir:           getenv("CHECKPOINT_DIR", "./checkpoints"),
		DBPath:                  getenvAllowEmpty("DB_PATH", "./episodes.db"),
		Port:                    getenvAllowEmpty("PORT", "9010"),
		Seed:                    env.getInt64("SEED", time.Now().UnixNano()),
		Episodes:                env.getInt("EPISODES", 10),
		Curriculum:              getenv("CURRICULUM", tasks.DefaultPlanString),
		NoveltyThreshold:        env.getFloat("NOVELTY_THRESHOLD", novelty.DefaultThreshold),
		NoveltyWeight:           env.getFloat("NOVELTY_WEIGHT", 5),
		NoveltyMaxFrames:        env.getInt("NOVELTY_MAX_FRAMES", 0),
		NoveltyResetPerEpisode:  env.getBool("NOVELTY_RESET_PER_EPISODE", false),
		BudgetCounter:           env.getFloat("BUDGET_COUNTER", budget.DefaultCounter),
		BudgetRate:              env.getFloat("BUDGET_RATE", budget.DefaultRate),
		BudgetWindow:            env.getInt("BUDGET_WINDOW", budget.DefaultWindow),
		MaxStepsSinceCheckpoint: env.getInt("MAX_STEPS_SINCE_CHECKPOINT", 500),
		MaxEpisodeSteps:         env.getInt("MAX_EPISODE_STEPS", 0),
		StageBonus:              env.getFloat("STAGE_BONUS", 300),
		StepPenalty:             env.getFloat("STEP_PENALTY", -1),
		WinBadges:               env.getInt("WIN_BADGES", 0),
	}
	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and parses the curriculum plan.
func (c *Config) Validate() error {
	switch {
	case c.Episodes < 0:
		return fmt.Errorf("%w: EPISODES must be >= 0, got %d", ErrInvalid, c.Episodes)
	case c.NoveltyThreshold <= 0 || c.NoveltyThreshold >= novelty.MaxScore:
		return fmt.Errorf("%w: NOVELTY_THRESHOLD must be in (0, 1), got %v", ErrInvalid, c.NoveltyThreshold)
	case c.NoveltyMaxFrames < 0:
		return fmt.Errorf("%w: NOVELTY_MAX_FRAMES must be >= 0", ErrInvalid)
	case c.BudgetCounter <= 0:
		return fmt.Errorf("%w: BUDGET_COUNTER must be > 0", ErrInvalid)
	case c.BudgetRate < 0:
		return fmt.Errorf("%w: BUDGET_RATE must be >= 0", ErrInvalid)
	case c.BudgetWindow <= 0:
		return fmt.Errorf("%w: BUDGET_WINDOW must be > 0", ErrInvalid)
	case c.MaxStepsSinceCheckpoint < 0 || c.MaxEpisodeSteps < 0 || c.WinBadges < 0:
		return fmt.Errorf("%w: step limits and WIN_BADGES must be >= 0", ErrInvalid)
	case c.CheckpointDir == "":
		return fmt.Errorf("%w: CHECKPOINT_DIR is required", ErrInvalid)
	}

	plan, err := tasks.ParsePlan(c.Curriculum)
	if err != nil {
		return fmt.Errorf("config: CURRICULUM: %w", err)
	}
	c.Plan = plan
	return nil
}

// Episode returns the driver settings.
func (c Config) Episode() episode.Config {
	return episode.Config{
		Plan:    c.Plan,
		Weights: tasks.DefaultWeights(),
		Budget: budget.Config{
			Counter: c.BudgetCounter,
			Rate:    c.BudgetRate,
			Window:  c.BudgetWindow,
		},
		StepPenalty:             c.StepPenalty,
		StageBonus:              c.StageBonus,
		NoveltyWeight:           c.NoveltyWeight,
		NoveltyResetPerEpisode:  c.NoveltyResetPerEpisode,
		MaxStepsSinceCheckpoint: c.MaxStepsSinceCheckpoint,
		MaxEpisodeSteps:         c.MaxEpisodeSteps,
		WinBadges:               c.WinBadges,
		Seed:                    c.Seed,
	}
}

// Script returns the game script source, or "" for the bundled demo.
func (c Config) Script() (string, error) {
	if c.ROMScript == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.ROMScript)
	if err != nil {
		return "", fmt.Errorf("config: read ROM_SCRIPT: %w", err)
	}
	return string(b), nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// getenvAllowEmpty distinguishes unset (fallback) from set-but-empty ("").
func getenvAllowEmpty(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return value
}

// envReader parses typed keys, collecting every malformed value.
type envReader struct {
	err error
}

func (e *envReader) fail(key, value, kind string) {
	e.err = multierr.Append(e.err, fmt.Errorf("%w: %s=%q is not %s", ErrInvalid, key, value, kind))
}

func (e *envReader) getInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value, "an integer")
		return fallback
	}
	return parsed
}

func (e *envReader) getInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.fail(key, value, "an integer")
		return fallback
	}
	return parsed
}

func (e *envReader) getFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.fail(key, value, "a number")
		return fallback
	}
	return parsed
}

func (e *envReader) getBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, value, "a boolean")
		return fallback
	}
	return parsed
}
