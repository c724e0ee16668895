// Package emulator drives a game simulation written as a sandboxed script.
// The script owns the game; this package turns its state into
// gamestate.State values, its frames into matrices and its snapshots into
// write-once files.
package emulator

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

//go:embed scripts/overworld.js
var overworldScript string

// DefaultScript returns the bundled overworld demo.
func DefaultScript() string { return overworldScript }

// requiredFuncs is the script contract.
var requiredFuncs = []string{"reset", "step", "state", "frame", "save", "load"}

var ErrBadFrame = errors.New("emulator: malformed frame")

// Options configure a ScriptEmulator.
type Options struct {
	// SnapshotDir receives snapshot files. Created on demand.
	SnapshotDir string
	Seed        int64
	CallTimeout time.Duration
}

// ScriptEmulator runs one game script. It is not safe for concurrent use
// beyond the serialization the underlying VM provides.
type ScriptEmulator struct {
	vm  *vm
	dir string
}

// NewScriptEmulator executes source and checks that it defines the script
// contract.
func NewScriptEmulator(ctx context.Context, source string, opts Options) (*ScriptEmulator, error) {
	if source == "" {
		source = overworldScript
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = "checkpoints"
	}
	v := newVM(rand.New(rand.NewSource(opts.Seed)), opts.CallTimeout)
	if err := v.execute(ctx, source); err != nil {
		return nil, err
	}
	for _, name := range requiredFuncs {
		if !v.hasFunc(name) {
			return nil, fmt.Errorf("emulator: script does not define %s()", name)
		}
	}
	return &ScriptEmulator{vm: v, dir: opts.SnapshotDir}, nil
}

// Reset returns the game to its power-on state.
func (e *ScriptEmulator) Reset(ctx context.Context) error {
	_, err := e.vm.call(ctx, "reset")
	return err
}

// Step presses one button and returns the resulting state.
func (e *ScriptEmulator) Step(ctx context.Context, action Action) (gamestate.State, error) {
	if !action.Valid() {
		return gamestate.State{}, fmt.Errorf("emulator: invalid action %d", int(action))
	}
	if _, err := e.vm.call(ctx, "step", action.String()); err != nil {
		return gamestate.State{}, err
	}
	return e.State(ctx)
}

// State reads the current game state.
func (e *ScriptEmulator) State(ctx context.Context) (gamestate.State, error) {
	raw, err := e.vm.call(ctx, "state")
	if err != nil {
		return gamestate.State{}, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return gamestate.State{}, fmt.Errorf("%w: state() returned %T", gamestate.ErrMalformed, raw)
	}
	return gamestate.Decode(obj)
}

// Frame renders the current screen as a rows x cols greyscale matrix.
func (e *ScriptEmulator) Frame(ctx context.Context) (*mat.Dense, error) {
	raw, err := e.vm.call(ctx, "frame")
	if err != nil {
		return nil, err
	}
	return decodeFrame(raw)
}

// SaveSnapshot writes the game state to a new file tagged with the stage
// index and episode. Existing files are never overwritten.
func (e *ScriptEmulator) SaveSnapshot(ctx context.Context, taskIndex int, episodeID uuid.UUID) (string, error) {
	raw, err := e.vm.call(ctx, "save")
	if err != nil {
		return "", err
	}
	blob, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("emulator: save() returned %T, want string", raw)
	}
	return writeSnapshot(e.dir, snapshotName(taskIndex, episodeID), []byte(blob))
}

// LoadSnapshot restores a file written by SaveSnapshot. An empty path resets
// to the power-on state.
func (e *ScriptEmulator) LoadSnapshot(ctx context.Context, path string) error {
	if path == "" {
		return e.Reset(ctx)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("emulator: read snapshot: %w", err)
	}
	_, err = e.vm.call(ctx, "load", string(blob))
	return err
}

// Close releases the script runtime.
func (e *ScriptEmulator) Close() error {
	e.vm.runtime.Interrupt("closed")
	return nil
}

func decodeFrame(raw any) (*mat.Dense, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrBadFrame, raw)
	}
	rows, rok := toInt(obj["rows"])
	cols, cok := toInt(obj["cols"])
	pixels, pok := obj["pixels"].([]any)
	if !rok || !cok || !pok || rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: need rows, cols and pixels", ErrBadFrame)
	}
	if len(pixels) != rows*cols {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrBadFrame, len(pixels), rows, cols)
	}
	data := make([]float64, len(pixels))
	for i, p := range pixels {
		switch n := p.(type) {
		case int64:
			data[i] = float64(n)
		case float64:
			data[i] = n
		default:
			return nil, fmt.Errorf("%w: pixel %d is %T", ErrBadFrame, i, p)
		}
	}
	return mat.NewDense(rows, cols, data), nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}
