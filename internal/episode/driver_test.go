package episode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"testing"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/UoA-CARES/pyboy-environment/internal/budget"
	"github.com/UoA-CARES/pyboy-environment/internal/curriculum"
	"github.com/UoA-CARES/pyboy-environment/internal/emulator"
	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
	"github.com/UoA-CARES/pyboy-environment/internal/novelty"
	"github.com/UoA-CARES/pyboy-environment/internal/tasks"
)

var quiet = log.New(io.Discard, "", 0)

// fakeEmulator walks a single row of map 1. Right and Left move the player;
// every frame is identical.
type fakeEmulator struct {
	state    gamestate.State
	steps    int
	saved    map[string]gamestate.State
	loaded   []string
	saveErr  error
	closed   bool
	badgeOnA bool
	bigFrame bool
}

func newFakeEmulator() *fakeEmulator {
	f := &fakeEmulator{saved: map[string]gamestate.State{}}
	f.Reset(context.Background())
	return f
}

func (f *fakeEmulator) Reset(context.Context) error {
	f.state = gamestate.State{
		Location:  gamestate.Location{X: 10, Y: 23, MapID: 1},
		PartySize: 1,
		Levels:    []int{5},
		HP:        []int{20},
		MaxHP:     []int{20},
		XP:        []int{0},
		Items:     map[int]int{},
	}
	return nil
}

func (f *fakeEmulator) Step(_ context.Context, a emulator.Action) (gamestate.State, error) {
	f.steps++
	switch a {
	case emulator.Right:
		f.state.Location.X++
	case emulator.Left:
		f.state.Location.X--
	case emulator.A:
		if f.badgeOnA {
			f.state.Badges++
		}
	}
	return f.state, nil
}

func (f *fakeEmulator) State(context.Context) (gamestate.State, error) { return f.state, nil }

func (f *fakeEmulator) Frame(context.Context) (*mat.Dense, error) {
	if f.bigFrame {
		return mat.NewDense(3, 3, nil), nil
	}
	return mat.NewDense(2, 2, nil), nil
}

func (f *fakeEmulator) SaveSnapshot(_ context.Context, idx int, ep uuid.UUID) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	path := fmt.Sprintf("task_index_%d_%s.state", idx, ep)
	f.saved[path] = f.state
	return path, nil
}

func (f *fakeEmulator) LoadSnapshot(ctx context.Context, path string) error {
	f.loaded = append(f.loaded, path)
	if path == "" {
		return f.Reset(ctx)
	}
	s, ok := f.saved[path]
	if !ok {
		return errors.New("no such snapshot")
	}
	f.state = s
	return nil
}

func (f *fakeEmulator) Close() error {
	f.closed = true
	return nil
}

type fakeRecorder struct {
	started, ended []Summary
}

func (r *fakeRecorder) StartEpisode(_ context.Context, s Summary) error {
	r.started = append(r.started, s)
	return nil
}

func (r *fakeRecorder) EndEpisode(_ context.Context, s Summary) error {
	r.ended = append(r.ended, s)
	return nil
}

func testConfig(plan ...tasks.Spec) Config {
	cfg := DefaultConfig()
	cfg.Plan = plan
	cfg.Seed = 7
	return cfg
}

func newTestDriver(emu Emulator, cfg Config) *Driver {
	return NewDriver(emu, cfg, curriculum.NewRegistry(quiet), novelty.NewDetector(novelty.Options{}), quiet)
}

func nearly(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestStepBeforeReset(t *testing.T) {
	d := newTestDriver(newFakeEmulator(), testConfig())
	if _, err := d.Step(context.Background(), emulator.A); !errors.Is(err, ErrNotReset) {
		t.Fatalf("err = %v, want ErrNotReset", err)
	}
	if _, ok := d.Snapshot(); ok {
		t.Error("Snapshot should report no episode")
	}
}

func TestEmptyCurriculumIsDone(t *testing.T) {
	emu := newFakeEmulator()
	d := newTestDriver(emu, testConfig())
	ctx := context.Background()
	if _, err := d.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := d.Step(ctx, emulator.Right)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Done || res.Reward != 0 {
		t.Errorf("result = %+v", res)
	}
	if emu.steps != 0 {
		t.Error("finished episode must not step the emulator")
	}
}

func TestRewardComposition(t *testing.T) {
	d := newTestDriver(newFakeEmulator(), testConfig(tasks.Spec{Kind: tasks.KindNavigate}))
	ctx := context.Background()
	if _, err := d.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	// penalty + one tile closer + first frame is maximally novel
	res, err := d.Step(ctx, emulator.Right)
	if err != nil {
		t.Fatal(err)
	}
	if want := -1.0 + 30 + 5*1.0; !nearly(res.Reward, want) {
		t.Errorf("first reward = %v, want %v", res.Reward, want)
	}

	// same frame again scores zero novelty
	res, _ = d.Step(ctx, emulator.Right)
	if want := -1.0 + 30; !nearly(res.Reward, want) {
		t.Errorf("second reward = %v, want %v", res.Reward, want)
	}
	if res.Done || res.Truncated {
		t.Errorf("unexpected end %+v", res)
	}

	s, ok := d.Snapshot()
	if !ok || s.Steps != 2 || s.TaskIndex != 0 || s.NoveltyFrames != 1 || !nearly(s.TotalReward, 63) {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestStageCompletionSavesCheckpoint(t *testing.T) {
	emu := newFakeEmulator()
	rec := &fakeRecorder{}
	d := newTestDriver(emu, testConfig(tasks.Spec{Kind: tasks.KindNavigate, Target: gamestate.Location{X: 12, Y: 23, MapID: 1}}))
	d.SetRecorder(rec)
	ctx := context.Background()
	d.Reset(ctx)

	res, err := d.Step(ctx, emulator.Right)
	if err != nil {
		t.Fatal(err)
	}
	if want := -1.0 + 30 + 5 + 300; !nearly(res.Reward, want) {
		t.Errorf("reward = %v, want %v", res.Reward, want)
	}
	if !res.Done {
		t.Fatal("single-stage curriculum should be done")
	}
	if d.Registry().Len() != 1 {
		t.Errorf("terminal stage must not be checkpointed, registry len = %d", d.Registry().Len())
	}
	if len(rec.started) != 1 || len(rec.ended) != 1 || rec.ended[0].Outcome != "done" {
		t.Errorf("recorder = %+v", rec)
	}

	again, _ := d.Step(ctx, emulator.Right)
	if !again.Done || again.Reward != 0 {
		t.Errorf("step after done = %+v", again)
	}
}

func TestResetFromCheckpointRestoresIndex(t *testing.T) {
	emu := newFakeEmulator()
	plan := []tasks.Spec{
		{Kind: tasks.KindNavigate, Target: gamestate.Location{X: 12, Y: 23, MapID: 1}},
		{Kind: tasks.KindDefeatBoss},
	}
	d := newTestDriver(emu, testConfig(plan...))
	ctx := context.Background()
	d.Reset(ctx)
	d.Step(ctx, emulator.Right)

	s, _ := d.Snapshot()
	if s.TaskIndex != 1 {
		t.Fatalf("index = %d, want 1", s.TaskIndex)
	}

	for i := 0; i < 50; i++ {
		if _, err := d.Reset(ctx); err != nil {
			t.Fatal(err)
		}
		if s, _ := d.Snapshot(); s.StartIndex == 1 {
			if s.TaskIndex != 1 || s.TaskName != "defeat the boss on map 54" {
				t.Errorf("restarted snapshot = %+v", s)
			}
			if emu.state.Location.X != 11 {
				t.Errorf("emulator not restored, x = %d", emu.state.Location.X)
			}
			return
		}
	}
	t.Fatal("checkpoint at stage 1 was never picked")
}

func TestResetAfterFullClearNeverStartsDone(t *testing.T) {
	emu := newFakeEmulator()
	plan := []tasks.Spec{
		{Kind: tasks.KindNavigate, Target: gamestate.Location{X: 12, Y: 23, MapID: 1}},
		{Kind: tasks.KindNavigate, Target: gamestate.Location{X: 13, Y: 23, MapID: 1}},
	}
	d := newTestDriver(emu, testConfig(plan...))
	ctx := context.Background()
	d.Reset(ctx)
	d.Step(ctx, emulator.Right)
	res, _ := d.Step(ctx, emulator.Right)
	if !res.Done {
		t.Fatalf("expected full clear, %+v", res)
	}
	if d.Registry().Len() != 2 {
		t.Errorf("registry len = %d, want 2", d.Registry().Len())
	}

	for i := 0; i < 30; i++ {
		if _, err := d.Reset(ctx); err != nil {
			t.Fatal(err)
		}
		if s, _ := d.Snapshot(); s.Done || s.StartIndex >= len(plan) {
			t.Fatalf("reset %d started finished: %+v", i, s)
		}
	}
}

func TestShapeMismatchLeavesEpisodeUnchanged(t *testing.T) {
	emu := newFakeEmulator()
	d := newTestDriver(emu, testConfig(tasks.Spec{Kind: tasks.KindDefeatBoss}))
	ctx := context.Background()
	d.Reset(ctx)
	if _, err := d.Step(ctx, emulator.B); err != nil {
		t.Fatal(err)
	}

	emu.bigFrame = true
	if _, err := d.Step(ctx, emulator.B); !errors.Is(err, novelty.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
	s, _ := d.Snapshot()
	if s.Steps != 1 || s.StepsSinceCheckpoint != 1 {
		t.Errorf("snapshot moved on a rejected frame: %+v", s)
	}
}

func TestCheckpointSaveFailureStillAdvances(t *testing.T) {
	emu := newFakeEmulator()
	emu.saveErr = errors.New("read-only filesystem")
	plan := []tasks.Spec{
		{Kind: tasks.KindNavigate, Target: gamestate.Location{X: 12, Y: 23, MapID: 1}},
		{Kind: tasks.KindDefeatBoss},
	}
	d := newTestDriver(emu, testConfig(plan...))
	ctx := context.Background()
	d.Reset(ctx)
	res, err := d.Step(ctx, emulator.Right)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := d.Snapshot()
	if s.TaskIndex != 1 || res.Reward < 300 {
		t.Errorf("index = %d reward = %v", s.TaskIndex, res.Reward)
	}
	if d.Registry().Len() != 1 {
		t.Errorf("registry len = %d", d.Registry().Len())
	}
}

func TestTruncatedAfterStepsSinceCheckpoint(t *testing.T) {
	cfg := testConfig(tasks.Spec{Kind: tasks.KindDefeatBoss})
	cfg.MaxStepsSinceCheckpoint = 3
	d := newTestDriver(newFakeEmulator(), cfg)
	ctx := context.Background()
	d.Reset(ctx)

	var res StepResult
	for i := 0; i < 3; i++ {
		res, _ = d.Step(ctx, emulator.B)
		if i < 2 && res.Truncated {
			t.Fatalf("truncated early at step %d", i+1)
		}
	}
	if !res.Truncated || res.Done {
		t.Errorf("result = %+v", res)
	}
}

func TestTruncatedWhenBudgetExhausted(t *testing.T) {
	cfg := testConfig(tasks.Spec{Kind: tasks.KindDefeatBoss})
	cfg.Budget = budget.Config{Counter: 1, Rate: 5, Window: 50}
	d := newTestDriver(newFakeEmulator(), cfg)
	ctx := context.Background()
	d.Reset(ctx)

	// 1 + (-1 + 5) - 2.5 = 2.5
	if res, _ := d.Step(ctx, emulator.B); res.Truncated {
		t.Fatal("first step should not truncate")
	}
	// 2.5 - 1 - 2.5 < 0
	res, _ := d.Step(ctx, emulator.B)
	if !res.Truncated {
		t.Errorf("expected truncation, snapshot %+v", res)
	}
	if s, _ := d.Snapshot(); s.Counter >= 0 {
		t.Errorf("counter = %v", s.Counter)
	}
}

func TestWinBadgesEndsEpisode(t *testing.T) {
	emu := newFakeEmulator()
	emu.badgeOnA = true
	cfg := testConfig(tasks.Spec{Kind: tasks.KindNavigate}, tasks.Spec{Kind: tasks.KindCatch})
	cfg.WinBadges = 1
	d := newTestDriver(emu, cfg)
	ctx := context.Background()
	d.Reset(ctx)
	res, _ := d.Step(ctx, emulator.A)
	if !res.Done {
		t.Errorf("expected done on badge, %+v", res)
	}
}

func TestNoveltyResetPerEpisode(t *testing.T) {
	cfg := testConfig(tasks.Spec{Kind: tasks.KindDefeatBoss})
	cfg.NoveltyResetPerEpisode = true
	det := novelty.NewDetector(novelty.Options{})
	d := NewDriver(newFakeEmulator(), cfg, curriculum.NewRegistry(quiet), det, quiet)
	ctx := context.Background()
	d.Reset(ctx)
	d.Step(ctx, emulator.B)
	if det.Len() != 1 {
		t.Fatalf("frames = %d", det.Len())
	}
	d.Reset(ctx)
	if det.Len() != 0 {
		t.Errorf("frames after reset = %d, want 0", det.Len())
	}
}

func TestResetAbandonsRunningEpisode(t *testing.T) {
	rec := &fakeRecorder{}
	d := newTestDriver(newFakeEmulator(), testConfig(tasks.Spec{Kind: tasks.KindDefeatBoss}))
	d.SetRecorder(rec)
	ctx := context.Background()
	d.Reset(ctx)
	d.Step(ctx, emulator.B)
	d.Reset(ctx)
	if len(rec.ended) != 1 || rec.ended[0].Outcome != "abandoned" {
		t.Errorf("ended = %+v", rec.ended)
	}
}

func TestCloseClosesEmulator(t *testing.T) {
	emu := newFakeEmulator()
	d := newTestDriver(emu, testConfig())
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !emu.closed {
		t.Error("emulator not closed")
	}
}

func TestRunnerPlaysEpisodes(t *testing.T) {
	rec := &fakeRecorder{}
	cfg := testConfig(tasks.Spec{Kind: tasks.KindDefeatBoss})
	cfg.MaxEpisodeSteps = 5
	d := newTestDriver(newFakeEmulator(), cfg)
	d.SetRecorder(rec)

	var steps int
	r := &Runner{Driver: d, Policy: NewRandomPolicy(1), Episodes: 3, OnStep: func(StepResult) { steps++ }}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.ended) != 3 {
		t.Errorf("episodes ended = %d", len(rec.ended))
	}
	if steps != 15 {
		t.Errorf("steps = %d, want 15", steps)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	d := newTestDriver(newFakeEmulator(), testConfig(tasks.Spec{Kind: tasks.KindDefeatBoss}))
	ctx, cancel := context.WithCancel(context.Background())
	var steps int
	r := &Runner{Driver: d, Policy: NewRandomPolicy(1), OnStep: func(StepResult) {
		steps++
		if steps == 10 {
			cancel()
		}
	}}
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRandomPolicyInRange(t *testing.T) {
	p := NewRandomPolicy(3)
	for i := 0; i < 100; i++ {
		if a := p.Act(Observation{}); !a.Valid() {
			t.Fatalf("invalid action %d", a)
		}
	}
}
