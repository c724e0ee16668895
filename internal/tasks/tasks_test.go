package tasks

import (
	"errors"
	"math"
	"testing"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

func baseState() gamestate.State {
	return gamestate.State{
		Location:  gamestate.Location{X: 10, Y: 40, MapID: 1},
		PartySize: 1,
		Levels:    []int{5, 0, 0},
		HP:        []int{20, 0, 0},
		MaxHP:     []int{20, 0, 0},
		XP:        []int{100, 0, 0},
		Items:     map[int]int{},
	}
}

func mustNew(t *testing.T, spec Spec, initial gamestate.State) Unit {
	t.Helper()
	u, err := New(spec, initial, DefaultWeights())
	if err != nil {
		t.Fatalf("New(%s): %v", spec.Kind, err)
	}
	return u
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNavigateCompleteAtTarget(t *testing.T) {
	s := baseState()
	s.Location = gamestate.Location{X: 29, Y: 23, MapID: 1}
	u := mustNew(t, Spec{Kind: KindNavigate, Target: gamestate.Location{X: 29, Y: 23, MapID: 1}}, baseState())
	if !u.Complete(s) {
		t.Error("expected complete at distance 0")
	}

	s.Location.MapID = 2
	if u.Complete(s) {
		t.Error("must not complete on the wrong map")
	}
}

func TestNavigateRewardsDistanceReduction(t *testing.T) {
	initial := baseState()
	u := mustNew(t, Spec{Kind: KindNavigate}, initial)

	next := initial
	next.Location = gamestate.Location{X: 11, Y: 40, MapID: 1}
	if got := u.Reward(initial, next); !approx(got, 30) {
		t.Errorf("Reward = %v, want 30", got)
	}

	back := next
	back.Location.X = 10
	if got := u.Reward(next, back); !approx(got, -30) {
		t.Errorf("Reward moving away = %v, want -30", got)
	}
}

func TestNavigateRewardsNewLowestYOffMap(t *testing.T) {
	initial := baseState()
	initial.Location = gamestate.Location{X: 5, Y: 9, MapID: 12}
	u := mustNew(t, Spec{Kind: KindNavigate}, initial)

	same := initial
	if got := u.Reward(initial, same); got != 0 {
		t.Errorf("no progress Reward = %v, want 0", got)
	}

	north := initial
	north.Location.Y = 8
	if got := u.Reward(same, north); !approx(got, 30) {
		t.Errorf("Reward = %v, want 30", got)
	}
	if got := u.Reward(north, north); got != 0 {
		t.Errorf("repeat Reward = %v, want 0", got)
	}
}

func TestNavigateNoJumpWhenEnteringTargetMap(t *testing.T) {
	initial := baseState()
	initial.Location = gamestate.Location{X: 90, Y: 90, MapID: 12}
	u := mustNew(t, Spec{Kind: KindNavigate}, initial)

	entered := initial
	entered.Location = gamestate.Location{X: 20, Y: 30, MapID: 1}
	if got := u.Reward(initial, entered); got != 0 {
		t.Errorf("Reward on map change = %v, want 0", got)
	}
}

func TestPurchaseFlow(t *testing.T) {
	s0 := baseState()
	u := mustNew(t, Spec{Kind: KindPurchase}, s0)

	inShop := s0
	inShop.Location.MapID = DefaultShopMapID
	if got := u.Reward(s0, inShop); !approx(got, 300) {
		t.Errorf("enter Reward = %v, want 300", got)
	}

	bought := inShop
	bought.Items = map[int]int{gamestate.ItemPokeBall: 5}
	if got := u.Reward(inShop, bought); !approx(got, 5) {
		t.Errorf("buy Reward = %v, want 5", got)
	}
	if u.Complete(bought) {
		t.Error("must not complete before leaving the shop")
	}

	left := bought
	left.Location.MapID = 1
	if got := u.Reward(bought, left); !approx(got, 300) {
		t.Errorf("exit Reward = %v, want 300", got)
	}
	if !u.Complete(left) {
		t.Error("expected complete with 5 devices after leaving")
	}

	// bonuses are one-off
	if got := u.Reward(left, inShop); got != -5 {
		t.Errorf("re-enter Reward = %v, want -5 (device count change only)", got)
	}
}

func TestPurchaseFirstRewardUsesConstructionState(t *testing.T) {
	s0 := baseState()
	s0.Items = map[int]int{gamestate.ItemPokeBall: 3}
	u := mustNew(t, Spec{Kind: KindPurchase}, s0)
	if got := u.Reward(gamestate.State{}, s0); got != 0 {
		t.Errorf("first Reward = %v, want 0", got)
	}
}

func TestCatchRewards(t *testing.T) {
	w := DefaultWeights()
	s0 := baseState()
	s0.Items = map[int]int{gamestate.ItemPokeBall: 3}
	u := mustNew(t, Spec{Kind: KindCatch, PartyTarget: 1}, s0)

	battle := s0
	battle.BattleType = gamestate.BattleWild
	if got := u.Reward(s0, battle); !approx(got, w.StartBattle) {
		t.Errorf("battle Reward = %v, want %v", got, w.StartBattle)
	}

	thrown := battle
	thrown.Items = map[int]int{gamestate.ItemPokeBall: 2}
	if got := u.Reward(battle, thrown); !approx(got, w.DeviceThrown) {
		t.Errorf("throw Reward = %v, want %v", got, w.DeviceThrown)
	}

	caught := thrown
	caught.BattleType = gamestate.BattleNone
	caught.PartySize = 2
	if got := u.Reward(thrown, caught); !approx(got, w.Caught) {
		t.Errorf("catch Reward = %v, want %v", got, w.Caught)
	}
	if !u.Complete(caught) {
		t.Error("expected complete with party of 2")
	}

	restock := caught
	restock.Items = map[int]int{gamestate.ItemPokeBall: 4}
	if got := u.Reward(caught, restock); !approx(got, 2*w.DeviceBought) {
		t.Errorf("buy Reward = %v, want %v", got, 2*w.DeviceBought)
	}
}

func TestLevelUpRatioAndEmptySlots(t *testing.T) {
	w := DefaultWeights()
	prev := baseState()
	curr := prev
	curr.Levels = []int{6, 0, 0}

	u := mustNew(t, Spec{Kind: KindLevelUp, LevelTarget: 7}, prev)
	want := (6.0/5.0 - 1) * w.LevelRatio
	if got := u.Reward(prev, curr); !approx(got, want) {
		t.Errorf("Reward = %v, want %v", got, want)
	}

	ext, ok := u.(Extender)
	if !ok {
		t.Fatal("level-up unit should grant extensions")
	}
	if got := ext.TakeExtension(); got != w.LevelUpExtend {
		t.Errorf("TakeExtension = %d, want %d", got, w.LevelUpExtend)
	}
	if got := ext.TakeExtension(); got != 0 {
		t.Errorf("second TakeExtension = %d, want 0", got)
	}
}

func TestLevelUpComplete(t *testing.T) {
	u := mustNew(t, Spec{Kind: KindLevelUp, LevelTarget: 7}, baseState())
	tests := []struct {
		levels []int
		want   bool
	}{
		{[]int{6, 0, 0}, false},
		{[]int{7, 0, 0}, true},
		{[]int{9, 3, 0}, false},
		{[]int{0, 0, 0}, true},
	}
	for _, tt := range tests {
		s := baseState()
		s.Levels = tt.levels
		if got := u.Complete(s); got != tt.want {
			t.Errorf("Complete(%v) = %v, want %v", tt.levels, got, tt.want)
		}
	}
}

func TestLevelUpXPAndDamage(t *testing.T) {
	w := DefaultWeights()
	prev := baseState()
	prev.BattleType = gamestate.BattleWild
	prev.EnemyHP = 30
	curr := prev
	curr.XP = []int{112, 0, 0}
	curr.EnemyHP = 25

	u := mustNew(t, Spec{Kind: KindLevelUp}, prev)
	want := 12*w.XP + 5*w.EnemyDamage
	if got := u.Reward(prev, curr); !approx(got, want) {
		t.Errorf("Reward = %v, want %v", got, want)
	}
}

func TestDefeatBossGatedOnMapEntry(t *testing.T) {
	w := DefaultWeights()
	prev := baseState()
	u := mustNew(t, Spec{Kind: KindDefeatBoss}, prev)

	xp := prev
	xp.XP = []int{150, 0, 0}
	if got := u.Reward(prev, xp); got != 0 {
		t.Errorf("Reward before entering gym = %v, want 0", got)
	}

	gym := xp
	gym.Location.MapID = DefaultBossMapID
	if got := u.Reward(xp, gym); !approx(got, w.BossMapEntry) {
		t.Errorf("entry Reward = %v, want %v", got, w.BossMapEntry)
	}

	wild := gym
	wild.BattleType = gamestate.BattleWild
	if got := u.Reward(gym, wild); got != 0 {
		t.Errorf("wild battle in gym Reward = %v, want 0", got)
	}

	trainer := gym
	trainer.BattleType = gamestate.BattleTrainer
	if got := u.Reward(gym, trainer); !approx(got, w.StartBattle) {
		t.Errorf("trainer battle Reward = %v, want %v", got, w.StartBattle)
	}

	fainted := trainer
	fainted.HP = []int{0, 0, 0}
	want := 20*w.OwnDamage + w.Defeated
	if got := u.Reward(trainer, fainted); !approx(got, want) {
		t.Errorf("defeat Reward = %v, want %v", got, want)
	}
}

func TestDefeatBossCompleteOnBadge(t *testing.T) {
	s := baseState()
	s.Badges = 1
	u := mustNew(t, Spec{Kind: KindDefeatBoss}, s)
	if u.Complete(s) {
		t.Error("existing badge must not complete the stage")
	}
	s.Badges = 2
	if !u.Complete(s) {
		t.Error("expected complete after badge increase")
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Spec{Kind: "fish"}, baseState(), DefaultWeights())
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan("navigate:3/4/5, purchase:6,level_up:9,catch:2,defeat_boss:60")
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if len(plan) != 5 {
		t.Fatalf("len = %d, want 5", len(plan))
	}
	if plan[0].Target != (gamestate.Location{X: 3, Y: 4, MapID: 5}) {
		t.Errorf("navigate target = %+v", plan[0].Target)
	}
	if plan[1].DeviceTarget != 6 || plan[2].LevelTarget != 9 || plan[3].PartyTarget != 2 || plan[4].BossMapID != 60 {
		t.Errorf("unexpected plan %+v", plan)
	}

	if got := DefaultPlan(); len(got) != 5 || got[0].Kind != KindNavigate || got[4].Kind != KindDefeatBoss {
		t.Errorf("DefaultPlan = %+v", got)
	}

	empty, err := ParsePlan("  ")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty plan = %v, %v", empty, err)
	}
}

func TestDefaultPlanCatchCompletesAtPartyOfTwo(t *testing.T) {
	spec := DefaultPlan()[3]
	if spec.Kind != KindCatch || spec.PartyTarget != 1 {
		t.Fatalf("catch stage = %+v", spec)
	}
	u := mustNew(t, spec, baseState())

	s := baseState()
	if u.Complete(s) {
		t.Error("party of 1 should not complete")
	}
	s.PartySize = 2
	if !u.Complete(s) {
		t.Error("party of 2 should complete")
	}
}

func TestParsePlanErrors(t *testing.T) {
	for _, in := range []string{"swim", "catch:x", "navigate:1/2", "level_up:"} {
		if _, err := ParsePlan(in); !errors.Is(err, ErrInvalidPlan) {
			t.Errorf("ParsePlan(%q) err = %v, want ErrInvalidPlan", in, err)
		}
	}
}

func TestBuild(t *testing.T) {
	units, err := Build(DefaultPlan(), baseState(), DefaultWeights())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, u := range units {
		if u.Kind() != DefaultPlan()[i].Kind {
			t.Errorf("unit %d kind = %s", i, u.Kind())
		}
		if u.Name() == "" {
			t.Errorf("unit %d has no name", i)
		}
	}
}
