package tasks

import (
	"fmt"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

// levelUp rewards experience, damage dealt and relative level gains until
// every occupied party slot reaches the target level. Each level-up earns a
// one-time step extension.
type levelUp struct {
	target int
	w      Weights

	pendingExtension int
}

func newLevelUp(spec Spec, w Weights) *levelUp {
	return &levelUp{target: spec.LevelTarget, w: w}
}

func (l *levelUp) Name() string {
	return fmt.Sprintf("level party to %d", l.target)
}

func (l *levelUp) Kind() Kind { return KindLevelUp }

func (l *levelUp) Reward(prev, curr gamestate.State) float64 {
	reward := battleProgress(prev, curr, l.w, anyBattle)
	if LeveledUp(prev.Levels, curr.Levels) {
		l.pendingExtension += l.w.LevelUpExtend
	}
	return reward
}

func (l *levelUp) Complete(curr gamestate.State) bool {
	for _, level := range curr.Levels {
		if level != 0 && level < l.target {
			return false
		}
	}
	return true
}

func (l *levelUp) TakeExtension() int {
	n := l.pendingExtension
	l.pendingExtension = 0
	return n
}

// battleProgress is the reward shared by the battle-oriented stages.
func battleProgress(prev, curr gamestate.State, w Weights, battleType int) float64 {
	var reward float64
	reward += w.StartBattle * indicator(BattleStarted(prev, curr, battleType))
	reward += w.XP * XPGain(prev, curr)
	reward += w.EnemyDamage * EnemyDamage(prev, curr)
	reward += w.LevelRatio * LevelRatioGain(prev.Levels, curr.Levels)
	return reward
}
