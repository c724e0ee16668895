package tasks

import (
	"fmt"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

// defeatBoss is the final stage. Nothing is rewarded until the boss map has
// been entered once; after that it pays the battle rewards and charges for
// damage taken and for the party fainting. The stage completes when the
// badge count rises above its value at construction.
type defeatBoss struct {
	mapID      int
	battleType int
	w          Weights

	startBadges int
	enteredMap  bool
}

func newDefeatBoss(spec Spec, initial gamestate.State, w Weights) *defeatBoss {
	return &defeatBoss{
		mapID:       spec.BossMapID,
		battleType:  spec.BossBattleType,
		w:           w,
		startBadges: initial.Badges,
		enteredMap:  initial.Location.MapID == spec.BossMapID,
	}
}

func (b *defeatBoss) Name() string {
	return fmt.Sprintf("defeat the boss on map %d", b.mapID)
}

func (b *defeatBoss) Kind() Kind { return KindDefeatBoss }

func (b *defeatBoss) Reward(prev, curr gamestate.State) float64 {
	var reward float64
	if !b.enteredMap {
		if curr.Location.MapID != b.mapID {
			return 0
		}
		b.enteredMap = true
		reward += b.w.BossMapEntry
	}

	reward += battleProgress(prev, curr, b.w, b.battleType)
	reward += b.w.OwnDamage * OwnDamage(prev, curr)
	reward += b.w.Defeated * indicator(Defeated(prev, curr))
	return reward
}

func (b *defeatBoss) Complete(curr gamestate.State) bool {
	return curr.Badges > b.startBadges
}
