package tasks

import "github.com/UoA-CARES/pyboy-environment/internal/gamestate"

// Manhattan returns the grid distance between two positions, ignoring maps.
func Manhattan(a, b gamestate.Location) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// XPGain sums the experience gained per party slot. Slots that lost XP (a
// swap or release) contribute nothing.
func XPGain(prev, curr gamestate.State) float64 {
	var gain float64
	for i := 0; i < len(curr.XP) && i < len(prev.XP); i++ {
		if d := curr.XP[i] - prev.XP[i]; d > 0 {
			gain += float64(d)
		}
	}
	return gain
}

// LevelRatioGain sums new/old - 1 over slots that had a level before. Empty
// slots (level 0) contribute zero instead of dividing by zero.
func LevelRatioGain(prev, curr []int) float64 {
	var gain float64
	for i := 0; i < len(curr) && i < len(prev); i++ {
		if prev[i] == 0 {
			continue
		}
		gain += float64(curr[i])/float64(prev[i]) - 1
	}
	return gain
}

// LeveledUp reports whether any occupied slot gained a level.
func LeveledUp(prev, curr []int) bool {
	for i := 0; i < len(curr) && i < len(prev); i++ {
		if prev[i] != 0 && curr[i] > prev[i] {
			return true
		}
	}
	return false
}

// EnemyDamage is the opponent HP lost during an ongoing battle.
func EnemyDamage(prev, curr gamestate.State) float64 {
	if !prev.InBattle() || !curr.InBattle() {
		return 0
	}
	if d := prev.EnemyHP - curr.EnemyHP; d > 0 {
		return float64(d)
	}
	return 0
}

// OwnDamage is the party HP lost since the previous step.
func OwnDamage(prev, curr gamestate.State) float64 {
	if d := prev.TotalHP() - curr.TotalHP(); d > 0 {
		return float64(d)
	}
	return 0
}

// anyBattle matches every battle type in BattleStarted.
const anyBattle = gamestate.BattleNone

// BattleStarted reports a transition into a battle of the given type, or of any
// type for anyBattle.
func BattleStarted(prev, curr gamestate.State, battleType int) bool {
	if prev.InBattle() || !curr.InBattle() {
		return false
	}
	return battleType == anyBattle || curr.BattleType == battleType
}

// Defeated reports the whole party fainting on this step.
func Defeated(prev, curr gamestate.State) bool {
	return prev.TotalHP() > 0 && curr.TotalHP() == 0 && curr.PartySize > 0
}

func indicator(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
