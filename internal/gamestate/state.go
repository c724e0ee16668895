// Package gamestate defines the per-step observation snapshot produced by the
// emulator collaborator.
package gamestate

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when an observation is missing a required field or
// carries a value of the wrong shape.
var ErrMalformed = errors.New("gamestate: malformed observation")

// FieldError describes which field of an observation could not be decoded.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("gamestate: field %q: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrMalformed).
func (e *FieldError) Unwrap() error {
	return ErrMalformed
}

// Battle types reported by the game.
const (
	BattleNone    = 0
	BattleWild    = 1
	BattleTrainer = 2
)

// Capture device item ids.
const (
	ItemMasterBall = 1
	ItemUltraBall  = 2
	ItemGreatBall  = 3
	ItemPokeBall   = 4
)

// Location is the player's position on a map.
type Location struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	MapID int `json:"map_id"`
}

// State is an immutable snapshot of the game produced once per step.
// Slices and maps must not be mutated after construction.
type State struct {
	Location   Location    `json:"location"`
	PartySize  int         `json:"party_size"`
	Levels     []int       `json:"levels"`
	HP         []int       `json:"hp"`
	MaxHP      []int       `json:"max_hp"`
	XP         []int       `json:"xp"`
	EnemyHP    int         `json:"enemy_hp"`
	Items      map[int]int `json:"items"`
	BattleType int         `json:"battle_type"`
	Badges     int         `json:"badges"`
}

// InBattle reports whether any battle is in progress.
func (s State) InBattle() bool {
	return s.BattleType != BattleNone
}

// CaptureDevices returns the total count of every ball type in the bag.
func (s State) CaptureDevices() int {
	total := 0
	for _, id := range []int{ItemMasterBall, ItemUltraBall, ItemGreatBall, ItemPokeBall} {
		total += s.Items[id]
	}
	return total
}

// TotalHP sums the current HP of every party slot.
func (s State) TotalHP() int {
	total := 0
	for _, hp := range s.HP {
		total += hp
	}
	return total
}
