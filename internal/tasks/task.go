// Package tasks implements the curriculum's sub-goals. Each Unit shapes the
// reward for one stage and decides when that stage is complete.
package tasks

import (
	"errors"
	"fmt"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

var (
	ErrUnknownKind = errors.New("tasks: unknown task kind")
	ErrInvalidPlan = errors.New("tasks: invalid curriculum plan")
)

// Kind tags a task variant.
type Kind string

const (
	KindNavigate   Kind = "navigate"
	KindPurchase   Kind = "purchase"
	KindCatch      Kind = "catch"
	KindLevelUp    Kind = "level_up"
	KindDefeatBoss Kind = "defeat_boss"
)

// Kinds lists every supported variant in curriculum order.
func Kinds() []Kind {
	return []Kind{KindNavigate, KindPurchase, KindCatch, KindLevelUp, KindDefeatBoss}
}

// Unit is one curriculum stage.
//
// Reward may update the unit's private counters; it must not retain the states
// it is given. Complete should stay true once reached for the same or a better
// state.
type Unit interface {
	Name() string
	Kind() Kind
	Reward(prev, curr gamestate.State) float64
	Complete(curr gamestate.State) bool
}

// Extender is implemented by units that earn extra steps before the
// steps-since-checkpoint limit truncates the episode. TakeExtension returns the
// pending credit and clears it.
type Extender interface {
	TakeExtension() int
}

// Spec describes a unit to build. Only the fields relevant to Kind are read;
// zero values select the defaults below.
type Spec struct {
	Kind Kind `json:"kind"`

	Target         gamestate.Location `json:"target,omitempty"`
	DoneDistance   int                `json:"doneDistance,omitempty"`
	ShopMapID      int                `json:"shopMapId,omitempty"`
	DeviceTarget   int                `json:"deviceTarget,omitempty"`
	PartyTarget    int                `json:"partyTarget,omitempty"`
	LevelTarget    int                `json:"levelTarget,omitempty"`
	BossMapID      int                `json:"bossMapId,omitempty"`
	BossBattleType int                `json:"bossBattleType,omitempty"`
}

// DefaultTarget is the tile outside the first mart.
var DefaultTarget = gamestate.Location{X: 29, Y: 23, MapID: 1}

const (
	DefaultDoneDistance = 5
	DefaultShopMapID    = 42
	DefaultDeviceTarget = 4
	DefaultPartyTarget  = 1
	DefaultLevelTarget  = 7
	DefaultBossMapID    = 54
)

func (s Spec) withDefaults() Spec {
	if s.Target == (gamestate.Location{}) {
		s.Target = DefaultTarget
	}
	if s.DoneDistance <= 0 {
		s.DoneDistance = DefaultDoneDistance
	}
	if s.ShopMapID == 0 {
		s.ShopMapID = DefaultShopMapID
	}
	if s.DeviceTarget <= 0 {
		s.DeviceTarget = DefaultDeviceTarget
	}
	if s.PartyTarget <= 0 {
		s.PartyTarget = DefaultPartyTarget
	}
	if s.LevelTarget <= 0 {
		s.LevelTarget = DefaultLevelTarget
	}
	if s.BossMapID == 0 {
		s.BossMapID = DefaultBossMapID
	}
	if s.BossBattleType == 0 {
		s.BossBattleType = gamestate.BattleTrainer
	}
	return s
}

// New builds a fresh unit. Counters are seeded from initial, the state at
// construction time, so the first Reward call needs no earlier history.
func New(spec Spec, initial gamestate.State, w Weights) (Unit, error) {
	spec = spec.withDefaults()
	switch spec.Kind {
	case KindNavigate:
		return newNavigate(spec, initial, w), nil
	case KindPurchase:
		return newPurchase(spec, initial, w), nil
	case KindCatch:
		return newCatch(spec, w), nil
	case KindLevelUp:
		return newLevelUp(spec, w), nil
	case KindDefeatBoss:
		return newDefeatBoss(spec, initial, w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

// Build constructs one unit per spec, in order.
func Build(plan []Spec, initial gamestate.State, w Weights) ([]Unit, error) {
	units := make([]Unit, 0, len(plan))
	for i, spec := range plan {
		u, err := New(spec, initial, w)
		if err != nil {
			return nil, fmt.Errorf("tasks: stage %d: %w", i, err)
		}
		units = append(units, u)
	}
	return units, nil
}
