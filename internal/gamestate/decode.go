package gamestate

import (
	"encoding/json"
	"math"
	"strconv"
)

// Decode builds a State from a dictionary-like observation, as exported from a
// script runtime or decoded from JSON. Every field is required; no defaults are
// guessed for missing values.
func Decode(raw map[string]any) (State, error) {
	var s State

	locRaw, err := field(raw, "location")
	if err != nil {
		return State{}, err
	}
	loc, ok := locRaw.(map[string]any)
	if !ok {
		return State{}, &FieldError{Field: "location", Reason: "expected object"}
	}
	if s.Location.X, err = intField(loc, "location.x", "x"); err != nil {
		return State{}, err
	}
	if s.Location.Y, err = intField(loc, "location.y", "y"); err != nil {
		return State{}, err
	}
	if s.Location.MapID, err = intField(loc, "location.map_id", "map_id"); err != nil {
		return State{}, err
	}

	if s.PartySize, err = intField(raw, "party_size", "party_size"); err != nil {
		return State{}, err
	}
	if s.EnemyHP, err = intField(raw, "enemy_hp", "enemy_hp"); err != nil {
		return State{}, err
	}
	if s.BattleType, err = intField(raw, "battle_type", "battle_type"); err != nil {
		return State{}, err
	}
	if s.Badges, err = intField(raw, "badges", "badges"); err != nil {
		return State{}, err
	}
	if s.Levels, err = intSlice(raw, "levels"); err != nil {
		return State{}, err
	}
	if s.HP, err = intSlice(raw, "hp"); err != nil {
		return State{}, err
	}
	if s.MaxHP, err = intSlice(raw, "max_hp"); err != nil {
		return State{}, err
	}
	if s.XP, err = intSlice(raw, "xp"); err != nil {
		return State{}, err
	}
	if s.Items, err = itemMap(raw, "items"); err != nil {
		return State{}, err
	}
	return s, nil
}

func field(raw map[string]any, name string) (any, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return nil, &FieldError{Field: name, Reason: "missing"}
	}
	return v, nil
}

func intField(raw map[string]any, path, name string) (int, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return 0, &FieldError{Field: path, Reason: "missing"}
	}
	n, ok := toInt(v)
	if !ok {
		return 0, &FieldError{Field: path, Reason: "expected integer"}
	}
	return n, nil
}

func intSlice(raw map[string]any, name string) ([]int, error) {
	v, err := field(raw, name)
	if err != nil {
		return nil, err
	}
	switch vals := v.(type) {
	case []int:
		out := make([]int, len(vals))
		copy(out, vals)
		return out, nil
	case []int64:
		out := make([]int, len(vals))
		for i, n := range vals {
			out[i] = int(n)
		}
		return out, nil
	case []any:
		out := make([]int, len(vals))
		for i, item := range vals {
			n, ok := toInt(item)
			if !ok {
				return nil, &FieldError{Field: name + "[" + strconv.Itoa(i) + "]", Reason: "expected integer"}
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, &FieldError{Field: name, Reason: "expected array"}
	}
}

func itemMap(raw map[string]any, name string) (map[int]int, error) {
	v, err := field(raw, name)
	if err != nil {
		return nil, err
	}
	switch items := v.(type) {
	case map[int]int:
		out := make(map[int]int, len(items))
		for k, n := range items {
			out[k] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[int]int, len(items))
		for k, item := range items {
			id, err := strconv.Atoi(k)
			if err != nil {
				return nil, &FieldError{Field: name, Reason: "item id " + strconv.Quote(k) + " is not an integer"}
			}
			n, ok := toInt(item)
			if !ok {
				return nil, &FieldError{Field: name + "." + k, Reason: "expected integer"}
			}
			out[id] = n
		}
		return out, nil
	default:
		return nil, &FieldError{Field: name, Reason: "expected object"}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
