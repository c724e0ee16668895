package tasks

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPlanString is the first-gym curriculum.
const DefaultPlanString = "navigate,purchase,level_up:7,catch:1,defeat_boss"

// DefaultPlan returns the parsed DefaultPlanString.
func DefaultPlan() []Spec {
	plan, err := ParsePlan(DefaultPlanString)
	if err != nil {
		panic(err)
	}
	return plan
}

// ParsePlan parses a comma-separated list of "kind[:arg]" stages.
//
//	navigate[:x/y/map]   target tile
//	purchase[:n]         finish with more than n devices
//	catch[:n]            finish with a party larger than n
//	level_up[:n]         finish with every occupied slot at level n
//	defeat_boss[:map]    boss map id
//
// An empty string yields an empty plan.
func ParsePlan(s string) ([]Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var plan []Spec
	for i, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		name, arg, hasArg := strings.Cut(entry, ":")
		spec := Spec{Kind: Kind(name)}

		var err error
		switch spec.Kind {
		case KindNavigate:
			if hasArg {
				spec.Target.X, spec.Target.Y, spec.Target.MapID, err = parseTile(arg)
			}
		case KindPurchase:
			if hasArg {
				spec.DeviceTarget, err = strconv.Atoi(arg)
			}
		case KindCatch:
			if hasArg {
				spec.PartyTarget, err = strconv.Atoi(arg)
			}
		case KindLevelUp:
			if hasArg {
				spec.LevelTarget, err = strconv.Atoi(arg)
			}
		case KindDefeatBoss:
			if hasArg {
				spec.BossMapID, err = strconv.Atoi(arg)
			}
		default:
			return nil, fmt.Errorf("%w: stage %d: %w: %q", ErrInvalidPlan, i, ErrUnknownKind, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stage %d (%s): %v", ErrInvalidPlan, i, entry, err)
		}
		plan = append(plan, spec)
	}
	return plan, nil
}

func parseTile(arg string) (x, y, mapID int, err error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want x/y/map, got %q", arg)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		if vals[i], err = strconv.Atoi(p); err != nil {
			return 0, 0, 0, err
		}
	}
	return vals[0], vals[1], vals[2], nil
}
