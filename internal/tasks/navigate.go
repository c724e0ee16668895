package tasks

import (
	"fmt"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

// navigate rewards closing the distance to a target tile. Off the target map
// it rewards reaching a new lowest y per map, since routes north are the
// usual way forward.
type navigate struct {
	target       gamestate.Location
	doneDistance int
	w            Weights

	prevDist    int
	prevOnMap   bool
	lowestYByID map[int]int
}

func newNavigate(spec Spec, initial gamestate.State, w Weights) *navigate {
	n := &navigate{
		target:       spec.Target,
		doneDistance: spec.DoneDistance,
		w:            w,
		prevDist:     Manhattan(initial.Location, spec.Target),
		prevOnMap:    initial.Location.MapID == spec.Target.MapID,
		lowestYByID:  make(map[int]int),
	}
	n.lowestYByID[initial.Location.MapID] = initial.Location.Y
	return n
}

func (n *navigate) Name() string {
	return fmt.Sprintf("navigate to (%d, %d) on map %d", n.target.X, n.target.Y, n.target.MapID)
}

func (n *navigate) Kind() Kind { return KindNavigate }

func (n *navigate) Reward(_, curr gamestate.State) float64 {
	loc := curr.Location
	dist := Manhattan(loc, n.target)
	onMap := loc.MapID == n.target.MapID

	var reward float64
	if onMap {
		// Distances measured on another map are not comparable.
		if n.prevOnMap {
			reward += n.w.Navigate * float64(n.prevDist-dist)
		}
	} else {
		lowest, seen := n.lowestYByID[loc.MapID]
		if !seen || loc.Y < lowest {
			reward += n.w.NewMinY
			n.lowestYByID[loc.MapID] = loc.Y
		}
	}

	n.prevDist = dist
	n.prevOnMap = onMap
	return reward
}

func (n *navigate) Complete(curr gamestate.State) bool {
	return curr.Location.MapID == n.target.MapID && Manhattan(curr.Location, n.target) < n.doneDistance
}
