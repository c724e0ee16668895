package tasks

import (
	"fmt"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

// catch rewards the steps toward growing the party: starting a battle,
// throwing a ball, landing a catch and restocking balls.
type catch struct {
	target int
	w      Weights
}

func newCatch(spec Spec, w Weights) *catch {
	return &catch{target: spec.PartyTarget, w: w}
}

func (c *catch) Name() string {
	return fmt.Sprintf("catch until party exceeds %d", c.target)
}

func (c *catch) Kind() Kind { return KindCatch }

func (c *catch) Reward(prev, curr gamestate.State) float64 {
	var reward float64
	reward += c.w.StartBattle * indicator(BattleStarted(prev, curr, anyBattle))

	deviceDelta := curr.CaptureDevices() - prev.CaptureDevices()
	if deviceDelta < 0 && curr.InBattle() {
		reward += c.w.DeviceThrown * float64(-deviceDelta)
	}
	if deviceDelta > 0 && !curr.InBattle() {
		reward += c.w.DeviceBought * float64(deviceDelta)
	}
	if d := curr.PartySize - prev.PartySize; d > 0 {
		reward += c.w.Caught * float64(d)
	}
	return reward
}

func (c *catch) Complete(curr gamestate.State) bool {
	return curr.PartySize > c.target
}
