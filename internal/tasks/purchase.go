package tasks

import (
	"fmt"

	"github.com/UoA-CARES/pyboy-environment/internal/gamestate"
)

// purchase rewards buying capture devices, with one-off bonuses for first
// entering the shop and for leaving it afterwards.
type purchase struct {
	shopMapID int
	target    int
	w         Weights

	prevDevices int
	enteredShop bool
	leftShop    bool
}

func newPurchase(spec Spec, initial gamestate.State, w Weights) *purchase {
	return &purchase{
		shopMapID:   spec.ShopMapID,
		target:      spec.DeviceTarget,
		w:           w,
		prevDevices: initial.CaptureDevices(),
	}
}

func (p *purchase) Name() string {
	return fmt.Sprintf("purchase more than %d capture devices", p.target)
}

func (p *purchase) Kind() Kind { return KindPurchase }

func (p *purchase) Reward(_, curr gamestate.State) float64 {
	devices := curr.CaptureDevices()
	reward := float64(devices - p.prevDevices)
	p.prevDevices = devices

	inShop := curr.Location.MapID == p.shopMapID
	if inShop && !p.enteredShop {
		p.enteredShop = true
		reward += p.w.ShopEnter
	}
	if p.enteredShop && !inShop && !p.leftShop {
		p.leftShop = true
		reward += p.w.ShopExit
	}
	return reward
}

func (p *purchase) Complete(curr gamestate.State) bool {
	return curr.CaptureDevices() > p.target && p.leftShop
}
