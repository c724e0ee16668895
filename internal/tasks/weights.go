package tasks

// Weights scale each reward component. They are tunable hyperparameters.
type Weights struct {
	StartBattle   float64 `json:"startBattle"`
	EnemyDamage   float64 `json:"enemyDamage"`
	XP            float64 `json:"xp"`
	LevelRatio    float64 `json:"levelRatio"`
	DeviceThrown  float64 `json:"deviceThrown"`
	Caught        float64 `json:"caught"`
	DeviceBought  float64 `json:"deviceBought"`
	Navigate      float64 `json:"navigate"`
	NewMinY       float64 `json:"newMinY"`
	ShopEnter     float64 `json:"shopEnter"`
	ShopExit      float64 `json:"shopExit"`
	BossMapEntry  float64 `json:"bossMapEntry"`
	OwnDamage     float64 `json:"ownDamage"`
	Defeated      float64 `json:"defeated"`
	LevelUpExtend int     `json:"levelUpExtend"`
}

// DefaultWeights returns the weights used for the first-gym curriculum.
// Penalties are stored as negative weights.
func DefaultWeights() Weights {
	return Weights{
		StartBattle:   100,
		EnemyDamage:   10,
		XP:            30,
		LevelRatio:    300,
		DeviceThrown:  100,
		Caught:        100,
		DeviceBought:  100,
		Navigate:      30,
		NewMinY:       30,
		ShopEnter:     300,
		ShopExit:      300,
		BossMapEntry:  100,
		OwnDamage:     -10,
		Defeated:      -500,
		LevelUpExtend: 100,
	}
}
