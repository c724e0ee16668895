package budget

const (
	DefaultCounter = 5000.0
	DefaultRate    = 5.0
)

// Config holds the initial constants restored on every Reset.
type Config struct {
	Counter float64
	Rate    float64
	Window  int
}

// DefaultConfig returns the standard budget constants.
func DefaultConfig() Config {
	return Config{Counter: DefaultCounter, Rate: DefaultRate, Window: DefaultWindow}
}

// Controller is an adaptive step budget. Each reward is credited to the
// counter while a decay rate, ratcheted up to the best rolling average seen,
// is charged against it. The episode is truncated once the counter goes
// negative.
type Controller struct {
	cfg     Config
	counter float64
	rate    float64
	rewards *RollingBuffer
}

// NewController creates a controller with cfg's initial values.
func NewController(cfg Config) *Controller {
	c := &Controller{
		cfg:     cfg,
		rewards: NewRollingBuffer(cfg.Window),
	}
	c.Reset()
	return c
}

// Update records one step's reward and reports whether the budget is
// exhausted.
func (c *Controller) Update(reward float64) bool {
	c.rewards.Add(reward)
	if avg := c.rewards.Average(); avg > c.rate {
		c.rate = avg
	}
	c.counter += reward
	c.counter -= c.rate / 2
	return c.Exhausted()
}

// Exhausted reports whether the counter has dropped below zero.
func (c *Controller) Exhausted() bool {
	return c.counter < 0
}

// Counter returns the remaining budget.
func (c *Controller) Counter() float64 { return c.counter }

// DecayRate returns the current per-step charge rate (charged at half).
func (c *Controller) DecayRate() float64 { return c.rate }

// Average returns the rolling reward average.
func (c *Controller) Average() float64 { return c.rewards.Average() }

// Reset restores the initial counter and rate and clears the reward window.
func (c *Controller) Reset() {
	c.counter = c.cfg.Counter
	c.rate = c.cfg.Rate
	c.rewards.Reset()
}
