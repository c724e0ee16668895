package episode

import (
	"context"
	"errors"
	"math/rand"

	"github.com/UoA-CARES/pyboy-environment/internal/emulator"
)

// Policy picks the next action.
type Policy interface {
	Act(obs Observation) emulator.Action
}

// RandomPolicy presses a uniformly random button.
type RandomPolicy struct {
	rng *rand.Rand
}

func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Act(Observation) emulator.Action {
	return emulator.Action(p.rng.Intn(emulator.NumActions))
}

// Runner plays episodes until Episodes have finished or the context ends.
type Runner struct {
	Driver   *Driver
	Policy   Policy
	Episodes int // 0 runs until cancelled

	// OnStep, when set, observes every step result.
	OnStep func(StepResult)
}

// Run returns nil after the requested number of episodes, or the context's
// error if cancelled first.
func (r *Runner) Run(ctx context.Context) error {
	if r.Driver == nil || r.Policy == nil {
		return errors.New("episode: runner needs a driver and a policy")
	}

	for n := 0; r.Episodes <= 0 || n < r.Episodes; n++ {
		obs, err := r.Driver.Reset(ctx)
		if err != nil {
			return err
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			res, err := r.Driver.Step(ctx, r.Policy.Act(obs))
			if err != nil {
				return err
			}
			if r.OnStep != nil {
				r.OnStep(res)
			}
			obs = res.Observation
			if res.Done || res.Truncated {
				break
			}
		}
	}
	return nil
}
