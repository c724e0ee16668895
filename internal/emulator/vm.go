package emulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// ErrTimeout is returned when a script call is interrupted.
var ErrTimeout = errors.New("emulator: script timed out")

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 1 * time.Second
)

// vm wraps a goja runtime with sandbox restrictions. Calls are serialized.
type vm struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	callTimeout time.Duration
}

func newVM(rng *rand.Rand, callTimeout time.Duration) *vm {
	if callTimeout <= 0 {
		callTimeout = scriptCallTimeout
	}
	v := &vm{runtime: goja.New(), callTimeout: callTimeout}
	v.injectGlobals(rng)
	return v
}

// injectGlobals registers rand() and blocks host access.
func (v *vm) injectGlobals(rng *rand.Rand) {
	v.runtime.Set("rand", func(goja.FunctionCall) goja.Value {
		return v.runtime.ToValue(rng.Float64())
	})

	// Script randomness must come from the seeded rand().
	if m := v.runtime.Get("Math"); m != nil {
		m.ToObject(v.runtime).Set("random", v.runtime.Get("rand"))
	}

	v.runtime.Set("require", goja.Undefined())
	v.runtime.Set("fetch", goja.Undefined())
	v.runtime.Set("XMLHttpRequest", goja.Undefined())
	v.runtime.Set("eval", goja.Undefined())
	v.runtime.Set("Function", goja.Undefined())
}

// execute runs the script source once to define its functions.
func (v *vm) execute(ctx context.Context, source string) error {
	return v.runWithTimeout(ctx, scriptInitTimeout, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, err := v.runtime.RunString(source); err != nil {
			return fmt.Errorf("emulator: script execution error: %w", err)
		}
		return nil
	})
}

// hasFunc reports whether the script defined a global function name.
func (v *vm) hasFunc(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := goja.AssertFunction(v.runtime.Get(name))
	return ok
}

// call invokes a global script function and exports its result.
func (v *vm) call(ctx context.Context, name string, args ...any) (any, error) {
	var out any
	err := v.runWithTimeout(ctx, v.callTimeout, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()

		fn := v.runtime.Get(name)
		if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
			return fmt.Errorf("emulator: %s() is not defined", name)
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return fmt.Errorf("emulator: %s is not a function", name)
		}

		vals := make([]goja.Value, len(args))
		for i, a := range args {
			vals[i] = v.runtime.ToValue(a)
		}
		result, err := callable(goja.Undefined(), vals...)
		if err != nil {
			return fmt.Errorf("emulator: %s() error: %w", name, err)
		}
		out = result.Export()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *vm) runWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var cause error
	select {
	case err := <-done:
		return err
	case <-timer.C:
		cause = ErrTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	}

	// Interrupt the runaway call, then wait briefly for it to unwind.
	v.runtime.Interrupt(cause.Error())
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
	v.runtime.ClearInterrupt()
	return cause
}
