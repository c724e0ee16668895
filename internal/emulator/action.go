package emulator

import (
	"fmt"
	"strings"
)

// Action is one discrete button press.
type Action int

const (
	Down Action = iota
	Left
	Right
	Up
	A
	B
)

var actionNames = [...]string{"Down", "Left", "Right", "Up", "A", "B"}

// Actions returns the action space in index order.
func Actions() []Action {
	return []Action{Down, Left, Right, Up, A, B}
}

// NumActions is the size of the action space.
const NumActions = len(actionNames)

func (a Action) String() string {
	if a < 0 || int(a) >= NumActions {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// Valid reports whether a is inside the action space.
func (a Action) Valid() bool {
	return a >= 0 && int(a) < NumActions
}

// ParseAction maps a button name, case-insensitively, to its Action.
func ParseAction(name string) (Action, error) {
	for i, n := range actionNames {
		if strings.EqualFold(n, name) {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("emulator: unknown action %q", name)
}
