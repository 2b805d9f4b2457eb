// Package input maps a player input snapshot onto the variables scripts read.
package input

import "github.com/zurustar/anotherworld/pkg/vm"

// State is the player input sampled once per frame.
type State struct {
	Left   bool
	Right  bool
	Up     bool
	Down   bool
	Action bool

	// LastChar is the last letter typed, or 8 for backspace. It is consumed
	// only while the password screen runs.
	LastChar byte

	// Code asks to jump to the password screen.
	Code bool

	// Save and Load request a state snapshot in Slot.
	Save bool
	Load bool
	Slot int

	Quit bool
}

const (
	maskRight  = 1
	maskLeft   = 2
	maskDown   = 4
	maskUp     = 8
	maskAction = 0x80
)

// Apply writes the input variables. passwordScreen enables text entry.
func Apply(vars *vm.Variables, s State, passwordScreen bool) {
	if passwordScreen {
		c := s.LastChar
		if l := c | 0x20; c == 8 || (l >= 'a' && l <= 'z') {
			vars[vm.VarInputKey] = int16(c &^ 0x20)
		}
	}

	var lr, ud, jd, mask int16
	if s.Right {
		lr = 1
		mask |= maskRight
	}
	if s.Left {
		lr = -1
		mask |= maskLeft
	}
	if s.Down {
		ud = 1
		jd = 1
		mask |= maskDown
	}
	if s.Up {
		ud = -1
		jd = -1
		mask |= maskUp
	}
	vars[vm.VarHeroPosUpDown] = ud
	vars[vm.VarHeroPosJumpDown] = jd
	vars[vm.VarHeroPosLeftRght] = lr
	vars[vm.VarHeroPosMask] = mask

	var action int16
	if s.Action {
		action = 1
		mask |= maskAction
	}
	vars[vm.VarHeroAction] = action
	vars[vm.VarHeroActionMask] = mask
}
