package vm

import "fmt"

// State is the scheduling state of a task.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StatePaused
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// noRequest marks an empty request slot.
const noRequest = -1

// Task is one cooperative script thread. State governs the current frame;
// Requested and RequestedPC take effect at the next CommitRequests.
type Task struct {
	Slot  int
	PC    int
	Stack []int
	State State

	Requested   State
	HasRequest  bool
	RequestedPC int
}

func (t *Task) reset() {
	t.PC = 0
	t.Stack = t.Stack[:0]
	t.State = StateNotStarted
	t.HasRequest = false
	t.RequestedPC = noRequest
}

// commit applies the pending requests. A killed task stays killed.
func (t *Task) commit() {
	defer func() {
		t.HasRequest = false
		t.RequestedPC = noRequest
	}()
	if t.State == StateKilled {
		return
	}

	if t.HasRequest {
		switch t.Requested {
		case StateKilled:
			t.State = StateKilled
			return
		case StatePaused:
			if t.State == StateRunning {
				t.State = StatePaused
			}
		case StateRunning:
			if t.State == StatePaused {
				t.State = StateRunning
			}
		}
	}

	if t.RequestedPC != noRequest {
		t.PC = t.RequestedPC
		t.Stack = t.Stack[:0]
		if t.State == StateNotStarted {
			t.State = StateRunning
		}
	}
}

// Variables is the global variable table shared by all tasks.
type Variables [NumVars]int16

// Well-known variables.
const (
	VarRandomSeed      = 0x3C
	VarInputKey        = 0xDA
	VarHeroPosUpDown   = 0xE5
	VarMusicMark       = 0xF4
	VarScrollY         = 0xF9
	VarHeroAction      = 0xFA
	VarHeroPosJumpDown = 0xFB
	VarHeroPosLeftRght = 0xFC
	VarHeroPosMask     = 0xFD
	VarHeroActionMask  = 0xFE
	VarPauseSlices     = 0xFF

	// VarPartInit is set to PartInitValue whenever a part starts.
	VarPartInit   = 0xE4
	PartInitValue = 0x14

	// VarDisplayDone is cleared after each page flip.
	VarDisplayDone = 0xF7
)
