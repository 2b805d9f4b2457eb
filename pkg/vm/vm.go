// Package vm provides the bytecode interpreter and its cooperative task
// scheduler.
//
// Up to 64 tasks share one variable table. Each frame the scheduler commits
// the state changes requested during the previous frame, then runs every
// running task in slot order until it yields, kills itself or fails.
package vm

import (
	"fmt"
	"log/slog"

	"github.com/zurustar/anotherworld/pkg/logger"
	"github.com/zurustar/anotherworld/pkg/resource"
	"github.com/zurustar/anotherworld/pkg/video"
)

const (
	NumTasks = 64
	NumVars  = 256

	// MaxCallDepth is the call stack bound of every task.
	MaxCallDepth = 64

	// DefaultStepBudget is the number of instructions a task may execute in
	// one turn before it is treated as runaway.
	DefaultStepBudget = 100000
)

// Resources gives the interpreter access to loaded segments and bank
// entries.
type Resources interface {
	Segment(role resource.Role) *resource.Segment
	Entry(id int) (resource.Entry, error)
	LoadResource(id int) (*resource.Segment, error)
	Preload(ids ...int)
	Invalidate()
}

// Renderer is the drawing surface driven by the draw and page opcodes.
type Renderer interface {
	SelectPage(id int)
	FillPage(id int, color byte)
	CopyPage(src, dst, vscroll int)
	Show(id int)
	RequestPalette(n int)
	Draw(data []byte, offset int, center video.Point, zoom int, color int) error
	DrawString(id, x, y int, color byte)
	DecodeBitmap(data []byte) error
}

// Audio receives sound and music triggers.
type Audio interface {
	PlaySound(id, freq, volume, channel int)
	PlayMusic(id, delay, position int)
}

// ShowFunc is called after every page flip with the number of 20ms pause
// slices the script asked for.
type ShowFunc func(pauseSlices int) error

// VM is the interpreter state: task slots and collaborators. The variable
// table is owned by the caller and passed to RunFrame.
type VM struct {
	tasks [NumTasks]Task

	res   Resources
	gfx   Renderer
	audio Audio
	show  ShowFunc

	stepBudget    int
	requestedPart int

	log *slog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(vm *VM) {
		vm.log = log
	}
}

// WithAudio sets the audio sink.
func WithAudio(a Audio) Option {
	return func(vm *VM) {
		vm.audio = a
	}
}

// WithShowFunc sets the function called after each page flip.
func WithShowFunc(f ShowFunc) Option {
	return func(vm *VM) {
		vm.show = f
	}
}

// WithStepBudget sets the per-turn instruction budget.
func WithStepBudget(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.stepBudget = n
		}
	}
}

// New creates a VM with all tasks not started.
func New(res Resources, gfx Renderer, opts ...Option) *VM {
	vm := &VM{
		res:        res,
		gfx:        gfx,
		audio:      nopAudio{},
		stepBudget: DefaultStepBudget,
		log:        logger.GetLogger(),
	}
	for i := range vm.tasks {
		vm.tasks[i].Slot = i
		vm.tasks[i].reset()
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

type nopAudio struct{}

func (nopAudio) PlaySound(id, freq, volume, channel int) {}
func (nopAudio) PlayMusic(id, delay, position int)       {}

// ResetTasks puts every task back to not started with an empty stack and
// starts task 0 at entry. It is called after a successful part switch.
func (vm *VM) ResetTasks(entry int) {
	for i := range vm.tasks {
		vm.tasks[i].reset()
	}
	vm.tasks[0].PC = entry
	vm.tasks[0].State = StateRunning
	vm.requestedPart = 0
}

// CommitRequests makes the states and program counters requested during the
// previous frame current. It is the only place task states change, apart
// from a task killing itself.
func (vm *VM) CommitRequests() {
	for i := range vm.tasks {
		vm.tasks[i].commit()
	}
}

// RunFrame runs every running task in ascending slot order. vars is lent to
// the interpreter for the duration of the call. The first error stops the
// frame.
func (vm *VM) RunFrame(vars *Variables) error {
	for i := range vm.tasks {
		t := &vm.tasks[i]
		if t.State != StateRunning {
			continue
		}
		if err := vm.runTask(t, vars); err != nil {
			vm.log.Error("Task failed", "task", t.Slot, "pc", fmt.Sprintf("0x%04x", t.PC), "error", err)
			return err
		}
	}
	return nil
}

// RequestedPart returns the part a script asked to switch to during the last
// frame.
func (vm *VM) RequestedPart() (int, bool) {
	return vm.requestedPart, vm.requestedPart != 0
}

// RequestPart asks for a part switch at the next frame boundary.
func (vm *VM) RequestPart(id int) {
	vm.requestedPart = id
}

// Task returns a copy of the task in slot.
func (vm *VM) Task(slot int) Task {
	t := vm.tasks[slot]
	t.Stack = append([]int(nil), t.Stack...)
	return t
}

// Tasks returns copies of all tasks.
func (vm *VM) Tasks() []Task {
	out := make([]Task, NumTasks)
	for i := range vm.tasks {
		out[i] = vm.Task(i)
	}
	return out
}

// ValidateTasks checks that tasks can be restored.
func ValidateTasks(tasks []Task) error {
	if len(tasks) != NumTasks {
		return fmt.Errorf("%d tasks, want %d", len(tasks), NumTasks)
	}
	for i, t := range tasks {
		if len(t.Stack) > MaxCallDepth {
			return fmt.Errorf("task %d: call stack depth %d exceeds %d", i, len(t.Stack), MaxCallDepth)
		}
		if t.State < StateNotStarted || t.State > StateKilled {
			return fmt.Errorf("task %d: invalid state %d", i, t.State)
		}
	}
	return nil
}

// RestoreTasks replaces all task slots.
func (vm *VM) RestoreTasks(tasks []Task) error {
	if err := ValidateTasks(tasks); err != nil {
		return err
	}
	for i, t := range tasks {
		t.Slot = i
		t.Stack = append([]int(nil), t.Stack...)
		vm.tasks[i] = t
	}
	return nil
}
