package vm

import (
	"errors"
	"fmt"

	"github.com/zurustar/anotherworld/pkg/opcode"
	"github.com/zurustar/anotherworld/pkg/resource"
	"github.com/zurustar/anotherworld/pkg/video"
)

// turn is the execution context of one task's turn.
type turn struct {
	vm   *VM
	task *Task
	vars *Variables
	code []byte
	done bool
}

// runTask steps a task until it yields, kills itself or fails.
func (vm *VM) runTask(t *Task, vars *Variables) error {
	seg := vm.res.Segment(resource.RoleCode)
	if seg == nil {
		return NewRuntimeError(ErrorResource, "no code segment loaded", t.Slot, t.PC, resource.ErrResourceNotFound)
	}
	tr := &turn{vm: vm, task: t, vars: vars, code: seg.Data}

	for steps := 0; !tr.done; steps++ {
		if steps >= vm.stepBudget {
			return NewRuntimeError(ErrorRunawayTask,
				fmt.Sprintf("no yield after %d instructions", vm.stepBudget), t.Slot, t.PC, ErrRunawayTask)
		}
		in, err := opcode.Decode(tr.code, t.PC)
		if err != nil {
			return decodeError(t.Slot, t.PC, err)
		}
		if err := tr.exec(in); err != nil {
			return err
		}
	}
	return nil
}

func (tr *turn) get(o opcode.Operand) int {
	if o.Kind == opcode.Var {
		return int(tr.vars[o.Value&0xFF])
	}
	return o.Value
}

func (tr *turn) set(o opcode.Operand, v int16) {
	tr.vars[o.Value&0xFF] = v
}

func (tr *turn) ref(o opcode.Operand) *int16 {
	return &tr.vars[o.Value&0xFF]
}

func (tr *turn) fail(errType ErrorType, msg string, in opcode.Instruction, cause error) error {
	return NewRuntimeError(errType, msg, tr.task.Slot, in.PC, cause)
}

// exec executes one instruction and advances the program counter.
func (tr *turn) exec(in opcode.Instruction) error {
	t := tr.task
	next := in.Next()
	a := in.Args

	switch op := in.Op; {
	case op >= opcode.BackgroundBase:
		if err := tr.background(in); err != nil {
			return err
		}

	case op >= opcode.SpriteBase:
		if err := tr.sprite(in); err != nil {
			return err
		}

	case op == opcode.MovConst:
		tr.set(a[0], int16(a[1].Value))

	case op == opcode.Mov:
		tr.set(a[0], int16(tr.get(a[1])))

	case op == opcode.Add:
		*tr.ref(a[0]) += int16(tr.get(a[1]))

	case op == opcode.AddConst:
		*tr.ref(a[0]) += int16(a[1].Value)

	case op == opcode.Sub:
		*tr.ref(a[0]) -= int16(tr.get(a[1]))

	case op == opcode.And:
		*tr.ref(a[0]) &= int16(uint16(a[1].Value))

	case op == opcode.Or:
		*tr.ref(a[0]) |= int16(uint16(a[1].Value))

	case op == opcode.Shl:
		p := tr.ref(a[0])
		*p = int16(uint16(*p) << uint(a[1].Value&0xF))
		if a[1].Value > 15 {
			*p = 0
		}

	case op == opcode.Shr:
		p := tr.ref(a[0])
		*p = int16(uint16(*p) >> uint(a[1].Value&0xF))
		if a[1].Value > 15 {
			*p = 0
		}

	case op == opcode.Call:
		if len(t.Stack) >= MaxCallDepth {
			return NewStackOverflowError(t.Slot, in.PC)
		}
		t.Stack = append(t.Stack, next)
		next = a[0].Value

	case op == opcode.Ret:
		if len(t.Stack) == 0 {
			return NewStackUnderflowError(t.Slot, in.PC)
		}
		next = t.Stack[len(t.Stack)-1]
		t.Stack = t.Stack[:len(t.Stack)-1]

	case op == opcode.Yield:
		tr.done = true

	case op == opcode.Jmp:
		next = a[0].Value

	case op == opcode.SetTask:
		tr.setTask(a[0].Value, a[1].Value)

	case op == opcode.Djnz:
		p := tr.ref(a[0])
		*p--
		if *p != 0 {
			next = a[1].Value
		}

	case op == opcode.Jcc:
		ok, err := compare(a[0].Value, tr.get(a[1]), tr.get(a[2]))
		if err != nil {
			return tr.fail(ErrorIllegalOpcode, "bad condition", in, err)
		}
		if ok {
			next = a[3].Value
		}

	case op == opcode.Palette:
		tr.vm.gfx.RequestPalette(a[0].Value >> 8)

	case op == opcode.Tasks:
		tr.changeTasks(a[0].Value, a[1].Value, a[2].Value)

	case op == opcode.SelectPage:
		tr.vm.gfx.SelectPage(a[0].Value)

	case op == opcode.FillPage:
		tr.vm.gfx.FillPage(a[0].Value, byte(a[1].Value))

	case op == opcode.CopyPage:
		tr.vm.gfx.CopyPage(a[0].Value, a[1].Value, int(tr.vars[VarScrollY]))

	case op == opcode.ShowPage:
		if err := tr.showPage(a[0].Value); err != nil {
			return tr.fail(ErrorResource, "show failed", in, err)
		}

	case op == opcode.Kill:
		t.State = StateKilled
		t.HasRequest = false
		t.RequestedPC = noRequest
		tr.done = true

	case op == opcode.Text:
		tr.vm.gfx.DrawString(a[0].Value, a[1].Value, a[2].Value, byte(a[3].Value))

	case op == opcode.Sound:
		tr.vm.audio.PlaySound(a[0].Value, a[1].Value, a[2].Value, a[3].Value)

	case op == opcode.Music:
		tr.vm.audio.PlayMusic(a[0].Value, a[1].Value, a[2].Value)

	case op == opcode.Load:
		if err := tr.load(a[0].Value); err != nil {
			return tr.fail(ErrorResource, fmt.Sprintf("load 0x%04x", a[0].Value), in, err)
		}

	default:
		return tr.fail(ErrorIllegalOpcode, "unhandled opcode", in,
			fmt.Errorf("%w: 0x%02x", ErrIllegalOpcode, byte(in.Op)))
	}

	t.PC = next
	return nil
}

// compare evaluates a jcc condition.
func compare(mode, a, b int) (bool, error) {
	switch mode & 7 {
	case opcode.CondEQ:
		return a == b, nil
	case opcode.CondNE:
		return a != b, nil
	case opcode.CondGT:
		return a > b, nil
	case opcode.CondGE:
		return a >= b, nil
	case opcode.CondLT:
		return a < b, nil
	case opcode.CondLE:
		return a <= b, nil
	}
	return false, fmt.Errorf("%w: condition %d", ErrIllegalOpcode, mode&7)
}

// killPC is the settask address that kills the target task.
const killPC = 0xFFFE

func (tr *turn) setTask(slot, pc int) {
	if slot >= NumTasks {
		tr.vm.log.Warn("settask: task out of range", "task", slot)
		return
	}
	target := &tr.vm.tasks[slot]
	if pc == killPC {
		target.Requested = StateKilled
		target.HasRequest = true
		return
	}
	target.RequestedPC = pc
}

func (tr *turn) changeTasks(first, last, action int) {
	last &= NumTasks - 1
	if first > last {
		tr.vm.log.Warn("tasks: bad range", "first", first, "last", last)
		return
	}
	var state State
	switch action {
	case opcode.ActionResume:
		state = StateRunning
	case opcode.ActionPause:
		state = StatePaused
	case opcode.ActionKill:
		state = StateKilled
	default:
		tr.vm.log.Warn("tasks: unknown action", "action", action)
		return
	}
	for i := first; i <= last; i++ {
		tr.vm.tasks[i].Requested = state
		tr.vm.tasks[i].HasRequest = true
	}
}

func (tr *turn) showPage(page int) error {
	tr.vm.gfx.Show(page)
	tr.vars[VarDisplayDone] = 0
	if tr.vm.show == nil {
		return nil
	}
	return tr.vm.show(int(tr.vars[VarPauseSlices]))
}

// load handles the load opcode: 0 drops preloaded resources, part ids request
// a switch at the next frame boundary, bitmaps are decoded into page 0 and
// anything else is preloaded.
func (tr *turn) load(id int) error {
	switch {
	case id == 0:
		tr.vm.res.Invalidate()
		return nil
	case id > resource.PartThreshold:
		tr.vm.requestedPart = id
		return nil
	}

	e, err := tr.vm.res.Entry(id)
	if err != nil {
		return err
	}
	if e.Kind != resource.KindBitmap {
		tr.vm.res.Preload(id)
		return nil
	}
	seg, err := tr.vm.res.LoadResource(id)
	if err != nil {
		return err
	}
	return tr.vm.gfx.DecodeBitmap(seg.Data)
}

func (tr *turn) draw(in opcode.Instruction, role resource.Role, offset int, pt video.Point, zoom int) error {
	seg := tr.vm.res.Segment(role)
	if seg == nil {
		return tr.fail(ErrorResource, fmt.Sprintf("no %s segment loaded", role), in, resource.ErrResourceNotFound)
	}
	err := tr.vm.gfx.Draw(seg.Data, offset, pt, zoom, video.ColorFromShape)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, video.ErrRenderDepthExceeded):
		return tr.fail(ErrorRenderDepth, "shape nesting too deep", in, err)
	default:
		return tr.fail(ErrorResource, "cannot draw shape", in, err)
	}
}

func (tr *turn) sprite(in opcode.Instruction) error {
	role := resource.RolePolygonPrimary
	if in.Secondary {
		role = resource.RolePolygonSecondary
	}
	pt := video.Point{X: tr.get(in.Args[1]), Y: tr.get(in.Args[2])}
	return tr.draw(in, role, in.Args[0].Value, pt, tr.get(in.Args[3]))
}

// background draws a polygon from the primary segment at full size. Rows
// past the bottom of the page are folded into x.
func (tr *turn) background(in opcode.Instruction) error {
	x, y := in.Args[1].Value, in.Args[2].Value
	if h := y - (video.Height - 1); h > 0 {
		y = video.Height - 1
		x += h
	}
	return tr.draw(in, resource.RolePolygonPrimary, in.Args[0].Value, video.Point{X: x, Y: y}, video.DefaultZoom)
}
