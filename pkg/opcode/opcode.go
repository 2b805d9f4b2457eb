// Package opcode defines the instruction set of the bytecode interpreter.
// Both the interpreter and the disassembler decode instructions through this
// package, so operand layouts are described in one place.
package opcode

import (
	"errors"
	"fmt"
)

// Op is an opcode byte. Bytes from SpriteBase up encode the draw
// instructions; their low bits carry operand flags.
type Op byte

// The instruction set. Operands follow the opcode byte, big-endian.
const (
	// MovConst sets a variable.
	// Operands: [var, i16]
	MovConst Op = 0x00

	// Mov copies a variable.
	// Operands: [dst var, src var]
	Mov Op = 0x01

	// Add adds a variable to a variable.
	// Operands: [dst var, src var]
	Add Op = 0x02

	// AddConst adds a constant with 16-bit wraparound.
	// Operands: [var, i16]
	AddConst Op = 0x03

	// Call pushes the return address and jumps.
	// Operands: [addr u16]
	Call Op = 0x04

	// Ret pops the return address.
	Ret Op = 0x05

	// Yield ends the task's turn for this frame.
	Yield Op = 0x06

	// Jmp jumps.
	// Operands: [addr u16]
	Jmp Op = 0x07

	// SetTask sets the program counter another task starts from next frame.
	// Operands: [task u8, addr u16]
	SetTask Op = 0x08

	// Djnz decrements a variable and jumps while it is not zero.
	// Operands: [var, addr u16]
	Djnz Op = 0x09

	// Jcc compares a variable with a variable or a constant and jumps.
	// Operands: [mode u8, var, var | i16 | u8, addr u16]
	Jcc Op = 0x0A

	// Palette requests the palette shown at the next page flip. Only the
	// high byte selects the palette.
	// Operands: [id u16]
	Palette Op = 0x0B

	// Tasks requests a state for a range of tasks, effective next frame.
	// Operands: [first u8, last u8, action u8]
	Tasks Op = 0x0C

	// SelectPage sets the page drawing operations target.
	// Operands: [page u8]
	SelectPage Op = 0x0D

	// FillPage fills a page.
	// Operands: [page u8, color u8]
	FillPage Op = 0x0E

	// CopyPage copies a page, optionally with vertical scroll.
	// Operands: [src u8, dst u8]
	CopyPage Op = 0x0F

	// ShowPage presents a page.
	// Operands: [page u8]
	ShowPage Op = 0x10

	// Kill ends the running task immediately.
	Kill Op = 0x11

	// Text draws a string from the string table.
	// Operands: [id u16, x u8, y u8, color u8]
	Text Op = 0x12

	// Sub subtracts a variable from a variable.
	// Operands: [dst var, src var]
	Sub Op = 0x13

	// And masks a variable.
	// Operands: [var, u16]
	And Op = 0x14

	// Or sets bits of a variable.
	// Operands: [var, u16]
	Or Op = 0x15

	// Shl shifts a variable left.
	// Operands: [var, u16]
	Shl Op = 0x16

	// Shr shifts a variable right.
	// Operands: [var, u16]
	Shr Op = 0x17

	// Sound triggers a sound effect.
	// Operands: [resource u16, freq u8, volume u8, channel u8]
	Sound Op = 0x18

	// Load drops the preload cache (0), requests a part switch (part id) or
	// loads a resource.
	// Operands: [id u16]
	Load Op = 0x19

	// Music starts, stops or retimes the music.
	// Operands: [resource u16, delay u16, position u8]
	Music Op = 0x1A

	// SpriteBase to 0x7F draw a polygon from the polygon segments with
	// flag-encoded position and zoom operands.
	SpriteBase Op = 0x40

	// BackgroundBase to 0xFF draw a polygon from the primary segment. The
	// opcode's low seven bits are the high bits of the shape offset.
	BackgroundBase Op = 0x80
)

// Task actions of the Tasks instruction.
const (
	ActionResume = 0
	ActionPause  = 1
	ActionKill   = 2
)

// Jcc conditions, taken from the low three bits of the mode byte.
const (
	CondEQ = iota
	CondNE
	CondGT
	CondGE
	CondLT
	CondLE
)

var (
	// ErrIllegalOpcode is returned for bytes outside the instruction set and
	// for invalid condition modes.
	ErrIllegalOpcode = errors.New("illegal opcode")

	// ErrTruncated is returned when operands run past the end of the code.
	ErrTruncated = errors.New("truncated instruction")
)

// Field is the encoding of one operand.
type Field int

const (
	FieldU8 Field = iota
	FieldU16
	FieldI16
	FieldVar
)

// Info describes an opcode below SpriteBase.
type Info struct {
	Mnemonic string
	Fields   []Field
}

var table = map[Op]Info{
	MovConst:   {"movi", []Field{FieldVar, FieldI16}},
	Mov:        {"mov", []Field{FieldVar, FieldVar}},
	Add:        {"add", []Field{FieldVar, FieldVar}},
	AddConst:   {"addi", []Field{FieldVar, FieldI16}},
	Call:       {"call", []Field{FieldU16}},
	Ret:        {"ret", nil},
	Yield:      {"yield", nil},
	Jmp:        {"jmp", []Field{FieldU16}},
	SetTask:    {"settask", []Field{FieldU8, FieldU16}},
	Djnz:       {"djnz", []Field{FieldVar, FieldU16}},
	Jcc:        {"jcc", nil},
	Palette:    {"palette", []Field{FieldU16}},
	Tasks:      {"tasks", []Field{FieldU8, FieldU8, FieldU8}},
	SelectPage: {"page", []Field{FieldU8}},
	FillPage:   {"fill", []Field{FieldU8, FieldU8}},
	CopyPage:   {"copy", []Field{FieldU8, FieldU8}},
	ShowPage:   {"show", []Field{FieldU8}},
	Kill:       {"kill", nil},
	Text:       {"text", []Field{FieldU16, FieldU8, FieldU8, FieldU8}},
	Sub:        {"sub", []Field{FieldVar, FieldVar}},
	And:        {"and", []Field{FieldVar, FieldU16}},
	Or:         {"or", []Field{FieldVar, FieldU16}},
	Shl:        {"shl", []Field{FieldVar, FieldU16}},
	Shr:        {"shr", []Field{FieldVar, FieldU16}},
	Sound:      {"sound", []Field{FieldU16, FieldU8, FieldU8, FieldU8}},
	Load:       {"load", []Field{FieldU16}},
	Music:      {"music", []Field{FieldU16, FieldU16, FieldU8}},
}

// Lookup returns the description of op. Draw opcodes are reported as
// "sprite" and "bgpoly" without fields, since their layout depends on flag
// bits.
func Lookup(op Op) (Info, bool) {
	switch {
	case op >= BackgroundBase:
		return Info{Mnemonic: "bgpoly"}, true
	case op >= SpriteBase:
		return Info{Mnemonic: "sprite"}, true
	}
	info, ok := table[op]
	return info, ok
}

func (op Op) String() string {
	if info, ok := Lookup(op); ok {
		return info.Mnemonic
	}
	return fmt.Sprintf("op(0x%02x)", byte(op))
}
