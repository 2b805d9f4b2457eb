package opcode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Kind tells how an operand is evaluated.
type Kind int

const (
	// Imm operands are used as they are.
	Imm Kind = iota
	// Var operands hold a variable index.
	Var
)

// Operand is one decoded operand.
type Operand struct {
	Kind  Kind
	Value int
}

func (o Operand) String() string {
	if o.Kind == Var {
		return fmt.Sprintf("v[0x%02x]", o.Value)
	}
	return fmt.Sprintf("%d", o.Value)
}

// Instruction is one decoded instruction.
type Instruction struct {
	PC   int
	Op   Op
	Args []Operand
	Size int

	// Secondary is set on sprite instructions that draw from the secondary
	// polygon segment.
	Secondary bool
}

// Next returns the address of the following instruction.
func (in Instruction) Next() int {
	return in.PC + in.Size
}

// Arg returns the value of operand i without resolving variables.
func (in Instruction) Arg(i int) int {
	return in.Args[i].Value
}

func (in Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04x: %s", in.PC, in.Op)
	for i, a := range in.Args {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	if in.Secondary {
		b.WriteString(" [secondary]")
	}
	return b.String()
}

type decoder struct {
	code []byte
	pos  int
}

func (d *decoder) u8() (int, error) {
	if d.pos >= len(d.code) {
		return 0, ErrTruncated
	}
	v := d.code[d.pos]
	d.pos++
	return int(v), nil
}

func (d *decoder) u16() (int, error) {
	if d.pos+2 > len(d.code) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(d.code[d.pos:])
	d.pos += 2
	return int(v), nil
}

func (d *decoder) i16() (int, error) {
	v, err := d.u16()
	return int(int16(v)), err
}

func (d *decoder) field(f Field) (Operand, error) {
	var (
		v   int
		err error
	)
	switch f {
	case FieldU8:
		v, err = d.u8()
	case FieldU16:
		v, err = d.u16()
	case FieldI16:
		v, err = d.i16()
	case FieldVar:
		v, err = d.u8()
		return Operand{Kind: Var, Value: v}, err
	}
	return Operand{Kind: Imm, Value: v}, err
}

// Decode decodes the instruction at pc.
func Decode(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("%w: pc 0x%04x outside %d bytes", ErrTruncated, pc, len(code))
	}
	d := &decoder{code: code, pos: pc + 1}
	op := Op(code[pc])
	in := Instruction{PC: pc, Op: op}

	var err error
	switch {
	case op >= BackgroundBase:
		err = d.background(&in)
	case op >= SpriteBase:
		err = d.sprite(&in)
	case op == Jcc:
		err = d.jcc(&in)
	default:
		info, ok := table[op]
		if !ok {
			return in, fmt.Errorf("%w: 0x%02x at 0x%04x", ErrIllegalOpcode, byte(op), pc)
		}
		for _, f := range info.Fields {
			a, ferr := d.field(f)
			if ferr != nil {
				err = ferr
				break
			}
			in.Args = append(in.Args, a)
		}
	}
	if err != nil {
		return in, fmt.Errorf("%s at 0x%04x: %w", op, pc, err)
	}
	in.Size = d.pos - pc
	return in, nil
}

// jcc decodes [mode, var, operand, addr]. Bit 7 of mode makes the second
// operand a variable, otherwise bit 6 makes it an i16 and without either it
// is a u8.
func (d *decoder) jcc(in *Instruction) error {
	mode, err := d.u8()
	if err != nil {
		return err
	}
	if mode&7 > CondLE {
		return fmt.Errorf("%w: jcc mode 0x%02x", ErrIllegalOpcode, mode)
	}
	a, err := d.u8()
	if err != nil {
		return err
	}
	var b Operand
	switch {
	case mode&0x80 != 0:
		b, err = d.field(FieldVar)
	case mode&0x40 != 0:
		b, err = d.field(FieldI16)
	default:
		b, err = d.field(FieldU8)
	}
	if err != nil {
		return err
	}
	addr, err := d.u16()
	if err != nil {
		return err
	}
	in.Args = []Operand{{Value: mode}, {Kind: Var, Value: a}, b, {Value: addr}}
	return nil
}

// sprite decodes [offset, x, y, zoom]. The offset is stored in words.
//
//	bits 5-4  x: 00 i16, 01 var, 10 u8, 11 u8+256
//	bits 3-2  y: 00 i16, 01 var, 1x u8
//	bits 1-0  zoom: 00 none (64), 01 var, 10 u8, 11 none (64, secondary)
func (d *decoder) sprite(in *Instruction) error {
	op := byte(in.Op)
	off, err := d.u16()
	if err != nil {
		return err
	}

	var x Operand
	switch {
	case op&0x20 == 0 && op&0x10 == 0:
		x, err = d.field(FieldI16)
	case op&0x20 == 0:
		x, err = d.field(FieldVar)
	default:
		x, err = d.field(FieldU8)
		if op&0x10 != 0 {
			x.Value += 0x100
		}
	}
	if err != nil {
		return err
	}

	var y Operand
	switch {
	case op&0x08 == 0 && op&0x04 == 0:
		y, err = d.field(FieldI16)
	case op&0x08 == 0:
		y, err = d.field(FieldVar)
	default:
		y, err = d.field(FieldU8)
	}
	if err != nil {
		return err
	}

	zoom := Operand{Value: 64}
	switch op & 3 {
	case 1:
		zoom, err = d.field(FieldVar)
	case 2:
		zoom, err = d.field(FieldU8)
	case 3:
		in.Secondary = true
	}
	if err != nil {
		return err
	}

	in.Args = []Operand{{Value: off * 2}, x, y, zoom}
	return nil
}

// background decodes [offset, x, y]. The offset's high bits come from the
// opcode.
func (d *decoder) background(in *Instruction) error {
	lo, err := d.u8()
	if err != nil {
		return err
	}
	x, err := d.u8()
	if err != nil {
		return err
	}
	y, err := d.u8()
	if err != nil {
		return err
	}
	off := (int(in.Op)&0x7F)<<8 | lo
	in.Args = []Operand{{Value: off * 2}, {Value: x}, {Value: y}}
	return nil
}

// Disassemble writes one line per instruction, sweeping linearly from the
// start of code. Bytes that do not decode are written as data and skipped.
func Disassemble(w io.Writer, code []byte) error {
	bw := bufio.NewWriter(w)
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			if _, werr := fmt.Fprintf(bw, "%04x: .byte 0x%02x ; %v\n", pc, code[pc], err); werr != nil {
				return werr
			}
			pc++
			continue
		}
		if _, err := fmt.Fprintln(bw, in); err != nil {
			return err
		}
		pc = in.Next()
	}
	return bw.Flush()
}
