package opcode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		op   Op
		args []Operand
		size int
	}{
		{"movi negative", []byte{0x00, 0x10, 0xFF, 0xFE}, MovConst, []Operand{{Var, 0x10}, {Imm, -2}}, 4},
		{"mov", []byte{0x01, 0x01, 0x02}, Mov, []Operand{{Var, 1}, {Var, 2}}, 3},
		{"call", []byte{0x04, 0x12, 0x34}, Call, []Operand{{Imm, 0x1234}}, 3},
		{"ret", []byte{0x05}, Ret, nil, 1},
		{"settask", []byte{0x08, 0x3F, 0x00, 0x10}, SetTask, []Operand{{Imm, 63}, {Imm, 0x10}}, 4},
		{"tasks", []byte{0x0C, 1, 5, 2}, Tasks, []Operand{{Imm, 1}, {Imm, 5}, {Imm, 2}}, 4},
		{"and keeps u16", []byte{0x14, 0x20, 0xFF, 0x00}, And, []Operand{{Var, 0x20}, {Imm, 0xFF00}}, 4},
		{"text", []byte{0x12, 0x00, 0x01, 2, 3, 4}, Text, []Operand{{Imm, 1}, {Imm, 2}, {Imm, 3}, {Imm, 4}}, 6},
		{"music", []byte{0x1A, 0x00, 0x07, 0x00, 0x10, 1}, Music, []Operand{{Imm, 7}, {Imm, 16}, {Imm, 1}}, 6},
		{
			"jcc var operand",
			[]byte{0x0A, 0x80 | CondGT, 0x01, 0x02, 0x00, 0x20},
			Jcc, []Operand{{Imm, 0x82}, {Var, 1}, {Var, 2}, {Imm, 0x20}}, 6,
		},
		{
			"jcc i16 operand",
			[]byte{0x0A, 0x40 | CondLE, 0x01, 0x80, 0x00, 0x00, 0x20},
			Jcc, []Operand{{Imm, 0x45}, {Var, 1}, {Imm, -32768}, {Imm, 0x20}}, 7,
		},
		{
			"jcc u8 operand",
			[]byte{0x0A, CondEQ, 0x01, 0xF0, 0x00, 0x20},
			Jcc, []Operand{{Imm, 0}, {Var, 1}, {Imm, 0xF0}, {Imm, 0x20}}, 6,
		},
		{
			"sprite words, default zoom",
			[]byte{0x40, 0x00, 0x10, 0xFF, 0xF0, 0x00, 0x20},
			SpriteBase, []Operand{{Imm, 0x20}, {Imm, -16}, {Imm, 32}, {Imm, 64}}, 7,
		},
		{
			"sprite vars",
			[]byte{0x55, 0x00, 0x01, 0x0A, 0x0B, 0x0C},
			0x55, []Operand{{Imm, 2}, {Var, 0x0A}, {Var, 0x0B}, {Var, 0x0C}}, 6,
		},
		{
			"sprite bytes with x high bit",
			[]byte{0x7A, 0x00, 0x01, 0x05, 0x06, 0x07},
			0x7A, []Operand{{Imm, 2}, {Imm, 0x105}, {Imm, 6}, {Imm, 7}}, 6,
		},
		{
			"bgpoly",
			[]byte{0x81, 0x02, 10, 20},
			0x81, []Operand{{Imm, 0x102 * 2}, {Imm, 10}, {Imm, 20}}, 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode(tt.code, 0)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if in.Op != tt.op || in.Size != tt.size {
				t.Errorf("Decode() = %s size %d, want %s size %d", in.Op, in.Size, tt.op, tt.size)
			}
			if len(in.Args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", in.Args, tt.args)
			}
			for i := range tt.args {
				if in.Args[i] != tt.args[i] {
					t.Errorf("arg %d = %+v, want %+v", i, in.Args[i], tt.args[i])
				}
			}
		})
	}
}

func TestDecode_SpriteSecondary(t *testing.T) {
	in, err := Decode([]byte{0x7F, 0x00, 0x04, 1, 2}, 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !in.Secondary || in.Arg(3) != 64 || in.Size != 5 {
		t.Errorf("Decode() = %+v", in)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pc   int
		want error
	}{
		{"unknown byte", []byte{0x1B}, 0, ErrIllegalOpcode},
		{"unknown byte below sprites", []byte{0x3F}, 0, ErrIllegalOpcode},
		{"bad condition", []byte{0x0A, 0x06, 0, 0, 0, 0}, 0, ErrIllegalOpcode},
		{"truncated operand", []byte{0x00, 0x01, 0x02}, 0, ErrTruncated},
		{"truncated sprite", []byte{0x40, 0x00}, 0, ErrTruncated},
		{"pc past end", []byte{0x06}, 1, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.code, tt.pc); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDisassemble(t *testing.T) {
	code := []byte{
		0x00, 0x10, 0x00, 0x05, // movi v[0x10], 5
		0x1B,                   // not an instruction
		0x04, 0x00, 0x0A,       // call 10
		0x06,                   // yield
	}
	var buf bytes.Buffer
	if err := Disassemble(&buf, code); err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	want := []string{
		"0000: movi v[0x10], 5",
		"0004: .byte 0x1b",
		"0005: call 10",
		"0008: yield",
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(want) {
		t.Fatalf("Disassemble() = %q", buf.String())
	}
	for i, w := range want {
		if !strings.HasPrefix(lines[i], w) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], w)
		}
	}
}

func TestLookup(t *testing.T) {
	for op := 0; op < 0x1B; op++ {
		if _, ok := Lookup(Op(op)); !ok {
			t.Errorf("Lookup(0x%02x) not found", op)
		}
	}
	if info, _ := Lookup(0x9A); info.Mnemonic != "bgpoly" {
		t.Errorf("Lookup(0x9a) = %q", info.Mnemonic)
	}
	if _, ok := Lookup(0x20); ok {
		t.Error("Lookup(0x20) found")
	}
}

func TestProperty_DecodeNeverOverruns(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("decoded size stays inside the code", prop.ForAll(
		func(code []byte) bool {
			if len(code) == 0 {
				return true
			}
			in, err := Decode(code, 0)
			if err != nil {
				return true
			}
			return in.Size >= 1 && in.Next() <= len(code)
		},
		gen.SliceOfN(8, gen.UInt8()),
	))

	properties.TestingRun(t)
}
