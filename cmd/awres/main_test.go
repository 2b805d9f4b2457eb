package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zurustar/anotherworld/pkg/resource"
	"github.com/zurustar/anotherworld/pkg/unpack"
)

var testCode = []byte{
	0x00, 0x10, 0x00, 0x05, // movi v[0x10], 5
	0x06,             // yield
	0x07, 0x00, 0x04, // jmp 4
}

// writeBanks creates an index with a palette, a bytecode entry, a packed
// polygon entry and an empty sound entry.
func writeBanks(t *testing.T) (dir string, poly []byte) {
	t.Helper()
	dir = t.TempDir()
	poly = bytes.Repeat([]byte{0x12, 0x34}, 200)

	payloads := []struct {
		kind   resource.Kind
		data   []byte
		packed bool
	}{
		{resource.KindPalette, make([]byte, 64), false},
		{resource.KindBytecode, testCode, false},
		{resource.KindPolygonDataA, poly, true},
		{resource.KindSound, nil, false},
	}
	var bank []byte
	var entries []resource.Entry
	for i, p := range payloads {
		stored := p.data
		if p.packed {
			stored = unpack.Pack(p.data)
		}
		entries = append(entries, resource.Entry{
			ID:           i,
			Kind:         p.kind,
			Bank:         1,
			Offset:       int64(len(bank)),
			PackedSize:   len(stored),
			UnpackedSize: len(p.data),
		})
		bank = append(bank, stored...)
	}
	files := map[string][]byte{
		"memlist.bin": resource.EncodeIndex(entries),
		"bank01":      bank,
		"anotherworld.toml": []byte(`
[[parts]]
id = 16001
palette = 0
code = 1
primary = 2
`),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, poly
}

func TestList(t *testing.T) {
	dir, _ := writeBanks(t)
	var out bytes.Buffer
	if err := run([]string{"-a", dir, "list"}, &out, io.Discard); err != nil {
		t.Fatalf("run(list) error = %v", err)
	}
	for _, want := range []string{"bytecode", "polygon-a", "sound", "4 entries", "0x02"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("list output missing %q:\n%s", want, out.String())
		}
	}
}

func TestExtract(t *testing.T) {
	dir, poly := writeBanks(t)
	outDir := filepath.Join(t.TempDir(), "out")

	var out bytes.Buffer
	if err := run([]string{"-a", dir, "extract", "-o", outDir, "-j", "2"}, &out, io.Discard); err != nil {
		t.Fatalf("run(extract) error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "02.polygon-a.bin"))
	if err != nil {
		t.Fatalf("polygon entry not extracted: %v", err)
	}
	if !bytes.Equal(got, poly) {
		t.Error("extracted polygon data differs from the original")
	}
	if _, err := os.Stat(filepath.Join(outDir, "03.sound.bin")); !os.IsNotExist(err) {
		t.Error("empty entry was extracted")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("digest lines = %q", out.String())
	}
	if want := "0x02 " + resource.Digest(poly); lines[2] != want {
		t.Errorf("digest line = %q, want %q", lines[2], want)
	}
}

func TestDisasm(t *testing.T) {
	dir, _ := writeBanks(t)

	tests := []struct {
		name string
		arg  string
	}{
		{"resource id", "0x01"},
		{"part id", "16001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run([]string{"-a", dir, "disasm", tt.arg}, &out, io.Discard); err != nil {
				t.Fatalf("run(disasm) error = %v", err)
			}
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			if len(lines) != 3 || !strings.HasPrefix(lines[0], "0000: movi") || !strings.HasPrefix(lines[2], "0005: jmp") {
				t.Errorf("disasm output = %q", out.String())
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	dir, _ := writeBanks(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", []string{"-a", dir}},
		{"unknown command", []string{"-a", dir, "play"}},
		{"disasm without id", []string{"-a", dir, "disasm"}},
		{"disasm of a palette", []string{"-a", dir, "disasm", "0"}},
		{"disasm of an unknown part", []string{"-a", dir, "disasm", "0x3E89"}},
		{"extract of a missing id", []string{"-a", dir, "extract", "-o", t.TempDir(), "0x40"}},
		{"no index", []string{"-a", t.TempDir(), "list"}},
		{"bad log level", []string{"-a", dir, "-l", "loud", "list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(tt.args, io.Discard, io.Discard); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
