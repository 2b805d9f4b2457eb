package resource

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/zurustar/anotherworld/pkg/unpack"
	"golang.org/x/crypto/blake2b"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bankBuilder lays out entries in memory banks and records the index.
type bankBuilder struct {
	banks   MemorySource
	entries []Entry
}

func newBankBuilder() *bankBuilder {
	return &bankBuilder{banks: make(MemorySource)}
}

// add appends a resource to bank 1. Packed entries are compressed with
// unpack.Pack.
func (b *bankBuilder) add(kind Kind, data []byte, packed bool) int {
	stored := data
	if packed {
		stored = unpack.Pack(data)
	}
	id := len(b.entries)
	b.entries = append(b.entries, Entry{
		ID:           id,
		Kind:         kind,
		Bank:         1,
		Offset:       int64(len(b.banks[1])),
		PackedSize:   len(stored),
		UnpackedSize: len(data),
	})
	b.banks[1] = append(b.banks[1], stored...)
	return id
}

func (b *bankBuilder) manager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	idx, err := ParseIndex(EncodeIndex(b.entries))
	if err != nil {
		t.Fatalf("ParseIndex() error = %v", err)
	}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewManager(idx, b.banks, opts...)
}

func TestParseIndex(t *testing.T) {
	entries := []Entry{
		{Kind: KindPalette, State: 1, Rank: 3, Bank: 1, Offset: 0x10, PackedSize: 0x800, UnpackedSize: 0x800},
		{Kind: KindBytecode, Bank: 0x0D, Offset: 0x12345, PackedSize: 0x100, UnpackedSize: 0x300},
	}
	idx, err := ParseIndex(EncodeIndex(entries))
	if err != nil {
		t.Fatalf("ParseIndex() error = %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", idx.Len())
	}

	e, err := idx.Entry(1)
	if err != nil {
		t.Fatalf("Entry(1) error = %v", err)
	}
	if e.ID != 1 || e.Kind != KindBytecode || e.Bank != 0x0D || e.Offset != 0x12345 {
		t.Errorf("Entry(1) = %+v", e)
	}
	if !e.Packed() {
		t.Error("Entry(1).Packed() = false, want true")
	}
	if first, _ := idx.Entry(0); first.Packed() || first.Rank != 3 || first.State != 1 {
		t.Errorf("Entry(0) = %+v", first)
	}
}

func TestParseIndex_Malformed(t *testing.T) {
	full := EncodeIndex([]Entry{{Kind: KindSound, Bank: 1, PackedSize: 4, UnpackedSize: 4}})
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"no end marker", full[:recordSize]},
		{"truncated record", full[:recordSize-3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseIndex(tt.raw); !errors.Is(err, ErrMalformedIndex) {
				t.Errorf("ParseIndex() error = %v, want ErrMalformedIndex", err)
			}
		})
	}
}

func TestParseIndex_UnknownKind(t *testing.T) {
	raw := EncodeIndex([]Entry{{Kind: KindUnknown, RawKind: 9}})
	idx, err := ParseIndex(raw)
	if err != nil {
		t.Fatalf("ParseIndex() error = %v", err)
	}
	e, _ := idx.Entry(0)
	if e.Kind != KindUnknown || e.RawKind != 9 {
		t.Errorf("Entry(0) kind = %v raw %d, want unknown raw 9", e.Kind, e.RawKind)
	}
}

func TestManager_LoadResource(t *testing.T) {
	b := newBankBuilder()
	plain := []byte("stored as is")
	text := bytes.Repeat([]byte("polygon "), 30)
	plainID := b.add(KindPalette, plain, false)
	packedID := b.add(KindBytecode, text, true)
	m := b.manager(t)

	tests := []struct {
		name string
		id   int
		kind Kind
		want []byte
	}{
		{"stored", plainID, KindPalette, plain},
		{"packed", packedID, KindBytecode, text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, err := m.LoadResource(tt.id)
			if err != nil {
				t.Fatalf("LoadResource() error = %v", err)
			}
			if seg.ID != tt.id || seg.Kind != tt.kind {
				t.Errorf("segment = id %d kind %v", seg.ID, seg.Kind)
			}
			if !bytes.Equal(seg.Data, tt.want) {
				t.Errorf("segment data = %q, want %q", seg.Data, tt.want)
			}
		})
	}
}

func TestManager_LoadResourceErrors(t *testing.T) {
	b := newBankBuilder()
	id := b.add(KindBytecode, bytes.Repeat([]byte{7, 8}, 20), true)
	// corrupt one byte of the packed body
	b.banks[1][2] ^= 0x40

	m := b.manager(t)
	if _, err := m.LoadResource(id); !errors.Is(err, unpack.ErrCorruptData) {
		t.Errorf("corrupt entry: error = %v, want ErrCorruptData", err)
	}
	if _, err := m.LoadResource(99); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("unknown id: error = %v, want ErrResourceNotFound", err)
	}
}

func TestManager_DigestMismatch(t *testing.T) {
	b := newBankBuilder()
	data := []byte("palette bytes")
	id := b.add(KindPalette, data, false)

	good := blake2b.Sum256(data)
	m := b.manager(t, WithDigests(map[int][]byte{id: good[:]}))
	if _, err := m.LoadResource(id); err != nil {
		t.Fatalf("matching digest: error = %v", err)
	}

	bad := blake2b.Sum256([]byte("something else"))
	m = b.manager(t, WithDigests(map[int][]byte{id: bad[:]}))
	if _, err := m.LoadResource(id); !errors.Is(err, unpack.ErrCorruptData) {
		t.Errorf("mismatching digest: error = %v, want ErrCorruptData", err)
	}
}

func TestParseDigests(t *testing.T) {
	digests, err := ParseDigests(map[int]string{3: Digest([]byte("abc"))})
	if err != nil {
		t.Fatalf("ParseDigests() error = %v", err)
	}
	if want := blake2b.Sum256([]byte("abc")); !bytes.Equal(digests[3], want[:]) {
		t.Errorf("digest = %x, want %x", digests[3], want)
	}

	for _, s := range []string{"zz", "abcd"} {
		if _, err := ParseDigests(map[int]string{1: s}); err == nil {
			t.Errorf("ParseDigests(%q) error = nil", s)
		}
	}
}

// partFixture builds banks for two parts; the second has a secondary polygon
// set.
func partFixture(t *testing.T) (*bankBuilder, PartTable) {
	t.Helper()
	b := newBankBuilder()
	pal1 := b.add(KindPalette, bytes.Repeat([]byte{1}, 64), false)
	code1 := b.add(KindBytecode, []byte{0x06, 0x07, 0x00, 0x00}, false)
	poly1 := b.add(KindPolygonDataA, bytes.Repeat([]byte{0xC1}, 32), true)
	pal2 := b.add(KindPalette, bytes.Repeat([]byte{2}, 64), false)
	code2 := b.add(KindBytecode, []byte{0x11}, false)
	poly2 := b.add(KindPolygonDataA, bytes.Repeat([]byte{0xC2}, 32), true)
	sec := b.add(KindPolygonDataB, bytes.Repeat([]byte{0xC3}, 16), false)

	parts := NewPartTable([]Part{
		{ID: PartIntro, Palette: pal1, Code: code1, Primary: poly1},
		{ID: PartWater, Palette: pal2, Code: code2, Primary: poly2, Secondary: sec},
	})
	return b, parts
}

func TestManager_SwitchPart(t *testing.T) {
	b, parts := partFixture(t)
	m := b.manager(t, WithParts(parts))

	if err := m.SwitchPart(PartWater); err != nil {
		t.Fatalf("SwitchPart() error = %v", err)
	}
	if m.CurrentPart() != PartWater {
		t.Errorf("CurrentPart() = %#x", m.CurrentPart())
	}
	for role := RoleCode; role < numRoles; role++ {
		seg := m.Segment(role)
		if seg == nil {
			t.Fatalf("Segment(%s) = nil", role)
		}
		if seg.Kind != role.kind() {
			t.Errorf("Segment(%s).Kind = %v", role, seg.Kind)
		}
	}

	if err := m.SwitchPart(PartIntro); err != nil {
		t.Fatalf("SwitchPart() error = %v", err)
	}
	if m.Segment(RolePolygonSecondary) != nil {
		t.Error("secondary segment kept after switching to a part without one")
	}
	if got := m.Segment(RoleCode).Data; !bytes.Equal(got, []byte{0x06, 0x07, 0x00, 0x00}) {
		t.Errorf("code = %x", got)
	}
}

func TestManager_SwitchPartIsAtomic(t *testing.T) {
	b, parts := partFixture(t)

	// the palette of the broken part is fine, its code resource is missing
	broken := parts[PartWater]
	broken.ID = PartJail
	broken.Code = 200
	parts[PartJail] = broken

	// and this one names a palette where the code should be
	wrongKind := parts[PartWater]
	wrongKind.ID = PartCite
	wrongKind.Code = wrongKind.Palette
	parts[PartCite] = wrongKind

	m := b.manager(t, WithParts(parts))
	if err := m.SwitchPart(PartIntro); err != nil {
		t.Fatalf("SwitchPart() error = %v", err)
	}
	before := [numRoles]*Segment{}
	for role := RoleCode; role < numRoles; role++ {
		before[role] = m.Segment(role)
	}

	tests := []struct {
		name string
		id   int
		want error
	}{
		{"missing resource", PartJail, ErrResourceNotFound},
		{"wrong kind", PartCite, ErrInvalidPart},
		{"unknown part", 0x1234, ErrUnknownPart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.SwitchPart(tt.id); !errors.Is(err, tt.want) {
				t.Fatalf("SwitchPart() error = %v, want %v", err, tt.want)
			}
			if m.CurrentPart() != PartIntro {
				t.Errorf("CurrentPart() = %#x after failed switch", m.CurrentPart())
			}
			for role := RoleCode; role < numRoles; role++ {
				if m.Segment(role) != before[role] {
					t.Errorf("Segment(%s) changed after failed switch", role)
				}
			}
		})
	}
}

// countingSource counts bank reads.
type countingSource struct {
	MemorySource
	reads chan int
}

func (c countingSource) ReadAt(bank int, offset int64, size int) ([]byte, error) {
	c.reads <- bank
	return c.MemorySource.ReadAt(bank, offset, size)
}

func TestManager_Preload(t *testing.T) {
	b := newBankBuilder()
	var ids []int
	for i := 0; i < 6; i++ {
		ids = append(ids, b.add(KindSound, bytes.Repeat([]byte{byte(i)}, 100+i), true))
	}
	idx, err := ParseIndex(EncodeIndex(b.entries))
	if err != nil {
		t.Fatalf("ParseIndex() error = %v", err)
	}
	src := countingSource{MemorySource: b.banks, reads: make(chan int, 64)}
	m := NewManager(idx, src, WithLogger(quietLogger()), WithPreloadWorkers(2))

	m.Preload(append(ids, 500)...)
	if err := m.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if n := len(src.reads); n != len(ids) {
		t.Fatalf("preload reads = %d, want %d", n, len(ids))
	}

	for i, id := range ids {
		seg, err := m.LoadResource(id)
		if err != nil {
			t.Fatalf("LoadResource(%d) error = %v", id, err)
		}
		if want := bytes.Repeat([]byte{byte(i)}, 100+i); !bytes.Equal(seg.Data, want) {
			t.Errorf("LoadResource(%d) data mismatch", id)
		}
	}
	if n := len(src.reads); n != len(ids) {
		t.Errorf("reads after loading preloaded ids = %d, want %d", n, len(ids))
	}

	// a preloaded result is consumed once
	if _, err := m.LoadResource(ids[0]); err != nil {
		t.Fatalf("LoadResource() error = %v", err)
	}
	if n := len(src.reads); n != len(ids)+1 {
		t.Errorf("reads = %d, want %d", n, len(ids)+1)
	}

	m.Preload(ids[1])
	m.Invalidate()
	if _, err := m.LoadResource(ids[1]); err != nil {
		t.Fatalf("LoadResource() error = %v", err)
	}
	if n := len(src.reads); n != len(ids)+3 {
		t.Errorf("reads after invalidate = %d, want %d", n, len(ids)+3)
	}
}

func TestManager_PreloadFailure(t *testing.T) {
	b := newBankBuilder()
	good := b.add(KindSound, bytes.Repeat([]byte{7}, 40), true)
	bad := len(b.entries)
	b.entries = append(b.entries, Entry{
		ID:           bad,
		Kind:         KindSound,
		Bank:         1,
		Offset:       int64(len(b.banks[1])),
		PackedSize:   16,
		UnpackedSize: 64,
	})
	b.banks[1] = append(b.banks[1], make([]byte, 16)...)
	m := b.manager(t)

	m.Preload(good, bad)
	err := m.Wait()
	if !errors.Is(err, unpack.ErrCorruptData) {
		t.Fatalf("Wait() error = %v, want ErrCorruptData", err)
	}
	if err := m.Wait(); err != nil {
		t.Errorf("second Wait() error = %v, want nil", err)
	}

	// the failed result stays cached for the loader
	if _, err := m.LoadResource(bad); !errors.Is(err, unpack.ErrCorruptData) {
		t.Errorf("LoadResource(bad) error = %v, want ErrCorruptData", err)
	}
	if _, err := m.LoadResource(good); err != nil {
		t.Errorf("LoadResource(good) error = %v", err)
	}

	// invalidating does not hide a failure from the next Wait
	m.Preload(bad)
	m.Invalidate()
	if err := m.Wait(); !errors.Is(err, unpack.ErrCorruptData) {
		t.Errorf("Wait() after Invalidate error = %v, want ErrCorruptData", err)
	}
}

func TestManager_SwitchPartUsesPreloads(t *testing.T) {
	b, parts := partFixture(t)
	idx, err := ParseIndex(EncodeIndex(b.entries))
	if err != nil {
		t.Fatalf("ParseIndex() error = %v", err)
	}
	src := countingSource{MemorySource: b.banks, reads: make(chan int, 64)}
	m := NewManager(idx, src, WithLogger(quietLogger()), WithParts(parts))

	water := parts[PartWater]
	m.Preload(water.Palette, water.Code, water.Primary, water.Secondary)
	if err := m.SwitchPart(PartWater); err != nil {
		t.Fatalf("SwitchPart() error = %v", err)
	}
	if n := len(src.reads); n != 4 {
		t.Errorf("reads = %d, want 4 (one per preloaded resource)", n)
	}
	if got := m.Segment(RolePolygonSecondary).Data; !bytes.Equal(got, bytes.Repeat([]byte{0xC3}, 16)) {
		t.Errorf("secondary = %x", got)
	}
}

func TestDirSource(t *testing.T) {
	b := newBankBuilder()
	data := []byte("vector graphics")
	id := b.add(KindPolygonDataA, data, true)

	fsys := fstest.MapFS{
		"game/MEMLIST.BIN": {Data: EncodeIndex(b.entries)},
		"game/BANK01":      {Data: b.banks[1]},
	}
	src := NewDirSource(fsys, "game")

	raw, err := src.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex() error = %v", err)
	}
	idx, err := ParseIndex(raw)
	if err != nil {
		t.Fatalf("ParseIndex() error = %v", err)
	}

	m := NewManager(idx, src, WithLogger(quietLogger()))
	seg, err := m.LoadResource(id)
	if err != nil {
		t.Fatalf("LoadResource() error = %v", err)
	}
	if !bytes.Equal(seg.Data, data) {
		t.Errorf("data = %q, want %q", seg.Data, data)
	}

	if _, err := src.ReadAt(2, 0, 1); err == nil {
		t.Error("ReadAt() of a missing bank succeeded")
	}
}

func TestMemorySource_Bounds(t *testing.T) {
	src := MemorySource{1: []byte{1, 2, 3}}
	if _, err := src.ReadAt(1, 2, 2); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadAt() past end error = %v", err)
	}
	got, err := src.ReadAt(1, 1, 2)
	if err != nil || !bytes.Equal(got, []byte{2, 3}) {
		t.Errorf("ReadAt() = %v, %v", got, err)
	}
}

func TestPartTable(t *testing.T) {
	table := NewPartTable(DefaultParts, []Part{{ID: PartIntro, Palette: 1, Code: 2, Primary: 3}})
	p, err := table.Lookup(PartIntro)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if p.Code != 2 {
		t.Errorf("override not applied: %+v", p)
	}
	ids := table.IDs()
	if len(ids) != 10 || ids[0] != PartProtection || ids[9] != PartPassword2 {
		t.Errorf("IDs() = %x", ids)
	}
	if _, err := table.Lookup(PartThreshold); !errors.Is(err, ErrUnknownPart) {
		t.Errorf("Lookup(unknown) error = %v", err)
	}
}

func TestProperty_IndexRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ParseIndex reads back what EncodeIndex wrote", prop.ForAll(
		func(sizes []uint16, bank uint8) bool {
			var entries []Entry
			var offset int64
			for i, size := range sizes {
				kind := Kind(i % int(KindUnknown))
				entries = append(entries, Entry{
					ID:           i,
					Kind:         kind,
					RawKind:      byte(kind),
					Rank:         byte(i),
					Bank:         int(bank),
					Offset:       offset,
					PackedSize:   int(size / 2),
					UnpackedSize: int(size),
				})
				offset += int64(size / 2)
			}
			idx, err := ParseIndex(EncodeIndex(entries))
			if err != nil {
				return false
			}
			if len(entries) == 0 {
				return idx.Len() == 0
			}
			return reflect.DeepEqual(idx.Entries(), entries)
		},
		gen.SliceOf(gen.UInt16()),
		gen.UInt8Range(1, 13),
	))

	properties.TestingRun(t)
}
