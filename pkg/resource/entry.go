// Package resource indexes resource banks and loads their entries into the
// memory segments the interpreter and the renderer work on.
package resource

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrMalformedIndex is returned when the bank index is truncated.
	ErrMalformedIndex = errors.New("malformed bank index")

	// ErrResourceNotFound is returned for ids the index does not contain.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrUnknownPart is returned when switching to a part that is not in the
	// part table.
	ErrUnknownPart = errors.New("unknown part")

	// ErrInvalidPart is returned when a part's resources do not have the kinds
	// their roles require.
	ErrInvalidPart = errors.New("invalid part")
)

// Kind is the type of a bank entry.
type Kind uint8

const (
	KindSound Kind = iota
	KindMusic
	KindBitmap
	KindPalette
	KindBytecode
	KindPolygonDataA
	KindPolygonDataB
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindSound:
		return "sound"
	case KindMusic:
		return "music"
	case KindBitmap:
		return "bitmap"
	case KindPalette:
		return "palette"
	case KindBytecode:
		return "bytecode"
	case KindPolygonDataA:
		return "polygon-a"
	case KindPolygonDataB:
		return "polygon-b"
	default:
		return "unknown"
	}
}

func kindFromByte(b byte) Kind {
	if b >= byte(KindUnknown) {
		return KindUnknown
	}
	return Kind(b)
}

// Entry describes one resource in the bank index.
type Entry struct {
	ID           int
	Kind         Kind
	RawKind      byte // kind byte as stored, kept for unknown kinds
	State        byte
	Rank         byte
	Bank         int
	Offset       int64
	PackedSize   int
	UnpackedSize int
}

// Packed reports whether the entry is stored compressed.
func (e Entry) Packed() bool {
	return e.PackedSize != e.UnpackedSize
}

const (
	recordSize = 20
	endOfIndex = 0xFF
)

// Index is the parsed bank index. Entries are addressed by their position.
type Index struct {
	entries []Entry
}

// ParseIndex parses the fixed-width records of a bank index.
//
// Each 20-byte big-endian record is laid out as
//
//	state u8, kind u8, buffer u16, _ u16, rank u8, bank u8,
//	offset u32, _ u16, packed u16, _ u16, size u16
//
// and the list ends with a record whose state byte is 0xFF.
func ParseIndex(raw []byte) (*Index, error) {
	idx := &Index{}
	pos := 0
	for {
		if pos >= len(raw) {
			return nil, fmt.Errorf("%w: no end marker after %d entries", ErrMalformedIndex, len(idx.entries))
		}
		if raw[pos] == endOfIndex {
			return idx, nil
		}
		if pos+recordSize > len(raw) {
			return nil, fmt.Errorf("%w: entry %d truncated at offset %d", ErrMalformedIndex, len(idx.entries), pos)
		}
		rec := raw[pos : pos+recordSize]
		idx.entries = append(idx.entries, Entry{
			ID:           len(idx.entries),
			State:        rec[0],
			Kind:         kindFromByte(rec[1]),
			RawKind:      rec[1],
			Rank:         rec[6],
			Bank:         int(rec[7]),
			Offset:       int64(binary.BigEndian.Uint32(rec[8:])),
			PackedSize:   int(binary.BigEndian.Uint16(rec[14:])),
			UnpackedSize: int(binary.BigEndian.Uint16(rec[18:])),
		})
		pos += recordSize
	}
}

// Entry returns the entry with the given id.
func (idx *Index) Entry(id int) (Entry, error) {
	if id < 0 || id >= len(idx.entries) {
		return Entry{}, fmt.Errorf("%w: id 0x%02x (index has %d entries)", ErrResourceNotFound, id, len(idx.entries))
	}
	return idx.entries[id], nil
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns a copy of all entries in id order.
func (idx *Index) Entries() []Entry {
	out := make([]Entry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// EncodeIndex writes entries in the bank index format, followed by the end
// marker. It is the inverse of ParseIndex and is used to build bank fixtures.
func EncodeIndex(entries []Entry) []byte {
	out := make([]byte, 0, len(entries)*recordSize+1)
	for _, e := range entries {
		rec := make([]byte, recordSize)
		rec[0] = e.State
		rec[1] = e.RawKind
		if e.Kind != KindUnknown {
			rec[1] = byte(e.Kind)
		}
		rec[6] = e.Rank
		rec[7] = byte(e.Bank)
		binary.BigEndian.PutUint32(rec[8:], uint32(e.Offset))
		binary.BigEndian.PutUint16(rec[14:], uint16(e.PackedSize))
		binary.BigEndian.PutUint16(rec[18:], uint16(e.UnpackedSize))
		out = append(out, rec...)
	}
	return append(out, endOfIndex)
}
