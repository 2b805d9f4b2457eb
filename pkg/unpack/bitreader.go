// Package unpack implements the decompressor for packed resource bank entries.
//
// Packed data is consumed from its tail towards its head. The last three
// big-endian words of a packed blob are the unpacked size, a checksum seed and
// the first bit chunk; every further chunk is read one word closer to the start
// of the buffer. Output is produced from the last byte towards the first.
package unpack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorruptData is returned when a packed blob cannot be reconciled with its
// declared size or checksum.
var ErrCorruptData = errors.New("corrupt packed data")

// BitReader is the reverse bit reservoir used by Unpack.
//
// The reservoir holds the unread bits of the current chunk, least significant
// bit first, with a single sentinel bit above them. When only the sentinel is
// left the next chunk is loaded from the word preceding the previous one.
type BitReader struct {
	data []byte
	pos  int    // offset of the next word to load; moves towards 0
	bits uint32 // reservoir
	crc  uint32
}

// NewBitReader creates a reader over data whose next word to load starts at
// pos. The reservoir is primed with the word at pos.
func NewBitReader(data []byte, pos int, seed uint32) (*BitReader, error) {
	br := &BitReader{data: data, pos: pos, crc: seed}
	first, err := br.word()
	if err != nil {
		return nil, err
	}
	br.bits = first
	br.crc ^= first
	return br, nil
}

// word reads the big-endian word at the cursor and moves the cursor back.
func (br *BitReader) word() (uint32, error) {
	if br.pos < 0 || br.pos+4 > len(br.data) {
		return 0, fmt.Errorf("%w: input exhausted at offset %d", ErrCorruptData, br.pos)
	}
	w := binary.BigEndian.Uint32(br.data[br.pos:])
	br.pos -= 4
	return w, nil
}

// Bit returns the next bit of the stream.
func (br *BitReader) Bit() (bool, error) {
	carry := br.bits&1 != 0
	br.bits >>= 1
	if br.bits == 0 {
		w, err := br.word()
		if err != nil {
			return false, err
		}
		br.crc ^= w
		carry = w&1 != 0
		br.bits = 1<<31 | w>>1
	}
	return carry, nil
}

// Bits reads n bits and assembles them most significant bit first.
func (br *BitReader) Bits(n int) (int, error) {
	v := 0
	for i := 0; i < n; i++ {
		b, err := br.Bit()
		if err != nil {
			return 0, err
		}
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, nil
}

// Checksum returns the running checksum. It is zero once every chunk of a
// well-formed blob has been consumed.
func (br *BitReader) Checksum() uint32 {
	return br.crc
}
