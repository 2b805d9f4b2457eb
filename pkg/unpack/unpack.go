package unpack

import (
	"encoding/binary"
	"fmt"
)

// trailerSize is the size of the size/seed/first-chunk words at the end of a
// packed blob.
const trailerSize = 12

// Unpack restores the original bytes of a packed bank entry.
// unpackedSize is the size recorded in the bank index; it must match the size
// stored in the blob itself.
func Unpack(packed []byte, unpackedSize int) ([]byte, error) {
	if len(packed) < trailerSize {
		return nil, fmt.Errorf("%w: blob of %d bytes is shorter than its trailer", ErrCorruptData, len(packed))
	}
	pos := len(packed) - 4
	size := int(binary.BigEndian.Uint32(packed[pos:]))
	if size != unpackedSize {
		return nil, fmt.Errorf("%w: stored size %d, index says %d", ErrCorruptData, size, unpackedSize)
	}
	seed := binary.BigEndian.Uint32(packed[pos-4:])

	br, err := NewBitReader(packed, pos-8, seed)
	if err != nil {
		return nil, err
	}

	d := &decoder{br: br, out: make([]byte, size), dst: size - 1, remaining: size}
	for d.remaining > 0 {
		if err := d.token(); err != nil {
			return nil, err
		}
	}

	if sum := br.Checksum(); sum != 0 {
		return nil, fmt.Errorf("%w: checksum residue 0x%08x", ErrCorruptData, sum)
	}
	return d.out, nil
}

type decoder struct {
	br        *BitReader
	out       []byte
	dst       int // next output index, moves towards 0
	remaining int
}

// token decodes one literal run or back-reference.
//
//	0 0 nnn            literal, n+1 bytes
//	0 1 o8             reference, 2 bytes
//	1 00 o9            reference, 3 bytes
//	1 01 o10           reference, 4 bytes
//	1 10 l8 o12        reference, l+1 bytes
//	1 11 l8            literal, l+9 bytes
func (d *decoder) token() error {
	b, err := d.br.Bit()
	if err != nil {
		return err
	}
	if !b {
		b, err = d.br.Bit()
		if err != nil {
			return err
		}
		if !b {
			return d.literal(3, 0)
		}
		return d.reference(8, 2)
	}

	code, err := d.br.Bits(2)
	if err != nil {
		return err
	}
	switch code {
	case 0:
		return d.reference(9, 3)
	case 1:
		return d.reference(10, 4)
	case 2:
		n, err := d.br.Bits(8)
		if err != nil {
			return err
		}
		return d.reference(12, n+1)
	default:
		return d.literal(8, 8)
	}
}

func (d *decoder) literal(lenBits, add int) error {
	n, err := d.br.Bits(lenBits)
	if err != nil {
		return err
	}
	count := n + add + 1
	if count > d.remaining {
		return fmt.Errorf("%w: literal run of %d overruns output (%d left)", ErrCorruptData, count, d.remaining)
	}
	for i := 0; i < count; i++ {
		v, err := d.br.Bits(8)
		if err != nil {
			return err
		}
		d.out[d.dst] = byte(v)
		d.dst--
	}
	d.remaining -= count
	return nil
}

func (d *decoder) reference(offBits, count int) error {
	if count > d.remaining {
		return fmt.Errorf("%w: reference of %d overruns output (%d left)", ErrCorruptData, count, d.remaining)
	}
	off, err := d.br.Bits(offBits)
	if err != nil {
		return err
	}
	if off == 0 || d.dst+off >= len(d.out) {
		return fmt.Errorf("%w: reference offset %d at output index %d", ErrCorruptData, off, d.dst)
	}
	for i := 0; i < count; i++ {
		d.out[d.dst] = d.out[d.dst+off]
		d.dst--
	}
	d.remaining -= count
	return nil
}
