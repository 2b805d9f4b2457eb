package unpack

import "encoding/binary"

const (
	maxWindow     = 4095
	maxRefLength  = 256
	maxLiteralRun = 264
)

// Pack produces a blob that Unpack restores to data. It is a plain greedy
// encoder used to build fixtures; it makes no attempt to match the ratio of
// the original tools.
func Pack(data []byte) []byte {
	w := &bitWriter{}
	var run []byte

	p := len(data) - 1
	for p >= 0 {
		length, off, ok := bestMatch(data, p)
		if !ok {
			run = append(run, data[p])
			p--
			continue
		}
		w.literals(run)
		run = run[:0]
		w.reference(length, off)
		p -= length
	}
	w.literals(run)

	return w.finish(len(data))
}

// bestMatch looks for the back-reference at output index p that saves the
// most bits over emitting literals.
func bestMatch(data []byte, p int) (length, off int, ok bool) {
	window := len(data) - 1 - p
	if window > maxWindow {
		window = maxWindow
	}
	limit := p + 1
	if limit > maxRefLength {
		limit = maxRefLength
	}

	best := 0
	for o := 1; o <= window; o++ {
		l := 0
		for l < limit && data[p-l] == data[p-l+o] {
			l++
		}
		if l < 2 {
			continue
		}
		if saving := 8*l - refCost(l, o); saving > best {
			best, length, off = saving, l, o
		}
	}
	return length, off, best > 0
}

func refCost(length, off int) int {
	const general = 3 + 8 + 12
	switch length {
	case 2:
		if off <= 0xFF {
			return 2 + 8
		}
		return 1 << 16
	case 3:
		if off <= 0x1FF {
			return 3 + 9
		}
	case 4:
		if off <= 0x3FF {
			return 3 + 10
		}
	}
	return general
}

type bitWriter struct {
	bits []bool
}

func (w *bitWriter) put(v, n int) {
	for i := n - 1; i >= 0; i-- {
		w.bits = append(w.bits, v>>i&1 == 1)
	}
}

func (w *bitWriter) literals(run []byte) {
	for len(run) > 0 {
		n := len(run)
		if n > maxLiteralRun {
			n = maxLiteralRun
		}
		if n <= 8 {
			w.put(0, 2)
			w.put(n-1, 3)
		} else {
			w.put(1, 1)
			w.put(3, 2)
			w.put(n-9, 8)
		}
		for _, b := range run[:n] {
			w.put(int(b), 8)
		}
		run = run[n:]
	}
}

func (w *bitWriter) reference(length, off int) {
	switch {
	case length == 2:
		w.put(1, 2)
		w.put(off, 8)
	case length == 3 && off <= 0x1FF:
		w.put(4, 3)
		w.put(off, 9)
	case length == 4 && off <= 0x3FF:
		w.put(5, 3)
		w.put(off, 10)
	default:
		w.put(6, 3)
		w.put(length-1, 8)
		w.put(off, 12)
	}
}

// finish lays the bit stream out in chunks. The first chunk holds the
// leftover bits below its sentinel; every later chunk holds 32 bits.
func (w *bitWriter) finish(size int) []byte {
	k := len(w.bits) % 32
	m := len(w.bits) / 32
	words := make([]uint32, m+1)
	for j, b := range w.bits {
		if !b {
			continue
		}
		if j < k {
			words[0] |= 1 << j
		} else {
			words[1+(j-k)/32] |= 1 << ((j - k) % 32)
		}
	}
	words[0] |= 1 << k

	var crc uint32
	out := make([]byte, 4*(m+1)+8)
	for i, wd := range words {
		crc ^= wd
		binary.BigEndian.PutUint32(out[4*(m-i):], wd)
	}
	binary.BigEndian.PutUint32(out[4*(m+1):], crc)
	binary.BigEndian.PutUint32(out[4*(m+1)+4:], uint32(size))
	return out
}
