package video

import (
	"encoding/binary"
	"fmt"
	"image/color"
)

const (
	// PaletteColors is the number of colours in one palette.
	PaletteColors = 16
	// PaletteBytes is the size of one palette inside a palette segment.
	PaletteBytes = PaletteColors * 2
	// MaxPalettes is the number of palettes a palette segment may hold.
	MaxPalettes = 32
)

// Palette maps the 16 page colour indices to RGBA.
type Palette [PaletteColors]color.RGBA

// DecodePalette reads palette n from a palette segment. Colours are stored as
// big-endian 12-bit 0x0RGB words; each 4-bit channel c is widened to c<<4|c.
func DecodePalette(segment []byte, n int) (Palette, error) {
	var p Palette
	if n < 0 || n >= MaxPalettes {
		return p, fmt.Errorf("palette %d out of range", n)
	}
	off := n * PaletteBytes
	if off+PaletteBytes > len(segment) {
		return p, fmt.Errorf("palette %d beyond %d-byte segment", n, len(segment))
	}
	for i := range p {
		c := binary.BigEndian.Uint16(segment[off+2*i:])
		p[i] = color.RGBA{
			R: widen(c >> 8),
			G: widen(c >> 4),
			B: widen(c),
			A: 0xFF,
		}
	}
	return p, nil
}

func widen(c uint16) uint8 {
	v := uint8(c & 0xF)
	return v<<4 | v
}

// Grayscale is used until a script selects a palette.
func Grayscale() Palette {
	var p Palette
	for i := range p {
		v := uint8(i)<<4 | uint8(i)
		p[i] = color.RGBA{R: v, G: v, B: v, A: 0xFF}
	}
	return p
}

// RGBA returns the colour of index i, ignoring the blend bits.
func (p Palette) RGBA(i byte) color.RGBA {
	return p[i&0xF]
}
