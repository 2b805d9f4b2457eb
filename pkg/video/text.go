package video

import (
	"image"

	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextColumn is the width of one text column; text x operands count columns.
const TextColumn = 8

// StringTable maps string ids used by the text opcode to text.
type StringTable map[int]string

// DefaultStrings returns the built-in strings of the intro and the
// protection screens.
func DefaultStrings() StringTable {
	return StringTable{
		0x001: "P E A N U T  3000",
		0x002: "Copyright  } 1990 Peanut Computer, Inc.\nAll rights reserved.\n\nCDOS Version 5.01",
		0x003: "2",
		0x004: "3",
		0x005: ".",
		0x006: "A",
		0x007: "@",
		0x008: "PEANUT 3000",
		0x00A: "R",
		0x00B: "U",
		0x00C: "1",
		0x00D: "ANOTHER WORLD",
	}
}

// Merge returns a table holding t overridden by other.
func (t StringTable) Merge(other StringTable) StringTable {
	out := make(StringTable, len(t)+len(other))
	for id, s := range t {
		out[id] = s
	}
	for id, s := range other {
		out[id] = s
	}
	return out
}

// DrawString draws string id at column x, row y of the work page. Unknown ids
// draw nothing. A newline returns to column x on the next text line.
func (v *Video) DrawString(id, x, y int, color byte) {
	s, ok := v.strings[id]
	if !ok {
		v.log.Debug("Unknown string", "id", id)
		return
	}
	face := basicfont.Face7x13
	left := x * TextColumn
	dot := image.Pt(left, y)
	for _, r := range s {
		if r == '\n' {
			dot.X = left
			dot.Y += face.Height
			continue
		}
		v.drawGlyph(face, dot, r, color)
		dot.X += TextColumn
	}
}

func (v *Video) drawGlyph(face *basicfont.Face, dot image.Point, r rune, color byte) {
	baseline := fixed.P(dot.X, dot.Y+face.Ascent)
	dr, mask, mp, _, ok := face.Glyph(baseline, r)
	if !ok {
		return
	}
	for y := dr.Min.Y; y < dr.Max.Y; y++ {
		for x := dr.Min.X; x < dr.Max.X; x++ {
			_, _, _, a := mask.At(mp.X+x-dr.Min.X, mp.Y+y-dr.Min.Y).RGBA()
			if a != 0 {
				v.plot(x, y, color)
			}
		}
	}
}
