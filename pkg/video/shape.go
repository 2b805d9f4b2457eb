package video

import (
	"encoding/binary"
	"fmt"
)

const (
	// ColorFromShape draws a shape in the colour stored in its record.
	ColorFromShape = 0xFF

	// ColorBlend sets bit 3 of every covered pixel.
	ColorBlend = 0x10
	// ColorMask copies covered pixels from page 0.
	ColorMask = 0x11

	// DefaultZoom draws shapes at their stored size.
	DefaultZoom = 64

	// MaxRenderDepth bounds the nesting of hierarchical shapes.
	MaxRenderDepth = 8

	maxPoints      = 50
	polygonHeader  = 0xC0
	hierarchyShape = 2
)

// Point is a page coordinate.
type Point struct {
	X, Y int
}

// shapeReader reads shape records with bounds checks.
type shapeReader struct {
	data []byte
	pos  int
}

func (r *shapeReader) byte() (int, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: read at offset 0x%04x beyond %d bytes", ErrBadShape, r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return int(b), nil
}

func (r *shapeReader) word() (int, error) {
	if r.pos < 0 || r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("%w: read at offset 0x%04x beyond %d bytes", ErrBadShape, r.pos, len(r.data))
	}
	w := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return int(w), nil
}

func scale(v, zoom int) int {
	return v * zoom / DefaultZoom
}

// Draw renders the shape record at offset in data onto the work page, centred
// on center. zoom is a factor over 64. color overrides the record's colour
// unless it is ColorFromShape.
func (v *Video) Draw(data []byte, offset int, center Point, zoom int, color int) error {
	return v.drawShape(data, offset, center, zoom, color, 0)
}

func (v *Video) drawShape(data []byte, offset int, pt Point, zoom, color, depth int) error {
	if depth >= MaxRenderDepth {
		return fmt.Errorf("%w: nesting %d at offset 0x%04x", ErrRenderDepthExceeded, depth, offset)
	}
	r := &shapeReader{data: data, pos: offset}
	h, err := r.byte()
	if err != nil {
		return err
	}
	if h >= polygonHeader {
		if color&0x80 != 0 {
			color = h & 0x3F
		}
		return v.drawPolygon(r, pt, zoom, byte(color))
	}
	if h&0x3F != hierarchyShape {
		return fmt.Errorf("%w: header 0x%02x at offset 0x%04x", ErrBadShape, h, offset)
	}
	return v.drawHierarchy(r, pt, zoom, depth)
}

// drawHierarchy draws the children of a hierarchical record. The record
// stores the anchor to subtract from pt, the child count minus one, and per
// child its offset in words, its anchor, and optionally a colour.
func (v *Video) drawHierarchy(r *shapeReader, pt Point, zoom, depth int) error {
	ax, err := r.byte()
	if err != nil {
		return err
	}
	ay, err := r.byte()
	if err != nil {
		return err
	}
	pt.X -= scale(ax, zoom)
	pt.Y -= scale(ay, zoom)

	n, err := r.byte()
	if err != nil {
		return err
	}
	for i := 0; i <= n; i++ {
		off, err := r.word()
		if err != nil {
			return err
		}
		cx, err := r.byte()
		if err != nil {
			return err
		}
		cy, err := r.byte()
		if err != nil {
			return err
		}
		color := ColorFromShape
		if off&0x8000 != 0 {
			c, err := r.byte()
			if err != nil {
				return err
			}
			color = c & 0x7F
			r.pos++
		}
		child := Point{X: pt.X + scale(cx, zoom), Y: pt.Y + scale(cy, zoom)}
		if err := v.drawShape(r.data, (off&0x7FFF)*2, child, zoom, color, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// drawPolygon reads a polygon body and fills it. Points are stored relative
// to the bounding box origin, which is centred on pt.
func (v *Video) drawPolygon(r *shapeReader, pt Point, zoom int, color byte) error {
	if zoom == 0 {
		v.plot(pt.X, pt.Y, color)
		return nil
	}

	bw, err := r.byte()
	if err != nil {
		return err
	}
	bh, err := r.byte()
	if err != nil {
		return err
	}
	n, err := r.byte()
	if err != nil {
		return err
	}
	if n&1 != 0 || n >= maxPoints {
		return fmt.Errorf("%w: %d points at offset 0x%04x", ErrBadShape, n, r.pos-3)
	}

	bbw, bbh := scale(bw, zoom), scale(bh, zoom)
	x0, y0 := pt.X-bbw/2, pt.Y-bbh/2

	points := make([]Point, n)
	for i := range points {
		px, err := r.byte()
		if err != nil {
			return err
		}
		py, err := r.byte()
		if err != nil {
			return err
		}
		points[i] = Point{X: x0 + scale(px, zoom), Y: y0 + scale(py, zoom)}
	}

	if bbw == 0 && bbh == 1 && n == 4 {
		v.plot(pt.X, pt.Y, color)
		return nil
	}
	if x0 >= Width || x0+bbw < 0 || y0 >= Height || y0+bbh < 0 {
		return nil
	}
	if n == 0 {
		return nil
	}

	if l, t, rr, b, ok := rectangle(points); ok {
		for y := t; y < b; y++ {
			v.span(y, l, rr, color)
		}
		return nil
	}
	v.fill(points, color)
	return nil
}
