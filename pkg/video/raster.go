package video

import (
	"math"
	"sort"
)

// plot sets one pixel of the work page, honouring the blend and mask modes.
func (v *Video) plot(x, y int, color byte) {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return
	}
	i := y*Width + x
	page := v.pages[v.work]
	switch color {
	case ColorBlend:
		page[i] |= 8
	case ColorMask:
		page[i] = v.pages[0][i]
	default:
		page[i] = color
	}
}

// span fills pixels x0 <= x < x1 of row y.
func (v *Video) span(y, x0, x1 int, color byte) {
	if y < 0 || y >= Height {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > Width {
		x1 = Width
	}
	if x0 >= x1 {
		return
	}
	row := v.pages[v.work][y*Width : (y+1)*Width]
	switch color {
	case ColorBlend:
		for x := x0; x < x1; x++ {
			row[x] |= 8
		}
	case ColorMask:
		copy(row[x0:x1], v.pages[0][y*Width+x0:y*Width+x1])
	default:
		for x := x0; x < x1; x++ {
			row[x] = color
		}
	}
}

// rectangle reports whether four points outline an axis-aligned rectangle
// with a non-empty interior, and returns its bounds.
func rectangle(pts []Point) (l, t, r, b int, ok bool) {
	if len(pts) != 4 {
		return 0, 0, 0, 0, false
	}
	for i := range pts {
		p, q := pts[i], pts[(i+1)%4]
		if p.X != q.X && p.Y != q.Y {
			return 0, 0, 0, 0, false
		}
	}
	l, t, r, b = pts[0].X, pts[0].Y, pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		l, r = min(l, p.X), max(r, p.X)
		t, b = min(t, p.Y), max(b, p.Y)
	}
	for _, p := range pts {
		if (p.X != l && p.X != r) || (p.Y != t && p.Y != b) {
			return 0, 0, 0, 0, false
		}
	}
	return l, t, r, b, l < r && t < b
}

// fill rasterises a closed polygon. A pixel is covered when its centre lies
// inside the outline; on each row a pixel is covered from the left edge up to
// but not including the right edge. Outlines without interior on a row still
// cover one pixel there, so thin shapes and lines stay visible.
func (v *Video) fill(pts []Point, color byte) {
	top, bottom := pts[0].Y, pts[0].Y
	left, right := pts[0].X, pts[0].X
	for _, p := range pts[1:] {
		top, bottom = min(top, p.Y), max(bottom, p.Y)
		left, right = min(left, p.X), max(right, p.X)
	}

	if top == bottom {
		v.span(top, left, right+1, color)
		return
	}

	xs := make([]float64, 0, len(pts))
	for y := max(top, 0); y < min(bottom, Height); y++ {
		yc := float64(y) + 0.5
		xs = xs[:0]
		for i := range pts {
			p, q := pts[i], pts[(i+1)%len(pts)]
			if p.Y == q.Y {
				continue
			}
			if p.Y > q.Y {
				p, q = q, p
			}
			if yc < float64(p.Y) || yc >= float64(q.Y) {
				continue
			}
			t := (yc - float64(p.Y)) / float64(q.Y-p.Y)
			xs = append(xs, float64(p.X)+t*float64(q.X-p.X))
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			x0 := int(math.Ceil(xs[i] - 0.5))
			x1 := int(math.Ceil(xs[i+1] - 0.5))
			if x1 <= x0 {
				x0 = int(math.Floor(xs[i]))
				x1 = x0 + 1
			}
			v.span(y, x0, x1, color)
		}
	}
}
