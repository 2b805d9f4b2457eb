package video

import "fmt"

const (
	planeSize = PageSize / 8
	// BitmapSize is the size of a full-screen background resource.
	BitmapSize = planeSize * 4
)

// DecodeBitmap writes a four-plane background bitmap into page 0. Plane p
// holds bit p of every pixel, eight pixels per byte, most significant bit
// leftmost.
func (v *Video) DecodeBitmap(data []byte) error {
	if len(data) < BitmapSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrBadBitmap, len(data), BitmapSize)
	}
	dst := v.pages[0]
	for i := 0; i < planeSize; i++ {
		for bit := 7; bit >= 0; bit-- {
			var c byte
			for p := 0; p < 4; p++ {
				c |= (data[p*planeSize+i] >> bit & 1) << p
			}
			dst[i*8+7-bit] = c
		}
	}
	return nil
}
