package window

import (
	"image"
	"image/color"

	"github.com/zurustar/anotherworld/pkg/video"
)

// colorPalette converts a page palette for image.Paletted.
func colorPalette(pal video.Palette) color.Palette {
	out := make(color.Palette, len(pal))
	for i := range pal {
		out[i] = pal[i]
	}
	return out
}

// PalettedImage copies an indexed page into a paletted image.
func PalettedImage(page []byte, pal video.Palette) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, video.Width, video.Height), colorPalette(pal))
	for i := 0; i < len(img.Pix) && i < len(page); i++ {
		img.Pix[i] = page[i] & 0x0F
	}
	return img
}

// expand writes the RGBA colours of an indexed page into dst.
// dst must hold video.Width*video.Height*4 bytes.
func expand(dst, page []byte, pal video.Palette) {
	for i, c := range page {
		rgba := pal.RGBA(c)
		o := i * 4
		dst[o] = rgba.R
		dst[o+1] = rgba.G
		dst[o+2] = rgba.B
		dst[o+3] = rgba.A
	}
}
