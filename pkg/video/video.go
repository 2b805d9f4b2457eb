// Package video draws vector shapes into indexed-colour pages.
//
// Four 320x200 pages hold one palette index per pixel. One page is the work
// page every drawing operation targets, one is the front page handed to the
// presenter, and one is the back page that a show operation swaps in.
package video

import (
	"fmt"
	"log/slog"

	"github.com/zurustar/anotherworld/pkg/logger"
)

const (
	Width    = 320
	Height   = 200
	PageSize = Width * Height
	NumPages = 4

	// PageFront and PageBack address the pages currently designated front and
	// back instead of a fixed page number.
	PageFront = 0xFE
	PageBack  = 0xFF

	// VScrollFlag marks a copy source whose contents are shifted vertically.
	VScrollFlag = 0x80
)

// Video owns the pages and the palette state.
type Video struct {
	pages [NumPages][]byte

	work  int
	front int
	back  int

	paletteData []byte
	palette     Palette
	paletteID   int
	requested   int

	strings StringTable
	log     *slog.Logger
}

// Option configures a Video.
type Option func(*Video)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(v *Video) {
		v.log = log
	}
}

// WithStrings sets the table used by DrawString.
func WithStrings(t StringTable) Option {
	return func(v *Video) {
		v.strings = t
	}
}

// New creates a video with blank pages. Page 2 starts as both work and front
// page and page 1 as back page.
func New(opts ...Option) *Video {
	v := &Video{
		work:      2,
		front:     2,
		back:      1,
		palette:   Grayscale(),
		paletteID: -1,
		requested: -1,
		strings:   DefaultStrings(),
		log:       logger.GetLogger(),
	}
	for i := range v.pages {
		v.pages[i] = make([]byte, PageSize)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// resolve maps a page operand to a page number. Unknown operands fall back to
// page 0, which is what the game data expects.
func (v *Video) resolve(id int) int {
	switch {
	case id >= 0 && id < NumPages:
		return id
	case id == PageFront:
		return v.front
	case id == PageBack:
		return v.back
	default:
		v.log.Warn("Unknown page operand, using page 0", "page", id)
		return 0
	}
}

// SelectPage sets the work page.
func (v *Video) SelectPage(id int) {
	v.work = v.resolve(id)
}

// FillPage fills a page with one colour.
func (v *Video) FillPage(id int, color byte) {
	p := v.pages[v.resolve(id)]
	for i := range p {
		p[i] = color
	}
}

// CopyPage copies src into dst. When src carries VScrollFlag (and is not one
// of the front/back designators) the low two bits select the source page and
// the copy is shifted down by vscroll rows; shifts outside -199..199 copy
// nothing.
func (v *Video) CopyPage(src, dst, vscroll int) {
	if src < PageFront {
		src &^= 0x40
	}
	if src >= PageFront || src&VScrollFlag == 0 {
		s, d := v.resolve(src), v.resolve(dst)
		if s != d {
			copy(v.pages[d], v.pages[s])
		}
		return
	}

	s, d := v.pages[src&3], v.pages[v.resolve(dst)]
	if src&3 == v.resolve(dst) || vscroll < -(Height-1) || vscroll > Height-1 {
		return
	}
	if vscroll < 0 {
		copy(d, s[-vscroll*Width:])
	} else {
		copy(d[vscroll*Width:], s[:PageSize-vscroll*Width])
	}
}

// Show makes a page the front page. PageFront keeps the current front page,
// PageBack swaps front and back. A pending palette request takes effect here.
func (v *Video) Show(id int) {
	switch id {
	case PageFront:
	case PageBack:
		v.front, v.back = v.back, v.front
	default:
		v.front = v.resolve(id)
	}
	v.applyPalette()
}

// SetPaletteData sets the palette segment that palette requests index into.
func (v *Video) SetPaletteData(segment []byte) {
	v.paletteData = segment
}

// RequestPalette selects the palette applied at the next Show.
func (v *Video) RequestPalette(n int) {
	if n < 0 || n >= MaxPalettes {
		v.log.Warn("Palette request out of range", "palette", n)
		return
	}
	v.requested = n
}

func (v *Video) applyPalette() {
	if v.requested < 0 {
		return
	}
	n := v.requested
	v.requested = -1
	p, err := DecodePalette(v.paletteData, n)
	if err != nil {
		v.log.Warn("Palette not applied", "error", err)
		return
	}
	v.palette = p
	v.paletteID = n
}

// Palette returns the active palette.
func (v *Video) Palette() Palette {
	return v.palette
}

// Page returns page n. The slice aliases the page.
func (v *Video) Page(n int) []byte {
	return v.pages[v.resolve(n)]
}

// FrontPage returns the page to present.
func (v *Video) FrontPage() []byte {
	return v.pages[v.front]
}

// WorkPage returns the number of the page drawing operations target.
func (v *Video) WorkPage() int {
	return v.work
}

func (v *Video) String() string {
	return fmt.Sprintf("video{work=%d front=%d back=%d palette=%d}", v.work, v.front, v.back, v.paletteID)
}

// State is a copy of everything a Video holds besides its collaborators.
type State struct {
	Pages     [NumPages][]byte
	Work      int
	Front     int
	Back      int
	PaletteID int
	Requested int
}

// Snapshot copies the video state.
func (v *Video) Snapshot() State {
	s := State{
		Work:      v.work,
		Front:     v.front,
		Back:      v.back,
		PaletteID: v.paletteID,
		Requested: v.requested,
	}
	for i, p := range v.pages {
		s.Pages[i] = append([]byte(nil), p...)
	}
	return s
}

// Validate checks page sizes and designations.
func (s State) Validate() error {
	for i, p := range s.Pages {
		if len(p) != PageSize {
			return fmt.Errorf("page %d: %d bytes, want %d", i, len(p), PageSize)
		}
	}
	for _, n := range []int{s.Work, s.Front, s.Back} {
		if n < 0 || n >= NumPages {
			return fmt.Errorf("page designation %d out of range", n)
		}
	}
	return nil
}

// Restore replaces the video state with s. The palette is decoded again from
// the current palette segment.
func (v *Video) Restore(s State) error {
	if err := s.Validate(); err != nil {
		return err
	}
	pal, palID := Grayscale(), -1
	if s.PaletteID >= 0 {
		p, err := DecodePalette(v.paletteData, s.PaletteID)
		if err != nil {
			return err
		}
		pal, palID = p, s.PaletteID
	}
	for i := range v.pages {
		copy(v.pages[i], s.Pages[i])
	}
	v.work, v.front, v.back = s.Work, s.Front, s.Back
	v.requested = s.Requested
	v.palette, v.paletteID = pal, palID
	return nil
}
