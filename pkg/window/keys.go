package window

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/zurustar/anotherworld/pkg/input"
)

// NumSlots is the number of save slots selectable from the keyboard.
const NumSlots = 10

// keySource はキーボードの状態を返す（テストで差し替える）
type keySource interface {
	Pressed(k ebiten.Key) bool
	JustPressed(k ebiten.Key) bool
	Chars() []rune
}

// ebitenKeys reads the keyboard through ebiten.
type ebitenKeys struct {
	buf []rune
}

func (k *ebitenKeys) Pressed(key ebiten.Key) bool {
	return ebiten.IsKeyPressed(key)
}

func (k *ebitenKeys) JustPressed(key ebiten.Key) bool {
	return inpututil.IsKeyJustPressed(key)
}

func (k *ebitenKeys) Chars() []rune {
	k.buf = ebiten.AppendInputChars(k.buf[:0])
	return k.buf
}

func anyPressed(src keySource, keys ...ebiten.Key) bool {
	for _, k := range keys {
		if src.Pressed(k) {
			return true
		}
	}
	return false
}

// sampleKeys builds the input state of one frame. slot is the save slot
// currently selected and is updated by PageUp and PageDown.
func sampleKeys(src keySource, slot *int) input.State {
	s := input.State{
		Left:   anyPressed(src, ebiten.KeyArrowLeft),
		Right:  anyPressed(src, ebiten.KeyArrowRight),
		Up:     anyPressed(src, ebiten.KeyArrowUp),
		Down:   anyPressed(src, ebiten.KeyArrowDown),
		Action: anyPressed(src, ebiten.KeySpace, ebiten.KeyEnter, ebiten.KeyShiftLeft),
		Code:   src.JustPressed(ebiten.KeyC),
		Save:   src.JustPressed(ebiten.KeyF5),
		Load:   src.JustPressed(ebiten.KeyF7),
		Quit:   src.JustPressed(ebiten.KeyEscape),
	}

	if src.JustPressed(ebiten.KeyPageUp) {
		*slot = (*slot + 1) % NumSlots
	}
	if src.JustPressed(ebiten.KeyPageDown) {
		*slot = (*slot + NumSlots - 1) % NumSlots
	}
	s.Slot = *slot

	if src.JustPressed(ebiten.KeyBackspace) {
		s.LastChar = 8
	}
	for _, r := range src.Chars() {
		if r < 0x80 {
			s.LastChar = byte(r)
		}
	}
	return s
}
