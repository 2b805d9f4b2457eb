// Package window presents engine frames in an ebiten window and captures the
// keyboard, or records them when running headless.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/zurustar/anotherworld/pkg/engine"
	"github.com/zurustar/anotherworld/pkg/input"
	"github.com/zurustar/anotherworld/pkg/logger"
	"github.com/zurustar/anotherworld/pkg/video"
	"golang.org/x/image/font/basicfont"
)

const (
	// DefaultScale is the initial window size as a multiple of the page size.
	DefaultScale = 3

	// 通知メッセージの表示時間
	noticeDuration = 2 * time.Second
)

// デフォルトフォント
var defaultFace = text.NewGoXFace(basicfont.Face7x13)

// StepFunc runs one engine frame.
type StepFunc func(ctx context.Context) error

// Game はEbitengineのゲームインターフェースを実装する
// engine.Presenter と engine.InputReader も兼ねる
type Game struct {
	mu     sync.Mutex
	pixels []byte // RGBA of the last presented frame
	dirty  bool
	screen *ebiten.Image

	keys  keySource
	state input.State
	slot  int

	notice      string
	noticeUntil time.Time

	title string
	scale int
	step  StepFunc
	ctx   context.Context
	log   *slog.Logger
}

// Option configures a Game.
type Option func(*Game)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Game) {
		g.log = log
	}
}

// WithTitle sets the window title.
func WithTitle(title string) Option {
	return func(g *Game) {
		g.title = title
	}
}

// WithScale sets the initial window scale.
func WithScale(scale int) Option {
	return func(g *Game) {
		if scale > 0 {
			g.scale = scale
		}
	}
}

// NewGame Gameを作成
func NewGame(opts ...Option) *Game {
	g := &Game{
		pixels: make([]byte, video.PageSize*4),
		keys:   &ebitenKeys{},
		title:  "Another World",
		scale:  DefaultScale,
		log:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Present implements engine.Presenter.
func (g *Game) Present(page []byte, pal video.Palette) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	expand(g.pixels, page, pal)
	g.dirty = true
	return nil
}

// ReadInput implements engine.InputReader. The keyboard is sampled once per
// Update before the engine frame runs.
func (g *Game) ReadInput() input.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Notify shows a short message over the game picture.
func (g *Game) Notify(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notice = msg
	g.noticeUntil = time.Now().Add(noticeDuration)
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	g.mu.Lock()
	prevSlot := g.slot
	g.state = sampleKeys(g.keys, &g.slot)
	st := g.state
	g.mu.Unlock()

	if st.Slot != prevSlot {
		g.Notify(fmt.Sprintf("slot %d", st.Slot))
	}
	if st.Save {
		g.Notify(fmt.Sprintf("saved to slot %d", st.Slot))
	}

	if g.step == nil {
		return nil
	}
	err := g.step(g.ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrTerminated), errors.Is(err, context.Canceled):
		return ebiten.Termination
	default:
		return err
	}
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.screen == nil {
		g.screen = ebiten.NewImage(video.Width, video.Height)
		g.dirty = true
	}
	if g.dirty {
		g.screen.WritePixels(g.pixels)
		g.dirty = false
	}
	screen.DrawImage(g.screen, nil)

	if g.notice != "" && time.Now().Before(g.noticeUntil) {
		op := &text.DrawOptions{}
		op.GeoM.Translate(4, 4)
		text.Draw(screen, g.notice, defaultFace, op)
	}
}

// Layout はゲーム画面の論理サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return video.Width, video.Height
}

// Run opens the window and calls step once per tick until the engine
// terminates, the window is closed or ctx is done.
func (g *Game) Run(ctx context.Context, step StepFunc) error {
	g.ctx = ctx
	g.step = step

	ebiten.SetWindowSize(video.Width*g.scale, video.Height*g.scale)
	ebiten.SetWindowTitle(g.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	g.log.Info("Window opened", "scale", g.scale)
	if err := ebiten.RunGame(g); err != nil {
		return err
	}
	return nil
}
