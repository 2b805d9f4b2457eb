// Package engine drives the interpreter one frame at a time and connects it to
// the audio, input and presentation collaborators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/hako/durafmt"
	"github.com/zurustar/anotherworld/pkg/input"
	"github.com/zurustar/anotherworld/pkg/logger"
	"github.com/zurustar/anotherworld/pkg/resource"
	"github.com/zurustar/anotherworld/pkg/video"
	"github.com/zurustar/anotherworld/pkg/vm"
	"golang.org/x/time/rate"
)

// ErrTerminated is returned when the engine is terminated.
var ErrTerminated = errors.New("engine terminated")

const (
	// DefaultSliceRate is the number of pause slices per second. A script
	// asks for a delay after each page flip in slices of 20ms.
	DefaultSliceRate = 50

	// DefaultStartPart is the part played when none is configured.
	DefaultStartPart = resource.PartIntro
)

// Variables written at start to skip the copy protection screen.
var bypassVars = map[int]int16{
	0xBC: 0x10,
	0xC6: 0x80,
	0xDC: 33,
	0xF2: 4000,
}

// Engine owns the variable table and steps the interpreter frame by frame.
type Engine struct {
	res   *resource.Manager
	video *video.Video
	vm    *vm.VM
	vars  vm.Variables

	audio     AudioSink
	input     InputReader
	presenter Presenter

	startPart  int
	bypass     bool
	seed       int16
	seedSet    bool
	sliceRate  int
	realtime   bool
	stepBudget int
	maxFrames  int
	stateDir   string

	limiter *rate.Limiter
	ctx     context.Context
	slots   map[int][]byte

	frames            int
	flips             int
	programTerminated atomic.Bool
	timeout           time.Duration
	startTime         time.Time

	log *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithAudio sets the audio sink.
func WithAudio(a AudioSink) Option {
	return func(e *Engine) {
		e.audio = a
	}
}

// WithInput sets the input source.
func WithInput(r InputReader) Option {
	return func(e *Engine) {
		e.input = r
	}
}

// WithPresenter sets the sink that receives flipped pages.
func WithPresenter(p Presenter) Option {
	return func(e *Engine) {
		e.presenter = p
	}
}

// WithStartPart sets the part loaded by Init.
func WithStartPart(id int) Option {
	return func(e *Engine) {
		e.startPart = id
	}
}

// WithBypass enables or disables the protection bypass variables.
func WithBypass(enabled bool) Option {
	return func(e *Engine) {
		e.bypass = enabled
	}
}

// WithSeed fixes the random seed handed to the scripts.
func WithSeed(seed int16) Option {
	return func(e *Engine) {
		e.seed = seed
		e.seedSet = true
	}
}

// WithSliceRate sets how many pause slices make one second.
func WithSliceRate(perSecond int) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.sliceRate = perSecond
		}
	}
}

// WithRealtime enables wall-clock pacing of page flips.
// Without it frames run as fast as possible.
func WithRealtime(enabled bool) Option {
	return func(e *Engine) {
		e.realtime = enabled
	}
}

// WithStepBudget sets the per-turn instruction budget of the interpreter.
func WithStepBudget(n int) Option {
	return func(e *Engine) {
		e.stepBudget = n
	}
}

// WithTimeout stops Run after d. 0 means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithMaxFrames stops Run after n frames. 0 means no limit.
func WithMaxFrames(n int) Option {
	return func(e *Engine) {
		e.maxFrames = n
	}
}

// WithStateDir persists save slots as files in dir.
// Without it slots live in memory only.
func WithStateDir(dir string) Option {
	return func(e *Engine) {
		e.stateDir = dir
	}
}

// New creates an engine over a resource manager and a video state.
func New(res *resource.Manager, gfx *video.Video, opts ...Option) *Engine {
	e := &Engine{
		res:        res,
		video:      gfx,
		audio:      LogAudio{},
		input:      noInput{},
		presenter:  noPresenter{},
		startPart:  DefaultStartPart,
		bypass:     true,
		sliceRate:  DefaultSliceRate,
		stepBudget: vm.DefaultStepBudget,
		slots:      make(map[int][]byte),
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if la, ok := e.audio.(LogAudio); ok && la.Log == nil {
		e.audio = LogAudio{Log: e.log}
	}
	if !e.seedSet {
		e.seed = int16(rand.IntN(1 << 15))
	}

	if e.realtime {
		e.limiter = rate.NewLimiter(rate.Limit(e.sliceRate), 1)
	} else {
		e.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	e.vm = vm.New(res, gfx,
		vm.WithLogger(e.log),
		vm.WithAudio(e.audio),
		vm.WithShowFunc(e.onShow),
		vm.WithStepBudget(e.stepBudget))
	return e
}

// VM returns the interpreter.
func (e *Engine) VM() *vm.VM {
	return e.vm
}

// Video returns the video state.
func (e *Engine) Video() *video.Video {
	return e.video
}

// Vars returns a copy of the variable table.
func (e *Engine) Vars() vm.Variables {
	return e.vars
}

// SetVar writes one variable.
func (e *Engine) SetVar(i int, v int16) {
	e.vars[i&0xFF] = v
}

// Frames returns the number of frames completed.
func (e *Engine) Frames() int {
	return e.frames
}

// Init clears the variables, applies the bypass and loads the start part.
func (e *Engine) Init() error {
	e.vars = vm.Variables{}
	e.vars[vm.VarRandomSeed] = e.seed
	if e.bypass {
		for i, v := range bypassVars {
			e.vars[i] = v
		}
	}
	e.log.Info("Engine initialized",
		"part", fmt.Sprintf("0x%04x", e.startPart),
		"bypass", e.bypass,
		"seed", e.seed)
	return e.switchPart(e.startPart)
}

// switchPart loads a part and restarts its scripts from task 0.
func (e *Engine) switchPart(id int) error {
	if err := e.res.SwitchPart(id); err != nil {
		return err
	}
	e.vm.ResetTasks(0)
	e.vars[vm.VarPartInit] = vm.PartInitValue
	e.video.SetPaletteData(e.res.Segment(resource.RolePalette).Data)
	return nil
}

// Start records the start time for the timeout check.
func (e *Engine) Start() {
	e.startTime = time.Now()
	e.programTerminated.Store(false)
	e.log.Info("Engine started")
}

// Terminate sets the termination flag.
func (e *Engine) Terminate() {
	if !e.programTerminated.Load() {
		e.programTerminated.Store(true)
		e.log.Info("Engine termination requested")
	}
}

// IsTerminated returns whether the engine has been terminated.
func (e *Engine) IsTerminated() bool {
	return e.programTerminated.Load()
}

// CheckTermination reports whether the engine should stop because of the
// termination flag, the timeout or the frame limit.
func (e *Engine) CheckTermination() bool {
	if e.programTerminated.Load() {
		return true
	}

	if e.timeout > 0 && !e.startTime.IsZero() {
		elapsed := time.Since(e.startTime)
		if elapsed >= e.timeout {
			e.log.Info("Timeout exceeded", "elapsed", durafmt.Parse(elapsed).LimitFirstN(2).String())
			e.Terminate()
			return true
		}
	}

	if e.maxFrames > 0 && e.frames >= e.maxFrames {
		e.log.Info("Frame limit reached", "frames", e.frames)
		e.Terminate()
		return true
	}

	return false
}

// RunFrame performs one scheduler frame: pending part switch, task state
// commit, input, then every running task in slot order.
func (e *Engine) RunFrame(ctx context.Context) error {
	if e.CheckTermination() {
		return ErrTerminated
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.ctx = ctx
	defer func() { e.ctx = nil }()

	if err := e.res.Wait(); err != nil {
		return err
	}
	if id, ok := e.vm.RequestedPart(); ok {
		if err := e.switchPart(id); err != nil {
			return err
		}
	}
	e.vm.CommitRequests()

	in := e.input.ReadInput()
	if in.Quit {
		e.Terminate()
		return ErrTerminated
	}
	if in.Code {
		if cur := e.res.CurrentPart(); cur != resource.PartPassword && cur != resource.PartProtection {
			e.vm.RequestPart(resource.PartPassword)
		}
	}
	if err := e.handleSlots(in); err != nil {
		return err
	}
	input.Apply(&e.vars, in, e.res.CurrentPart() == resource.PartPassword)

	if err := e.vm.RunFrame(&e.vars); err != nil {
		return err
	}
	e.frames++
	return nil
}

// onShow waits the requested pause slices and presents the front page.
func (e *Engine) onShow(pauseSlices int) error {
	e.flips++
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	for i := 0; i < max(pauseSlices, 1); i++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return e.presenter.Present(e.video.FrontPage(), e.video.Palette())
}

// Run initializes the engine when needed and steps frames until it is
// terminated, times out, reaches the frame limit or the context is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.res.CurrentPart() == 0 {
		if err := e.Init(); err != nil {
			return err
		}
	}
	e.Start()

	var runErr error
	for {
		err := e.RunFrame(ctx)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrTerminated) && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		break
	}

	elapsed := time.Since(e.startTime)
	e.log.Info("Engine stopped",
		"frames", e.frames,
		"flips", e.flips,
		"part", fmt.Sprintf("0x%04x", e.res.CurrentPart()),
		"elapsed", durafmt.Parse(elapsed).LimitFirstN(2).String())
	return runErr
}
