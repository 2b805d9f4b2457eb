// Package app wires the command line, configuration, resources, engine and
// presentation together.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/zurustar/anotherworld/pkg/cli"
	"github.com/zurustar/anotherworld/pkg/config"
	"github.com/zurustar/anotherworld/pkg/engine"
	"github.com/zurustar/anotherworld/pkg/logger"
	"github.com/zurustar/anotherworld/pkg/resource"
	"github.com/zurustar/anotherworld/pkg/video"
	"github.com/zurustar/anotherworld/pkg/window"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config   *cli.Config
	settings *config.Config
	log      *slog.Logger
	logOut   io.Writer

	res *resource.Manager
	eng *engine.Engine

	game     *window.Game
	recorder *window.Recorder
}

// Option configures an Application.
type Option func(*Application)

// WithLogOutput sends log output to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(app *Application) {
		app.logOut = w
	}
}

// New Applicationを作成
func New(opts ...Option) *Application {
	app := &Application{logOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Info("Application started", "assets", app.config.AssetPath)

	// 3. 設定ファイルの読み込み
	if err := app.loadSettings(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 4. バンクインデックスの読み込み
	if err := app.openResources(); err != nil {
		return fmt.Errorf("failed to open game data: %w", err)
	}

	// 5. エンジンの構築と初期化
	if err := app.buildEngine(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// 6. 実行（Ctrl+Cで停止）
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	if app.config.Headless {
		err = app.runHeadless(ctx)
	} else {
		err = app.runWindow(ctx)
	}
	if err != nil {
		return fmt.Errorf("engine stopped: %w", err)
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLoggerTo(app.logOut, app.config.LogLevel); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// loadSettings reads --config, or anotherworld.toml from the asset directory
// or the working directory.
func (app *Application) loadSettings() error {
	var (
		settings *config.Config
		err      error
	)
	if app.config.ConfigPath != "" {
		settings, err = config.Load(app.config.ConfigPath)
	} else {
		settings, err = config.FindAndLoad(app.config.AssetPath, ".")
	}
	if err != nil {
		return err
	}
	app.settings = settings

	if settings.Path != "" {
		app.log.Info("Config loaded", "path", settings.Path)
	} else {
		app.log.Debug("No config file, using defaults")
	}
	return nil
}

// openResources バンクインデックスを読み込みリソースマネージャを作成
func (app *Application) openResources() error {
	src := resource.NewDirSource(os.DirFS(app.config.AssetPath), ".")
	raw, err := src.ReadIndex()
	if err != nil {
		return err
	}
	idx, err := resource.ParseIndex(raw)
	if err != nil {
		return err
	}

	var total int64
	for _, e := range idx.Entries() {
		total += int64(e.UnpackedSize)
	}
	app.log.Info("Bank index loaded", "entries", idx.Len(), "unpacked", humanize.Bytes(uint64(total)))

	digests, err := app.settings.Digests()
	if err != nil {
		return err
	}
	app.res = resource.NewManager(idx, src,
		resource.WithLogger(app.log),
		resource.WithParts(app.settings.PartTable()),
		resource.WithDigests(digests),
		resource.WithPreloadWorkers(app.settings.Engine.PreloadWorkers))
	return nil
}

// buildEngine creates the video state and the engine from the command line
// and the configuration, then enters the start part or the saved state.
func (app *Application) buildEngine() error {
	strs, err := app.settings.StringTable()
	if err != nil {
		return err
	}
	gfx := video.New(video.WithLogger(app.log), video.WithStrings(strs))

	ec := app.settings.Engine
	startPart := ec.StartPart
	if app.config.Part != 0 {
		startPart = app.config.Part
	}

	opts := []engine.Option{
		engine.WithLogger(app.log),
		engine.WithStartPart(startPart),
		engine.WithBypass(ec.Bypass && !app.config.NoBypass),
		engine.WithSliceRate(ec.FPS),
		engine.WithRealtime(!app.config.Headless),
		engine.WithStepBudget(ec.StepBudget),
		engine.WithTimeout(app.config.Timeout),
		engine.WithMaxFrames(app.config.Frames),
		engine.WithStateDir(ec.StateDir),
	}
	if seed, ok := ec.SeedValue(); ok {
		opts = append(opts, engine.WithSeed(seed))
	}
	opts = append(opts, app.presentation()...)

	app.eng = engine.New(app.res, gfx, opts...)
	if err := app.eng.Init(); err != nil {
		return err
	}

	if app.config.StatePath != "" {
		if err := app.eng.LoadStateFile(app.config.StatePath); err != nil {
			return err
		}
	}
	return nil
}

// presentation creates the recorder and the window for the run mode and
// returns the engine options that connect them.
func (app *Application) presentation() []engine.Option {
	if app.config.Headless || app.config.DumpPath != "" {
		app.recorder = window.NewRecorder(window.WithRecorderLogger(app.log), window.WithLogEvery(50))
	}
	if app.config.Headless {
		return []engine.Option{engine.WithPresenter(app.recorder)}
	}

	app.game = window.NewGame(window.WithLogger(app.log))
	var sink engine.Presenter = app.game
	if app.recorder != nil {
		sink = engine.Presenters{app.game, app.recorder}
	}
	return []engine.Option{engine.WithPresenter(sink), engine.WithInput(app.game)}
}

// runHeadless ウィンドウを開かずに実行する
func (app *Application) runHeadless(ctx context.Context) error {
	if app.config.Frames == 0 && app.config.Timeout == 0 {
		app.log.Warn("Headless run without --frames or --timeout; stop with Ctrl+C")
	}

	if err := app.eng.Run(ctx); err != nil {
		return err
	}
	return app.finishRecording()
}

// runWindow opens the game window. The engine steps from the window's update
// loop so that keyboard sampling, frames and drawing stay in order.
func (app *Application) runWindow(ctx context.Context) error {
	app.eng.Start()
	if err := app.game.Run(ctx, app.eng.RunFrame); err != nil {
		return err
	}
	return app.finishRecording()
}

// finishRecording logs the run digest and writes --dump.
func (app *Application) finishRecording() error {
	if app.recorder == nil {
		return nil
	}
	app.log.Info("Frames recorded", "count", app.recorder.Frames(), "digest", app.recorder.Digest())
	if app.config.DumpPath == "" {
		return nil
	}
	return app.recorder.DumpPNG(app.config.DumpPath)
}
