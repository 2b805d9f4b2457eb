package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// firstPart is the id of part index 0; --part accepts either an index or an id.
const firstPart = 0x3E80

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	AssetPath  string        // ゲームデータ(MEMLIST.BIN, BANKxx)のディレクトリ
	Part       int           // 開始パートID（0は設定ファイルに従う）
	NoBypass   bool          // コピープロテクション画面を表示する
	Headless   bool          // ヘッドレスモード
	Frames     int           // 実行フレーム数（0は無制限）
	Timeout    time.Duration // タイムアウト時間（0は無制限）
	LogLevel   string        // ログレベル（debug, info, warn, error）
	ConfigPath string        // anotherworld.toml のパス
	StatePath  string        // 起動時に読み込むセーブファイル
	DumpPath   string        // 最後のフレームを書き出すPNGファイル
	ShowHelp   bool          // ヘルプ表示フラグ
}

// boolFlags are the flags that never take a value.
var boolFlags = map[string]bool{
	"h": true, "help": true, "headless": true, "no-bypass": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("anotherworld", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	config := &Config{}

	var timeoutSec int
	var part string
	fs.StringVar(&config.AssetPath, "asset-path", "", "ゲームデータのディレクトリ")
	fs.StringVar(&config.AssetPath, "a", "", "ゲームデータのディレクトリ（短縮形）")
	fs.StringVar(&part, "part", "", "開始パート（インデックス0-9またはID）")
	fs.StringVar(&part, "p", "", "開始パート（短縮形）")
	fs.BoolVar(&config.NoBypass, "no-bypass", false, "プロテクション画面を表示する")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.IntVar(&config.Frames, "frames", 0, "実行フレーム数")
	fs.IntVar(&config.Frames, "f", 0, "実行フレーム数（短縮形）")
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.ConfigPath, "config", "", "設定ファイル")
	fs.StringVar(&config.ConfigPath, "c", "", "設定ファイル（短縮形）")
	fs.StringVar(&config.StatePath, "state", "", "起動時に読み込むセーブファイル")
	fs.StringVar(&config.DumpPath, "dump", "", "最後のフレームのPNG出力先")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if config.AssetPath == "" {
		config.AssetPath = os.Getenv("ASSET_PATH")
	}

	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	if config.Frames < 0 {
		return nil, fmt.Errorf("frames must be non-negative, got %d", config.Frames)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	if part != "" {
		id, err := parsePart(part)
		if err != nil {
			return nil, err
		}
		config.Part = id
	}

	// 位置引数（ゲームデータのディレクトリ）
	if fs.NArg() > 0 {
		config.AssetPath = fs.Arg(0)
	}
	if config.AssetPath == "" {
		config.AssetPath = "."
	}

	return config, nil
}

// parsePart はパートのインデックス(0-9)またはID(0x3E80-)を受け付ける
func parsePart(s string) (int, error) {
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid part %q: %w", s, err)
	}
	switch {
	case n >= 0 && n <= 9:
		return firstPart + int(n), nil
	case n > 16000:
		return int(n), nil
	}
	return 0, fmt.Errorf("invalid part %q: want an index 0-9 or an id above 16000", s)
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") || boolFlags[name] {
				continue
			}
			// 次の引数が値である可能性をチェック（-t 5 のような場合）
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}

	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `anotherworld - polygon engine interpreter

Usage:
  anotherworld [options] [asset-path]

Arguments:
  asset-path    MEMLIST.BIN と BANKxx を含むディレクトリ（デフォルト: カレントディレクトリ）

Options:
  -a, --asset-path <dir>      ゲームデータのディレクトリ
  -p, --part <n|id>           開始パート: インデックス0-9 または 0x3E80 形式のID
  --no-bypass                 コピープロテクション画面を表示する
  --headless                  ヘッドレスモード（ウィンドウなし）
  -f, --frames <n>            nフレーム実行して終了
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  -c, --config <file>         設定ファイル（デフォルト: asset-path/anotherworld.toml）
  --state <file>              起動時にセーブファイルを読み込む
  --dump <file.png>           終了時の画面をPNGで書き出す
  -h, --help                  このヘルプを表示

Keys:
  矢印キー 移動 / Space, Enter アクション / C パスワード画面
  F5 保存 / F7 読込 / PageUp, PageDown スロット選択 / Esc 終了

Environment Variables:
  ASSET_PATH=<dir>            ゲームデータのディレクトリ
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル

Examples:
  anotherworld /path/to/data                  ディレクトリを指定して起動
  anotherworld --part 3 /path/to/data         4番目のパートから開始
  anotherworld --headless -f 600 --dump last.png /path/to/data
`)
}
