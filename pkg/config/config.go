// Package config handles the anotherworld.toml engine configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/zurustar/anotherworld/pkg/resource"
)

// FileName is the configuration file looked up next to the game data.
const FileName = "anotherworld.toml"

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents an anotherworld.toml file.
type Config struct {
	// StringsFile is an extra string table, one "id text" pair per line.
	StringsFile string `toml:"strings_file"`

	// StringsEncoding names the character set of StringsFile.
	StringsEncoding string `toml:"strings_encoding"`

	Engine    Engine            `toml:"engine"`
	Parts     []Part            `toml:"parts"`
	Checksums map[string]string `toml:"checksums"`
	Strings   map[string]string `toml:"strings"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Engine configures the frame driver.
type Engine struct {
	StartPart      int    `toml:"start_part"`
	Bypass         bool   `toml:"bypass"`
	FPS            int    `toml:"fps"`
	Seed           *int   `toml:"seed"`
	StepBudget     int    `toml:"step_budget"`
	PreloadWorkers int    `toml:"preload_workers"`
	StateDir       string `toml:"state_dir"`
}

// Part overrides or adds one entry of the part table.
type Part struct {
	ID        int `toml:"id"`
	Palette   int `toml:"palette"`
	Code      int `toml:"code"`
	Primary   int `toml:"primary"`
	Secondary int `toml:"secondary"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine: Engine{
			StartPart:      resource.PartIntro,
			Bypass:         true,
			FPS:            50,
			StepBudget:     100000,
			PreloadWorkers: resource.DefaultPreloadWorkers,
		},
	}
}

// Load parses a configuration file. Keys missing from the file keep their
// default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	if c.StringsFile != "" && !filepath.IsAbs(c.StringsFile) {
		c.StringsFile = filepath.Join(filepath.Dir(path), c.StringsFile)
	}
	if c.Engine.StateDir != "" && !filepath.IsAbs(c.Engine.StateDir) {
		c.Engine.StateDir = filepath.Join(filepath.Dir(path), c.Engine.StateDir)
	}
	return c, nil
}

// Parse decodes configuration text over the defaults and validates it.
func Parse(text string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(text, c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad looks for anotherworld.toml in each directory in turn and loads
// the first one found. Returns the defaults if there is none.
func FindAndLoad(dirs ...string) (*Config, error) {
	for _, dir := range dirs {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// Validate checks value ranges and the part table.
func (c *Config) Validate() error {
	e := c.Engine
	if e.FPS <= 0 {
		return fmt.Errorf("%w: fps %d", ErrInvalidConfig, e.FPS)
	}
	if e.StepBudget <= 0 {
		return fmt.Errorf("%w: step_budget %d", ErrInvalidConfig, e.StepBudget)
	}
	if e.PreloadWorkers <= 0 {
		return fmt.Errorf("%w: preload_workers %d", ErrInvalidConfig, e.PreloadWorkers)
	}
	if e.Seed != nil && (*e.Seed < math.MinInt16 || *e.Seed > math.MaxInt16) {
		return fmt.Errorf("%w: seed %d does not fit 16 bits", ErrInvalidConfig, *e.Seed)
	}
	for _, p := range c.Parts {
		if p.ID <= resource.PartThreshold {
			return fmt.Errorf("%w: part id 0x%04x is not above %d", ErrInvalidConfig, p.ID, resource.PartThreshold)
		}
	}
	if _, err := c.PartTable().Lookup(e.StartPart); err != nil {
		return fmt.Errorf("%w: start_part: %v", ErrInvalidConfig, err)
	}
	for k := range c.Checksums {
		if _, err := ParseID(k); err != nil {
			return fmt.Errorf("%w: checksums: %v", ErrInvalidConfig, err)
		}
	}
	for k := range c.Strings {
		if _, err := ParseID(k); err != nil {
			return fmt.Errorf("%w: strings: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// PartTable returns the built-in parts with the configured overrides applied.
func (c *Config) PartTable() resource.PartTable {
	extra := make([]resource.Part, len(c.Parts))
	for i, p := range c.Parts {
		extra[i] = resource.Part{
			ID:        p.ID,
			Palette:   p.Palette,
			Code:      p.Code,
			Primary:   p.Primary,
			Secondary: p.Secondary,
		}
	}
	return resource.NewPartTable(resource.DefaultParts, extra)
}

// Digests returns the expected resource digests keyed by resource id.
func (c *Config) Digests() (map[int][]byte, error) {
	byID, err := idMap(c.Checksums)
	if err != nil {
		return nil, err
	}
	return resource.ParseDigests(byID)
}

// SeedValue returns the configured random seed.
func (e Engine) SeedValue() (int16, bool) {
	if e.Seed == nil {
		return 0, false
	}
	return int16(*e.Seed), true
}

// ParseID parses a decimal or 0x-prefixed id.
func ParseID(s string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad id %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("bad id %q: negative", s)
	}
	return int(n), nil
}

// idMap re-keys m by parsed id.
func idMap(m map[string]string) (map[int]string, error) {
	byID := make(map[int]string, len(m))
	for k, v := range m {
		id, err := ParseID(k)
		if err != nil {
			return nil, err
		}
		byID[id] = v
	}
	return byID, nil
}
