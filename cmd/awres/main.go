// awres lists, extracts and disassembles the resources of the game data.
//
// Usage:
//
//	awres [-a dir] list                      List the bank index
//	awres [-a dir] extract [-o dir] [id...]  Unpack entries to files
//	awres [-a dir] disasm <id|part>          Disassemble a bytecode resource
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/remeh/sizedwaitgroup"
	"github.com/zurustar/anotherworld/pkg/config"
	"github.com/zurustar/anotherworld/pkg/logger"
	"github.com/zurustar/anotherworld/pkg/opcode"
	"github.com/zurustar/anotherworld/pkg/resource"
)

var errUsage = errors.New("usage: awres [-a dir] [-l level] list | extract [-o dir] [-j n] [id...] | disasm <id|part>")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// tool holds what every subcommand needs.
type tool struct {
	res *resource.Manager
	out io.Writer
	log *slog.Logger
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("awres", flag.ContinueOnError)
	fs.SetOutput(stderr)
	assetPath := fs.String("a", ".", "game data directory")
	configPath := fs.String("c", "", "config file (default: <dir>/anotherworld.toml)")
	logLevel := fs.String("l", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	log, err := logger.New(stderr, *logLevel)
	if err != nil {
		return err
	}
	t, err := open(*assetPath, *configPath, stdout, log)
	if err != nil {
		return err
	}

	sub, rest := fs.Arg(0), fs.Args()[1:]
	switch sub {
	case "list":
		return t.list()
	case "extract":
		return t.extract(rest)
	case "disasm":
		if len(rest) != 1 {
			return errUsage
		}
		return t.disasm(rest[0])
	default:
		return fmt.Errorf("unknown command %q", sub)
	}
}

func open(assetPath, configPath string, out io.Writer, log *slog.Logger) (*tool, error) {
	var (
		settings *config.Config
		err      error
	)
	if configPath != "" {
		settings, err = config.Load(configPath)
	} else {
		settings, err = config.FindAndLoad(assetPath)
	}
	if err != nil {
		return nil, err
	}

	src := resource.NewDirSource(os.DirFS(assetPath), ".")
	raw, err := src.ReadIndex()
	if err != nil {
		return nil, err
	}
	idx, err := resource.ParseIndex(raw)
	if err != nil {
		return nil, err
	}
	digests, err := settings.Digests()
	if err != nil {
		return nil, err
	}
	res := resource.NewManager(idx, src,
		resource.WithLogger(log),
		resource.WithParts(settings.PartTable()),
		resource.WithDigests(digests),
		resource.WithPreloadWorkers(settings.Engine.PreloadWorkers))
	return &tool{res: res, out: out, log: log}, nil
}

// list prints the bank index as a table.
func (t *tool) list() error {
	tw := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "id\tkind\tbank\toffset\tpacked\tsize\t")

	var packed, unpacked uint64
	for _, e := range t.res.Index().Entries() {
		fmt.Fprintf(tw, "0x%02x\t%s\t%02x\t%d\t%s\t%s\t\n",
			e.ID, e.Kind, e.Bank, e.Offset,
			humanize.Bytes(uint64(e.PackedSize)), humanize.Bytes(uint64(e.UnpackedSize)))
		packed += uint64(e.PackedSize)
		unpacked += uint64(e.UnpackedSize)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(t.out, "%d entries, %s packed, %s unpacked\n",
		t.res.Index().Len(), humanize.Bytes(packed), humanize.Bytes(unpacked))
	return err
}

// extract unpacks entries into files named <id>.<kind>.bin and prints their
// BLAKE2b digests. With no ids every non-empty entry is extracted.
func (t *tool) extract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	outDir := fs.String("o", ".", "output directory")
	workers := fs.Int("j", resource.DefaultPreloadWorkers, "concurrent unpacks")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if *workers <= 0 {
		return fmt.Errorf("extract: -j must be positive")
	}

	var ids []int
	for _, s := range fs.Args() {
		id, err := config.ParseID(s)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		for _, e := range t.res.Index().Entries() {
			if e.UnpackedSize > 0 {
				ids = append(ids, e.ID)
			}
		}
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		firstErr error
		digests  = make(map[int]string)
	)
	swg := sizedwaitgroup.New(*workers)
	for _, id := range ids {
		swg.Add()
		go func(id int) {
			defer swg.Done()
			digest, err := t.extractOne(*outDir, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			digests[id] = digest
		}(id)
	}
	swg.Wait()

	sort.Ints(ids)
	for _, id := range ids {
		if d, ok := digests[id]; ok {
			fmt.Fprintf(t.out, "0x%02x %s\n", id, d)
		}
	}
	return firstErr
}

func (t *tool) extractOne(dir string, id int) (string, error) {
	seg, err := t.res.LoadResource(id)
	if err != nil {
		return "", err
	}
	name := filepath.Join(dir, fmt.Sprintf("%02x.%s.bin", id, seg.Kind))
	if err := os.WriteFile(name, seg.Data, 0o644); err != nil {
		return "", err
	}
	t.log.Debug("Extracted", "id", fmt.Sprintf("0x%02x", id), "path", name, "size", humanize.Bytes(uint64(len(seg.Data))))
	return resource.Digest(seg.Data), nil
}

// disasm disassembles a bytecode resource. A part id selects the part's code.
func (t *tool) disasm(arg string) error {
	id, err := config.ParseID(arg)
	if err != nil {
		return err
	}
	if id > resource.PartThreshold {
		part, err := t.res.Parts().Lookup(id)
		if err != nil {
			return err
		}
		id = part.Code
	}

	seg, err := t.res.LoadResource(id)
	if err != nil {
		return err
	}
	if seg.Kind != resource.KindBytecode {
		return fmt.Errorf("resource 0x%02x is %s, not bytecode", id, seg.Kind)
	}
	return opcode.Disassemble(t.out, seg.Data)
}
