package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zurustar/anotherworld/pkg/video"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// 文字列ファイルで使える文字コード
var encodings = map[string]encoding.Encoding{
	"shift_jis":   japanese.ShiftJIS,
	"sjis":        japanese.ShiftJIS,
	"cp437":       charmap.CodePage437,
	"cp850":       charmap.CodePage850,
	"latin1":      charmap.ISO8859_1,
	"iso-8859-1":  charmap.ISO8859_1,
	"iso-8859-15": charmap.ISO8859_15,
	"macintosh":   charmap.Macintosh,
}

// LookupEncoding returns the encoding for a charset name. An empty name or
// "utf-8" means no conversion and returns nil. Names not in the built-in list
// are resolved with the WHATWG index.
func LookupEncoding(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	if enc, ok := encodings[n]; ok {
		return enc, nil
	}
	enc, err := htmlindex.Get(n)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidConfig, name)
	}
	return enc, nil
}

// ParseStrings reads a string table. Each non-blank line not starting with
// '#' holds an id, whitespace and the text; "\n" in the text is a line break.
// enc may be nil for UTF-8 input.
func ParseStrings(r io.Reader, enc encoding.Encoding) (video.StringTable, error) {
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}

	table := make(video.StringTable)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimLeft(strings.TrimRight(sc.Text(), "\r"), " \t")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value := text, ""
		if i := strings.IndexAny(text, " \t"); i >= 0 {
			key, value = text[:i], text[i+1:]
		}
		id, err := ParseID(key)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		table[id] = strings.ReplaceAll(strings.TrimLeft(value, " \t"), `\n`, "\n")
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// StringTable returns the built-in strings overridden by the strings file and
// then by the [strings] table.
func (c *Config) StringTable() (video.StringTable, error) {
	table := video.DefaultStrings()

	if c.StringsFile != "" {
		enc, err := LookupEncoding(c.StringsEncoding)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(c.StringsFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", c.StringsFile, err)
		}
		fromFile, err := ParseStrings(bytes.NewReader(data), enc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.StringsFile, err)
		}
		table = table.Merge(fromFile)
	}

	inline, err := idMap(c.Strings)
	if err != nil {
		return nil, err
	}
	return table.Merge(video.StringTable(inline)), nil
}
