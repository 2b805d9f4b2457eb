package resource

import (
	"fmt"
	"sort"
)

// Part ids used by the game scripts. Opcode operands above PartThreshold are
// part ids rather than resource ids.
const (
	PartProtection = 0x3E80
	PartIntro      = 0x3E81
	PartWater      = 0x3E82
	PartJail       = 0x3E83
	PartCite       = 0x3E84
	PartArena      = 0x3E85
	PartLuxe       = 0x3E86
	PartFinal      = 0x3E87
	PartPassword   = 0x3E88
	PartPassword2  = 0x3E89

	PartThreshold = 16000
)

// Part is a bundle of resources loaded together. Secondary is 0 when the part
// has no secondary polygon set.
type Part struct {
	ID        int
	Palette   int
	Code      int
	Primary   int
	Secondary int
}

// HasSecondary reports whether the part loads a secondary polygon set.
func (p Part) HasSecondary() bool {
	return p.Secondary != 0
}

func (p Part) String() string {
	return fmt.Sprintf("part 0x%04x", p.ID)
}

// DefaultParts is the part table of the shipped game data.
var DefaultParts = []Part{
	{ID: PartProtection, Palette: 0x14, Code: 0x15, Primary: 0x16},
	{ID: PartIntro, Palette: 0x17, Code: 0x18, Primary: 0x19},
	{ID: PartWater, Palette: 0x1A, Code: 0x1B, Primary: 0x1C, Secondary: 0x11},
	{ID: PartJail, Palette: 0x1D, Code: 0x1E, Primary: 0x1F, Secondary: 0x11},
	{ID: PartCite, Palette: 0x20, Code: 0x21, Primary: 0x22, Secondary: 0x11},
	{ID: PartArena, Palette: 0x23, Code: 0x24, Primary: 0x25},
	{ID: PartLuxe, Palette: 0x26, Code: 0x27, Primary: 0x28, Secondary: 0x11},
	{ID: PartFinal, Palette: 0x29, Code: 0x2A, Primary: 0x2B, Secondary: 0x11},
	{ID: PartPassword, Palette: 0x7D, Code: 0x7E, Primary: 0x7F},
	{ID: PartPassword2, Palette: 0x7D, Code: 0x7E, Primary: 0x7F},
}

// PartTable maps part ids to parts.
type PartTable map[int]Part

// NewPartTable builds a table from parts; later entries replace earlier ones
// with the same id.
func NewPartTable(parts ...[]Part) PartTable {
	t := make(PartTable)
	for _, list := range parts {
		for _, p := range list {
			t[p.ID] = p
		}
	}
	return t
}

// Lookup returns the part with the given id.
func (t PartTable) Lookup(id int) (Part, error) {
	p, ok := t[id]
	if !ok {
		return Part{}, fmt.Errorf("%w: 0x%04x", ErrUnknownPart, id)
	}
	return p, nil
}

// IDs returns the part ids in ascending order.
func (t PartTable) IDs() []int {
	ids := make([]int, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
