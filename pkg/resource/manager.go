package resource

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/remeh/sizedwaitgroup"
	"github.com/zurustar/anotherworld/pkg/logger"
	"github.com/zurustar/anotherworld/pkg/unpack"
	"golang.org/x/crypto/blake2b"
)

// Role is the slot a loaded segment occupies.
type Role int

const (
	RoleCode Role = iota
	RolePalette
	RolePolygonPrimary
	RolePolygonSecondary

	numRoles
)

func (r Role) String() string {
	switch r {
	case RoleCode:
		return "code"
	case RolePalette:
		return "palette"
	case RolePolygonPrimary:
		return "polygon-primary"
	case RolePolygonSecondary:
		return "polygon-secondary"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// kind returns the entry kind a role requires.
func (r Role) kind() Kind {
	switch r {
	case RoleCode:
		return KindBytecode
	case RolePalette:
		return KindPalette
	case RolePolygonPrimary:
		return KindPolygonDataA
	default:
		return KindPolygonDataB
	}
}

// Segment holds the unpacked bytes of one loaded resource.
type Segment struct {
	ID   int
	Kind Kind
	Data []byte
}

// DefaultPreloadWorkers bounds the number of concurrent preload unpacks.
const DefaultPreloadWorkers = 4

// Manager loads bank entries and owns the active part's segments.
type Manager struct {
	index   *Index
	source  ByteSource
	parts   PartTable
	digests map[int][]byte
	log     *slog.Logger

	segments [numRoles]*Segment
	current  int

	workers int
	swg     *sizedwaitgroup.SizedWaitGroup
	cacheMu sync.Mutex
	cache   map[int]preloaded
	failed  error
}

type preloaded struct {
	data []byte
	err  error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithParts replaces the part table.
func WithParts(parts PartTable) Option {
	return func(m *Manager) {
		m.parts = parts
	}
}

// WithDigests sets expected BLAKE2b-256 digests of unpacked resources, keyed
// by resource id. Loading a resource whose digest differs fails.
func WithDigests(digests map[int][]byte) Option {
	return func(m *Manager) {
		m.digests = digests
	}
}

// WithPreloadWorkers bounds concurrent preload unpacking.
func WithPreloadWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewManager creates a manager over a parsed index and a bank source.
func NewManager(index *Index, source ByteSource, opts ...Option) *Manager {
	m := &Manager{
		index:   index,
		source:  source,
		parts:   NewPartTable(DefaultParts),
		log:     logger.GetLogger(),
		workers: DefaultPreloadWorkers,
		cache:   make(map[int]preloaded),
	}
	for _, opt := range opts {
		opt(m)
	}
	swg := sizedwaitgroup.New(m.workers)
	m.swg = &swg
	return m
}

// Index returns the bank index.
func (m *Manager) Index() *Index {
	return m.index
}

// Entry returns the index entry of a resource.
func (m *Manager) Entry(id int) (Entry, error) {
	return m.index.Entry(id)
}

// Parts returns the part table.
func (m *Manager) Parts() PartTable {
	return m.parts
}

// CurrentPart returns the id of the active part, or 0 before the first switch.
func (m *Manager) CurrentPart() int {
	return m.current
}

// Segment returns the segment loaded in role, or nil.
func (m *Manager) Segment(role Role) *Segment {
	return m.segments[role]
}

// LoadResource reads, unpacks and verifies one entry.
func (m *Manager) LoadResource(id int) (*Segment, error) {
	entry, err := m.index.Entry(id)
	if err != nil {
		return nil, err
	}

	m.cacheMu.Lock()
	p, ok := m.cache[id]
	delete(m.cache, id)
	m.cacheMu.Unlock()

	data := p.data
	if ok {
		err = p.err
	} else {
		data, err = m.read(entry)
	}
	if err != nil {
		return nil, fmt.Errorf("load resource 0x%02x: %w", id, err)
	}

	m.log.Debug("Resource loaded",
		"id", fmt.Sprintf("0x%02x", id),
		"kind", entry.Kind,
		"size", humanize.Bytes(uint64(len(data))),
		"packed", entry.Packed(),
		"preloaded", ok)

	return &Segment{ID: id, Kind: entry.Kind, Data: data}, nil
}

func (m *Manager) read(entry Entry) ([]byte, error) {
	raw, err := m.source.ReadAt(entry.Bank, entry.Offset, entry.PackedSize)
	if err != nil {
		return nil, fmt.Errorf("read bank %02x: %w", entry.Bank, err)
	}

	data := raw
	if entry.Packed() {
		data, err = unpack.Unpack(raw, entry.UnpackedSize)
		if err != nil {
			return nil, err
		}
	}

	if want, ok := m.digests[entry.ID]; ok {
		got := blake2b.Sum256(data)
		if !bytes.Equal(got[:], want) {
			return nil, fmt.Errorf("%w: digest %s, want %s", unpack.ErrCorruptData,
				hex.EncodeToString(got[:]), hex.EncodeToString(want))
		}
	}
	return data, nil
}

// Preload unpacks entries in the background. A later LoadResource of the same
// id takes the result (or the error) instead of reading the bank again.
// Unknown ids are ignored here and reported by LoadResource.
func (m *Manager) Preload(ids ...int) {
	for _, id := range ids {
		entry, err := m.index.Entry(id)
		if err != nil {
			continue
		}
		m.cacheMu.Lock()
		_, cached := m.cache[id]
		m.cacheMu.Unlock()
		if cached {
			continue
		}

		m.swg.Add()
		go func(e Entry) {
			defer m.swg.Done()
			data, err := m.read(e)
			m.cacheMu.Lock()
			m.cache[e.ID] = preloaded{data: data, err: err}
			if err != nil && m.failed == nil {
				m.failed = fmt.Errorf("preload resource 0x%02x: %w", e.ID, err)
			}
			m.cacheMu.Unlock()
		}(entry)
	}
}

// Wait blocks until all pending preloads have finished and returns the first
// preload failure since the previous call.
func (m *Manager) Wait() error {
	m.swg.Wait()
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	err := m.failed
	m.failed = nil
	return err
}

// Invalidate drops every preloaded result. A preload failure is still
// reported by the next Wait.
func (m *Manager) Invalidate() {
	m.swg.Wait()
	m.cacheMu.Lock()
	m.cache = make(map[int]preloaded)
	m.cacheMu.Unlock()
}

// SwitchPart loads every resource of a part and then makes them active
// together. When any load fails the previously active segments are kept and
// the error is returned.
func (m *Manager) SwitchPart(id int) error {
	part, err := m.parts.Lookup(id)
	if err != nil {
		return err
	}
	if id == m.current {
		m.log.Debug("Part already active", "part", part)
		return nil
	}

	// let pending preloads of the new part's ids land in the cache
	m.swg.Wait()

	roles := map[Role]int{
		RoleCode:           part.Code,
		RolePalette:        part.Palette,
		RolePolygonPrimary: part.Primary,
	}
	if part.HasSecondary() {
		roles[RolePolygonSecondary] = part.Secondary
	}

	var next [numRoles]*Segment
	for role := RoleCode; role < numRoles; role++ {
		rid, ok := roles[role]
		if !ok {
			continue
		}
		seg, err := m.LoadResource(rid)
		if err != nil {
			return fmt.Errorf("switch to %s: %s: %w", part, role, err)
		}
		if seg.Kind != role.kind() {
			return fmt.Errorf("%w: %s: %s resource 0x%02x is %s", ErrInvalidPart, part, role, rid, seg.Kind)
		}
		next[role] = seg
	}

	m.segments = next
	m.current = id
	m.log.Info("Part switched", "part", part,
		"code", humanize.Bytes(uint64(len(next[RoleCode].Data))),
		"polygons", humanize.Bytes(uint64(len(next[RolePolygonPrimary].Data))))
	return nil
}

// ParseDigests decodes hex BLAKE2b-256 digests keyed by resource id.
func ParseDigests(hexDigests map[int]string) (map[int][]byte, error) {
	out := make(map[int][]byte, len(hexDigests))
	for id, s := range hexDigests {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("digest for resource 0x%02x: %w", id, err)
		}
		if len(b) != blake2b.Size256 {
			return nil, fmt.Errorf("digest for resource 0x%02x: %d bytes, want %d", id, len(b), blake2b.Size256)
		}
		out[id] = b
	}
	return out, nil
}

// Digest returns the BLAKE2b-256 digest of data as hex.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
