package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"
	"github.com/zurustar/anotherworld/pkg/input"
	"github.com/zurustar/anotherworld/pkg/resource"
	"github.com/zurustar/anotherworld/pkg/video"
	"github.com/zurustar/anotherworld/pkg/vm"
)

// SnapshotVersion is the format version written into every snapshot.
const SnapshotVersion = 1

var (
	// ErrBadSnapshot is returned when a snapshot cannot be restored.
	ErrBadSnapshot = errors.New("bad snapshot")

	// ErrEmptySlot is returned when loading a slot that was never saved.
	ErrEmptySlot = errors.New("empty save slot")
)

// cborEncMode encodes snapshots canonically so equal states give equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("engine: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is everything needed to resume a game: the active part, the
// variable table, every task and the video pages.
type Snapshot struct {
	Version int          `cbor:"1,keyasint"`
	Part    int          `cbor:"2,keyasint"`
	Vars    vm.Variables `cbor:"3,keyasint"`
	Tasks   []vm.Task    `cbor:"4,keyasint"`
	Video   video.State  `cbor:"5,keyasint"`
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return &s, nil
}

// Snapshot captures the current state.
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		Part:    e.res.CurrentPart(),
		Vars:    e.vars,
		Tasks:   e.vm.Tasks(),
		Video:   e.video.Snapshot(),
	}
}

// Restore replaces the current state with s. The snapshot is validated before
// anything changes; the part is switched first when it differs.
func (e *Engine) Restore(s *Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrBadSnapshot, s.Version, SnapshotVersion)
	}
	part, err := e.res.Parts().Lookup(s.Part)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if err := vm.ValidateTasks(s.Tasks); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if err := s.Video.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if s.Video.PaletteID >= 0 {
		if err := e.checkPalette(part, s.Video.PaletteID); err != nil {
			return err
		}
	}

	if s.Part != e.res.CurrentPart() {
		if err := e.switchPart(s.Part); err != nil {
			return err
		}
	}
	if err := e.vm.RestoreTasks(s.Tasks); err != nil {
		return err
	}
	if err := e.video.Restore(s.Video); err != nil {
		return err
	}
	e.vars = s.Vars
	e.vm.RequestPart(0)
	return nil
}

// checkPalette decodes palette n of the part's palette resource.
func (e *Engine) checkPalette(part resource.Part, n int) error {
	var data []byte
	if part.ID == e.res.CurrentPart() {
		data = e.res.Segment(resource.RolePalette).Data
	} else {
		seg, err := e.res.LoadResource(part.Palette)
		if err != nil {
			return err
		}
		data = seg.Data
	}
	if _, err := video.DecodePalette(data, n); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return nil
}

// SaveState writes the current state to w.
func (e *Engine) SaveState(w io.Writer) error {
	data, err := MarshalSnapshot(e.Snapshot())
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// LoadState reads a state written by SaveState and restores it.
func (e *Engine) LoadState(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	return e.Restore(s)
}

// LoadStateFile restores a state file.
func (e *Engine) LoadStateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := e.LoadState(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	e.log.Info("State loaded", "path", path, "part", fmt.Sprintf("0x%04x", e.res.CurrentPart()))
	return nil
}

// SlotFileName returns the file name of a save slot.
func SlotFileName(slot int) string {
	return fmt.Sprintf("anotherworld.s%02d.state", slot)
}

// SaveSlot stores the current state in a slot.
func (e *Engine) SaveSlot(slot int) error {
	data, err := MarshalSnapshot(e.Snapshot())
	if err != nil {
		return err
	}
	if e.stateDir != "" {
		path := filepath.Join(e.stateDir, SlotFileName(slot))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	e.slots[slot] = data
	e.log.Info("State saved", "slot", slot, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// LoadSlot restores the state stored in a slot.
func (e *Engine) LoadSlot(slot int) error {
	data, ok := e.slots[slot]
	if !ok && e.stateDir != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(e.stateDir, SlotFileName(slot)))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		ok = err == nil
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrEmptySlot, slot)
	}
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	if err := e.Restore(s); err != nil {
		return err
	}
	e.log.Info("State loaded", "slot", slot, "part", fmt.Sprintf("0x%04x", s.Part))
	return nil
}

// handleSlots serves the save and load keys. A failed load is logged and
// the game continues.
func (e *Engine) handleSlots(in input.State) error {
	if in.Save {
		if err := e.SaveSlot(in.Slot); err != nil {
			return fmt.Errorf("save slot %d: %w", in.Slot, err)
		}
	}
	if in.Load {
		if err := e.LoadSlot(in.Slot); err != nil {
			e.log.Warn("Cannot load state", "slot", in.Slot, "error", err)
		}
	}
	return nil
}
