package resource

import (
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/zurustar/anotherworld/pkg/fileutil"
)

// IndexFileName is the name of the bank index inside an asset directory.
const IndexFileName = "memlist.bin"

// ByteSource reads raw bank bytes. Implementations must be safe for
// concurrent use; preloading reads from several goroutines.
type ByteSource interface {
	ReadAt(bank int, offset int64, size int) ([]byte, error)
}

// BankFileName returns the file name of bank n.
func BankFileName(bank int) string {
	return fmt.Sprintf("bank%02x", bank)
}

// DirSource reads banks from a directory of bankXX files.
type DirSource struct {
	fsys fs.FS
	dir  string

	mu    sync.Mutex
	paths map[int]string
}

// NewDirSource creates a source over dir inside fsys. Use os.DirFS for a
// directory on disk.
func NewDirSource(fsys fs.FS, dir string) *DirSource {
	return &DirSource{fsys: fsys, dir: dir, paths: make(map[int]string)}
}

// ReadIndex reads the raw bank index from the directory.
func (s *DirSource) ReadIndex() ([]byte, error) {
	return fileutil.ReadFileCaseInsensitiveFS(s.fsys, s.dir, IndexFileName)
}

func (s *DirSource) ReadAt(bank int, offset int64, size int) ([]byte, error) {
	p, err := s.bankPath(bank)
	if err != nil {
		return nil, err
	}

	f, err := s.fsys.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size)
	if ra, ok := f.(io.ReaderAt); ok {
		if _, err := ra.ReadAt(buf, offset); err != nil {
			return nil, fmt.Errorf("read %s at %d: %w", p, offset, err)
		}
		return buf, nil
	}

	// fs.File without ReaderAt: seek or skip
	if sk, ok := f.(io.Seeker); ok {
		if _, err := sk.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek %s to %d: %w", p, offset, err)
		}
	} else if _, err := io.CopyN(io.Discard, f, offset); err != nil {
		return nil, fmt.Errorf("skip %s to %d: %w", p, offset, err)
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read %s at %d: %w", p, offset, err)
	}
	return buf, nil
}

func (s *DirSource) bankPath(bank int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.paths[bank]; ok {
		return p, nil
	}
	p, err := fileutil.FindFileCaseInsensitiveFS(s.fsys, s.dir, BankFileName(bank))
	if err != nil {
		return "", err
	}
	s.paths[bank] = p
	return p, nil
}

// MemorySource serves banks held in memory.
type MemorySource map[int][]byte

func (m MemorySource) ReadAt(bank int, offset int64, size int) ([]byte, error) {
	data, ok := m[bank]
	if !ok {
		return nil, fmt.Errorf("bank %02x: %w", bank, fs.ErrNotExist)
	}
	if offset < 0 || offset+int64(size) > int64(len(data)) {
		return nil, fmt.Errorf("bank %02x: range %d+%d beyond %d bytes: %w", bank, offset, size, len(data), io.ErrUnexpectedEOF)
	}
	out := make([]byte, size)
	copy(out, data[offset:])
	return out, nil
}
