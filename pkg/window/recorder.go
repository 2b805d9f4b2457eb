package window

import (
	"encoding/hex"
	"fmt"
	"hash"
	"image/png"
	"io"
	"log/slog"
	"os"

	"github.com/zurustar/anotherworld/pkg/logger"
	"github.com/zurustar/anotherworld/pkg/video"
	"golang.org/x/crypto/blake2b"
)

// Recorder はヘッドレスモードの表示先
// 表示されたフレームごとにBLAKE2bダイジェストを取り、最後のフレームを保持する
type Recorder struct {
	frames  int
	running hash.Hash
	last    []byte
	lastPal video.Palette
	lastSum [blake2b.Size256]byte
	every   int
	log     *slog.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets a custom logger.
func WithRecorderLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.log = log
	}
}

// WithLogEvery logs the frame digest every n frames. 0 disables it.
func WithLogEvery(n int) RecorderOption {
	return func(r *Recorder) {
		r.every = n
	}
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	running, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Sprintf("window: blake2b: %v", err))
	}
	r := &Recorder{
		running: running,
		last:    make([]byte, video.PageSize),
		lastPal: video.Grayscale(),
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Present records one frame.
func (r *Recorder) Present(page []byte, pal video.Palette) error {
	copy(r.last, page)
	r.lastPal = pal
	r.lastSum = FrameDigest(page, pal)
	r.running.Write(r.lastSum[:])
	r.frames++

	if r.every > 0 && r.frames%r.every == 0 {
		r.log.Debug("Frame", "n", r.frames, "digest", hex.EncodeToString(r.lastSum[:8]))
	}
	return nil
}

// Frames returns the number of frames presented.
func (r *Recorder) Frames() int {
	return r.frames
}

// Digest returns the digest over every frame presented so far, in hex.
// Two runs that present the same frames in the same order have equal digests.
func (r *Recorder) Digest() string {
	return hex.EncodeToString(r.running.Sum(nil))
}

// LastDigest returns the digest of the last frame in hex.
func (r *Recorder) LastDigest() string {
	return hex.EncodeToString(r.lastSum[:])
}

// WritePNG encodes the last frame as PNG.
func (r *Recorder) WritePNG(w io.Writer) error {
	return png.Encode(w, PalettedImage(r.last, r.lastPal))
}

// DumpPNG writes the last frame to a PNG file.
func (r *Recorder) DumpPNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WritePNG(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	r.log.Info("Frame written", "path", path, "frames", r.frames)
	return nil
}

// FrameDigest returns the BLAKE2b-256 digest of a page and its palette.
func FrameDigest(page []byte, pal video.Palette) [blake2b.Size256]byte {
	buf := make([]byte, 0, len(page)+len(pal)*3)
	buf = append(buf, page...)
	for _, c := range pal {
		buf = append(buf, c.R, c.G, c.B)
	}
	return blake2b.Sum256(buf)
}
