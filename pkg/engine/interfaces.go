package engine

import (
	"log/slog"

	"github.com/zurustar/anotherworld/pkg/input"
	"github.com/zurustar/anotherworld/pkg/video"
)

// AudioSink receives the sound and music triggers of the scripts.
// Playback itself is left to the implementation.
type AudioSink interface {
	PlaySound(id, freq, volume, channel int)
	PlayMusic(id, delay, position int)
}

// InputReader は1フレームに1回サンプリングされる入力を返す
type InputReader interface {
	ReadInput() input.State
}

// Presenter receives the front page after every page flip.
// page is valid only for the duration of the call.
type Presenter interface {
	Present(page []byte, pal video.Palette) error
}

// LogAudio is an AudioSink that logs every trigger at debug level.
type LogAudio struct {
	Log *slog.Logger
}

func (a LogAudio) PlaySound(id, freq, volume, channel int) {
	a.logger().Debug("Sound", "id", id, "freq", freq, "volume", volume, "channel", channel)
}

func (a LogAudio) PlayMusic(id, delay, position int) {
	a.logger().Debug("Music", "id", id, "delay", delay, "position", position)
}

func (a LogAudio) logger() *slog.Logger {
	if a.Log == nil {
		return slog.Default()
	}
	return a.Log
}

// noInput reports no keys held.
type noInput struct{}

func (noInput) ReadInput() input.State { return input.State{} }

// noPresenter discards frames.
type noPresenter struct{}

func (noPresenter) Present([]byte, video.Palette) error { return nil }

// Presenters fans a frame out to several presenters in order. The first
// error stops the fan-out.
type Presenters []Presenter

func (ps Presenters) Present(page []byte, pal video.Palette) error {
	for _, p := range ps {
		if err := p.Present(page, pal); err != nil {
			return err
		}
	}
	return nil
}
