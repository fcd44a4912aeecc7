// Package media provides playable elements for the signal graph: decoded
// audio streams with play/pause/seek controls, a registry of local file
// handles, and lightweight file probing for ingestion.
package media

import (
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/elitedsp/internal/audio"
)

var (
	// ErrClosed is returned by operations on a closed element.
	ErrClosed = errors.New("media: element closed")
	// ErrUnsupportedFormat is returned when no decoder accepts a source.
	ErrUnsupportedFormat = errors.New("media: unsupported format")
	// ErrReleased is returned when opening a released local handle.
	ErrReleased = errors.New("media: handle released")
)

// Element is a decoded media source. While paused or ended it renders
// silence and its position holds. Element implements graph.Source.
type Element struct {
	mu      sync.Mutex
	handle  Handle
	stream  beep.StreamSeekCloser
	format  beep.Format
	out     beep.Streamer
	playing bool
	ended   bool
	closed  bool
	onEnded func()
}

// NewElement wraps a decoded stream, resampling it to the render rate when
// the formats differ. The element starts paused at position zero.
func NewElement(h Handle, s beep.StreamSeekCloser, format beep.Format) *Element {
	var out beep.Streamer = s
	if format.SampleRate != audio.Rate {
		out = beep.Resample(4, format.SampleRate, audio.Rate, s)
	}
	return &Element{handle: h, stream: s, format: format, out: out}
}

// Handle returns the handle the element was opened from.
func (e *Element) Handle() Handle { return e.handle }

// SetOnEnded registers f to run once each time playback reaches the end.
// f runs on the render goroutine and must not block or call back into the
// graph.
func (e *Element) SetOnEnded(f func()) {
	e.mu.Lock()
	e.onEnded = f
	e.mu.Unlock()
}

// Stream renders the next samples, or silence when not playing.
func (e *Element) Stream(samples [][2]float64) (int, bool) {
	e.mu.Lock()
	if e.closed || !e.playing {
		e.mu.Unlock()
		clear(samples)
		return len(samples), true
	}

	n, ok := e.out.Stream(samples)
	if n < len(samples) {
		clear(samples[max(n, 0):])
	}

	var cb func()
	if !ok || e.stream.Position() >= e.stream.Len() {
		e.playing = false
		e.ended = true
		cb = e.onEnded
	}
	e.mu.Unlock()

	if cb != nil {
		cb()
	}
	return len(samples), true
}

// Err returns the decoder error, if any.
func (e *Element) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream.Err()
}

// Play starts or resumes playback. An element that has ended restarts from
// the beginning.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.ended || e.stream.Position() >= e.stream.Len() {
		if err := e.stream.Seek(0); err != nil {
			return err
		}
	}
	e.ended = false
	e.playing = true
	return nil
}

// Pause halts playback, holding the position.
func (e *Element) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// Seek moves the playback position, clamped to the stream bounds.
func (e *Element) Seek(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	n := e.format.SampleRate.N(d)
	n = min(max(n, 0), e.stream.Len())
	e.ended = false
	return e.stream.Seek(n)
}

// Position returns the current playback position.
func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	return e.format.SampleRate.D(e.stream.Position())
}

// Duration returns the total stream length.
func (e *Element) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	return e.format.SampleRate.D(e.stream.Len())
}

// Playing reports whether the element is rendering audio.
func (e *Element) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Ended reports whether playback reached the end.
func (e *Element) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// Close releases the decoder. Further calls are no-ops.
func (e *Element) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.playing = false
	return e.stream.Close()
}
