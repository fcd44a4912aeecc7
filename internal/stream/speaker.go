package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/audio"
)

// ErrNoAudioDevice is returned when the local output device cannot be opened.
var ErrNoAudioDevice = errors.New("no audio output device")

// Speaker plays the broadcast on the local sound card.
type Speaker struct {
	broadcaster *Broadcaster
	buffer      time.Duration
	log         *logrus.Entry
}

// NewSpeaker creates a local output with the given device buffer.
func NewSpeaker(b *Broadcaster, buffer time.Duration, log *logrus.Entry) *Speaker {
	return &Speaker{broadcaster: b, buffer: buffer, log: log}
}

// Run opens the device and plays until ctx is cancelled.
func (s *Speaker) Run(ctx context.Context) error {
	if err := speaker.Init(audio.Rate, audio.Rate.N(s.buffer)); err != nil {
		return fmt.Errorf("%w: %v", ErrNoAudioDevice, err)
	}

	l := s.broadcaster.Subscribe("speaker")
	f := newFeed(l)
	speaker.Play(f)
	s.log.WithField("buffer", s.buffer).Info("Speaker output started")

	<-ctx.Done()
	speaker.Clear()
	s.broadcaster.Unsubscribe(l)
	s.log.WithFields(logrus.Fields{
		"dropped":   l.Dropped(),
		"underruns": f.Underruns(),
	}).Info("Speaker output stopped")
	return nil
}

// feed adapts a broadcast listener to a beep.Streamer. The device pulls on
// its own schedule; when no frame is ready it gets silence instead of
// waiting on the render clock.
type feed struct {
	l         *Listener
	pending   [][2]float64
	underruns atomic.Int64
}

func newFeed(l *Listener) *feed {
	return &feed{l: l}
}

func (f *feed) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(f.pending) == 0 {
			select {
			case <-f.l.Done():
				if filled == 0 {
					return 0, false
				}
				return filled, true
			default:
			}
			select {
			case frame := <-f.l.C:
				f.pending = audio.FromInt16(frame)
			default:
				f.underruns.Add(1)
				clear(samples[filled:])
				return len(samples), true
			}
		}
		n := copy(samples[filled:], f.pending)
		f.pending = f.pending[n:]
		filled += n
	}
	return filled, true
}

func (f *feed) Err() error { return nil }

// Underruns returns how many times the device found nothing to play.
func (f *feed) Underruns() int64 { return f.underruns.Load() }

var _ beep.Streamer = (*feed)(nil)
