// Package audio holds the engine's PCM format, sample conversion helpers and the
// real-time render clock that drives the signal graph.
package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Rate is SampleRate as a beep sample rate.
const Rate = beep.SampleRate(SampleRate)

// Format is the engine's render format.
var Format = beep.Format{SampleRate: Rate, NumChannels: Channels, Precision: BitDepth / 8}
