package graph

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

// Analyser defaults. The 256-point transform yields 128 frequency bins.
const (
	FFTSize           = 256
	FrequencyBinCount = FFTSize / 2
	MinDecibels       = -100.0
	MaxDecibels       = -30.0
	SmoothingConstant = 0.8
)

// Analyser captures the most recent output samples and exposes a smoothed
// magnitude spectrum as bytes. It is safe for concurrent use: the graph
// writes on the render path while readers poll from other goroutines.
type Analyser struct {
	mu     sync.Mutex
	ring   [FFTSize]float64
	pos    int
	window [FFTSize]float64
	prev   [FrequencyBinCount]float64 // smoothed linear magnitudes
	buf    []float64
}

// NewAnalyser creates an analyser with a Blackman window.
func NewAnalyser() *Analyser {
	a := &Analyser{buf: make([]float64, FFTSize)}
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a2 := alpha / 2
	for i := 0; i < FFTSize; i++ {
		x := 2 * math.Pi * float64(i) / FFTSize
		a.window[i] = a0 - 0.5*math.Cos(x) + a2*math.Cos(2*x)
	}
	return a
}

// Capture stores a mono mix of samples into the ring buffer.
func (a *Analyser) Capture(samples [][2]float64) {
	a.mu.Lock()
	for i := range samples {
		a.ring[a.pos] = (samples[i][0] + samples[i][1]) / 2
		a.pos = (a.pos + 1) % FFTSize
	}
	a.mu.Unlock()
}

// FrequencyBinCount returns the number of bins ByteFrequencyData can fill.
func (a *Analyser) FrequencyBinCount() int { return FrequencyBinCount }

// ByteFrequencyData writes the current spectrum into dst, one byte per bin,
// lowest frequency first. Each byte maps [MinDecibels, MaxDecibels] onto
// 0..255. At most FrequencyBinCount bytes are written.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < FFTSize; i++ {
		a.buf[i] = a.ring[(a.pos+i)%FFTSize] * a.window[i]
	}
	spectrum := fft.FFTReal(a.buf)

	n := min(len(dst), FrequencyBinCount)
	for k := 0; k < FrequencyBinCount; k++ {
		mag := cmplx.Abs(spectrum[k]) / FFTSize
		a.prev[k] = SmoothingConstant*a.prev[k] + (1-SmoothingConstant)*mag
		if k >= n {
			continue
		}
		dst[k] = toByte(a.prev[k])
	}
}

func toByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := 255 * (db - MinDecibels) / (MaxDecibels - MinDecibels)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	}
	return byte(scaled)
}
