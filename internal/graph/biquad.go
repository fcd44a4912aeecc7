package graph

import "math"

// FilterType selects the biquad response.
type FilterType int

const (
	LowShelf FilterType = iota
	Peaking
	HighShelf
)

func (t FilterType) String() string {
	switch t {
	case LowShelf:
		return "lowshelf"
	case HighShelf:
		return "highshelf"
	default:
		return "peaking"
	}
}

// Biquad is a second-order IIR filter per the Audio EQ Cookbook. Its gain (dB)
// is a Param updated once per render quantum; coefficients are recomputed
// only when the gain moves.
type Biquad struct {
	typ  FilterType
	freq float64
	q    float64
	sr   float64
	Gain *Param

	// Per-channel filter state
	x1, x2 [2]float64
	y1, y2 [2]float64
	// Cached coefficients
	lastGain           float64
	b0, b1, b2, a1, a2 float64
	inited             bool
}

// NewBiquad creates a filter at freq Hz. Frequencies at or above Nyquist are
// pulled just below it.
func NewBiquad(typ FilterType, freq, q, sr float64) *Biquad {
	if nyq := sr / 2; freq >= nyq {
		freq = nyq * 0.99
	}
	return &Biquad{typ: typ, freq: freq, q: q, sr: sr, Gain: NewParam(0, sr)}
}

// Type returns the filter response type.
func (b *Biquad) Type() FilterType { return b.typ }

// Frequency returns the center/corner frequency in Hz.
func (b *Biquad) Frequency() float64 { return b.freq }

func (b *Biquad) calcCoeffs(dB float64) {
	if b.inited && dB == b.lastGain {
		return
	}
	b.lastGain = dB
	b.inited = true

	a := math.Pow(10, dB/40)
	w0 := 2 * math.Pi * b.freq / b.sr
	sinW0 := math.Sin(w0)
	cosW0 := math.Cos(w0)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.typ {
	case Peaking:
		alpha := sinW0 / (2 * b.q)
		b0 = 1 + alpha*a
		b1 = -2 * cosW0
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosW0
		a2 = 1 - alpha/a
	case LowShelf:
		// shelf slope S = 1
		alpha := sinW0 / 2 * math.Sqrt2
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosW0 + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW0)
		b2 = a * ((a + 1) - (a-1)*cosW0 - sq)
		a0 = (a + 1) + (a-1)*cosW0 + sq
		a1 = -2 * ((a - 1) + (a+1)*cosW0)
		a2 = (a + 1) + (a-1)*cosW0 - sq
	case HighShelf:
		alpha := sinW0 / 2 * math.Sqrt2
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosW0 + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW0)
		b2 = a * ((a + 1) + (a-1)*cosW0 - sq)
		a0 = (a + 1) - (a-1)*cosW0 + sq
		a1 = 2 * ((a - 1) - (a+1)*cosW0)
		a2 = (a + 1) - (a-1)*cosW0 - sq
	}

	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = a1 / a0
	b.a2 = a2 / a0
}

// Process filters one render quantum in place.
func (b *Biquad) Process(samples [][2]float64) {
	dB := b.Gain.Value()
	b.Gain.Advance(len(samples))

	// A flat filter is the identity; skip it once the gain has settled at 0.
	if dB == 0 && b.Gain.Settled() {
		b.x1, b.x2, b.y1, b.y2 = [2]float64{}, [2]float64{}, [2]float64{}, [2]float64{}
		return
	}

	b.calcCoeffs(dB)

	for i := range samples {
		for ch := 0; ch < 2; ch++ {
			x := samples[i][ch]
			y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
			b.x2[ch] = b.x1[ch]
			b.x1[ch] = x
			b.y2[ch] = b.y1[ch]
			b.y1[ch] = y
			samples[i][ch] = y
		}
	}
}

// Response returns the filter's magnitude response in dB at freq for its
// current gain.
func (b *Biquad) Response(freq float64) float64 {
	b.calcCoeffs(b.Gain.Value())
	w := 2 * math.Pi * freq / b.sr
	// H(e^jw) = (b0 + b1 z^-1 + b2 z^-2) / (1 + a1 z^-1 + a2 z^-2)
	num := complex(b.b0, 0) + complex(b.b1, 0)*cexp(-w) + complex(b.b2, 0)*cexp(-2*w)
	den := complex(1, 0) + complex(b.a1, 0)*cexp(-w) + complex(b.a2, 0)*cexp(-2*w)
	h := num / den
	return 20 * math.Log10(math.Hypot(real(h), imag(h)))
}

func cexp(w float64) complex128 {
	return complex(math.Cos(w), math.Sin(w))
}
