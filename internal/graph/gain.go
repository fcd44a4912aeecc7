package graph

// Gain scales its input by a per-sample automatable factor.
type Gain struct {
	Gain *Param
}

// NewGain creates a gain node at v.
func NewGain(v, sr float64) *Gain {
	return &Gain{Gain: NewParam(v, sr)}
}

// Process scales one render quantum in place.
func (g *Gain) Process(samples [][2]float64) {
	if g.Gain.Settled() {
		v := g.Gain.Value()
		if v == 1 {
			return
		}
		for i := range samples {
			samples[i][0] *= v
			samples[i][1] *= v
		}
		return
	}
	for i := range samples {
		v := g.Gain.Next()
		samples[i][0] *= v
		samples[i][1] *= v
	}
}

// Accumulate adds src scaled by the gain into dst. Both slices must have the
// same length.
func (g *Gain) Accumulate(dst, src [][2]float64) {
	for i := range src {
		v := g.Gain.Next()
		dst[i][0] += src[i][0] * v
		dst[i][1] += src[i][1] * v
	}
}
