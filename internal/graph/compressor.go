package graph

import (
	"math"
	"time"
)

// Compressor is a feed-forward dynamics compressor with a soft knee. Level
// detection is peak across channels; gain reduction follows separate attack
// and release time constants.
type Compressor struct {
	Threshold float64 // dB
	Knee      float64 // dB
	Ratio     *Param
	Attack    time.Duration
	Release   time.Duration

	sr       float64
	envDB    float64 // current gain reduction, <= 0
	atkCoeff float64
	relCoeff float64
}

// Default dynamics settings.
const (
	DefaultThreshold = -24.0
	DefaultKnee      = 30.0
	DefaultRatio     = 3.0
	DefaultAttack    = 3 * time.Millisecond
	DefaultRelease   = 250 * time.Millisecond
)

// NewCompressor creates a compressor with the default dynamics settings.
func NewCompressor(sr float64) *Compressor {
	c := &Compressor{
		Threshold: DefaultThreshold,
		Knee:      DefaultKnee,
		Ratio:     NewParam(DefaultRatio, sr),
		Attack:    DefaultAttack,
		Release:   DefaultRelease,
		sr:        sr,
	}
	c.atkCoeff = timeCoeff(c.Attack, sr)
	c.relCoeff = timeCoeff(c.Release, sr)
	return c
}

func timeCoeff(d time.Duration, sr float64) float64 {
	if d <= 0 {
		return 0
	}
	return math.Exp(-1 / (d.Seconds() * sr))
}

// Curve returns the static output level in dB for an input level in dB.
func (c *Compressor) Curve(inDB float64) float64 {
	ratio := c.Ratio.Value()
	if ratio < 1 {
		ratio = 1
	}
	over := inDB - c.Threshold
	half := c.Knee / 2
	switch {
	case c.Knee > 0 && math.Abs(over) <= half:
		x := over + half
		return inDB + (1/ratio-1)*x*x/(2*c.Knee)
	case over > half:
		return c.Threshold + over/ratio
	default:
		return inDB
	}
}

// Reduction returns the gain reduction currently applied, in dB (<= 0).
func (c *Compressor) Reduction() float64 { return c.envDB }

// Process compresses one render quantum in place.
func (c *Compressor) Process(samples [][2]float64) {
	for i := range samples {
		level := math.Max(math.Abs(samples[i][0]), math.Abs(samples[i][1]))
		target := 0.0
		if level > 1e-9 {
			inDB := 20 * math.Log10(level)
			target = c.Curve(inDB) - inDB
		}

		coeff := c.relCoeff
		if target < c.envDB {
			coeff = c.atkCoeff
		}
		c.envDB = target + (c.envDB-target)*coeff

		c.Ratio.Advance(1)
		g := math.Pow(10, c.envDB/20)
		samples[i][0] *= g
		samples[i][1] *= g
	}
}
