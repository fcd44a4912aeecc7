package graph

import (
	"math"
	"time"
)

// Param is a sample-clocked automatable value. SetTargetAtTime starts an
// exponential approach toward a target with the given time constant, measured
// in rendered samples rather than wall-clock time.
type Param struct {
	value  float64
	target float64
	coeff  float64 // per-sample retention factor, 0 = jump
	sr     float64
}

// NewParam creates a parameter holding v at sample rate sr.
func NewParam(v, sr float64) *Param {
	return &Param{value: v, target: v, sr: sr}
}

// SetValue jumps to v immediately, cancelling any ramp in progress.
func (p *Param) SetValue(v float64) {
	p.value = v
	p.target = v
	p.coeff = 0
}

// SetTargetAtTime ramps toward target with time constant tau. After one tau
// the value has covered ~63% of the distance, after five taus ~99%.
func (p *Param) SetTargetAtTime(target float64, tau time.Duration) {
	if tau <= 0 {
		p.SetValue(target)
		return
	}
	p.target = target
	p.coeff = math.Exp(-1 / (tau.Seconds() * p.sr))
}

// Value returns the current value.
func (p *Param) Value() float64 { return p.value }

// Target returns the value the parameter is approaching.
func (p *Param) Target() float64 { return p.target }

// Settled reports whether the parameter has reached its target.
func (p *Param) Settled() bool { return p.value == p.target }

// Next returns the value for the current sample and advances by one sample.
func (p *Param) Next() float64 {
	v := p.value
	p.Advance(1)
	return v
}

// Advance moves the ramp forward by n samples.
func (p *Param) Advance(n int) {
	if p.value == p.target {
		return
	}
	if p.coeff == 0 {
		p.value = p.target
		return
	}
	k := p.coeff
	if n != 1 {
		k = math.Pow(p.coeff, float64(n))
	}
	p.value = p.target + (p.value-p.target)*k
	if math.Abs(p.value-p.target) < 1e-9 {
		p.value = p.target
	}
}
