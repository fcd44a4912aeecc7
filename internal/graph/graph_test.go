package graph

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

const testRate = 48000

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeSource struct {
	value    float64
	playing  bool
	pos      int
	streamed int
	closed   bool
	playErr  error
}

func (f *fakeSource) Stream(samples [][2]float64) (int, bool) {
	f.streamed += len(samples)
	if !f.playing {
		clear(samples)
		return len(samples), true
	}
	for i := range samples {
		samples[i] = [2]float64{f.value, f.value}
	}
	f.pos += len(samples)
	return len(samples), true
}

func (f *fakeSource) Err() error { return nil }
func (f *fakeSource) Play() error {
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}
func (f *fakeSource) Pause()                     { f.playing = false }
func (f *fakeSource) Seek(d time.Duration) error { f.pos = int(d.Seconds() * testRate); return nil }
func (f *fakeSource) Position() time.Duration {
	return time.Duration(float64(f.pos) / testRate * float64(time.Second))
}
func (f *fakeSource) Duration() time.Duration { return 10 * time.Second }
func (f *fakeSource) Close() error            { f.closed = true; return nil }

func newGraph(t *testing.T) *Graph {
	t.Helper()
	g := New(testRate, testLogger())
	if err := g.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return g
}

func render(g *Graph, d time.Duration) [][2]float64 {
	n := int(d.Seconds() * testRate)
	buf := make([][2]float64, n)
	g.Stream(buf)
	return buf
}

// --- Lifecycle ---

func TestInitializeIdempotent(t *testing.T) {
	g := newGraph(t)
	a := g.Analyser()
	if err := g.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if g.Analyser() != a {
		t.Error("second Initialize rebuilt the chain")
	}
}

func TestInitializeUnsupported(t *testing.T) {
	g := New(100, testLogger())
	err := g.Initialize()
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Initialize error = %v, want ErrUnsupported", err)
	}
	if g.Initialized() {
		t.Error("graph reports initialized after failure")
	}
	if _, err := g.Bind("x", &fakeSource{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Bind error = %v, want ErrNotInitialized", err)
	}
}

func TestSuspendedRendersSilence(t *testing.T) {
	g := newGraph(t)
	src := &fakeSource{value: 0.5, playing: true}
	if _, err := g.Bind("a", src); err != nil {
		t.Fatal(err)
	}

	out := render(g, 10*time.Millisecond)
	for i, s := range out {
		if s != [2]float64{} {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}
	if src.streamed != 0 {
		t.Errorf("suspended graph pulled %d samples from source", src.streamed)
	}
}

func TestResumeIdempotent(t *testing.T) {
	g := newGraph(t)
	for rep := 0; rep < 3; rep++ {
		if err := g.Resume(); err != nil {
			t.Fatalf("Resume: %v", err)
		}
	}
	if !g.Running() {
		t.Error("graph not running after Resume")
	}
	g.Dispose()
	if g.Running() {
		t.Error("graph running after Dispose")
	}
	if err := g.Resume(); err != nil || !g.Running() {
		t.Errorf("Resume after Dispose = %v, running %v; want a reusable graph", err, g.Running())
	}
}

func TestResumeBeforeInitialize(t *testing.T) {
	g := New(testRate, testLogger())
	if err := g.Resume(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Resume error = %v, want ErrNotInitialized", err)
	}
}

// --- Bindings ---

func TestBindSameIDReturnsSameBinding(t *testing.T) {
	g := newGraph(t)
	src := &fakeSource{}
	b1, err := g.Bind("track", src)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := g.Bind("track", src)
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b2 {
		t.Error("Bind created a second binding for the same id")
	}
	if ids := g.BindingIDs(); len(ids) != 1 {
		t.Errorf("BindingIDs = %v, want one id", ids)
	}
}

func TestBindTappedSourceReturnsOwner(t *testing.T) {
	g := newGraph(t)
	src := &fakeSource{}
	owner, _ := g.Bind("a", src)
	b, err := g.Bind("b", src)
	if err != nil {
		t.Fatalf("Bind error = %v, want nil", err)
	}
	if b != owner {
		t.Error("Bind of a tapped source did not return the owning binding")
	}
	if _, ok := g.Binding("b"); ok {
		t.Error("conflicting bind registered a new id")
	}
}

func TestUnbindClosesSource(t *testing.T) {
	g := newGraph(t)
	src := &fakeSource{}
	g.Bind("a", src)
	if err := g.Unbind("a"); err != nil {
		t.Fatal(err)
	}
	if !src.closed {
		t.Error("source not closed")
	}
	if _, ok := g.Binding("a"); ok {
		t.Error("binding still present after Unbind")
	}
	if err := g.Unbind("missing"); err != nil {
		t.Errorf("Unbind unknown id = %v, want nil", err)
	}

	// The source may be bound again under a new id once released.
	if _, err := g.Bind("b", &fakeSource{}); err != nil {
		t.Fatal(err)
	}
}

func TestDisposeClosesAll(t *testing.T) {
	g := newGraph(t)
	a, b := &fakeSource{}, &fakeSource{}
	g.Bind("a", a)
	g.Bind("b", b)
	g.Resume()
	g.Dispose()
	if !a.closed || !b.closed {
		t.Error("Dispose left sources open")
	}
	if g.Running() {
		t.Error("graph running after Dispose")
	}
	if len(g.BindingIDs()) != 0 {
		t.Error("bindings remain after Dispose")
	}
}

func TestMixRendersBoundSource(t *testing.T) {
	g := newGraph(t)
	g.Resume()
	src := &fakeSource{value: 0.01, playing: true}
	g.Bind("a", src)
	out := render(g, 10*time.Millisecond)
	if out[len(out)-1][0] == 0 {
		t.Error("playing source produced silence")
	}
	if src.streamed != len(out) {
		t.Errorf("source streamed %d samples, want %d", src.streamed, len(out))
	}
}

// --- Automation ---

func TestEqualizerConvergence(t *testing.T) {
	g := newGraph(t)
	g.Resume()

	var gains [BandCount]float64
	for i := range gains {
		gains[i] = 6
	}
	gains[3] = 20 // clamped
	g.SetEqualizerGains(gains)

	if got := g.EqualizerGains()[0]; got != 0 {
		t.Errorf("gain before rendering = %v, want 0", got)
	}

	render(g, time.Second)
	got := g.EqualizerGains()
	for i, v := range got {
		want := 6.0
		if i == 3 {
			want = MaxGainDB
		}
		if math.Abs(v-want) > 0.01 {
			t.Errorf("band %d gain = %v, want %v", i, v, want)
		}
	}
}

func TestEqualizerBeforeInitializeIsNoop(t *testing.T) {
	g := New(testRate, testLogger())
	g.SetEqualizerGains([BandCount]float64{1, 2, 3})
	g.SetMasterVolume(0.3)
	if g.EqualizerGains() != ([BandCount]float64{}) {
		t.Error("EqualizerGains non-zero before Initialize")
	}
}

func TestIndependentFades(t *testing.T) {
	g := newGraph(t)
	g.Resume()
	out, _ := g.Bind("out", &fakeSource{playing: true})
	in, _ := g.Bind("in", &fakeSource{playing: true})
	in.SetGain(0)

	out.FadeTo(0, time.Second)
	in.FadeTo(1, time.Second)

	// One time constant (d/4) covers ~63% of the distance.
	render(g, 250*time.Millisecond)
	if got := out.Gain(); math.Abs(got-math.Exp(-1)) > 0.01 {
		t.Errorf("outgoing gain after tau = %v, want ~%v", got, math.Exp(-1))
	}
	if got := in.Gain(); math.Abs(got-(1-math.Exp(-1))) > 0.01 {
		t.Errorf("incoming gain after tau = %v, want ~%v", got, 1-math.Exp(-1))
	}

	render(g, 2*time.Second)
	if got := out.Gain(); got > 0.01 {
		t.Errorf("outgoing gain = %v, want ~0", got)
	}
	if got := in.Gain(); got < 0.99 {
		t.Errorf("incoming gain = %v, want ~1", got)
	}
}

func TestMasterVolume(t *testing.T) {
	g := newGraph(t)
	g.Resume()
	g.SetMasterVolume(0.5)
	render(g, time.Second)
	if got := g.MasterVolume(); math.Abs(got-0.5) > 0.001 {
		t.Errorf("MasterVolume = %v, want 0.5", got)
	}
	g.SetMasterVolume(3)
	render(g, 2*time.Second)
	if got := g.MasterVolume(); math.Abs(got-1) > 0.001 {
		t.Errorf("MasterVolume = %v, want clamped to 1", got)
	}
}

func TestSuspendedHoldsAutomation(t *testing.T) {
	g := newGraph(t)
	g.SetMasterVolume(0)
	render(g, time.Second)
	if got := g.MasterVolume(); got != 1 {
		t.Errorf("MasterVolume while suspended = %v, want 1", got)
	}
}

func TestSetDSP(t *testing.T) {
	g := newGraph(t)
	g.Resume()
	if got := g.CompressorRatio(); got != DefaultRatio {
		t.Errorf("initial ratio = %v, want %v", got, DefaultRatio)
	}
	g.SetDSP(DSP{Upsampling: true, UpsamplingLevel: 4, PhaseCorrection: true})
	render(g, time.Second)
	if got := g.CompressorRatio(); math.Abs(got-4) > 0.001 {
		t.Errorf("ratio = %v, want 4", got)
	}
	g.SetDSP(DSP{})
	render(g, 2*time.Second)
	if got := g.CompressorRatio(); math.Abs(got-2) > 0.001 {
		t.Errorf("ratio = %v, want 2", got)
	}
}

func TestDSPDerivedKnobs(t *testing.T) {
	tests := []struct {
		name  string
		dsp   DSP
		shelf float64
		ratio float64
	}{
		{"off", DSP{}, 0, 2},
		{"level 2", DSP{Upsampling: true, UpsamplingLevel: 2}, 3, 2},
		{"level 8 with phase", DSP{Upsampling: true, UpsamplingLevel: 8, PhaseCorrection: true}, 12, 4},
		{"level ignored when off", DSP{UpsamplingLevel: 8, PhaseCorrection: true}, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dsp.ShelfGain(); got != tt.shelf {
				t.Errorf("ShelfGain = %v, want %v", got, tt.shelf)
			}
			if got := tt.dsp.Ratio(); got != tt.ratio {
				t.Errorf("Ratio = %v, want %v", got, tt.ratio)
			}
		})
	}
}
