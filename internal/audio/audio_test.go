package audio

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
	if int(Rate) != SampleRate {
		t.Errorf("Rate = %d, want %d", Rate, SampleRate)
	}
}

// --- PCM conversion ---

func TestToInt16Clipping(t *testing.T) {
	got := ToInt16([][2]float64{{2, -2}, {0, 0.5}})
	want := []int16{32767, -32768, 0, 16383}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFromInt16(t *testing.T) {
	frame := FromInt16([]int16{16384, -16384, 0, 32767})
	if len(frame) != 2 {
		t.Fatalf("len = %d, want 2", len(frame))
	}
	if frame[0][0] != 0.5 || frame[0][1] != -0.5 {
		t.Errorf("frame[0] = %v, want [0.5 -0.5]", frame[0])
	}
}

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

// --- Buffered streams ---

func TestBufferFramesSeekable(t *testing.T) {
	frames := make([][2]float64, 100)
	for i := range frames {
		frames[i] = [2]float64{float64(i) / 100, 0}
	}
	s := BufferFrames(frames)
	defer s.Close()

	if s.Len() != 100 {
		t.Fatalf("Len = %d, want 100", s.Len())
	}
	if err := s.Seek(50); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([][2]float64, 10)
	n, ok := s.Stream(buf)
	if !ok || n != 10 {
		t.Fatalf("Stream = (%d, %v), want (10, true)", n, ok)
	}
	if d := buf[0][0] - 0.5; d > 1e-3 || d < -1e-3 {
		t.Errorf("first sample after seek = %v, want ~0.5", buf[0][0])
	}
}

// --- Renderer ---

type constStreamer struct{ v float64 }

func (c constStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i] = [2]float64{c.v, c.v}
	}
	return len(samples), true
}

func (constStreamer) Err() error { return nil }

type shortStreamer struct{}

func (shortStreamer) Stream(samples [][2]float64) (int, bool) {
	samples[0] = [2]float64{1, 1}
	return 1, true
}

func (shortStreamer) Err() error { return nil }

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestRenderFrame(t *testing.T) {
	r := NewRenderer(constStreamer{v: 0.5}, testLogger())
	frame := r.RenderFrame()
	if len(frame) != FrameSamples {
		t.Fatalf("frame length = %d, want %d", len(frame), FrameSamples)
	}
	if frame[0] != 16383 {
		t.Errorf("frame[0] = %d, want 16383", frame[0])
	}
	if r.Rendered() != FrameDuration {
		t.Errorf("Rendered = %v, want %v", r.Rendered(), FrameDuration)
	}
}

func TestRenderFramePadsShortReads(t *testing.T) {
	r := NewRenderer(shortStreamer{}, testLogger())
	frame := r.RenderFrame()
	if frame[0] != 32767 {
		t.Errorf("frame[0] = %d, want 32767", frame[0])
	}
	if frame[2] != 0 || frame[FrameSamples-1] != 0 {
		t.Errorf("padding not silent: %d %d", frame[2], frame[FrameSamples-1])
	}
}

func TestRendererRunPublishesAndStops(t *testing.T) {
	r := NewRenderer(constStreamer{v: 0.1}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	select {
	case f := <-r.Frames():
		if len(f) != FrameSamples {
			t.Errorf("frame length = %d, want %d", len(f), FrameSamples)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for frame")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-r.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel not closed after cancel")
		}
	}
}
