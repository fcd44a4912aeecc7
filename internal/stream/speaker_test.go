package stream

import (
	"math"
	"testing"
)

// --- feed ---

func TestFeedSpansFrames(t *testing.T) {
	b := NewBroadcaster(testLogger())
	l := b.Subscribe("speaker")
	f := newFeed(l)

	// two stereo samples per frame
	l.C <- []int16{16384, -16384, 0, 0}
	l.C <- []int16{8192, 8192, -32768, 32767}

	out := make([][2]float64, 3)
	n, ok := f.Stream(out)
	if n != 3 || !ok {
		t.Fatalf("Stream = (%d, %v), want (3, true)", n, ok)
	}
	want := [][2]float64{{0.5, -0.5}, {0, 0}, {0.25, 0.25}}
	for i := range want {
		for c := 0; c < 2; c++ {
			if math.Abs(out[i][c]-want[i][c]) > 1e-4 {
				t.Errorf("out[%d][%d] = %v, want %v", i, c, out[i][c], want[i][c])
			}
		}
	}

	// the leftover sample comes first on the next pull
	out = make([][2]float64, 1)
	f.Stream(out)
	if out[0][0] != -1 {
		t.Errorf("leftover left = %v, want -1", out[0][0])
	}
}

func TestFeedUnderrunPlaysSilence(t *testing.T) {
	b := NewBroadcaster(testLogger())
	l := b.Subscribe("speaker")
	f := newFeed(l)

	out := [][2]float64{{1, 1}, {1, 1}}
	n, ok := f.Stream(out)
	if n != 2 || !ok {
		t.Fatalf("Stream = (%d, %v), want (2, true)", n, ok)
	}
	for i, s := range out {
		if s != [2]float64{} {
			t.Errorf("out[%d] = %v, want silence", i, s)
		}
	}
	if got := f.Underruns(); got != 1 {
		t.Errorf("Underruns() = %d, want 1", got)
	}
}

func TestFeedEndsAfterUnsubscribe(t *testing.T) {
	b := NewBroadcaster(testLogger())
	l := b.Subscribe("speaker")
	f := newFeed(l)
	b.Unsubscribe(l)

	n, ok := f.Stream(make([][2]float64, 4))
	if n != 0 || ok {
		t.Errorf("Stream = (%d, %v), want (0, false)", n, ok)
	}
	if f.Err() != nil {
		t.Errorf("Err() = %v, want nil", f.Err())
	}
}
