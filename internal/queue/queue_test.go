package queue

import (
	"errors"
	"testing"

	"github.com/satindergrewal/elitedsp/internal/media"
)

func newQueue(titles ...string) *Controller {
	c := New(nil)
	for _, title := range titles {
		c.Append(&Track{Title: title, Source: media.Remote("https://example.com/" + title + ".mp3")})
	}
	return c
}

// --- Append ---

func TestAppendSelectsFirst(t *testing.T) {
	c := New(nil)
	if c.CurrentIndex() != None {
		t.Fatalf("CurrentIndex = %d, want None", c.CurrentIndex())
	}
	c.Append(&Track{Title: "A"})
	if c.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex after first append = %d, want 0", c.CurrentIndex())
	}
	c.Select(0)
	c.Append(&Track{Title: "B"})
	if c.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex after second append = %d, want 0", c.CurrentIndex())
	}
	if c.At(1).ID == "" {
		t.Error("Append did not assign an ID")
	}
}

// --- ComputeNextIndex ---

func TestComputeNextIndex(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		current int
		repeat  RepeatMode
		want    int
	}{
		{"middle", 3, 0, RepeatNone, 1},
		{"end no repeat stays", 3, 2, RepeatNone, 2},
		{"end repeat all wraps", 3, 2, RepeatAll, 0},
		{"end repeat one stays", 3, 2, RepeatOne, 2},
		{"single track repeat all", 1, 0, RepeatAll, 0},
		{"empty", 0, None, RepeatAll, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			for rep := 0; rep < tt.n; rep++ {
				c.Append(&Track{})
			}
			if tt.n > 0 {
				c.Select(tt.current)
			}
			c.SetRepeat(tt.repeat)
			if got := c.ComputeNextIndex(); got != tt.want {
				t.Errorf("ComputeNextIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeNextIndexShuffle(t *testing.T) {
	c := newQueue("A", "B", "C", "D")
	c.SetShuffle(true)
	var asked int
	c.intn = func(n int) int {
		asked = n
		return 0 // the current index is allowed
	}
	if got := c.ComputeNextIndex(); got != 0 {
		t.Errorf("ComputeNextIndex = %d, want 0", got)
	}
	if asked != 4 {
		t.Errorf("intn called with %d, want 4", asked)
	}
}

func TestShuffleStaysInRange(t *testing.T) {
	c := newQueue("A", "B", "C")
	c.SetShuffle(true)
	for rep := 0; rep < 200; rep++ {
		if got := c.ComputeNextIndex(); got < 0 || got >= 3 {
			t.Fatalf("ComputeNextIndex = %d, out of range", got)
		}
	}
}

// --- Advance / Retreat ---

func TestAdvanceRepeatOneNeverMoves(t *testing.T) {
	for start := 0; start < 3; start++ {
		c := newQueue("A", "B", "C")
		c.Select(start)
		c.SetRepeat(RepeatOne)
		for rep := 0; rep < 5; rep++ {
			if !c.Advance() {
				t.Fatal("Advance with repeat one did not ask for restart")
			}
		}
		if c.CurrentIndex() != start {
			t.Errorf("CurrentIndex = %d, want %d", c.CurrentIndex(), start)
		}
	}
}

func TestAdvanceWrapScenario(t *testing.T) {
	c := newQueue("A", "B")
	c.SetRepeat(RepeatAll)
	c.Advance()
	if c.CurrentIndex() != 1 {
		t.Fatalf("after A ends CurrentIndex = %d, want 1", c.CurrentIndex())
	}
	c.Advance()
	if c.CurrentIndex() != 0 {
		t.Errorf("after B ends CurrentIndex = %d, want 0", c.CurrentIndex())
	}
}

func TestAdvanceEmpty(t *testing.T) {
	c := New(nil)
	if c.Advance() {
		t.Error("Advance on empty queue asked for restart")
	}
	c.SetRepeat(RepeatOne)
	if c.Advance() {
		t.Error("repeat one on empty queue asked for restart")
	}
	if c.CurrentIndex() != None {
		t.Errorf("CurrentIndex = %d, want None", c.CurrentIndex())
	}
}

func TestRetreat(t *testing.T) {
	tests := []struct {
		name    string
		current int
		repeat  RepeatMode
		want    int
	}{
		{"middle", 2, RepeatNone, 1},
		{"first clamps", 0, RepeatNone, 0},
		{"first wraps with repeat all", 0, RepeatAll, 2},
		{"first with repeat one clamps", 0, RepeatOne, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newQueue("A", "B", "C")
			c.Select(tt.current)
			c.SetRepeat(tt.repeat)
			c.Retreat()
			if c.CurrentIndex() != tt.want {
				t.Errorf("CurrentIndex = %d, want %d", c.CurrentIndex(), tt.want)
			}
		})
	}
}

func TestSelectOutOfRange(t *testing.T) {
	c := newQueue("A")
	if err := c.Select(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Select(3) = %v, want ErrOutOfRange", err)
	}
	if c.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex = %d, want 0", c.CurrentIndex())
	}
}

// --- Remove ---

func TestRemoveReclampsAndReleases(t *testing.T) {
	var released []media.Handle
	c := New(func(h media.Handle) { released = append(released, h) })
	for _, title := range []string{"A", "B", "C"} {
		c.Append(&Track{Title: title, Source: media.Remote(title)})
	}
	c.Select(2)

	a := c.At(0)
	c.Remove(a.ID)
	if c.CurrentIndex() != 1 || c.Current().Title != "C" {
		t.Errorf("after removing earlier track current = %d (%v), want 1 (C)", c.CurrentIndex(), c.Current())
	}

	c.Remove(c.Current().ID)
	if c.CurrentIndex() != 0 || c.Current().Title != "B" {
		t.Errorf("after removing current last track current = %d, want 0 (B)", c.CurrentIndex())
	}

	c.Remove(c.Current().ID)
	if c.CurrentIndex() != None {
		t.Errorf("CurrentIndex of empty queue = %d, want None", c.CurrentIndex())
	}
	if len(released) != 3 {
		t.Errorf("released %d handles, want 3", len(released))
	}
	if _, ok := c.Remove("missing"); ok {
		t.Error("Remove of unknown id reported success")
	}
}

func TestClearReleases(t *testing.T) {
	var n int
	c := New(func(media.Handle) { n++ })
	c.Append(&Track{Source: media.Remote("a")})
	c.Append(&Track{}) // no source, nothing to release
	c.Clear()
	if n != 1 {
		t.Errorf("released %d, want 1", n)
	}
	if c.Len() != 0 || c.CurrentIndex() != None {
		t.Errorf("Len = %d, CurrentIndex = %d after Clear", c.Len(), c.CurrentIndex())
	}
}

func TestRestoreClamps(t *testing.T) {
	c := New(nil)
	c.Restore([]*Track{{Title: "A"}, {Title: "B"}}, 7)
	if c.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1", c.CurrentIndex())
	}
	c.Restore(nil, 3)
	if c.CurrentIndex() != None {
		t.Errorf("CurrentIndex = %d, want None", c.CurrentIndex())
	}
}

// --- Identity ---

func TestUpdateTargetsIdentity(t *testing.T) {
	c := newQueue("A", "B", "C", "D", "E")
	target := c.At(2)
	c.Select(4)

	ok := c.Update(target.ID, func(tr *Track) {
		tr.Title = "Resolved"
		tr.MetadataPending = false
	})
	if !ok {
		t.Fatal("Update did not find the track")
	}
	if c.At(2).Title != "Resolved" {
		t.Errorf("track at 2 = %q, want Resolved", c.At(2).Title)
	}
	if c.Current().Title != "E" {
		t.Errorf("current track = %q, want E untouched", c.Current().Title)
	}

	// Survives reordering by removal.
	c.Remove(c.At(0).ID)
	c.Update(target.ID, func(tr *Track) { tr.Artist = "X" })
	if c.At(1).Artist != "X" {
		t.Errorf("moved track artist = %q, want X", c.At(1).Artist)
	}
}

// --- Repeat ---

func TestCycleRepeat(t *testing.T) {
	c := New(nil)
	want := []RepeatMode{RepeatOne, RepeatAll, RepeatNone}
	for _, w := range want {
		if got := c.CycleRepeat(); got != w {
			t.Errorf("CycleRepeat = %v, want %v", got, w)
		}
	}
}

func TestParseRepeat(t *testing.T) {
	for _, m := range []RepeatMode{RepeatNone, RepeatOne, RepeatAll} {
		got, err := ParseRepeat(m.String())
		if err != nil || got != m {
			t.Errorf("ParseRepeat(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseRepeat("sometimes"); err == nil {
		t.Error("ParseRepeat accepted garbage")
	}
}

// --- Lyrics ---

func TestActiveLyric(t *testing.T) {
	lines := []LyricLine{{0, "a"}, {1000, "b"}, {5000, "c"}}
	tests := []struct {
		pos  int64
		want int
	}{
		{-1, None},
		{0, 0},
		{999, 0},
		{1000, 1},
		{4999, 1},
		{60000, 2},
	}
	for _, tt := range tests {
		if got := ActiveLyric(lines, tt.pos); got != tt.want {
			t.Errorf("ActiveLyric(%d) = %d, want %d", tt.pos, got, tt.want)
		}
	}
	if got := ActiveLyric(nil, 10); got != None {
		t.Errorf("ActiveLyric(nil) = %d, want None", got)
	}
}
