// Package crossfade coordinates the overlap between the current track and
// the next one: it decides when a fade starts, drives both gain envelopes
// and hands the current-track identity over at the fade's midpoint.
package crossfade

import (
	"time"

	"github.com/sirupsen/logrus"
)

// State is the coordinator's phase.
type State int

const (
	Idle State = iota
	Triggered
	Fading
)

func (s State) String() string {
	switch s {
	case Triggered:
		return "triggered"
	case Fading:
		return "fading"
	default:
		return "idle"
	}
}

// Fade window bounds.
const (
	MinWindow     = 500 * time.Millisecond
	MaxWindow     = 10 * time.Second
	DefaultWindow = 3500 * time.Millisecond
)

// ClampWindow limits d to [MinWindow, MaxWindow].
func ClampWindow(d time.Duration) time.Duration {
	return min(max(d, MinWindow), MaxWindow)
}

// Deck is one side of a crossfade: a bound source with its own gain stage.
type Deck interface {
	SetGain(v float64)
	FadeTo(target float64, d time.Duration)
	Seek(d time.Duration) error
	Play() error
}

// Host is what the coordinator needs from the player.
type Host interface {
	CurrentIndex() int
	// NextIndex returns the index that would play next, or -1.
	NextIndex() int
	CurrentDeck() (Deck, error)
	// Deck resolves the deck for the track at index, binding it if needed.
	Deck(index int) (Deck, error)
	// Handoff makes next the current track. The outgoing deck keeps fading.
	Handoff(next int)
	// HardAdvance moves on as if the current track had ended.
	HardAdvance()
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Coordinator runs the Idle → Triggered → Fading → Idle cycle. It is not
// safe for concurrent use: the host must serialize Check, Cancel and the
// scheduled midpoint callback.
type Coordinator struct {
	host      Host
	afterFunc AfterFunc
	log       *logrus.Entry

	enabled bool
	window  time.Duration

	state State
	next  int
	timer Timer
	gen   uint64
}

// New creates an idle coordinator. A nil afterFunc uses time.AfterFunc.
func New(host Host, afterFunc AfterFunc, log *logrus.Entry) *Coordinator {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Coordinator{
		host:      host,
		afterFunc: afterFunc,
		log:       log,
		enabled:   true,
		window:    DefaultWindow,
		next:      -1,
	}
}

// SetEnabled turns smart crossfade on or off. Turning it off does not
// interrupt a fade already running.
func (c *Coordinator) SetEnabled(on bool) { c.enabled = on }

// Enabled reports whether smart crossfade is on.
func (c *Coordinator) Enabled() bool { return c.enabled }

// SetWindow sets the fade length, clamped to [MinWindow, MaxWindow].
func (c *Coordinator) SetWindow(d time.Duration) { c.window = ClampWindow(d) }

// Window returns the fade length.
func (c *Coordinator) Window() time.Duration { return c.window }

// State returns the current phase.
func (c *Coordinator) State() State { return c.state }

// Active reports whether a crossfade owns the current transition.
func (c *Coordinator) Active() bool { return c.state != Idle }

// NextIndex returns the index being faded to, or -1 when idle.
func (c *Coordinator) NextIndex() int {
	if c.state == Idle {
		return -1
	}
	return c.next
}

// Check starts a crossfade if the current track has at most one window of
// audio left. remaining < 0 means the duration is unknown. It reports
// whether a crossfade was started.
func (c *Coordinator) Check(remaining time.Duration) bool {
	if !c.enabled || c.state != Idle {
		return false
	}
	if remaining < 0 || remaining > c.window {
		return false
	}
	cur := c.host.CurrentIndex()
	next := c.host.NextIndex()
	if next < 0 || next == cur {
		return false
	}
	return c.start(cur, next)
}

func (c *Coordinator) start(cur, next int) bool {
	c.state = Triggered
	c.next = next
	c.gen++

	log := c.log.WithFields(logrus.Fields{
		"from":   cur,
		"to":     next,
		"window": c.window,
	})

	outgoing, err := c.host.CurrentDeck()
	if err != nil {
		c.fail(log, err)
		return false
	}
	incoming, err := c.host.Deck(next)
	if err != nil {
		c.fail(log, err)
		return false
	}

	if err := incoming.Seek(0); err != nil {
		log.WithError(err).Debug("Seek on incoming deck failed")
	}
	incoming.SetGain(0)
	if err := incoming.Play(); err != nil {
		c.fail(log, err)
		return false
	}
	incoming.FadeTo(1, c.window)
	outgoing.FadeTo(0, c.window)

	c.state = Fading
	gen := c.gen
	c.timer = c.afterFunc(c.window/2, func() { c.midpoint(gen) })

	log.Info("Crossfade started")
	return true
}

func (c *Coordinator) fail(log *logrus.Entry, err error) {
	log.WithError(err).Warn("Crossfade could not start incoming track, cutting over")
	c.state = Idle
	c.next = -1
	c.timer = nil
	c.host.HardAdvance()
}

func (c *Coordinator) midpoint(gen uint64) {
	if gen != c.gen || c.state != Fading {
		return
	}
	next := c.next
	c.state = Idle
	c.next = -1
	c.timer = nil
	c.log.WithField("to", next).Debug("Crossfade midpoint handoff")
	c.host.Handoff(next)
}

// Cancel abandons a pending handoff. Gain ramps already running are left to
// the caller to reset. It is a no-op when idle.
func (c *Coordinator) Cancel() {
	if c.state == Idle {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	c.state = Idle
	c.next = -1
	c.timer = nil
	c.log.Debug("Crossfade cancelled")
}
