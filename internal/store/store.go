// Package store persists player preferences and the queue in a key-value
// store. The persisted document is validated as a whole on load: a document
// that fails any structural check is discarded, never partially applied.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sync"
)

var (
	// ErrNotFound is returned when no value is stored under a key.
	ErrNotFound = errors.New("store: not found")
	// ErrCorrupt is returned when a persisted document fails validation.
	ErrCorrupt = errors.New("store: corrupt state")
)

// KV is a durable key-value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// StateKey is the key the player state is stored under.
const StateKey = "player_state"

// StateVersion is the current document version.
const StateVersion = 1

// PersistedState is the saved session. Session-local sources (local files)
// are never part of Queue.
type PersistedState struct {
	Version      int       `json:"version"`
	Volume       float64   `json:"volume"`
	Shuffle      bool      `json:"shuffle"`
	Repeat       string    `json:"repeat"`
	Queue        []Track   `json:"queue"`
	CurrentIndex int       `json:"currentIndex"`
	AccentColor  string    `json:"accentColor"`
	DSP          DSP       `json:"dspSettings"`
	Equalizer    []float64 `json:"equalizer,omitempty"`
}

// Track is a persisted queue entry with a remote source.
type Track struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	URI           string  `json:"uri"`
	CoverURL      string  `json:"coverUrl,omitempty"`
	DominantColor string  `json:"dominantColor,omitempty"`
	Lyrics        []Lyric `json:"lyrics,omitempty"`
}

// Lyric is a persisted timed lyric line.
type Lyric struct {
	TimeMs int64  `json:"timeMs"`
	Text   string `json:"text"`
}

// DSP is the persisted enhancement settings.
type DSP struct {
	AIUpsampling     bool    `json:"aiUpsampling"`
	UpsamplingLevel  int     `json:"upsamplingLevel"`
	SmartCrossfade   bool    `json:"smartCrossfade"`
	CrossfadeSeconds float64 `json:"crossfadeSeconds"`
	PhaseCorrection  bool    `json:"phaseCorrection"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks every structural constraint of the document.
func (s *PersistedState) Validate() error {
	if s.Version != StateVersion {
		return fmt.Errorf("unsupported version %d", s.Version)
	}
	if math.IsNaN(s.Volume) || s.Volume < 0 || s.Volume > 1 {
		return fmt.Errorf("volume %v out of range", s.Volume)
	}
	switch s.Repeat {
	case "none", "one", "all":
	default:
		return fmt.Errorf("unknown repeat mode %q", s.Repeat)
	}
	if len(s.Queue) == 0 {
		if s.CurrentIndex != -1 {
			return fmt.Errorf("current index %d for empty queue", s.CurrentIndex)
		}
	} else if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return fmt.Errorf("current index %d out of range", s.CurrentIndex)
	}
	if !hexColor.MatchString(s.AccentColor) {
		return fmt.Errorf("invalid accent color %q", s.AccentColor)
	}
	switch s.DSP.UpsamplingLevel {
	case 2, 4, 8:
	default:
		return fmt.Errorf("invalid upsampling level %d", s.DSP.UpsamplingLevel)
	}
	if s.DSP.CrossfadeSeconds < 0.5 || s.DSP.CrossfadeSeconds > 10 {
		return fmt.Errorf("crossfade %vs out of range", s.DSP.CrossfadeSeconds)
	}
	if n := len(s.Equalizer); n != 0 && n != 15 {
		return fmt.Errorf("equalizer has %d bands", n)
	}
	for i, g := range s.Equalizer {
		if math.IsNaN(g) || g < -12 || g > 12 {
			return fmt.Errorf("equalizer band %d gain %v out of range", i, g)
		}
	}

	seen := make(map[string]bool, len(s.Queue))
	for i, t := range s.Queue {
		if t.ID == "" || seen[t.ID] {
			return fmt.Errorf("track %d: missing or duplicate id", i)
		}
		seen[t.ID] = true
		u, err := url.Parse(t.URI)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("track %d: source %q is not a remote URI", i, t.URI)
		}
		if t.DominantColor != "" && !hexColor.MatchString(t.DominantColor) {
			return fmt.Errorf("track %d: invalid color %q", i, t.DominantColor)
		}
	}
	return nil
}

// LoadState reads and validates the persisted state. It returns ErrNotFound
// when nothing was saved and ErrCorrupt when the document is unusable.
func LoadState(ctx context.Context, kv KV) (*PersistedState, error) {
	raw, err := kv.Get(ctx, StateKey)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var st PersistedState
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &st, nil
}

// SaveState validates and writes st.
func SaveState(ctx context.Context, kv KV, st *PersistedState) error {
	st.Version = StateVersion
	if err := st.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid state: %w", err)
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return kv.Set(ctx, StateKey, raw)
}

// Memory is an in-process KV, used when no database is configured.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.items[key] = bytes.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
