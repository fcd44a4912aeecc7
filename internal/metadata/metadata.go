// Package metadata identifies tracks through an LLM and returns display
// metadata: title, artist, cover art, an accent color and timed lyrics.
// Lookups are best effort; failures resolve to "no metadata".
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAccent is used when a lookup yields no usable color.
const DefaultAccent = "#00d4ff"

// CacheTTL is how long successful lookups are reused.
const CacheTTL = 30 * time.Minute

// Lyric is one timed lyric line.
type Lyric struct {
	TimeMs int64
	Text   string
}

// Metadata is a resolved lookup.
type Metadata struct {
	Title         string
	Artist        string
	CoverURL      string
	DominantColor string
	Lyrics        []Lyric
}

// Generator produces a JSON document for a prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// Service resolves queries to metadata.
type Service struct {
	gen    Generator
	cache  *Cache
	accent string
	log    *logrus.Entry
}

// NewService creates a lookup service. A nil gen disables lookups; every
// Fetch then reports no metadata.
func NewService(gen Generator, accent string, log *logrus.Entry) *Service {
	if !hexColor.MatchString(accent) {
		accent = DefaultAccent
	}
	return &Service{gen: gen, cache: NewCache(CacheTTL), accent: accent, log: log}
}

// Enabled reports whether lookups can succeed.
func (s *Service) Enabled() bool { return s.gen != nil }

const systemPrompt = `You are the intelligence engine of a music streaming app.
Identify the song described by the request and ALWAYS answer with a single JSON object of this exact shape:

{
  "track": {
    "title": "Song name",
    "artist": "Singer or band",
    "cover_url": "direct link to the album cover image",
    "colors": { "primary": "#RRGGBB" },
    "lyrics": [ { "time_ms": 0, "text": "first line" } ]
  }
}

Rules:
- "cover_url": use https://picsum.photos/seed/{seed}/600/600 as a placeholder when you do not know a real URL, replacing {seed} with the song name.
- "colors.primary": a hex color that matches the cover art.
- "lyrics": timed lines in ascending time order; use an empty list if you do not know them.
- No explanations, no markdown, JSON only.`

type response struct {
	Track *struct {
		Title    string `json:"title"`
		Artist   string `json:"artist"`
		CoverURL string `json:"cover_url"`
		Colors   struct {
			Primary string `json:"primary"`
		} `json:"colors"`
		Lyrics []struct {
			TimeMs int64  `json:"time_ms"`
			Text   string `json:"text"`
		} `json:"lyrics"`
	} `json:"track"`
}

// Fetch looks up query. It never returns an error: any failure is logged
// and reported as false.
func (s *Service) Fetch(ctx context.Context, query string) (Metadata, bool) {
	query = strings.TrimSpace(query)
	if query == "" || s.gen == nil {
		return Metadata{}, false
	}
	if m, ok := s.cache.Get(query); ok {
		return m, true
	}

	log := s.log.WithField("query", query)
	start := time.Now()

	raw, err := s.gen.GenerateJSON(ctx, systemPrompt, fmt.Sprintf("Process music request: %q. Return accurate metadata.", query))
	if err != nil {
		log.WithError(err).Warn("Metadata lookup failed")
		return Metadata{}, false
	}

	m, err := s.parse(query, raw)
	if err != nil {
		log.WithError(err).Warn("Metadata response unusable")
		return Metadata{}, false
	}

	s.cache.Set(query, m)
	log.WithFields(logrus.Fields{
		"title":   m.Title,
		"artist":  m.Artist,
		"lyrics":  len(m.Lyrics),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("Metadata resolved")
	return m, true
}

func (s *Service) parse(query, raw string) (Metadata, error) {
	var resp response
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return Metadata{}, fmt.Errorf("decode: %w", err)
	}
	if resp.Track == nil {
		return Metadata{}, fmt.Errorf("missing track object")
	}
	t := resp.Track

	m := Metadata{
		Title:         strings.TrimSpace(t.Title),
		Artist:        strings.TrimSpace(t.Artist),
		CoverURL:      strings.TrimSpace(t.CoverURL),
		DominantColor: strings.TrimSpace(t.Colors.Primary),
	}
	if m.Title == "" {
		m.Title = query
	}
	if !validURL(m.CoverURL) {
		m.CoverURL = PlaceholderCover(query)
	}
	if !hexColor.MatchString(m.DominantColor) {
		m.DominantColor = s.accent
	}
	for _, l := range t.Lyrics {
		text := strings.TrimSpace(l.Text)
		if l.TimeMs < 0 || text == "" {
			continue
		}
		m.Lyrics = append(m.Lyrics, Lyric{TimeMs: l.TimeMs, Text: text})
	}
	slices.SortStableFunc(m.Lyrics, func(a, b Lyric) int {
		switch {
		case a.TimeMs < b.TimeMs:
			return -1
		case a.TimeMs > b.TimeMs:
			return 1
		}
		return 0
	})
	return m, nil
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidColor reports whether c is a #RRGGBB color.
func ValidColor(c string) bool { return hexColor.MatchString(c) }

// PlaceholderCover returns deterministic placeholder art for seed.
func PlaceholderCover(seed string) string {
	return "https://picsum.photos/seed/" + url.PathEscape(seed) + "/600/600"
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// extractJSON trims anything around the outermost JSON object; some models
// wrap JSON in prose or code fences even in JSON mode.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
