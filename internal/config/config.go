package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// DefaultCatalogStream is the playable source used for tracks found by
// search, which identifies music but has no audio of its own.
const DefaultCatalogStream = "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3"

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Persistence
	DBPath string // empty keeps state in memory only

	// Local output
	Speaker       bool
	SpeakerBuffer time.Duration

	// Playback defaults, overridden by saved state
	CrossfadeEnabled  bool
	CrossfadeDuration time.Duration
	Volume            float64
	AccentColor       string
	AIUpsampling      bool
	UpsamplingLevel   int
	PhaseCorrection   bool

	// Library
	EQPresetsPath    string
	CatalogStreamURL string
	InboxDir         string // empty disables the drop folder

	// Metadata lookups (Ollama)
	OllamaURL   string // empty disables lookups
	OllamaModel string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sane defaults.
// Variables from a .env file in the working directory are applied first;
// the real environment wins.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envInt("ELITE_PORT", 8080),

		DBPath: envStr("ELITE_DB_PATH", "./elitedsp.db"),

		Speaker:       envBool("ELITE_SPEAKER", true),
		SpeakerBuffer: time.Duration(envInt("ELITE_SPEAKER_BUFFER_MS", 100)) * time.Millisecond,

		CrossfadeEnabled:  envBool("ELITE_CROSSFADE_ENABLED", true),
		CrossfadeDuration: time.Duration(envFloat("ELITE_CROSSFADE_SECONDS", 3.5) * float64(time.Second)),
		Volume:            envFloat("ELITE_VOLUME", 0.8),
		AccentColor:       envStr("ELITE_ACCENT_COLOR", "#00d4ff"),
		AIUpsampling:      envBool("ELITE_AI_UPSAMPLING", true),
		UpsamplingLevel:   envInt("ELITE_UPSAMPLING_LEVEL", 2),
		PhaseCorrection:   envBool("ELITE_PHASE_CORRECTION", true),

		EQPresetsPath:    envStr("ELITE_EQ_PRESETS", ""),
		CatalogStreamURL: envStr("ELITE_CATALOG_STREAM_URL", DefaultCatalogStream),
		InboxDir:         envStr("ELITE_INBOX_DIR", ""),

		OllamaURL:   envStr("OLLAMA_URL", ""),
		OllamaModel: envStr("OLLAMA_MODEL", "qwen2.5:7b"),

		LogLevel:  strings.ToLower(envStr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envStr("LOG_FORMAT", "text")),
	}
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Volume < 0 || c.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume %v must be within [0, 1]", c.Volume))
	}
	if c.CrossfadeDuration < 500*time.Millisecond || c.CrossfadeDuration > 10*time.Second {
		errs = append(errs, fmt.Errorf("crossfade %v must be within [0.5s, 10s]", c.CrossfadeDuration))
	}
	if !hexColor.MatchString(c.AccentColor) {
		errs = append(errs, fmt.Errorf("accent color %q is not #RRGGBB", c.AccentColor))
	}
	switch c.UpsamplingLevel {
	case 2, 4, 8:
	default:
		errs = append(errs, fmt.Errorf("upsampling level %d must be 2, 4 or 8", c.UpsamplingLevel))
	}
	if c.SpeakerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("speaker buffer %v must be positive", c.SpeakerBuffer))
	}
	if c.InboxDir != "" {
		if st, err := os.Stat(c.InboxDir); err != nil || !st.IsDir() {
			errs = append(errs, fmt.Errorf("inbox %q is not a directory", c.InboxDir))
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
