package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"ELITE_PORT", "ELITE_DB_PATH", "ELITE_SPEAKER", "ELITE_SPEAKER_BUFFER_MS",
	"ELITE_CROSSFADE_ENABLED", "ELITE_CROSSFADE_SECONDS", "ELITE_VOLUME",
	"ELITE_ACCENT_COLOR", "ELITE_AI_UPSAMPLING", "ELITE_UPSAMPLING_LEVEL",
	"ELITE_PHASE_CORRECTION", "ELITE_EQ_PRESETS", "ELITE_CATALOG_STREAM_URL",
	"ELITE_INBOX_DIR",
	"OLLAMA_URL", "OLLAMA_MODEL", "LOG_LEVEL", "LOG_FORMAT",
}

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DBPath != "./elitedsp.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if !cfg.Speaker {
		t.Error("Speaker = false, want true")
	}
	if cfg.SpeakerBuffer != 100*time.Millisecond {
		t.Errorf("SpeakerBuffer = %v, want 100ms", cfg.SpeakerBuffer)
	}
	if !cfg.CrossfadeEnabled {
		t.Error("CrossfadeEnabled = false, want true")
	}
	if cfg.CrossfadeDuration != 3500*time.Millisecond {
		t.Errorf("CrossfadeDuration = %v, want 3.5s", cfg.CrossfadeDuration)
	}
	if cfg.Volume != 0.8 {
		t.Errorf("Volume = %f, want 0.8", cfg.Volume)
	}
	if cfg.AccentColor != "#00d4ff" {
		t.Errorf("AccentColor = %q, want '#00d4ff'", cfg.AccentColor)
	}
	if !cfg.AIUpsampling || cfg.UpsamplingLevel != 2 || !cfg.PhaseCorrection {
		t.Errorf("DSP defaults = %v/%d/%v, want true/2/true", cfg.AIUpsampling, cfg.UpsamplingLevel, cfg.PhaseCorrection)
	}
	if cfg.CatalogStreamURL != DefaultCatalogStream {
		t.Errorf("CatalogStreamURL = %q, want default", cfg.CatalogStreamURL)
	}
	if cfg.OllamaURL != "" {
		t.Errorf("OllamaURL = %q, want empty default", cfg.OllamaURL)
	}
	if cfg.OllamaModel != "qwen2.5:7b" {
		t.Errorf("OllamaModel = %q, want default", cfg.OllamaModel)
	}
	if cfg.InboxDir != "" {
		t.Errorf("InboxDir = %q, want disabled", cfg.InboxDir)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("logging = %q/%q, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults fail validation: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ELITE_PORT", "3000")
	t.Setenv("ELITE_DB_PATH", "/tmp/x.db")
	t.Setenv("ELITE_SPEAKER", "false")
	t.Setenv("ELITE_CROSSFADE_SECONDS", "6")
	t.Setenv("ELITE_VOLUME", "0.5")
	t.Setenv("ELITE_UPSAMPLING_LEVEL", "8")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.Speaker {
		t.Error("Speaker = true, want env override false")
	}
	if cfg.CrossfadeDuration != 6*time.Second {
		t.Errorf("CrossfadeDuration = %v, want 6s", cfg.CrossfadeDuration)
	}
	if cfg.Volume != 0.5 {
		t.Errorf("Volume = %f, want 0.5", cfg.Volume)
	}
	if cfg.UpsamplingLevel != 8 {
		t.Errorf("UpsamplingLevel = %d, want 8", cfg.UpsamplingLevel)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Errorf("OllamaURL = %q, want env override", cfg.OllamaURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want lowercased 'debug'", cfg.LogLevel)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("ELITE_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("ELITE_SPEAKER", "maybe")
	if cfg := Load(); !cfg.Speaker {
		t.Error("Invalid bool env should fallback to default true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port", func(c *Config) { c.Port = 70000 }, "port"},
		{"volume", func(c *Config) { c.Volume = 2 }, "volume"},
		{"crossfade", func(c *Config) { c.CrossfadeDuration = 20 * time.Second }, "crossfade"},
		{"accent", func(c *Config) { c.AccentColor = "cyan" }, "accent"},
		{"level", func(c *Config) { c.UpsamplingLevel = 3 }, "upsampling"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"inbox", func(c *Config) { c.InboxDir = "/definitely/not/here" }, "inbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envVars {
				os.Unsetenv(k)
			}
			cfg := Load()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.field)
			}
		})
	}
}

// --- Presets ---

func TestBuiltinPresets(t *testing.T) {
	p := BuiltinPresets()
	for _, name := range []string{"flat", "bass boost", "vocal", "treble boost", "loudness"} {
		if _, ok := p[name]; !ok {
			t.Errorf("missing built-in preset %q", name)
		}
	}
	if p["flat"] != ([BandCount]float64{}) {
		t.Error("flat preset is not all zeros")
	}
}

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	data := `
[[preset]]
name = "Late Night"
gains = [3.0, 3.0, 2.0, 1.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, -1.0, -2.0, -3.0, -3.0, -3.0]

[[preset]]
name = "flat"
gains = [1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if got := p["late night"]; got[0] != 3 || got[14] != -3 {
		t.Errorf("late night = %v", got)
	}
	if p["flat"][0] != 1 {
		t.Error("file preset did not override built-in")
	}
	if _, ok := p["vocal"]; !ok {
		t.Error("built-ins dropped when loading file")
	}
}

func TestLoadPresetsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"short", "[[preset]]\nname = \"x\"\ngains = [1.0, 2.0]\n"},
		{"range", "[[preset]]\nname = \"x\"\ngains = [30.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0]\n"},
		{"unnamed", "[[preset]]\ngains = [0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0]\n"},
		{"syntax", "[[preset\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.toml")
			os.WriteFile(path, []byte(tt.data), 0o644)
			if _, err := LoadPresets(path); err == nil {
				t.Error("LoadPresets accepted invalid file")
			}
		})
	}
}

func TestLoadPresetsEmptyPath(t *testing.T) {
	p, err := LoadPresets("")
	if err != nil || len(p) != len(BuiltinPresets()) {
		t.Errorf("LoadPresets(\"\") = %d presets, %v", len(p), err)
	}
}
