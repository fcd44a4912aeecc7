package config

import (
	"fmt"
	"maps"
	"strings"

	"github.com/BurntSushi/toml"
)

// BandCount is the number of equalizer bands a preset sets.
const BandCount = 15

// Preset is a named equalizer curve in dB, lowest band first.
type Preset struct {
	Name  string    `toml:"name"`
	Gains []float64 `toml:"gains"`
}

type presetFile struct {
	Presets []Preset `toml:"preset"`
}

// BuiltinPresets returns the presets that ship with the player.
func BuiltinPresets() map[string][BandCount]float64 {
	return map[string][BandCount]float64{
		"flat":         {},
		"bass boost":   {6, 6, 5, 4, 3, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		"vocal":        {-2, -2, -1, 0, 0, 1, 2, 3, 4, 3, 2, 1, 0, -1, -1},
		"treble boost": {0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6},
		"loudness":     {6, 5, 4, 2, 0, -1, -2, -2, -1, 0, 1, 2, 3, 4, 5},
	}
}

// LoadPresets reads [[preset]] tables from a TOML file and merges them over
// the built-ins. An empty path returns the built-ins.
//
//	[[preset]]
//	name = "late night"
//	gains = [3.0, 3.0, 2.0, 1.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, -1.0, -2.0, -3.0, -3.0, -3.0]
func LoadPresets(path string) (map[string][BandCount]float64, error) {
	presets := BuiltinPresets()
	if path == "" {
		return presets, nil
	}

	var file presetFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}

	loaded := make(map[string][BandCount]float64, len(file.Presets))
	for i, p := range file.Presets {
		name := NormalizePresetName(p.Name)
		if name == "" {
			return nil, fmt.Errorf("preset %d: missing name", i)
		}
		if len(p.Gains) != BandCount {
			return nil, fmt.Errorf("preset %q: %d gains, want %d", p.Name, len(p.Gains), BandCount)
		}
		var gains [BandCount]float64
		for j, g := range p.Gains {
			if g < -12 || g > 12 {
				return nil, fmt.Errorf("preset %q: band %d gain %v outside [-12, 12]", p.Name, j, g)
			}
			gains[j] = g
		}
		loaded[name] = gains
	}
	maps.Copy(presets, loaded)
	return presets, nil
}

// NormalizePresetName folds a preset name to its lookup key.
func NormalizePresetName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
