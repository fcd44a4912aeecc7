package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/elitedsp/internal/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the equalizer presets",
		Long:  "List the built-in equalizer presets merged with any from ELITE_EQ_PRESETS.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			presets, err := config.LoadPresets(cfg.EQPresetsPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			names := make([]string, 0, len(presets))
			for name := range presets {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				gains := presets[name]
				vals := make([]string, len(gains))
				for i, g := range gains {
					vals[i] = fmt.Sprintf("%+.1f", g)
				}
				fmt.Fprintf(out, "%-14s %s\n", name, strings.Join(vals, " "))
			}
			return nil
		},
	}
}
