package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "elitedsp",
		Short: "EliteDSP is a music player with a 15-band EQ, crossfades and beat-reactive output.",
		Long: `EliteDSP plays a queue of local files and remote streams through a
processing chain (equalizer, compressor, master gain) and serves the
result to the local speaker, WebRTC peers and HTTP MP3 listeners.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	addServeFlags(root)
	root.AddCommand(newServeCmd(), newPresetsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
