package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/elitedsp/internal/api"
	"github.com/satindergrewal/elitedsp/internal/audio"
	"github.com/satindergrewal/elitedsp/internal/config"
	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/inbox"
	"github.com/satindergrewal/elitedsp/internal/logging"
	"github.com/satindergrewal/elitedsp/internal/media"
	"github.com/satindergrewal/elitedsp/internal/metadata"
	"github.com/satindergrewal/elitedsp/internal/player"
	"github.com/satindergrewal/elitedsp/internal/store"
	"github.com/satindergrewal/elitedsp/internal/stream"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the player and its HTTP API",
		RunE:  runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("port", 0, "HTTP port (overrides ELITE_PORT)")
	cmd.Flags().Bool("headless", false, "do not open the local speaker")
	cmd.Flags().String("inbox", "", "drop folder to watch for new files (overrides ELITE_INBOX_DIR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}
	if headless, _ := cmd.Flags().GetBool("headless"); headless {
		cfg.Speaker = false
	}
	if dir, _ := cmd.Flags().GetString("inbox"); dir != "" {
		cfg.InboxDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component(logger, "main")

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	presets, err := config.LoadPresets(cfg.EQPresetsPath)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	kv := openStore(cfg, logger)
	fetcher := metadataService(ctx, cfg, logger)

	g := graph.New(audio.SampleRate, logging.Component(logger, "graph"))
	registry := media.NewRegistry(logging.Component(logger, "media"))
	opener := media.NewOpener(registry, logging.Component(logger, "media"))

	p := player.New(player.Deps{
		Graph:    g,
		Open:     player.MediaOpener(opener),
		Files:    registry,
		Metadata: fetcher,
		Store:    kv,
		Log:      logging.Component(logger, "player"),
	}, player.Options{
		Volume:      cfg.Volume,
		AccentColor: cfg.AccentColor,
		DSP: player.DSPSettings{
			AIUpsampling:     cfg.AIUpsampling,
			UpsamplingLevel:  cfg.UpsamplingLevel,
			SmartCrossfade:   cfg.CrossfadeEnabled,
			CrossfadeSeconds: cfg.CrossfadeDuration.Seconds(),
			PhaseCorrection:  cfg.PhaseCorrection,
		},
		Presets:          presets,
		CatalogStreamURL: cfg.CatalogStreamURL,
	})
	if err := p.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize player: %w", err)
	}
	defer p.Close()
	go p.Run(ctx)

	// One render clock feeds every output.
	renderer := audio.NewRenderer(g, logging.Component(logger, "render"))
	go renderer.Run(ctx)

	broadcaster := stream.NewBroadcaster(logging.Component(logger, "broadcast"))
	go broadcaster.Run(ctx, renderer.Frames())

	if cfg.Speaker {
		sp := stream.NewSpeaker(broadcaster, cfg.SpeakerBuffer, logging.Component(logger, "speaker"))
		go func() {
			if err := sp.Run(ctx); err != nil {
				log.WithError(err).Warn("Local output unavailable, running headless")
			}
		}()
	}

	if cfg.InboxDir != "" {
		w := inbox.New(cfg.InboxDir, p, logging.Component(logger, "inbox"))
		go func() {
			if err := w.Run(ctx); err != nil {
				log.WithError(err).Warn("Inbox watcher stopped")
			}
		}()
	}

	webrtc := stream.NewWebRTCHandler(broadcaster, logging.Component(logger, "webrtc"))
	defer webrtc.Close()

	handler := api.New(p, api.Outputs{
		Stream: stream.NewHTTPHandler(broadcaster, logging.Component(logger, "mp3")),
		Offer:  webrtc,
	}, logging.Component(logger, "api"))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		server.Close()
	}()

	log.WithFields(logrus.Fields{
		"addr":    addr,
		"speaker": cfg.Speaker,
		"db":      cfg.DBPath,
	}).Info("EliteDSP live")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// openStore opens the SQLite state file. Without one the session still
// runs, it just forgets everything on exit.
func openStore(cfg config.Config, logger *logrus.Logger) store.KV {
	if cfg.DBPath == "" {
		return store.NewMemory()
	}
	db, err := store.OpenSQLite(cfg.DBPath, logging.Component(logger, "store"))
	if err != nil {
		logger.WithError(err).WithField("db_path", cfg.DBPath).Warn("Persistence unavailable, keeping state in memory")
		return store.NewMemory()
	}
	return db
}

// metadataService returns nil when no LLM is configured, which turns
// lookups and search off.
func metadataService(ctx context.Context, cfg config.Config, logger *logrus.Logger) player.Fetcher {
	log := logging.Component(logger, "metadata")
	if cfg.OllamaURL == "" {
		log.Info("Ollama not configured (set OLLAMA_URL to enable metadata lookups)")
		return nil
	}
	client := metadata.NewClient(cfg.OllamaURL, cfg.OllamaModel, log)

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if !client.WaitForReady(readyCtx) {
		log.WithField("url", cfg.OllamaURL).Warn("Ollama not reachable yet, lookups will retry per request")
	} else {
		log.WithField("model", client.Model()).Info("Ollama connected")
	}
	return metadata.NewService(client, cfg.AccentColor, log)
}
