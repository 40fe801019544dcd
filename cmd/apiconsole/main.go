// Package main is the entry point for the API console backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/apiconsole/internal/config"
	"github.com/howard-nolan/apiconsole/internal/dispatch"
	"github.com/howard-nolan/apiconsole/internal/imagemodel"
	"github.com/howard-nolan/apiconsole/internal/logging"
	"github.com/howard-nolan/apiconsole/internal/provider"
	"github.com/howard-nolan/apiconsole/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg)

	// ctx is cancelled on SIGINT/SIGTERM, which starts the graceful
	// shutdown below.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	reg, err := cfg.ModelRegistry()
	if err != nil {
		return fmt.Errorf("building model registry: %w", err)
	}

	// Each provider is built only when its key is present. A missing key
	// is not fatal: the routes that need that provider answer 500 with
	// MissingCredential instead. Interface fields stay nil (not a typed
	// nil pointer) so the dispatcher's nil checks see them as absent.
	var (
		chat   provider.ChatProvider
		stream provider.StreamProvider
		images dispatch.ImageModelResolver
	)

	if key := cfg.Providers.Chat.APIKey; key != "" {
		p := provider.NewOpenAIProvider(key, cfg.Providers.Chat.BaseURL, http.DefaultClient)
		chat = p
		images = imagemodel.NewResolver(p, cfg.Image.DefaultModel, cfg.Image.CacheTTL,
			imagemodel.WithLogger(log.With().Str("component", "imagemodel").Logger()))
		log.Info().Str("provider", p.Name()).Str("base_url", cfg.Providers.Chat.BaseURL).Msg("provider ready")
	} else {
		log.Warn().Str("env", config.ChatKeyEnv).Msg("chat provider key not set; /ask, /vision and /image will answer 500")
	}

	if key := cfg.Providers.Multimodal.APIKey; key != "" {
		p, err := provider.NewGoogleProvider(ctx, key, cfg.Providers.Multimodal.BaseURL, http.DefaultClient)
		if err != nil {
			return fmt.Errorf("creating multimodal provider: %w", err)
		}
		stream = p
		log.Info().Str("provider", p.Name()).Msg("provider ready")
	} else {
		log.Warn().Str("env", config.MultimodalKeyEnv).Msg("multimodal provider key not set; /generate will answer 500")
	}

	d := dispatch.New(reg, chat, stream, images, dispatch.Options{
		SystemPrompt:     cfg.Defaults.SystemPrompt,
		ChatCredential:   config.ChatKeyEnv,
		StreamCredential: config.MultimodalKeyEnv,
		Logger:           log,
	})

	srv := server.New(cfg, d, reg, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("apiconsole listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Give in-flight requests, streams included, a bounded window to finish.
	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
