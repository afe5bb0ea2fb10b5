package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcawesome123/fractalrhomb/fractalthorns"
	"github.com/mcawesome123/fractalrhomb/internal/config"
	"github.com/mcawesome123/fractalrhomb/internal/http/routes"
)

// saveInterval is how often dirty caches are flushed to disk between
// requests. A final flush always runs on shutdown.
const saveInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("fractalrhomb exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info().Str("addr", cfg.HTTP.Addr).Str("base_url", cfg.API.BaseURL).Msg("starting fractalrhomb")

	opts := []fractalthorns.Option{
		fractalthorns.WithBaseURL(cfg.API.BaseURL),
		fractalthorns.WithCacheDir(cfg.Cache.Dir),
		fractalthorns.WithConnLimit(cfg.API.ConnLimit),
		fractalthorns.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		fractalthorns.WithLogger(logger),
	}
	if cfg.API.UserAgent != "" {
		opts = append(opts, fractalthorns.WithUserAgent(cfg.API.UserAgent))
	}
	if cfg.HasSplashKey() {
		opts = append(opts, fractalthorns.WithSplashKey(cfg.API.SplashKey))
	}

	client, err := fractalthorns.New(opts...)
	if err != nil {
		return err
	}
	client.LoadCaches()

	s := routes.New(routes.ServerOptions{
		API:        client,
		Log:        logger,
		AdminToken: cfg.HTTP.AdminToken,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		ticker := time.NewTicker(saveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.SaveCaches(); err != nil {
					logger.Error().Err(err).Msg("periodic cache save failed")
				}
			}
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}

	if err := client.SaveCaches(); err != nil {
		logger.Error().Err(err).Msg("final cache save failed")
		return err
	}
	logger.Info().Msg("caches saved")
	return nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}
