// Command pvgate runs the local chat gateway: it owns the per-identity
// transcripts and proxies the browser-facing API to the platform backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alexandru89754/TestPV-V2/internal/config"
	"github.com/Alexandru89754/TestPV-V2/internal/gateway"
	"github.com/Alexandru89754/TestPV-V2/internal/policy"
	"github.com/Alexandru89754/TestPV-V2/internal/remote"
	"github.com/Alexandru89754/TestPV-V2/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	log.Info().
		Int("port", cfg.HTTPPort).
		Str("backend", cfg.BackendURL).
		Str("store", cfg.StoreDriver).
		Msg("starting gateway")

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	backend := remote.NewClient(cfg.BackendURL, remote.Paths{
		Chat:    cfg.ChatPath,
		ChatEnd: cfg.ChatEndPath,
		Upload:  cfg.UploadPath,
	}, cfg.HTTPTimeout)
	// Resume the token of a previous run, if any.
	if token, ok := st.Get(store.TokenKey()); ok {
		backend.SetToken(token)
	}

	ctx := context.Background()
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	srv := gateway.NewServer(cfg, st, backend, engine, log)
	e := srv.Echo()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Int("port", cfg.HTTPPort).Msg("gateway started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.DriverMemory:
		return store.NewMemoryStore(), func() {}, nil
	default:
		st, err := store.NewFileStore(cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}
