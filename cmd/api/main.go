package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/auth"
	"github.com/devsync-io/devsync/backend/internal/config"
	"github.com/devsync-io/devsync/backend/internal/handler"
	"github.com/devsync-io/devsync/backend/internal/realtime"
	aiservice "github.com/devsync-io/devsync/backend/internal/service/ai"
	messageservice "github.com/devsync-io/devsync/backend/internal/service/message"
	"github.com/devsync-io/devsync/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Server)

	sqlite, err := store.NewSQLiteStore(ctx, cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer sqlite.Close()

	redis, err := store.NewRedisStore(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redis.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authSvc := auth.NewService(tokens, redis, sqlite, logger)
	messages := messageservice.NewService(redis, logger)

	var aiSvc *aiservice.Service
	if cfg.AI.Enabled() {
		gen, err := aiservice.NewGenerator(ctx, cfg.AI)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize generation model, continuing without AI")
		} else {
			aiSvc = aiservice.NewService(gen, messages, sqlite, logger)
			logger.Info().Str("model", cfg.AI.Model).Msg("AI assistance enabled")
		}
	} else {
		logger.Info().Msg("model credentials not configured, AI assistance disabled")
	}

	hub := realtime.NewHub(logger)
	rtHandler := realtime.NewHandler(hub, authSvc, sqlite, messages, aiSvc, logger)

	router := handler.NewRouter(handler.Deps{
		Auth:     authSvc,
		Users:    sqlite,
		Projects: sqlite,
		Messages: messages,
		Realtime: rtHandler,
		Logger:   logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(server config.ServerConfig) zerolog.Logger {
	if server.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", serverCfg.Addr).Msg("devsync backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
