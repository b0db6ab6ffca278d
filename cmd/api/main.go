package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/internal/config"
	"github.com/zhouzirui/narrative-forge/backend/internal/handler"
	"github.com/zhouzirui/narrative-forge/backend/internal/logger"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/narrative"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/session"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/story"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Logger())
	if err != nil {
		log.Fatalf("failed to initialise logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	if envErr != nil {
		zlog.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	genres := catalog.NewDefaultStore()
	sessions := session.NewStore(zlog)
	go sessions.RunJanitor(ctx, cfg.Session.TTL, cfg.Session.SweepInterval)

	backend, err := cfg.AI.NewBackend(ctx, genres)
	if err != nil {
		zlog.Warn("failed to initialise model backend, falling back to the offline narrator",
			zap.String("provider", cfg.AI.ResolvedProvider()), zap.Error(err))
		backend = ai.NewOfflineBackend(genres)
	}
	gateway := ai.NewGateway(backend, cfg.Gateway.Limits(), zlog)
	if gateway.Provider() == config.ProviderOffline {
		zlog.Warn("no model credentials configured, serving the offline narrator")
	}
	zlog.Info("model backend ready",
		zap.String("provider", gateway.Provider()),
		zap.String("model", cfg.AI.Model),
		zap.Int("max_concurrency", cfg.Gateway.MaxConcurrency))

	engine := narrative.NewEngine(gateway, genres, cfg.Narrative(), zlog)
	stories := story.NewService(sessions, engine, genres, zlog)

	router := handler.NewRouter(genres, stories, zlog, handler.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Provider:    gateway.Provider(),
	})

	startServer(ctx, zlog, cfg.Server.ListenAddr, router)
}

func startServer(ctx context.Context, zlog *zap.Logger, addr string, router http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zlog.Info("Narrative Forge backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
	zlog.Info("server stopped")
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
