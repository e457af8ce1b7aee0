package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"university-assistant/internal/assistant/conversation"
	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/assistant/knowledge"
	"university-assistant/internal/assistant/pipeline"
	"university-assistant/internal/assistant/planner"
	"university-assistant/internal/common/config"
	"university-assistant/internal/common/database"
	"university-assistant/internal/common/genai"
	"university-assistant/internal/common/logger"
	"university-assistant/internal/common/observability"
	"university-assistant/internal/server"
	"university-assistant/internal/university"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting assistant server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("assistant-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Postgres with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Postgres initialization")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis initialization")
	if err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}
	defer rdb.Close()

	gen := genai.NewClient(cfg.GenAI, log)

	store := university.NewStore(pg.DB, log)
	contexts := conversation.NewStore(rdb, time.Duration(cfg.Assistant.ContextTTL)*time.Second, log)
	resolver := intent.NewResolver(gen, log)
	dataPlanner := planner.New(store, log)
	searcher := knowledge.NewSearcher(pg.DB, rdb, gen,
		time.Duration(cfg.Assistant.SearchCacheTTL)*time.Second, log)

	asker := pipeline.New(resolver, contexts, dataPlanner, searcher, gen,
		cfg.Assistant.HistoryWindow, log)

	srv := server.New(asker, pg, rdb, obs, log)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Router(),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// pprof on a side port for live inspection
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Warn("pprof server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("Server stopped")
}
