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

	"bilancio/internal/amqp"
	"bilancio/internal/auth"
	"bilancio/internal/cache"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/server"
	"bilancio/internal/storage"
)

func main() {
	// Load .env for local development; production sets real env vars.
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger.WithComponent(applog.ComponentStorage))
	if err != nil {
		logger.Error("failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// The event stream is optional: with no AMQP URL the ledger runs
	// store-only and spends are simply not broadcast.
	opts := []ledger.Option{
		ledger.WithPolicy(core.Policy{
			RejectReinitialize:    cfg.RejectReinitialize,
			RejectDuplicateNames:  cfg.RejectDuplicateNames,
			PerCategoryShareCheck: cfg.PerCategoryShareCheck,
		}),
	}
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP))
		if err != nil {
			logger.Error("failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		opts = append(opts, ledger.WithPublisher(amqpClient))
		logger.Info("transaction event publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, transaction events will not be published")
	}

	svc := ledger.New(repo, logger.WithComponent(applog.ComponentLedger), opts...)

	var tokenCache cache.Cache[string]
	cacheManager := cache.NewManager()
	if cfg.TokenCacheSize > 0 {
		lru := cache.NewLRUCache[string](cfg.TokenCacheSize, cfg.TokenCacheTTL)
		cacheManager.Register(lru)
		tokenCache = lru
	}
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, tokenCache)

	e := server.New(cfg, logger.WithComponent(applog.ComponentHTTP), svc, tokenManager)
	srv := server.NewHTTPServer(cfg.Port, e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("starting bilancio server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
