package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-restaurant/internal/cache"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/handler"
	"github.com/uma-arai/sbcntr-restaurant/internal/repository"
	"github.com/uma-arai/sbcntr-restaurant/internal/router"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/account"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/ledger"
	"go.uber.org/zap"
)

const (
	projectName = "sbcntr-restaurant"
)

func main() {
	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %+v", utils.WithStack(err))
	}

	logger, err := utils.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			logger.Warn("Failed to configure X-Ray", zap.Error(err))
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				logger.Fatal("Failed to configure default X-Ray settings", zap.Error(configErr))
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// データベースの準備
	db, err := database.NewDB(cfg.DB, cfg.EnableTracing)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.WaitForDB(ctx, db, cfg.DB.WaitTimeout, logger); err != nil {
		logger.Fatal("Database is not available", zap.Error(err))
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	checks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}

	// Redisが未設定の場合は空き状況をキャッシュしない
	var availability ledger.AvailabilityCache
	if redisClient := cache.NewClient(cfg.Redis); redisClient != nil {
		defer redisClient.Close()
		availability = cache.NewAvailabilityCache(redisClient, cfg.Redis.CacheTTL)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		logger.Info("REDIS_ADDR is not set, availability cache is disabled")
	}

	// サービスの初期化
	reservations := ledger.NewService(ledger.NewPostgresStore(db), availability, cfg.Booking, logger)
	accounts := account.NewService(
		repository.NewUserRepository(db),
		repository.NewPromocodeRepository(db),
		repository.NewNotificationRepository(db),
		logger,
	)

	h := handler.NewHandler(reservations, accounts, checks, cfg.Booking.Location, logger)
	var app http.Handler = router.New(h, router.Options{
		RateLimitPerMin: cfg.Server.RateLimitPerMin,
		Logger:          logger,
	})
	if cfg.EnableTracing {
		app = xray.Handler(xray.NewFixedSegmentNamer(projectName), app)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: app,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	// シグナルまたはエラーの待機
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server")
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server gracefully", zap.Error(err))
	}
	logger.Info("Server stopped")
}
