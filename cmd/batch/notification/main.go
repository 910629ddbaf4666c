package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/batch"
	"go.uber.org/zap"
)

const (
	projectName = "sbcntr-restaurant-notification"
)

func main() {
	// コマンドライン引数のパース
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 最後の引数として通知データ(JSON)を受け取る
	// Step Functionsでは完了バッチの出力がそのまま渡される
	if flag.NArg() == 0 {
		log.Fatalf("Notifications JSON is required")
	}
	input := flag.Arg(flag.NArg() - 1)

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

	notifications, err := batch.ParseNotifications(input)
	if err != nil {
		logger.Fatal("Failed to parse notifications", zap.Error(err))
	}

	// 通知バッチサービスを作成
	service, err := batch.NewNotificationBatchService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create notification batch service", zap.Error(err))
	}
	defer service.Close()
	service.SetArgs(notifications)

	// コンテキストを作成
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// X-Rayセグメントの作成
	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)

		if err := seg.AddMetadata("notification_count", len(notifications)); err != nil {
			logger.Warn("Failed to add notification_count metadata", zap.Error(err))
		}
	}

	// シグナルハンドリング
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// バッチ処理の実行
	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, logger, *timeout, service.Run)
	}()

	// シグナルを待機
	select {
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Batch process failed", utils.ErrorFields(err)...)
			service.Close()
			logger.Sync() //nolint:errcheck
			os.Exit(1)
		}
		logger.Info("Batch process completed successfully")
	}
}
