package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/batch"
	"go.uber.org/zap"
)

const (
	projectName = "sbcntr-restaurant-completion"
)

func main() {
	// コマンドライン引数のパース
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 最後の引数として渡されたタスクトークンを取得
	// ENV=LOCALの場合はタスクトークンを取得しない
	local := os.Getenv("ENV") == "LOCAL"
	taskToken := "DUMMY_TASK_TOKEN"
	if !local {
		if flag.NArg() == 0 || flag.Arg(flag.NArg()-1) == "" {
			log.Fatalf("Task token is required")
		}
		taskToken = flag.Arg(flag.NArg() - 1)
	}

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %+v", utils.WithStack(err))
	}
	cfg.SFN.TaskToken = taskToken

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
			// X-Ray設定失敗時はデフォルトの設定を使用
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				logger.Fatal("Failed to configure default X-Ray settings", zap.Error(configErr))
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	// Step Functionsクライアントの初期化
	var (
		sfnClient *sfn.Client
		notifier  batch.SFNClient
	)
	if !local {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			logger.Fatal("Failed to load AWS config", zap.Error(err))
		}
		sfnClient = sfn.NewFromConfig(awsCfg)
		notifier = sfnClient
	}

	// サービスの初期化
	service, err := batch.NewCompletionBatchService(cfg, notifier, logger)
	if err != nil {
		logger.Fatal("Failed to create service", zap.Error(err))
	}
	defer service.Close()

	// コンテキストの作成
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// X-Rayセグメントの作成
	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)

		if err := seg.AddMetadata("timeout", timeout.String()); err != nil {
			logger.Warn("Failed to add timeout metadata", zap.Error(err))
		}
	}

	// シグナルハンドリングの設定
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// バッチ処理の実行
	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, logger, *timeout, service.Run)
	}()

	// シグナルまたはエラーの待機
	select {
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Batch process failed", utils.ErrorFields(err)...)

			// ローカル環境以外の場合のみStep Functionsのエラー通知を行う
			if sfnClient != nil {
				_, sendErr := sfnClient.SendTaskFailure(context.Background(), &sfn.SendTaskFailureInput{
					TaskToken: aws.String(taskToken),
					Error:     aws.String("Batch process failed"),
					Cause:     aws.String(err.Error()),
				})
				if sendErr != nil {
					logger.Error("Failed to send task failure", zap.Error(sendErr))
				}
			}

			service.Close()
			logger.Sync() //nolint:errcheck
			os.Exit(1)
		}
		logger.Info("Batch process completed successfully")
	}
}
