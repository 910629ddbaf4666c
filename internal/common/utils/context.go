package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TimeoutError はバッチ処理が制限時間内に終わらなかったことを表します
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("batch process timed out after %v", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// RunWithTimeout は fn を timeout 以内で実行します
// 制限時間を過ぎた場合は fn のコンテキストをキャンセルし、終了を待たずに *TimeoutError を返します
// 呼び出し元がキャンセルした場合はそのエラーを返します
func RunWithTimeout(ctx context.Context, logger *zap.Logger, timeout time.Duration, fn func(context.Context) error) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(runCtx)
	}()

	select {
	case err := <-errChan:
		logger.Debug("batch process returned", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return err
	case <-runCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Warn("batch process cancelled", zap.Duration("elapsed", time.Since(started)))
			return ctx.Err()
		}
		logger.Error("batch process timed out", zap.Duration("timeout", timeout))
		return &TimeoutError{Timeout: timeout}
	}
}
