package batch

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/repository"
	"go.uber.org/zap"
)

// TableNumberResolver はテーブルIDからテーブル番号を引きます
type TableNumberResolver interface {
	GetNumbersByIDs(ctx context.Context, ids []int64) (map[int64]int, error)
}

// NotificationBatchService は通知バッチ処理を担当します
type NotificationBatchService struct {
	args             []model.Notification
	db               *database.DB
	notificationRepo repository.NotificationRepository
	tableRepo        TableNumberResolver
	cfg              *config.Config
	logger           *zap.Logger
}

// NewNotificationBatchService は新しいNotificationBatchServiceを作成します
func NewNotificationBatchService(cfg *config.Config, logger *zap.Logger) (*NotificationBatchService, error) {
	db, err := database.NewDB(cfg.DB, cfg.EnableTracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &NotificationBatchService{
		db:               db,
		notificationRepo: repository.NewNotificationRepository(db),
		tableRepo:        repository.NewTableRepository(db),
		cfg:              cfg,
		logger:           logger,
	}, nil
}

// Close は終了処理を行います
func (s *NotificationBatchService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetArgs は通知バッチ処理の引数を設定します
func (s *NotificationBatchService) SetArgs(args []model.Notification) {
	s.args = args
}

// Run は通知バッチ処理を実行します
func (s *NotificationBatchService) Run(ctx context.Context) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "NotificationBatchService.Run")
	defer func() { done(err) }()

	notifications := s.args
	s.logger.Info("starting notification batch", zap.Int("notifications", len(notifications)))
	startTime := time.Now()

	tableNumbers, err := s.getTableNumbers(ctx, notifications)
	if err != nil {
		return err
	}

	// 変換できない通知(削除済みテーブルなど)はスキップする
	records := make([]model.NotificationRecord, 0, len(notifications))
	for _, notification := range notifications {
		record, err := notification.ToNotificationRecord(tableNumbers)
		if err != nil {
			s.logger.Warn("skipping notification",
				zap.Int64("reservation_id", notification.Data.ReservationID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, *record)
	}

	if len(records) == 0 {
		s.logger.Info("no notifications to store")
		return nil
	}

	if err := s.notificationRepo.CreateNotifications(ctx, records); err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}

	s.logger.Info("notification batch finished",
		zap.Int("stored", len(records)),
		zap.Int("tables", len(tableNumbers)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

// 通知データに含まれるテーブルIDからテーブル番号を取得する
// N+1とならないように重複のないテーブルIDをまとめて問い合わせる
func (s *NotificationBatchService) getTableNumbers(ctx context.Context, notifications []model.Notification) (map[int64]int, error) {
	tableIDs := make([]int64, 0, len(notifications))
	for _, notification := range notifications {
		if notification.Type != model.NotificationTypeReservation {
			continue
		}
		id := notification.Data.TableID
		if id == 0 || slices.Contains(tableIDs, id) {
			continue
		}
		tableIDs = append(tableIDs, id)
	}

	if len(tableIDs) == 0 {
		return map[int64]int{}, nil
	}

	numbers, err := s.tableRepo.GetNumbersByIDs(ctx, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve table numbers: %w", err)
	}
	return numbers, nil
}
