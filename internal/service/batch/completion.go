package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/redis/go-redis/v9"
	"github.com/uma-arai/sbcntr-restaurant/internal/cache"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/monitoring"
	"github.com/uma-arai/sbcntr-restaurant/internal/repository"
	"github.com/uma-arai/sbcntr-restaurant/internal/service/ledger"
	"go.uber.org/zap"
)

// Batch actions
const (
	ActionComplete = "complete"
	ActionExpire   = "expire"
)

// SFNClient はStep Functionsへの結果通知に使うクライアントです
type SFNClient interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

// DueReservationFinder は処理対象の予約を検索します
type DueReservationFinder interface {
	ListFinishedConfirmed(ctx context.Context, now time.Time) ([]model.Reservation, error)
	ListStalePending(ctx context.Context, now time.Time) ([]model.Reservation, error)
}

// ReservationTransitioner は予約のステータスを遷移させます
// ロックした時点で対象のステータスでなくなっていた予約は変更せず、changed が false になります
type ReservationTransitioner interface {
	Finish(ctx context.Context, id int64) (*model.Reservation, bool, error)
	Expire(ctx context.Context, id int64) (*model.Reservation, bool, error)
}

// CompletionBatchService は終了した予約の完了と、期限切れの仮予約の取り消しを担当します
type CompletionBatchService struct {
	db          *database.DB
	redis       *redis.Client
	finder      DueReservationFinder
	transitions ReservationTransitioner
	sfnClient   SFNClient
	cfg         *config.Config
	logger      *zap.Logger
	now         func() time.Time
}

// NewCompletionBatchService は新しいCompletionBatchServiceを作成します
// sfnClient が nil の場合はStep Functionsへの通知を行いません
func NewCompletionBatchService(cfg *config.Config, sfnClient SFNClient, logger *zap.Logger) (*CompletionBatchService, error) {
	db, err := database.NewDB(cfg.DB, cfg.EnableTracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	// 台帳と同じキャッシュを無効化できるようにRedisにも接続する
	var availability ledger.AvailabilityCache
	redisClient := cache.NewClient(cfg.Redis)
	if redisClient != nil {
		availability = cache.NewAvailabilityCache(redisClient, cfg.Redis.CacheTTL)
	}

	return &CompletionBatchService{
		db:          db,
		redis:       redisClient,
		finder:      repository.NewReservationRepository(db),
		transitions: ledger.NewService(ledger.NewPostgresStore(db), availability, cfg.Booking, logger),
		sfnClient:   sfnClient,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Close は終了処理を行います
func (s *CompletionBatchService) Close() error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run は完了バッチ処理を実行します
func (s *CompletionBatchService) Run(ctx context.Context) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "CompletionBatchService.Run")
	defer func() { done(err) }()

	startTime := s.now()

	completed, err := s.process(ctx, ActionComplete, s.finder.ListFinishedConfirmed, s.transitions.Finish)
	if err != nil {
		return utils.WithStack(fmt.Errorf("failed to complete finished reservations: %w", err))
	}
	expired, err := s.process(ctx, ActionExpire, s.finder.ListStalePending, s.transitions.Expire)
	if err != nil {
		return utils.WithStack(fmt.Errorf("failed to expire stale reservations: %w", err))
	}

	events := append(completed, expired...)
	if err := s.sendTaskSuccess(ctx, events); err != nil {
		return utils.WithStack(fmt.Errorf("failed to send task success: %w", err))
	}

	s.logger.Info("completion batch finished",
		zap.Int("completed", len(completed)),
		zap.Int("expired", len(expired)),
		zap.Duration("duration", s.now().Sub(startTime)),
	)
	return nil
}

// process は検索した予約を1件ずつ別トランザクションで遷移させます
// 失敗した予約はログに残して次の予約へ進みます
// 検索後に他の操作で状態が変わった予約は遷移させず、イベントも作りません
func (s *CompletionBatchService) process(
	ctx context.Context,
	action string,
	find func(ctx context.Context, now time.Time) ([]model.Reservation, error),
	apply func(ctx context.Context, id int64) (*model.Reservation, bool, error),
) ([]model.ReservationEvent, error) {
	reservations, err := find(ctx, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("found reservations", zap.String("action", action), zap.Int("count", len(reservations)))

	events := make([]model.ReservationEvent, 0, len(reservations))
	for _, r := range reservations {
		if err := ctx.Err(); err != nil {
			return events, err
		}

		updated, changed, err := apply(ctx, r.ID)
		monitoring.TrackBatchReservation(action, err)
		if err != nil {
			s.logger.Warn("failed to process reservation",
				zap.String("action", action),
				zap.Int64("reservation_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		if !changed {
			s.logger.Info("reservation already changed, skipping",
				zap.String("action", action),
				zap.Int64("reservation_id", r.ID),
				zap.String("status", string(updated.Status)),
			)
			continue
		}
		events = append(events, model.NewReservationEvent(*updated, s.now()))
	}
	return events, nil
}

// sendTaskSuccess は、Step Functionsのタスク成功を通知します
// 出力は通知バッチの入力形式と同じです
func (s *CompletionBatchService) sendTaskSuccess(ctx context.Context, events []model.ReservationEvent) error {
	// ローカルの場合はStep Functionsの処理をスキップ
	if os.Getenv("ENV") == "LOCAL" || s.sfnClient == nil {
		s.logger.Info("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}

	output, err := MarshalNotifications(events)
	if err != nil {
		return err
	}

	taskToken := s.cfg.SFN.TaskToken
	if taskToken == "" {
		return fmt.Errorf("SFN task token is not set in config")
	}

	_, err = s.sfnClient.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	s.logger.Info("sent task success", zap.Int("notifications", len(events)))
	return nil
}

// NotificationsPayload は完了バッチと通知バッチの間で受け渡すJSONです
type NotificationsPayload struct {
	Notifications []model.Notification `json:"notifications"`
}

// MarshalNotifications はイベントを通知バッチの入力JSONに変換します
func MarshalNotifications(events []model.ReservationEvent) ([]byte, error) {
	payload := NotificationsPayload{Notifications: make([]model.Notification, len(events))}
	for i, event := range events {
		payload.Notifications[i] = model.NewReservationNotification(event)
	}
	output, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifications: %w", err)
	}
	return output, nil
}

// ParseNotifications は通知バッチの入力JSONを読み取ります
func ParseNotifications(input string) ([]model.Notification, error) {
	var payload NotificationsPayload
	if err := json.Unmarshal([]byte(input), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse notifications: %w", err)
	}
	return payload.Notifications, nil
}
