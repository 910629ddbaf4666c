package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"go.uber.org/zap"
)

// MockNotificationRepository はテスト用のモックリポジトリです
type MockNotificationRepository struct {
	createNotificationsCalled bool
	createNotificationsError  error
	notifications             []model.NotificationRecord
}

func (m *MockNotificationRepository) CreateNotifications(ctx context.Context, records []model.NotificationRecord) error {
	m.createNotificationsCalled = true
	m.notifications = records
	return m.createNotificationsError
}

func (m *MockNotificationRepository) Create(ctx context.Context, tx *sqlx.Tx, record *model.NotificationRecord) error {
	return nil
}

func (m *MockNotificationRepository) GetByUserID(ctx context.Context, userID int64) ([]model.NotificationRecord, error) {
	return nil, nil
}

func (m *MockNotificationRepository) MarkAsRead(ctx context.Context, id int64) error {
	return nil
}

// MockTableRepository はテスト用のモックリポジトリです
type MockTableRepository struct {
	getNumbersByIDsCalls int
	requestedIDs         []int64
	getNumbersByIDsError error
	numbers              map[int64]int
}

func (m *MockTableRepository) GetNumbersByIDs(ctx context.Context, ids []int64) (map[int64]int, error) {
	m.getNumbersByIDsCalls++
	m.requestedIDs = ids
	if m.getNumbersByIDsError != nil {
		return nil, m.getNumbersByIDsError
	}
	out := make(map[int64]int, len(ids))
	for _, id := range ids {
		if n, ok := m.numbers[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

// newTestNotificationBatchService はテスト用のNotificationBatchServiceを作成します
func newTestNotificationBatchService(mockNotificationRepo *MockNotificationRepository, mockTableRepo *MockTableRepository) *NotificationBatchService {
	return &NotificationBatchService{
		notificationRepo: mockNotificationRepo,
		tableRepo:        mockTableRepo,
		cfg:              &config.Config{},
		logger:           zap.NewNop(),
	}
}

func reservationNotification(userID, tableID int64, status model.ReservationStatus, at time.Time) model.Notification {
	return model.NewReservationNotification(model.ReservationEvent{
		ReservationID: userID * 100,
		UserID:        userID,
		TableID:       tableID,
		DateTime:      at,
		Status:        status,
		CreatedAt:     at,
	})
}

func TestNotificationBatchService_Run(t *testing.T) {
	// X-Rayのセグメントを設定
	ctx, seg := xray.BeginSegment(context.Background(), "TestNotificationBatchService_Run")
	defer seg.Close(nil)

	now := time.Now().UTC()
	tests := []struct {
		name          string
		notifications []model.Notification
		repoError     error
		tableError    error
		wantErr       bool
		wantStored    int
		wantTableIDs  []int64
	}{
		{
			name:          "0件の通知",
			notifications: []model.Notification{},
			wantStored:    0,
		},
		{
			name: "1件の通知を正常に処理",
			notifications: []model.Notification{
				reservationNotification(1, 10, model.StatusCompleted, now),
			},
			wantStored:   1,
			wantTableIDs: []int64{10},
		},
		{
			name: "同じテーブルの通知はまとめて問い合わせる",
			notifications: []model.Notification{
				reservationNotification(1, 10, model.StatusCompleted, now),
				reservationNotification(2, 10, model.StatusCancelled, now),
				reservationNotification(3, 20, model.StatusCompleted, now),
			},
			wantStored:   3,
			wantTableIDs: []int64{10, 20},
		},
		{
			name: "削除済みテーブルの通知はスキップ",
			notifications: []model.Notification{
				reservationNotification(1, 10, model.StatusCompleted, now),
				reservationNotification(2, 99, model.StatusCompleted, now),
			},
			wantStored:   1,
			wantTableIDs: []int64{10, 99},
		},
		{
			name: "テーブル番号の取得に失敗",
			notifications: []model.Notification{
				reservationNotification(1, 10, model.StatusCompleted, now),
			},
			tableError:   errors.New("connection refused"),
			wantErr:      true,
			wantTableIDs: []int64{10},
		},
		{
			name: "通知の保存に失敗",
			notifications: []model.Notification{
				reservationNotification(1, 10, model.StatusCompleted, now),
			},
			repoError:    errors.New("insert failed"),
			wantErr:      true,
			wantStored:   1,
			wantTableIDs: []int64{10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockNotificationRepo := &MockNotificationRepository{
				createNotificationsError: tt.repoError,
			}
			mockTableRepo := &MockTableRepository{
				getNumbersByIDsError: tt.tableError,
				numbers:              map[int64]int{10: 1, 20: 2},
			}

			service := newTestNotificationBatchService(mockNotificationRepo, mockTableRepo)
			service.SetArgs(tt.notifications)
			err := service.Run(ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}

			if len(mockNotificationRepo.notifications) != tt.wantStored {
				t.Errorf("Expected %d notifications, got %d", tt.wantStored, len(mockNotificationRepo.notifications))
			}
			if tt.wantStored == 0 && tt.repoError == nil && mockNotificationRepo.createNotificationsCalled {
				t.Error("CreateNotifications should not be called without records")
			}

			// テーブル番号の問い合わせは最大1回
			if len(tt.wantTableIDs) == 0 {
				if mockTableRepo.getNumbersByIDsCalls != 0 {
					t.Errorf("GetNumbersByIDs called %d times, want 0", mockTableRepo.getNumbersByIDsCalls)
				}
				return
			}
			if mockTableRepo.getNumbersByIDsCalls != 1 {
				t.Errorf("GetNumbersByIDs called %d times, want 1", mockTableRepo.getNumbersByIDsCalls)
			}
			if len(mockTableRepo.requestedIDs) != len(tt.wantTableIDs) {
				t.Errorf("requested table ids = %v, want %v", mockTableRepo.requestedIDs, tt.wantTableIDs)
			}
		})
	}
}

func TestNotificationBatchService_CommonNotification(t *testing.T) {
	mockNotificationRepo := &MockNotificationRepository{}
	mockTableRepo := &MockTableRepository{}

	service := newTestNotificationBatchService(mockNotificationRepo, mockTableRepo)
	service.SetArgs([]model.Notification{{
		Type:      model.NotificationTypeCommon,
		CreatedAt: time.Now(),
		Data:      model.ReservationEvent{UserID: 5},
	}})

	if err := service.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if mockTableRepo.getNumbersByIDsCalls != 0 {
		t.Error("GetNumbersByIDs should not be called for common notifications")
	}
	if len(mockNotificationRepo.notifications) != 1 || mockNotificationRepo.notifications[0].Type != model.NotificationTypeCommon {
		t.Errorf("unexpected records: %+v", mockNotificationRepo.notifications)
	}
}
