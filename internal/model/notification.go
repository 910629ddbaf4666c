package model

import (
	"fmt"
	"time"
)

// NotificationType は通知の種類を表します
type NotificationType string

const (
	// NotificationTypeReservation は予約関連の通知を表します
	NotificationTypeReservation NotificationType = "reservation"
	// NotificationTypeCommon は共通の通知を表します
	NotificationTypeCommon NotificationType = "common"
)

// Notification はイベントIFを受け取るための定義です
// アプリケーションサービス層で利用されます
type Notification struct {
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Data      ReservationEvent `json:"data"`
}

// NotificationRecord は通知のドメインモデルです
// データベースに永続化される通知レコードと今回は一致しています
type NotificationRecord struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	Type      NotificationType `db:"type" json:"type"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// ToNotificationRecord は通知を通知レコードに変換します
// tableNumbers はテーブルIDからテーブル番号への対応表です
func (n Notification) ToNotificationRecord(tableNumbers map[int64]int) (*NotificationRecord, error) {
	if n.Data.UserID == 0 {
		return nil, fmt.Errorf("invalid notification data: user_id is required")
	}

	if n.Type != NotificationTypeReservation {
		return &NotificationRecord{
			UserID:    n.Data.UserID,
			Title:     "You have a new notification",
			Message:   "You have a new notification.",
			Type:      NotificationTypeCommon,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.CreatedAt,
		}, nil
	}

	number, ok := tableNumbers[n.Data.TableID]
	if !ok {
		return nil, fmt.Errorf("table_id %d not found in tableNumbers", n.Data.TableID)
	}

	title, message := reservationMessage(n.Data.Status)
	message = fmt.Sprintf("%s\nDate: %s\nTable: %d", message, n.Data.DateTime.Format("2006-01-02 15:04"), number)

	return &NotificationRecord{
		UserID:    n.Data.UserID,
		Title:     title,
		Message:   message,
		IsRead:    false,
		Type:      NotificationTypeReservation,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.CreatedAt,
	}, nil
}

func reservationMessage(status ReservationStatus) (string, string) {
	switch status {
	case StatusConfirmed:
		return "Reservation confirmed", "Your reservation has been confirmed."
	case StatusCancelled:
		return "Reservation cancelled", "Your reservation has been cancelled and the amount refunded."
	case StatusCompleted:
		return "Thank you for visiting", "Your reservation has been completed."
	default:
		return "Reservation updated", "The status of your reservation has been updated."
	}
}

// NewReservationNotification は予約イベントから通知を作成します
func NewReservationNotification(event ReservationEvent) Notification {
	return Notification{
		Type:      NotificationTypeReservation,
		CreatedAt: event.CreatedAt,
		Data:      event,
	}
}
