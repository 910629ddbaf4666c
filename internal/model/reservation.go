package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus は予約のステータスを表します
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Reservation はテーブル予約のドメインモデルです
// データベースの reservations テーブルと一致しています
type Reservation struct {
	ID        int64             `db:"id" json:"id"`
	UserID    int64             `db:"user_id" json:"user_id"`
	TableID   int64             `db:"table_id" json:"table_id"`
	StartTime time.Time         `db:"start_time" json:"start_time"`
	EndTime   time.Time         `db:"end_time" json:"end_time"`
	PartySize int               `db:"party_size" json:"party_size"`
	Price     decimal.Decimal   `db:"price" json:"price"`
	Status    ReservationStatus `db:"status" json:"status"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// Interval は予約の占有区間を返します
func (r Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// Active はキャンセルされていない予約かどうかを返します
// キャンセル以外の予約はテーブルの時間帯を占有します
func (r Reservation) Active() bool {
	return r.Status != StatusCancelled
}

// Refundable は残高へ返金できる状態かどうかを返します
func (r Reservation) Refundable() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// CompletedReservation は完了時点の予約とユーザー情報のスナップショットです
type CompletedReservation struct {
	ID            int64           `db:"id" json:"id"`
	ReservationID int64           `db:"reservation_id" json:"reservation_id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	TableID       int64           `db:"table_id" json:"table_id"`
	StartTime     time.Time       `db:"start_time" json:"start_time"`
	EndTime       time.Time       `db:"end_time" json:"end_time"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Name          string          `db:"name" json:"name"`
	Age           int             `db:"age" json:"age"`
	Email         string          `db:"email" json:"email"`
	Phone         *string         `db:"phone" json:"phone,omitempty"`
	PromocodeID   *int64          `db:"promocode_id" json:"promocode_id,omitempty"`
	CompletedAt   time.Time       `db:"completed_at" json:"completed_at"`
}

// NewCompletedReservation は予約とユーザーから完了スナップショットを作成します
func NewCompletedReservation(r Reservation, u User, now time.Time) CompletedReservation {
	return CompletedReservation{
		ReservationID: r.ID,
		UserID:        r.UserID,
		TableID:       r.TableID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Price:         r.Price,
		Name:          u.Name,
		Age:           u.Age,
		Email:         u.Email,
		Phone:         u.Phone,
		PromocodeID:   u.PromocodeID,
		CompletedAt:   now,
	}
}

// ReservationEvent は予約のステータス変更時に発行されるイベントの構造体
type ReservationEvent struct {
	ReservationID int64             `json:"reservation_id"`
	UserID        int64             `json:"user_id"`
	TableID       int64             `json:"table_id"`
	DateTime      time.Time         `json:"date_time"`
	Status        ReservationStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewReservationEvent は予約からイベントを作成します
func NewReservationEvent(r Reservation, now time.Time) ReservationEvent {
	return ReservationEvent{
		ReservationID: r.ID,
		UserID:        r.UserID,
		TableID:       r.TableID,
		DateTime:      r.StartTime,
		Status:        r.Status,
		CreatedAt:     now,
	}
}
