package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

// 削除済みのユーザー・テーブルを参照する予約は 0 として読み出す
const reservationColumns = `
	id,
	COALESCE(user_id, 0) AS user_id,
	COALESCE(table_id, 0) AS table_id,
	start_time,
	end_time,
	party_size,
	price,
	status,
	created_at,
	updated_at`

const completedColumns = `
	id,
	reservation_id,
	COALESCE(user_id, 0) AS user_id,
	COALESCE(table_id, 0) AS table_id,
	start_time,
	end_time,
	price,
	name,
	age,
	email,
	phone,
	promocode_id,
	completed_at`

type ReservationRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Reservation, error)
	List(ctx context.Context, limit, skip int) ([]model.Reservation, error)
	ListCompleted(ctx context.Context, limit, skip int) ([]model.CompletedReservation, error)
	ListActiveBetween(ctx context.Context, tableID int64, from, to time.Time) ([]model.Reservation, error)
	ListFinishedConfirmed(ctx context.Context, now time.Time) ([]model.Reservation, error)
	ListStalePending(ctx context.Context, now time.Time) ([]model.Reservation, error)

	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Reservation, error)
	ListActiveByTableForUpdate(ctx context.Context, tx *sqlx.Tx, tableID int64) ([]model.Reservation, error)
	HasOverlap(ctx context.Context, tx *sqlx.Tx, tableID int64, start, end time.Time) (bool, error)
	Create(ctx context.Context, tx *sqlx.Tx, reservation *model.Reservation) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, reservationID int64, status model.ReservationStatus) error
	CreateCompleted(ctx context.Context, tx *sqlx.Tx, completed *model.CompletedReservation) error
}

type ReservationRepositoryImpl struct {
	db *database.DB
}

func NewReservationRepository(db *database.DB) *ReservationRepositoryImpl {
	return &ReservationRepositoryImpl{db: db}
}

// GetByID は予約を1件取得します
func (r *ReservationRepositoryImpl) GetByID(ctx context.Context, id int64) (_ *model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.GetByID")
	defer func() { done(err) }()

	var reservation model.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if err = r.db.GetContext(ctx, &reservation, query, id); err != nil {
		return nil, mapError(err)
	}
	return &reservation, nil
}

// List は予約をID順に取得します
func (r *ReservationRepositoryImpl) List(ctx context.Context, limit, skip int) (_ []model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.List")
	defer func() { done(err) }()

	reservations := []model.Reservation{}
	query := `SELECT ` + reservationColumns + ` FROM reservations ORDER BY id LIMIT $1 OFFSET $2`
	if err = r.db.SelectContext(ctx, &reservations, query, limit, skip); err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	return reservations, nil
}

// ListCompleted は完了済み予約のスナップショットを取得します
func (r *ReservationRepositoryImpl) ListCompleted(ctx context.Context, limit, skip int) (_ []model.CompletedReservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.ListCompleted")
	defer func() { done(err) }()

	completed := []model.CompletedReservation{}
	query := `SELECT ` + completedColumns + ` FROM reservations_completed ORDER BY completed_at DESC, id DESC LIMIT $1 OFFSET $2`
	if err = r.db.SelectContext(ctx, &completed, query, limit, skip); err != nil {
		return nil, fmt.Errorf("failed to query completed reservations: %w", err)
	}
	return completed, nil
}

// ListActiveBetween は [from, to) と重なるキャンセル以外の予約を取得します
func (r *ReservationRepositoryImpl) ListActiveBetween(ctx context.Context, tableID int64, from, to time.Time) (_ []model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.ListActiveBetween")
	defer func() { done(err) }()

	reservations := []model.Reservation{}
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE table_id = $1
		AND status <> 'cancelled'
		AND start_time < $3
		AND end_time > $2
		ORDER BY start_time ASC`
	if err = r.db.SelectContext(ctx, &reservations, query, tableID, from, to); err != nil {
		return nil, fmt.Errorf("failed to query reservations for table %d: %w", tableID, err)
	}
	return reservations, nil
}

// ListFinishedConfirmed は終了時刻を過ぎた確定済み予約を取得します
func (r *ReservationRepositoryImpl) ListFinishedConfirmed(ctx context.Context, now time.Time) (_ []model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.ListFinishedConfirmed")
	defer func() { done(err) }()

	reservations := []model.Reservation{}
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'confirmed'
		AND end_time <= $1
		ORDER BY end_time ASC`
	if err = r.db.SelectContext(ctx, &reservations, query, now); err != nil {
		return nil, fmt.Errorf("failed to query finished reservations: %w", err)
	}
	return reservations, nil
}

// ListStalePending は開始時刻を過ぎても確定されていない予約を取得します
func (r *ReservationRepositoryImpl) ListStalePending(ctx context.Context, now time.Time) (_ []model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.ListStalePending")
	defer func() { done(err) }()

	reservations := []model.Reservation{}
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'pending'
		AND start_time <= $1
		ORDER BY start_time ASC`
	if err = r.db.SelectContext(ctx, &reservations, query, now); err != nil {
		return nil, fmt.Errorf("failed to query stale pending reservations: %w", err)
	}
	return reservations, nil
}

// GetForUpdate は予約を行ロック付きで取得します
func (r *ReservationRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (_ *model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.GetForUpdate")
	defer func() { done(err) }()

	var reservation model.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &reservation, query, id); err != nil {
		return nil, mapError(err)
	}
	return &reservation, nil
}

// ListActiveByTableForUpdate はテーブルの未完了予約(pending/confirmed)を行ロック付きで取得します
func (r *ReservationRepositoryImpl) ListActiveByTableForUpdate(ctx context.Context, tx *sqlx.Tx, tableID int64) (_ []model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.ListActiveByTableForUpdate")
	defer func() { done(err) }()

	reservations := []model.Reservation{}
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE table_id = $1
		AND status IN ('pending', 'confirmed')
		ORDER BY id
		FOR UPDATE`
	if err = tx.SelectContext(ctx, &reservations, query, tableID); err != nil {
		return nil, fmt.Errorf("failed to lock reservations for table %d: %w", tableID, err)
	}
	return reservations, nil
}

// HasOverlap は [start, end) と重なるキャンセル以外の予約が存在するかチェックします
// 端点が接するだけの予約は重なりとみなしません
func (r *ReservationRepositoryImpl) HasOverlap(ctx context.Context, tx *sqlx.Tx, tableID int64, start, end time.Time) (_ bool, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.HasOverlap")
	defer func() { done(err) }()

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM reservations
			WHERE table_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		)`

	var exists bool
	if err = tx.QueryRowContext(ctx, query, tableID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check overlapping reservation: %w", err)
	}
	return exists, nil
}

// Create は予約を作成し、採番されたIDと作成日時を設定します
func (r *ReservationRepositoryImpl) Create(ctx context.Context, tx *sqlx.Tx, reservation *model.Reservation) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.Create")
	defer func() { done(err) }()

	query := `
		INSERT INTO reservations (
			user_id,
			table_id,
			start_time,
			end_time,
			party_size,
			price,
			status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowContext(ctx,
		query,
		reservation.UserID,
		reservation.TableID,
		reservation.StartTime,
		reservation.EndTime,
		reservation.PartySize,
		reservation.Price,
		reservation.Status,
	).Scan(&reservation.ID, &reservation.CreatedAt, &reservation.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("failed to create reservation: %w", err))
	}
	return nil
}

// UpdateStatus は予約のステータスを更新します
func (r *ReservationRepositoryImpl) UpdateStatus(ctx context.Context, tx *sqlx.Tx, reservationID int64, status model.ReservationStatus) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.UpdateStatus")
	defer func() { done(err) }()

	query := `
		UPDATE reservations
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`

	result, err := tx.ExecContext(ctx, query, status, time.Now(), reservationID)
	if err != nil {
		return mapError(fmt.Errorf("failed to update reservation status: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: no reservation found with ID %d", model.ErrNotFound, reservationID)
	}

	return nil
}

// CreateCompleted は完了スナップショットを保存します
func (r *ReservationRepositoryImpl) CreateCompleted(ctx context.Context, tx *sqlx.Tx, completed *model.CompletedReservation) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "ReservationRepository.CreateCompleted")
	defer func() { done(err) }()

	query := `
		INSERT INTO reservations_completed (
			reservation_id,
			user_id,
			table_id,
			start_time,
			end_time,
			price,
			name,
			age,
			email,
			phone,
			promocode_id,
			completed_at
		) VALUES (
			$1, NULLIF($2::BIGINT, 0), NULLIF($3::BIGINT, 0), $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id`

	err = tx.QueryRowContext(ctx,
		query,
		completed.ReservationID,
		completed.UserID,
		completed.TableID,
		completed.StartTime,
		completed.EndTime,
		completed.Price,
		completed.Name,
		completed.Age,
		completed.Email,
		completed.Phone,
		completed.PromocodeID,
		completed.CompletedAt,
	).Scan(&completed.ID)
	if err != nil {
		return mapError(fmt.Errorf("failed to archive reservation %d: %w", completed.ReservationID, err))
	}
	return nil
}
