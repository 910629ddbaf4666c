package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/monitoring"
	"go.uber.org/zap"
)

// DateLayout は空き状況を問い合わせる日付の書式です
const DateLayout = "2006-01-02"

// BookRequest は予約作成の入力です
type BookRequest struct {
	TableID   int64
	UserID    int64
	Start     time.Time
	Duration  time.Duration
	PartySize int
}

// Service は予約台帳です
// 同じテーブルに対するキャンセル以外の予約が重ならないことを保証します
type Service struct {
	store  Store
	cache  AvailabilityCache
	rules  config.BookingConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService は新しい台帳サービスを作成します。cache が nil の場合はキャッシュしません
func NewService(store Store, cache AvailabilityCache, rules config.BookingConfig, logger *zap.Logger) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	return &Service{
		store:  store,
		cache:  cache,
		rules:  rules,
		logger: logger,
		now:    time.Now,
	}
}

// Book はテーブルを予約し、料金をユーザーの残高から引き落とします
func (s *Service) Book(ctx context.Context, req BookRequest) (_ *model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "Ledger.Book")
	defer func() {
		done(err)
		monitoring.TrackLedgerOperation("book", err)
	}()

	now := s.now()
	if err := s.validateBooking(req, now); err != nil {
		return nil, err
	}
	interval := model.Interval{Start: req.Start, End: req.Start.Add(req.Duration)}

	var reservation model.Reservation
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		table, err := tx.LockTable(ctx, req.TableID)
		if err != nil {
			return fmt.Errorf("table %d: %w", req.TableID, err)
		}
		user, err := tx.LockUser(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("user %d: %w", req.UserID, err)
		}
		if req.PartySize > table.Seats {
			return fmt.Errorf("%w: table %d seats %d, party of %d", model.ErrCapacityExceeded, table.Number, table.Seats, req.PartySize)
		}

		overlap, err := tx.HasOverlap(ctx, table.ID, interval)
		if err != nil {
			return err
		}
		if overlap {
			return model.ErrOverlap
		}

		price, err := s.price(ctx, tx, table, user, now)
		if err != nil {
			return err
		}
		if price.GreaterThan(user.Balance) {
			return fmt.Errorf("%w: price %s, balance %s", model.ErrInsufficientFunds, price.StringFixed(2), user.Balance.StringFixed(2))
		}

		reservation = model.Reservation{
			UserID:    user.ID,
			TableID:   table.ID,
			StartTime: interval.Start,
			EndTime:   interval.End,
			PartySize: req.PartySize,
			Price:     price,
			Status:    model.StatusPending,
		}
		if err := tx.InsertReservation(ctx, &reservation); err != nil {
			return err
		}
		return tx.AdjustBalance(ctx, user.ID, price.Neg())
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, reservation.TableID, reservation.Interval())
	s.logger.Info("reservation booked",
		zap.Int64("reservation_id", reservation.ID),
		zap.Int64("table_id", reservation.TableID),
		zap.Time("start_time", reservation.StartTime),
		zap.Time("end_time", reservation.EndTime),
	)
	return &reservation, nil
}

func (s *Service) validateBooking(req BookRequest, now time.Time) error {
	if req.Duration <= 0 {
		return model.ErrInvalidInterval
	}
	if req.Duration < s.rules.MinDuration {
		return fmt.Errorf("%w: minimum is %v", model.ErrTooShort, s.rules.MinDuration)
	}
	if s.rules.MaxDuration > 0 && req.Duration > s.rules.MaxDuration {
		return fmt.Errorf("%w: maximum is %v", model.ErrTooLong, s.rules.MaxDuration)
	}
	if req.Start.Before(now) {
		return model.ErrInPast
	}
	if req.PartySize < 1 || req.PartySize > s.rules.MaxPartySize {
		return fmt.Errorf("%w: must be between 1 and %d", model.ErrInvalidPartySize, s.rules.MaxPartySize)
	}
	return nil
}

// price はユーザーの割引コードを適用した料金を返します
// 失効済みまたは削除済みのコードは無視します
func (s *Service) price(ctx context.Context, tx Tx, table *model.Table, user *model.User, now time.Time) (decimal.Decimal, error) {
	if user.PromocodeID == nil {
		return table.Price.Round(2), nil
	}
	promocode, err := tx.GetPromocode(ctx, *user.PromocodeID)
	if errors.Is(err, model.ErrNotFound) {
		return table.Price.Round(2), nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	if promocode.Expired(now) {
		return table.Price.Round(2), nil
	}
	return model.ApplyDiscount(table.Price, promocode.Discount), nil
}

// Confirm は保留中の予約を確定します。確定済み・完了済みの予約はそのまま返します
func (s *Service) Confirm(ctx context.Context, id int64) (*model.Reservation, error) {
	r, _, err := s.transition(ctx, "confirm", id, func(ctx context.Context, tx Tx, r *model.Reservation) (bool, error) {
		switch r.Status {
		case model.StatusPending:
			return true, s.setStatus(ctx, tx, r, model.StatusConfirmed)
		case model.StatusConfirmed, model.StatusCompleted:
			return false, nil
		default:
			return false, fmt.Errorf("%w: cannot confirm %s reservation", model.ErrInvalidTransition, r.Status)
		}
	})
	return r, err
}

// Cancel は予約をキャンセルし、料金を返金します
// キャンセル済みの予約に対しては何もせず、二重に返金しません
func (s *Service) Cancel(ctx context.Context, id int64) (*model.Reservation, error) {
	r, _, err := s.transition(ctx, "cancel", id, func(ctx context.Context, tx Tx, r *model.Reservation) (bool, error) {
		switch r.Status {
		case model.StatusPending, model.StatusConfirmed:
			return true, s.refundAndCancel(ctx, tx, r)
		case model.StatusCancelled:
			return false, nil
		default:
			return false, fmt.Errorf("%w: cannot cancel %s reservation", model.ErrInvalidTransition, r.Status)
		}
	})
	return r, err
}

// Complete は予約を完了にし、その時点のユーザー情報とともに記録します
func (s *Service) Complete(ctx context.Context, id int64) (*model.Reservation, error) {
	r, _, err := s.transition(ctx, "complete", id, func(ctx context.Context, tx Tx, r *model.Reservation) (bool, error) {
		switch r.Status {
		case model.StatusPending, model.StatusConfirmed:
			return true, s.complete(ctx, tx, r)
		case model.StatusCompleted:
			return false, nil
		default:
			return false, fmt.Errorf("%w: cannot complete %s reservation", model.ErrInvalidTransition, r.Status)
		}
	})
	return r, err
}

// Expire は保留中のままの予約を取り消して返金します
// ロック後に保留中でなくなっていた予約は変更せず、changed が false になります
func (s *Service) Expire(ctx context.Context, id int64) (_ *model.Reservation, changed bool, err error) {
	return s.transition(ctx, "expire", id, func(ctx context.Context, tx Tx, r *model.Reservation) (bool, error) {
		if r.Status != model.StatusPending {
			return false, nil
		}
		return true, s.refundAndCancel(ctx, tx, r)
	})
}

// Finish は確定済みの予約を完了にします
// ロック後に確定済みでなくなっていた予約は変更せず、changed が false になります
func (s *Service) Finish(ctx context.Context, id int64) (_ *model.Reservation, changed bool, err error) {
	return s.transition(ctx, "finish", id, func(ctx context.Context, tx Tx, r *model.Reservation) (bool, error) {
		if r.Status != model.StatusConfirmed {
			return false, nil
		}
		return true, s.complete(ctx, tx, r)
	})
}

// complete は予約を完了にし、スナップショットを記録します
func (s *Service) complete(ctx context.Context, tx Tx, r *model.Reservation) error {
	var user model.User
	if r.UserID != 0 {
		u, err := tx.LockUser(ctx, r.UserID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if u != nil {
			user = *u
		}
	}
	if err := s.setStatus(ctx, tx, r, model.StatusCompleted); err != nil {
		return err
	}
	snapshot := model.NewCompletedReservation(*r, user, s.now())
	return tx.InsertCompleted(ctx, &snapshot)
}

type transitionFunc func(ctx context.Context, tx Tx, r *model.Reservation) (changed bool, err error)

func (s *Service) transition(ctx context.Context, op string, id int64, apply transitionFunc) (_ *model.Reservation, changed bool, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "Ledger."+op)
	defer func() {
		done(err)
		monitoring.TrackLedgerOperation(op, err)
	}()

	var result model.Reservation
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return fmt.Errorf("reservation %d: %w", id, err)
		}
		if changed, err = apply(ctx, tx, r); err != nil {
			return err
		}
		result = *r
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.invalidate(ctx, result.TableID, result.Interval())
		s.logger.Info("reservation status changed",
			zap.String("operation", op),
			zap.Int64("reservation_id", result.ID),
			zap.String("status", string(result.Status)),
		)
	}
	return &result, changed, nil
}

func (s *Service) setStatus(ctx context.Context, tx Tx, r *model.Reservation, status model.ReservationStatus) error {
	if err := tx.SetStatus(ctx, r.ID, status); err != nil {
		return err
	}
	r.Status = status
	r.UpdatedAt = s.now()
	return nil
}

// refundAndCancel は予約をキャンセルし、ユーザーが残っていれば返金します
func (s *Service) refundAndCancel(ctx context.Context, tx Tx, r *model.Reservation) error {
	if r.UserID != 0 && r.Price.IsPositive() {
		_, err := tx.LockUser(ctx, r.UserID)
		switch {
		case err == nil:
			if err := tx.AdjustBalance(ctx, r.UserID, r.Price); err != nil {
				return err
			}
		case !errors.Is(err, model.ErrNotFound):
			return err
		}
	}
	return s.setStatus(ctx, tx, r, model.StatusCancelled)
}

// Availability は指定日の営業時間内の空き区間を昇順で返します
func (s *Service) Availability(ctx context.Context, tableID int64, date time.Time) (_ []model.Interval, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "Ledger.Availability")
	defer func() { done(err) }()

	if _, err := s.store.GetTable(ctx, tableID); err != nil {
		return nil, fmt.Errorf("table %d: %w", tableID, err)
	}

	window := s.OpeningWindow(date)
	day := window.Start.Format(DateLayout)

	// 版はDBを読む前に取得する。読んだ後に予約が入れば版が進み、この結果は使われない
	free, version, ok, err := s.cache.Get(ctx, tableID, day)
	cacheable := err == nil
	switch {
	case err != nil:
		monitoring.TrackCacheLookup(monitoring.CacheError)
		s.logger.Warn("failed to read availability cache", zap.Int64("table_id", tableID), zap.Error(err))
	case ok:
		monitoring.TrackCacheLookup(monitoring.CacheHit)
		return free, nil
	default:
		monitoring.TrackCacheLookup(monitoring.CacheMiss)
	}

	reservations, err := s.store.ActiveReservations(ctx, tableID, window)
	if err != nil {
		return nil, err
	}

	busy := make([]model.Interval, 0, len(reservations))
	for _, r := range reservations {
		busy = append(busy, r.Interval())
	}
	free = model.FreeIntervals(window, busy)

	if cacheable {
		if err := s.cache.Set(ctx, tableID, day, version, free); err != nil {
			s.logger.Warn("failed to write availability cache", zap.Int64("table_id", tableID), zap.Error(err))
		}
	}
	return free, nil
}

// OpeningWindow は date の営業時間を返します
// 閉店時刻 24 は翌日の0時を表します
func (s *Service) OpeningWindow(date time.Time) model.Interval {
	y, m, d := date.In(s.rules.Location).Date()
	return model.Interval{
		Start: time.Date(y, m, d, s.rules.OpeningHour, 0, 0, 0, s.rules.Location),
		End:   time.Date(y, m, d, s.rules.ClosingHour, 0, 0, 0, s.rules.Location),
	}
}

// invalidate は区間が掛かる全ての日付のキャッシュを破棄します
func (s *Service) invalidate(ctx context.Context, tableID int64, interval model.Interval) {
	if tableID == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, tableID, s.touchedDates(interval)...); err != nil {
		s.logger.Warn("failed to invalidate availability cache", zap.Int64("table_id", tableID), zap.Error(err))
	}
}

func (s *Service) touchedDates(interval model.Interval) []string {
	loc := s.rules.Location
	y, m, d := interval.Start.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	var dates []string
	for day.Before(interval.End) {
		dates = append(dates, day.Format(DateLayout))
		day = day.AddDate(0, 0, 1)
	}
	return dates
}

// Get は予約を取得します
func (s *Service) Get(ctx context.Context, id int64) (*model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", id, err)
	}
	return r, nil
}

// List は予約をID順に返します
func (s *Service) List(ctx context.Context, page model.Page) ([]model.Reservation, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListReservations(ctx, page)
}

// ListCompleted は完了済み予約のスナップショットを新しい順に返します
func (s *Service) ListCompleted(ctx context.Context, page model.Page) ([]model.CompletedReservation, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListCompleted(ctx, page)
}

// CreateTable はテーブルを追加します
func (s *Service) CreateTable(ctx context.Context, in model.TableInput) (*model.Table, error) {
	if err := in.Validate(s.rules.MaxPartySize); err != nil {
		return nil, err
	}
	table := model.Table{Number: in.Number, Seats: in.Seats, Price: in.Price.Round(2)}
	if err := s.store.CreateTable(ctx, &table); err != nil {
		return nil, err
	}
	s.logger.Info("table created", zap.Int64("table_id", table.ID), zap.Int("table_number", table.Number))
	return &table, nil
}

func (s *Service) GetTable(ctx context.Context, id int64) (*model.Table, error) {
	t, err := s.store.GetTable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("table %d: %w", id, err)
	}
	return t, nil
}

func (s *Service) ListTables(ctx context.Context) ([]model.Table, error) {
	return s.store.ListTables(ctx)
}

// DeleteTable はテーブルを削除します
// 未完了の予約は全てキャンセルして返金し、キャンセルした予約を返します
func (s *Service) DeleteTable(ctx context.Context, number int) (_ []model.Reservation, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "Ledger.DeleteTable")
	defer func() {
		done(err)
		monitoring.TrackLedgerOperation("delete_table", err)
	}()

	var (
		tableID   int64
		cancelled []model.Reservation
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		table, err := tx.LockTableByNumber(ctx, number)
		if err != nil {
			return fmt.Errorf("table number %d: %w", number, err)
		}
		tableID = table.ID

		active, err := tx.LockActiveReservations(ctx, table.ID)
		if err != nil {
			return err
		}
		for i := range active {
			if err := s.refundAndCancel(ctx, tx, &active[i]); err != nil {
				return fmt.Errorf("failed to cancel reservation %d: %w", active[i].ID, err)
			}
		}
		cancelled = active
		return tx.DeleteTable(ctx, table.ID)
	})
	if err != nil {
		return nil, err
	}

	for _, r := range cancelled {
		s.invalidate(ctx, tableID, r.Interval())
	}
	s.logger.Info("table deleted", zap.Int("table_number", number), zap.Int("cancelled_reservations", len(cancelled)))
	return cancelled, nil
}
