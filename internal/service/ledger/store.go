package ledger

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/repository"
)

// Store は台帳の永続化層です
// 更新は InTx の中で行い、fn がエラーを返した場合は何も反映されません
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ListReservations(ctx context.Context, page model.Page) ([]model.Reservation, error)
	ListCompleted(ctx context.Context, page model.Page) ([]model.CompletedReservation, error)
	ActiveReservations(ctx context.Context, tableID int64, window model.Interval) ([]model.Reservation, error)

	CreateTable(ctx context.Context, table *model.Table) error
	GetTable(ctx context.Context, id int64) (*model.Table, error)
	ListTables(ctx context.Context) ([]model.Table, error)
}

// Tx はトランザクション内の操作です
// Lock* はコミットまで対象行を排他します
type Tx interface {
	LockTable(ctx context.Context, id int64) (*model.Table, error)
	LockTableByNumber(ctx context.Context, number int) (*model.Table, error)
	LockUser(ctx context.Context, id int64) (*model.User, error)
	LockReservation(ctx context.Context, id int64) (*model.Reservation, error)
	LockActiveReservations(ctx context.Context, tableID int64) ([]model.Reservation, error)
	GetPromocode(ctx context.Context, id int64) (*model.Promocode, error)

	HasOverlap(ctx context.Context, tableID int64, interval model.Interval) (bool, error)
	InsertReservation(ctx context.Context, reservation *model.Reservation) error
	SetStatus(ctx context.Context, id int64, status model.ReservationStatus) error
	AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error
	InsertCompleted(ctx context.Context, completed *model.CompletedReservation) error
	DeleteTable(ctx context.Context, id int64) error
}

// PostgresStore はリポジトリ群を束ねたPostgreSQL実装です
type PostgresStore struct {
	db           *database.DB
	reservations repository.ReservationRepository
	tables       repository.TableRepository
	users        repository.UserRepository
	promocodes   repository.PromocodeRepository
}

// NewPostgresStore は新しいPostgresStoreを作成します
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{
		db:           db,
		reservations: repository.NewReservationRepository(db),
		tables:       repository.NewTableRepository(db),
		users:        repository.NewUserRepository(db),
		promocodes:   repository.NewPromocodeRepository(db),
	}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return repository.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(ctx, &pgTx{store: s, tx: tx})
	})
}

func (s *PostgresStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

func (s *PostgresStore) ListReservations(ctx context.Context, page model.Page) ([]model.Reservation, error) {
	return s.reservations.List(ctx, page.Limit, page.Skip)
}

func (s *PostgresStore) ListCompleted(ctx context.Context, page model.Page) ([]model.CompletedReservation, error) {
	return s.reservations.ListCompleted(ctx, page.Limit, page.Skip)
}

func (s *PostgresStore) ActiveReservations(ctx context.Context, tableID int64, window model.Interval) ([]model.Reservation, error) {
	return s.reservations.ListActiveBetween(ctx, tableID, window.Start, window.End)
}

func (s *PostgresStore) CreateTable(ctx context.Context, table *model.Table) error {
	return s.tables.Create(ctx, table)
}

func (s *PostgresStore) GetTable(ctx context.Context, id int64) (*model.Table, error) {
	return s.tables.GetByID(ctx, id)
}

func (s *PostgresStore) ListTables(ctx context.Context) ([]model.Table, error) {
	return s.tables.List(ctx)
}

type pgTx struct {
	store *PostgresStore
	tx    *sqlx.Tx
}

func (t *pgTx) LockTable(ctx context.Context, id int64) (*model.Table, error) {
	return t.store.tables.GetForUpdate(ctx, t.tx, id)
}

func (t *pgTx) LockTableByNumber(ctx context.Context, number int) (*model.Table, error) {
	return t.store.tables.GetByNumberForUpdate(ctx, t.tx, number)
}

func (t *pgTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	return t.store.users.GetForUpdate(ctx, t.tx, id)
}

func (t *pgTx) LockReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	return t.store.reservations.GetForUpdate(ctx, t.tx, id)
}

func (t *pgTx) LockActiveReservations(ctx context.Context, tableID int64) ([]model.Reservation, error) {
	return t.store.reservations.ListActiveByTableForUpdate(ctx, t.tx, tableID)
}

func (t *pgTx) GetPromocode(ctx context.Context, id int64) (*model.Promocode, error) {
	return t.store.promocodes.GetByID(ctx, id)
}

func (t *pgTx) HasOverlap(ctx context.Context, tableID int64, interval model.Interval) (bool, error) {
	return t.store.reservations.HasOverlap(ctx, t.tx, tableID, interval.Start, interval.End)
}

func (t *pgTx) InsertReservation(ctx context.Context, reservation *model.Reservation) error {
	return t.store.reservations.Create(ctx, t.tx, reservation)
}

func (t *pgTx) SetStatus(ctx context.Context, id int64, status model.ReservationStatus) error {
	return t.store.reservations.UpdateStatus(ctx, t.tx, id, status)
}

func (t *pgTx) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error {
	return t.store.users.AdjustBalance(ctx, t.tx, userID, delta)
}

func (t *pgTx) InsertCompleted(ctx context.Context, completed *model.CompletedReservation) error {
	return t.store.reservations.CreateCompleted(ctx, t.tx, completed)
}

func (t *pgTx) DeleteTable(ctx context.Context, id int64) error {
	return t.store.tables.Delete(ctx, t.tx, id)
}
