package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

const tableColumns = `id, table_number, seats, price, created_at`

// TableRepository はテーブル情報の永続化を担当するインターフェースです
type TableRepository interface {
	Create(ctx context.Context, table *model.Table) error
	GetByID(ctx context.Context, id int64) (*model.Table, error)
	List(ctx context.Context) ([]model.Table, error)
	GetNumbersByIDs(ctx context.Context, ids []int64) (map[int64]int, error)

	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Table, error)
	GetByNumberForUpdate(ctx context.Context, tx *sqlx.Tx, number int) (*model.Table, error)
	Delete(ctx context.Context, tx *sqlx.Tx, id int64) error
}

// TableRepositoryImpl はTableRepositoryの実装です
type TableRepositoryImpl struct {
	db *database.DB
}

// NewTableRepository は新しいTableRepositoryを作成します
func NewTableRepository(db *database.DB) *TableRepositoryImpl {
	return &TableRepositoryImpl{db: db}
}

// Create はテーブルを作成します。番号が重複する場合は ErrDuplicate を返します
func (r *TableRepositoryImpl) Create(ctx context.Context, table *model.Table) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "TableRepository.Create")
	defer func() { done(err) }()

	query := `
		INSERT INTO tables (table_number, seats, price)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query, table.Number, table.Seats, table.Price).
		Scan(&table.ID, &table.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("failed to create table %d: %w", table.Number, err))
	}
	return nil
}

// GetByID はテーブルを取得します
func (r *TableRepositoryImpl) GetByID(ctx context.Context, id int64) (_ *model.Table, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "TableRepository.GetByID")
	defer func() { done(err) }()

	var table model.Table
	if err = r.db.GetContext(ctx, &table, `SELECT `+tableColumns+` FROM tables WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &table, nil
}

// List は全テーブルを番号順に取得します
func (r *TableRepositoryImpl) List(ctx context.Context) (_ []model.Table, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "TableRepository.List")
	defer func() { done(err) }()

	tables := []model.Table{}
	if err = r.db.SelectContext(ctx, &tables, `SELECT `+tableColumns+` FROM tables ORDER BY table_number`); err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return tables, nil
}

// GetNumbersByIDs はテーブルIDからテーブル番号への対応表を1回のクエリで取得します
func (r *TableRepositoryImpl) GetNumbersByIDs(ctx context.Context, ids []int64) (_ map[int64]int, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "TableRepository.GetNumbersByIDs")
	defer func() { done(err) }()

	numbers := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return numbers, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, table_number FROM tables WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query table numbers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     int64
			number int
		)
		if err = rows.Scan(&id, &number); err != nil {
			return nil, fmt.Errorf("failed to scan table number: %w", err)
		}
		numbers[id] = number
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table rows: %w", err)
	}
	return numbers, nil
}

// GetForUpdate はテーブル行をロックして取得します
// 同じテーブルへの予約処理はこのロックで直列化されます
func (r *TableRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (_ *model.Table, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "TableRepository.GetForUpdate")
	defer func() { done(err) }()

	var table model.Table
	if err = tx.GetContext(ctx, &table, `SELECT `+tableColumns+` FROM tables WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapError(err)
	}
	return &table, nil
}

// GetByNumberForUpdate はテーブル番号でテーブル行をロックして取得します
func (r *TableRepositoryImpl) GetByNumberForUpdate(ctx context.Context, tx *sqlx.Tx, number int) (_ *model.Table, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "TableRepository.GetByNumberForUpdate")
	defer func() { done(err) }()

	var table model.Table
	if err = tx.GetContext(ctx, &table, `SELECT `+tableColumns+` FROM tables WHERE table_number = $1 FOR UPDATE`, number); err != nil {
		return nil, mapError(err)
	}
	return &table, nil
}

// Delete はテーブルを削除します
func (r *TableRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, id int64) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "TableRepository.Delete")
	defer func() { done(err) }()

	result, err := tx.ExecContext(ctx, `DELETE FROM tables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: table with id %d", model.ErrNotFound, id)
	}
	return nil
}
