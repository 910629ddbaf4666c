package repository

import (
	"context"
	"fmt"

	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

const promocodeColumns = `id, code, created_at, expires_at, discount`

// PromocodeRepository は割引コードの永続化を担当するインターフェースです
type PromocodeRepository interface {
	Create(ctx context.Context, promocode *model.Promocode) error
	GetByID(ctx context.Context, id int64) (*model.Promocode, error)
	GetByCode(ctx context.Context, code string) (*model.Promocode, error)
	List(ctx context.Context, limit, skip int) ([]model.Promocode, error)
	Update(ctx context.Context, code string, in model.PromocodeInput) (*model.Promocode, error)
	Delete(ctx context.Context, code string) error
}

type PromocodeRepositoryImpl struct {
	db *database.DB
}

func NewPromocodeRepository(db *database.DB) *PromocodeRepositoryImpl {
	return &PromocodeRepositoryImpl{db: db}
}

func (r *PromocodeRepositoryImpl) Create(ctx context.Context, promocode *model.Promocode) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "PromocodeRepository.Create")
	defer func() { done(err) }()

	query := `
		INSERT INTO promocodes (code, expires_at, discount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query, promocode.Code, promocode.ExpiresAt, promocode.Discount).
		Scan(&promocode.ID, &promocode.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("failed to create promocode: %w", err))
	}
	return nil
}

func (r *PromocodeRepositoryImpl) GetByID(ctx context.Context, id int64) (_ *model.Promocode, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "PromocodeRepository.GetByID")
	defer func() { done(err) }()

	var promocode model.Promocode
	if err = r.db.GetContext(ctx, &promocode, `SELECT `+promocodeColumns+` FROM promocodes WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &promocode, nil
}

func (r *PromocodeRepositoryImpl) GetByCode(ctx context.Context, code string) (_ *model.Promocode, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "PromocodeRepository.GetByCode")
	defer func() { done(err) }()

	var promocode model.Promocode
	if err = r.db.GetContext(ctx, &promocode, `SELECT `+promocodeColumns+` FROM promocodes WHERE code = $1`, code); err != nil {
		return nil, mapError(err)
	}
	return &promocode, nil
}

func (r *PromocodeRepositoryImpl) List(ctx context.Context, limit, skip int) (_ []model.Promocode, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "PromocodeRepository.List")
	defer func() { done(err) }()

	promocodes := []model.Promocode{}
	query := `SELECT ` + promocodeColumns + ` FROM promocodes ORDER BY id LIMIT $1 OFFSET $2`
	if err = r.db.SelectContext(ctx, &promocodes, query, limit, skip); err != nil {
		return nil, fmt.Errorf("failed to query promocodes: %w", err)
	}
	return promocodes, nil
}

// Update はコードで指定した割引コードを上書きします
func (r *PromocodeRepositoryImpl) Update(ctx context.Context, code string, in model.PromocodeInput) (_ *model.Promocode, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "PromocodeRepository.Update")
	defer func() { done(err) }()

	query := `
		UPDATE promocodes
		SET code = $1, expires_at = $2, discount = $3
		WHERE code = $4
		RETURNING ` + promocodeColumns

	var promocode model.Promocode
	if err = r.db.GetContext(ctx, &promocode, query, in.Code, in.ExpiresAt, in.Discount, code); err != nil {
		return nil, mapError(err)
	}
	return &promocode, nil
}

func (r *PromocodeRepositoryImpl) Delete(ctx context.Context, code string) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "PromocodeRepository.Delete")
	defer func() { done(err) }()

	result, err := r.db.ExecContext(ctx, `DELETE FROM promocodes WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete promocode: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: promocode %s", model.ErrNotFound, code)
	}
	return nil
}
