package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

const userColumns = `id, name, age, email, phone, promocode_id, balance`

// UserRepository はユーザーの永続化を担当するインターフェースです
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, limit, skip int) ([]model.User, error)
	Update(ctx context.Context, email string, in model.UserInput) (*model.User, error)
	Delete(ctx context.Context, email string) error
	AddBalance(ctx context.Context, email string, amount decimal.Decimal) (*model.User, error)
	SetPromocode(ctx context.Context, email string, promocodeID int64) (*model.User, error)

	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.User, error)
	AdjustBalance(ctx context.Context, tx *sqlx.Tx, id int64, delta decimal.Decimal) error
}

type UserRepositoryImpl struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db}
}

// Create はユーザーを作成します。メールアドレスが重複する場合は ErrDuplicate を返します
func (r *UserRepositoryImpl) Create(ctx context.Context, user *model.User) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.Create")
	defer func() { done(err) }()

	query := `
		INSERT INTO users (name, age, email, phone, promocode_id, balance)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		user.Name,
		user.Age,
		user.Email,
		user.Phone,
		user.PromocodeID,
		user.Balance,
	).Scan(&user.ID)
	if err != nil {
		return mapError(fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

func (r *UserRepositoryImpl) GetByID(ctx context.Context, id int64) (_ *model.User, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.GetByID")
	defer func() { done(err) }()

	var user model.User
	if err = r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *UserRepositoryImpl) GetByEmail(ctx context.Context, email string) (_ *model.User, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.GetByEmail")
	defer func() { done(err) }()

	var user model.User
	if err = r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *UserRepositoryImpl) List(ctx context.Context, limit, skip int) (_ []model.User, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.List")
	defer func() { done(err) }()

	users := []model.User{}
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	if err = r.db.SelectContext(ctx, &users, query, limit, skip); err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return users, nil
}

// Update はメールアドレスで指定したユーザーのプロフィールを更新します
func (r *UserRepositoryImpl) Update(ctx context.Context, email string, in model.UserInput) (_ *model.User, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.Update")
	defer func() { done(err) }()

	query := `
		UPDATE users
		SET name = $1, age = $2, email = $3, phone = $4
		WHERE email = $5
		RETURNING ` + userColumns

	var user model.User
	if err = r.db.GetContext(ctx, &user, query, in.Name, in.Age, in.Email, in.Phone, email); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *UserRepositoryImpl) Delete(ctx context.Context, email string) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.Delete")
	defer func() { done(err) }()

	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user %s", model.ErrNotFound, email)
	}
	return nil
}

// AddBalance は残高に amount を加算します
func (r *UserRepositoryImpl) AddBalance(ctx context.Context, email string, amount decimal.Decimal) (_ *model.User, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.AddBalance")
	defer func() { done(err) }()

	query := `UPDATE users SET balance = balance + $1 WHERE email = $2 RETURNING ` + userColumns

	var user model.User
	if err = r.db.GetContext(ctx, &user, query, amount, email); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// SetPromocode はユーザーに割引コードを紐付けます
func (r *UserRepositoryImpl) SetPromocode(ctx context.Context, email string, promocodeID int64) (_ *model.User, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.SetPromocode")
	defer func() { done(err) }()

	query := `UPDATE users SET promocode_id = $1 WHERE email = $2 RETURNING ` + userColumns

	var user model.User
	if err = r.db.GetContext(ctx, &user, query, promocodeID, email); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// GetForUpdate はユーザー行をロックして取得します
func (r *UserRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (_ *model.User, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.GetForUpdate")
	defer func() { done(err) }()

	var user model.User
	if err = tx.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// AdjustBalance は残高を delta だけ増減します
func (r *UserRepositoryImpl) AdjustBalance(ctx context.Context, tx *sqlx.Tx, id int64, delta decimal.Decimal) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "UserRepository.AdjustBalance")
	defer func() { done(err) }()

	result, err := tx.ExecContext(ctx, `UPDATE users SET balance = balance + $1 WHERE id = $2`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user with id %d", model.ErrNotFound, id)
	}
	return nil
}
