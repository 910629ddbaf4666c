package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"go.uber.org/zap"
)

// PostgreSQLのエラーコード
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// mapError はPostgreSQLのエラーをドメインエラーに変換します
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", model.ErrDuplicate, pqErr.Constraint)
		case pgExclusionViolation:
			return model.ErrOverlap
		}
	}
	return err
}

// RunInTx はトランザクション内で fn を実行します
// fn がエラーを返した場合はロールバックし、それ以外はコミットします
func RunInTx(ctx context.Context, db *database.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// エラーが発生した場合のみロールバックを実行
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			zap.L().Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}
