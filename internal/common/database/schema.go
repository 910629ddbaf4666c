package database

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed migrations/schema.sql
var schemaSQL string

// EnsureSchema はテーブルが存在しない場合に作成します
// 何度実行しても結果は変わりません
func EnsureSchema(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
