package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Table はレストランのテーブルです
type Table struct {
	ID        int64           `db:"id" json:"id"`
	Number    int             `db:"table_number" json:"table_number"`
	Seats     int             `db:"seats" json:"seats"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// TableInput はテーブル作成時の入力です
type TableInput struct {
	Number int             `json:"table_number"`
	Seats  int             `json:"seats"`
	Price  decimal.Decimal `json:"price"`
}

// Validate は入力値を検証します
func (in TableInput) Validate(maxSeats int) error {
	if in.Number < 1 {
		return Validationf("table_number must be >= 1")
	}
	if in.Seats < 1 || in.Seats > maxSeats {
		return Validationf("seats must be between 1 and %d", maxSeats)
	}
	if in.Price.IsNegative() {
		return Validationf("price must not be negative")
	}
	return nil
}
