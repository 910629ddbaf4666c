package model

import (
	"net/mail"
	"time"

	"github.com/shopspring/decimal"
)

// User は予約者のアカウントです
type User struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Age         int             `db:"age" json:"age"`
	Email       string          `db:"email" json:"email"`
	Phone       *string         `db:"phone" json:"phone,omitempty"`
	PromocodeID *int64          `db:"promocode_id" json:"promocode_id,omitempty"`
	Balance     decimal.Decimal `db:"balance" json:"balance"`
}

// UserInput はユーザー作成・更新時の入力です
type UserInput struct {
	Name  string  `json:"name"`
	Age   int     `json:"age"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

// Validate は入力値を検証します
func (in UserInput) Validate() error {
	if in.Name == "" || len(in.Name) > 100 {
		return Validationf("name must be 1..100 characters")
	}
	if in.Age < 18 || in.Age > 100 {
		return Validationf("age must be between 18 and 100")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil || len(in.Email) > 100 {
		return Validationf("invalid email %q", in.Email)
	}
	if in.Phone != nil && len(*in.Phone) > 20 {
		return Validationf("phone must be at most 20 characters")
	}
	return nil
}

// Promocode は割引コードです
type Promocode struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Discount  int       `db:"discount" json:"discount"`
}

// Expired は指定時刻にコードが失効しているかを返します
func (p Promocode) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// PromocodeInput は割引コード作成・更新時の入力です
type PromocodeInput struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Discount  int       `json:"discount"`
}

// MinPromocodeLifetime は割引コードに必要な最短有効期間です
const MinPromocodeLifetime = 10 * time.Minute

// Validate は入力値を検証します
func (in PromocodeInput) Validate(now time.Time) error {
	if in.Code == "" || len(in.Code) > 10 {
		return Validationf("code must be 1..10 characters")
	}
	if in.Discount < 1 || in.Discount > 99 {
		return Validationf("discount must be between 1 and 99")
	}
	if !in.ExpiresAt.After(now.Add(MinPromocodeLifetime)) {
		return Validationf("promocode must stay valid for at least %v", MinPromocodeLifetime)
	}
	return nil
}

// ApplyDiscount は割引率を適用した価格を小数点以下2桁で返します
func ApplyDiscount(price decimal.Decimal, discount int) decimal.Decimal {
	if discount <= 0 {
		return price.Round(2)
	}
	off := price.Mul(decimal.NewFromInt(int64(discount))).Div(decimal.NewFromInt(100))
	return price.Sub(off).Round(2)
}
