package model

// ページングの既定値と上限
const (
	DefaultLimit = 10
	MaxLimit     = 1000
	MaxSkip      = 1000
)

// Page は一覧取得時のページング指定です
type Page struct {
	Limit int
	Skip  int
}

// DefaultPage は既定のページングを返します
func DefaultPage() Page {
	return Page{Limit: DefaultLimit}
}

// Validate は limit と skip の範囲を検証します
func (p Page) Validate() error {
	if p.Limit < 1 || p.Limit > MaxLimit {
		return Validationf("limit must be between 1 and %d", MaxLimit)
	}
	if p.Skip < 0 || p.Skip > MaxSkip {
		return Validationf("skip must be between 0 and %d", MaxSkip)
	}
	return nil
}
