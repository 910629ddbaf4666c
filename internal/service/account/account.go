package account

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"github.com/uma-arai/sbcntr-restaurant/internal/repository"
	"go.uber.org/zap"
)

// Service はユーザー・残高・割引コードを管理します
type Service struct {
	users         repository.UserRepository
	promocodes    repository.PromocodeRepository
	notifications repository.NotificationRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewService は新しいServiceを作成します
func NewService(
	users repository.UserRepository,
	promocodes repository.PromocodeRepository,
	notifications repository.NotificationRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:         users,
		promocodes:    promocodes,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateUser はユーザーを作成します
// promocode が指定された場合は有効なコードである必要があります
func (s *Service) CreateUser(ctx context.Context, in model.UserInput, promocode string) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	user := model.User{
		Name:    in.Name,
		Age:     in.Age,
		Email:   in.Email,
		Phone:   in.Phone,
		Balance: decimal.Zero,
	}
	if promocode != "" {
		p, err := s.usablePromocode(ctx, promocode)
		if err != nil {
			return nil, err
		}
		user.PromocodeID = &p.ID
	}

	if err := s.users.Create(ctx, &user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.Int64("user_id", user.ID))
	return &user, nil
}

func (s *Service) GetUser(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, page model.Page) ([]model.User, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.users.List(ctx, page.Limit, page.Skip)
}

// UpdateUser はユーザーのプロフィールを更新します。残高と割引コードは変更しません
func (s *Service) UpdateUser(ctx context.Context, email string, in model.UserInput) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	u, err := s.users.Update(ctx, email, in)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, email string) error {
	if err := s.users.Delete(ctx, email); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.String("email", email))
	return nil
}

// TopUp は残高に amount を加算します
func (s *Service) TopUp(ctx context.Context, email string, amount decimal.Decimal) (*model.User, error) {
	if !amount.IsPositive() {
		return nil, model.Validationf("amount must be positive")
	}
	u, err := s.users.AddBalance(ctx, email, amount.Round(2))
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	s.logger.Info("balance topped up", zap.Int64("user_id", u.ID), zap.String("amount", amount.StringFixed(2)))
	return u, nil
}

// Notifications はユーザー宛ての通知を新しい順に返します
func (s *Service) Notifications(ctx context.Context, email string) ([]model.NotificationRecord, error) {
	u, err := s.GetUser(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.notifications.GetByUserID(ctx, u.ID)
}

// MarkNotificationRead は通知を既読にします
func (s *Service) MarkNotificationRead(ctx context.Context, id int64) error {
	return s.notifications.MarkAsRead(ctx, id)
}

// CreatePromocode は割引コードを作成します
func (s *Service) CreatePromocode(ctx context.Context, in model.PromocodeInput) (*model.Promocode, error) {
	if err := in.Validate(s.now()); err != nil {
		return nil, err
	}
	p := model.Promocode{Code: in.Code, ExpiresAt: in.ExpiresAt, Discount: in.Discount}
	if err := s.promocodes.Create(ctx, &p); err != nil {
		return nil, err
	}
	s.logger.Info("promocode created", zap.String("code", p.Code), zap.Int("discount", p.Discount))
	return &p, nil
}

func (s *Service) GetPromocode(ctx context.Context, code string) (*model.Promocode, error) {
	p, err := s.promocodes.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("promocode %s: %w", code, err)
	}
	return p, nil
}

func (s *Service) ListPromocodes(ctx context.Context, page model.Page) ([]model.Promocode, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.promocodes.List(ctx, page.Limit, page.Skip)
}

func (s *Service) UpdatePromocode(ctx context.Context, code string, in model.PromocodeInput) (*model.Promocode, error) {
	if err := in.Validate(s.now()); err != nil {
		return nil, err
	}
	p, err := s.promocodes.Update(ctx, code, in)
	if err != nil {
		return nil, fmt.Errorf("promocode %s: %w", code, err)
	}
	return p, nil
}

func (s *Service) DeletePromocode(ctx context.Context, code string) error {
	return s.promocodes.Delete(ctx, code)
}

// ApplyPromocode はユーザーに割引コードを適用します
// 以降の予約料金から割引されます
func (s *Service) ApplyPromocode(ctx context.Context, email, code string) (*model.User, error) {
	p, err := s.usablePromocode(ctx, code)
	if err != nil {
		return nil, err
	}
	u, err := s.users.SetPromocode(ctx, email, p.ID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	s.logger.Info("promocode applied", zap.Int64("user_id", u.ID), zap.String("code", p.Code))
	return u, nil
}

func (s *Service) usablePromocode(ctx context.Context, code string) (*model.Promocode, error) {
	p, err := s.GetPromocode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.Expired(s.now()) {
		return nil, fmt.Errorf("%w: %s", model.ErrPromocodeExpired, code)
	}
	return p, nil
}
