package app

import (
	"context"
	"errors"
	"strings"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutRepository interface {
	// FindOrderByIdempotencyKey matches on the creating owner, not the current one.
	FindOrderByIdempotencyKey(ctx context.Context, createdBy, key string) (*domain.Order, error)
	// CreateOrder returns domain.ErrIdempotencyConflict when (created_by, key) already exists.
	CreateOrder(ctx context.Context, order domain.Order) error
}

// CheckoutService opens pending orders with a payment window.
type CheckoutService struct {
	repo  CheckoutRepository
	clock clock.Clock
	options
}

func NewCheckoutService(repo CheckoutRepository, clk clock.Clock, opts ...Option) *CheckoutService {
	return &CheckoutService{
		repo:    repo,
		clock:   clk,
		options: newOptions(opts),
	}
}

type CreateOrderInput struct {
	Owner          domain.Owner
	ProductID      string
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  domain.PaymentMethod
	CryptoAmount   *decimal.Decimal
	WalletAddress  string
	Billing        domain.Billing
	Metadata       map[string]string
	IdempotencyKey string
}

func (in CreateOrderInput) validate() error {
	if in.Owner.IsZero() {
		return domain.ErrOwnerRequired
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return domain.ErrProductRequired
	}
	if !in.Amount.IsPositive() || !domain.FitsMoney(in.Amount) {
		return domain.ErrInvalidAmount
	}
	if strings.TrimSpace(in.Currency) == "" {
		return domain.ErrInvalidCurrency
	}
	if !in.PaymentMethod.Valid() {
		return domain.ErrInvalidPaymentMethod
	}
	if in.CryptoAmount != nil && (!in.CryptoAmount.IsPositive() || !domain.FitsNumeric(*in.CryptoAmount, domain.CryptoPrecision, domain.CryptoScale)) {
		return domain.ErrInvalidAmount
	}
	if in.IdempotencyKey == "" {
		return domain.ErrIdempotencyKeyMissing
	}
	return nil
}

type CreateOrderResult struct {
	Order   domain.Order
	Created bool
}

// CreateOrder opens a pending order that expires after the payment window of
// its method. Retries with the same idempotency key return the first order.
func (s *CheckoutService) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if err := in.validate(); err != nil {
		return CreateOrderResult{}, err
	}
	ownerID := in.Owner.String()

	existing, err := s.repo.FindOrderByIdempotencyKey(ctx, ownerID, in.IdempotencyKey)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if existing != nil {
		return s.replay(*existing, in)
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:             newUUID(),
		Reference:      newOrderReference(now),
		Owner:          in.Owner,
		ProductID:      in.ProductID,
		Status:         domain.OrderStatusPending,
		PaymentMethod:  in.PaymentMethod,
		Currency:       strings.ToUpper(strings.TrimSpace(in.Currency)),
		Amount:         in.Amount,
		CryptoAmount:   in.CryptoAmount,
		WalletAddress:  in.WalletAddress,
		ExpiresAt:      now.Add(s.windows.For(in.PaymentMethod)),
		Billing:        in.Billing,
		Metadata:       in.Metadata,
		IdempotencyKey: in.IdempotencyKey,
		CreatedBy:      ownerID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		// Re-read on conflict to keep idempotent retries consistent under concurrency.
		if errors.Is(err, domain.ErrIdempotencyConflict) {
			existing, findErr := s.repo.FindOrderByIdempotencyKey(ctx, ownerID, in.IdempotencyKey)
			if findErr != nil {
				return CreateOrderResult{}, findErr
			}
			if existing != nil {
				return s.replay(*existing, in)
			}
		}
		return CreateOrderResult{}, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("owner_id", ownerID),
		zap.Bool("guest", in.Owner.IsGuest()),
		zap.Time("expires_at", order.ExpiresAt))
	s.publish(ctx, orderEvent(events.TypeOrderCreated, order, now))
	return CreateOrderResult{Order: order, Created: true}, nil
}

func (s *CheckoutService) replay(existing domain.Order, in CreateOrderInput) (CreateOrderResult, error) {
	if !existing.Amount.Equal(in.Amount) || existing.ProductID != in.ProductID {
		return CreateOrderResult{}, domain.ErrIdempotencyConflict
	}
	return CreateOrderResult{Order: existing, Created: false}, nil
}
