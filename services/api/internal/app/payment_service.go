package app

import (
	"context"
	"errors"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"go.uber.org/zap"
)

// PaymentRepository is the storage needed to confirm and advance orders. Every
// status write is conditional on the status the caller read.
type PaymentRepository interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	// MarkPaid sets status=paid only while the order is pending and unexpired at now;
	// otherwise it returns domain.ErrOrderConflict.
	MarkPaid(ctx context.Context, orderID string, proof domain.PaymentProof, now time.Time) (domain.Order, error)
	// UpdateOrderStatus sets status=to only while the stored status equals from;
	// otherwise it returns domain.ErrOrderConflict.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error)
}

type PaymentService struct {
	repo  PaymentRepository
	clock clock.Clock
	options
}

func NewPaymentService(repo PaymentRepository, clk clock.Clock, opts ...Option) *PaymentService {
	return &PaymentService{
		repo:    repo,
		clock:   clk,
		options: newOptions(opts),
	}
}

func (s *PaymentService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ConfirmPayment applies an external payment confirmation to a pending order.
// A lapsed window wins over the proof: the order is durably moved to expired
// and the call fails with domain.ErrPaymentWindowExpired.
func (s *PaymentService) ConfirmPayment(ctx context.Context, orderID string, proof domain.PaymentProof) (domain.Order, error) {
	now := s.clock.Now()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, domain.ErrOrderNotPending
	}
	if order.PaymentExpired(now) {
		return domain.Order{}, s.expire(ctx, order, now)
	}
	if err := proof.Validate(); err != nil {
		return domain.Order{}, err
	}

	paid, err := s.repo.MarkPaid(ctx, orderID, proof, now)
	if err != nil {
		if errors.Is(err, domain.ErrOrderConflict) {
			s.logger.Info("payment confirmation lost race",
				zap.String("order_id", orderID))
		}
		return domain.Order{}, err
	}

	s.logger.Info("order paid",
		zap.String("order_id", paid.ID),
		zap.String("owner_id", paid.Owner.String()),
		zap.String("transaction_ref", proof.TransactionRef))
	s.publish(ctx, orderEvent(events.TypeOrderPaid, paid, now))
	return paid, nil
}

func (s *PaymentService) expire(ctx context.Context, order domain.Order, now time.Time) error {
	expired, err := s.repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusExpired, now)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderConflict) {
			return err
		}
		// Someone else moved it first; report what they left behind.
		current, getErr := s.repo.GetOrder(ctx, order.ID)
		if getErr != nil {
			return getErr
		}
		if current.Status == domain.OrderStatusExpired {
			return domain.ErrPaymentWindowExpired
		}
		return err
	}

	s.logger.Info("order expired on access",
		zap.String("order_id", order.ID),
		zap.Time("expires_at", order.ExpiresAt))
	s.publish(ctx, orderEvent(events.TypeOrderExpired, expired, now))
	return domain.ErrPaymentWindowExpired
}

// GetPaymentWindow reports the time left on a pending order. Progress is
// measured against the window the order was opened with, so later changes to
// the configured windows do not skew it.
func (s *PaymentService) GetPaymentWindow(ctx context.Context, orderID string) (domain.PaymentWindow, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.PaymentWindow{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.PaymentWindow{}, domain.ErrOrderNotPending
	}
	return domain.NewPaymentWindow(order, order.ExpiresAt.Sub(order.CreatedAt), s.clock.Now()), nil
}

// Transition advances a paid order through fulfilment (processing, completed)
// or cancels it. Payment and expiry have their own entry points.
func (s *PaymentService) Transition(ctx context.Context, orderID string, to domain.OrderStatus) (domain.Order, error) {
	if to == domain.OrderStatusPaid || to == domain.OrderStatusExpired || !to.Valid() {
		return domain.Order{}, domain.ErrInvalidTransition
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanTransitionTo(to) {
		return domain.Order{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	updated, err := s.repo.UpdateOrderStatus(ctx, orderID, order.Status, to, now)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(to)))
	s.publish(ctx, orderEvent(events.TypeOrderStatus, updated, now))
	return updated, nil
}

type orderPayload struct {
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
	OwnerID   string `json:"owner_id"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

func orderEvent(typ string, o domain.Order, now time.Time) events.Event {
	return events.Event{
		Type:       typ,
		Key:        o.ID,
		OccurredAt: now,
		Payload: orderPayload{
			OrderID:   o.ID,
			Reference: o.Reference,
			OwnerID:   o.Owner.String(),
			Status:    string(o.Status),
			Amount:    o.Amount.String(),
			Currency:  o.Currency,
		},
	}
}
