package app

import (
	"context"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"go.uber.org/zap"
)

type ReconcileRepository interface {
	// ConnectGuestOrders re-owns, in one atomic statement, every guest order of
	// guest created at or before snapshot, and returns the re-owned orders.
	ConnectGuestOrders(ctx context.Context, guest, account domain.Owner, snapshot, now time.Time) ([]domain.Order, error)
}

// ReconcileService moves a guest's orders to the account they logged in with.
// Wallet balances and ledger history are untouched.
type ReconcileService struct {
	repo  ReconcileRepository
	clock clock.Clock
	options
}

func NewReconcileService(repo ReconcileRepository, clk clock.Clock, opts ...Option) *ReconcileService {
	return &ReconcileService{
		repo:    repo,
		clock:   clk,
		options: newOptions(opts),
	}
}

type ReconcileResult struct {
	ConnectedCount  int
	ConnectedOrders []domain.Order
}

// Reconcile is safe to re-run: orders placed under the guest id after the
// snapshot are picked up by the next call.
func (s *ReconcileService) Reconcile(ctx context.Context, guestID, accountID string) (ReconcileResult, error) {
	guest, err := domain.ParseGuest(guestID)
	if err != nil {
		return ReconcileResult{}, err
	}
	account, err := domain.ParseAccount(accountID)
	if err != nil {
		return ReconcileResult{}, err
	}

	now := s.clock.Now()
	orders, err := s.repo.ConnectGuestOrders(ctx, guest, account, now, now)
	if err != nil {
		return ReconcileResult{}, err
	}
	if len(orders) == 0 {
		return ReconcileResult{ConnectedOrders: []domain.Order{}}, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	s.logger.Info("guest orders connected",
		zap.String("guest_id", guest.String()),
		zap.String("owner_id", account.String()),
		zap.Int("count", len(orders)))
	s.publish(ctx, events.Event{
		Type:       events.TypeOrdersLinked,
		Key:        account.String(),
		OccurredAt: now,
		Payload: connectedPayload{
			GuestID:  guest.String(),
			OwnerID:  account.String(),
			OrderIDs: ids,
		},
	})

	return ReconcileResult{ConnectedCount: len(orders), ConnectedOrders: orders}, nil
}

type connectedPayload struct {
	GuestID  string   `json:"guest_id"`
	OwnerID  string   `json:"owner_id"`
	OrderIDs []string `json:"order_ids"`
}
