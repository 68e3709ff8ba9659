package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/testutil"
	"github.com/shopspring/decimal"
)

func TestHoldingRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewHoldingRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := app.NewHoldingService(repo, nil, clock.NewFixed(now))
	dec := decimal.RequireFromString

	t.Run("buys average and sells keep the row", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		trades := []app.TradeInput{
			{OwnerID: "user-1", InstrumentID: "ACME", Side: domain.TradeBuy, Units: dec("10"), Price: dec("100")},
			{OwnerID: "user-1", InstrumentID: "ACME", Side: domain.TradeBuy, Units: dec("5"), Price: dec("120")},
		}
		for _, in := range trades {
			if _, err := svc.ApplyTrade(ctx, in); err != nil {
				t.Fatalf("apply trade: %v", err)
			}
		}

		v, err := svc.Valuation(ctx, "user-1", "ACME", dec("150"))
		if err != nil {
			t.Fatalf("valuation: %v", err)
		}
		if !v.Units.Equal(dec("15")) || !v.AvgPurchasePrice.Equal(dec("106.67")) || !v.TotalInvested.Equal(dec("1600")) {
			t.Fatalf("unexpected position: %+v", v)
		}
		if !v.CurrentValue.Equal(dec("2250")) || !v.GainLoss.Equal(dec("650")) || !v.GainLossPct.Equal(dec("40.63")) {
			t.Fatalf("unexpected valuation: %+v", v)
		}

		if _, err := svc.ApplyTrade(ctx, app.TradeInput{
			OwnerID: "user-1", InstrumentID: "ACME", Side: domain.TradeSell, Units: dec("15"), Price: dec("150"),
		}); err != nil {
			t.Fatalf("sell: %v", err)
		}

		h, err := repo.GetHolding(ctx, "user-1", "ACME")
		if err != nil {
			t.Fatalf("get holding: %v", err)
		}
		if h == nil || !h.Units.IsZero() || !h.TotalInvested.IsZero() {
			t.Fatalf("expected closed position, got %+v", h)
		}
		if len(h.History) != 3 || h.History[2].Side != domain.TradeSell {
			t.Fatalf("expected 3 lots ending in a sell, got %+v", h.History)
		}
		if h.Version != 3 {
			t.Fatalf("expected version 3, got %d", h.Version)
		}
	})

	t.Run("selling more than held fails without writing", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, err := svc.ApplyTrade(ctx, app.TradeInput{
			OwnerID: "user-2", InstrumentID: "ACME", Side: domain.TradeSell, Units: dec("1"), Price: dec("10"),
		})
		if err != domain.ErrSellExceedsHolding {
			t.Fatalf("expected ErrSellExceedsHolding, got %v", err)
		}
		h, err := repo.GetHolding(ctx, "user-2", "ACME")
		if err != nil || h != nil {
			t.Fatalf("expected no holding, got %+v, %v", h, err)
		}
	})

	t.Run("UpdateHolding rejects a stale version", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		created, err := svc.ApplyTrade(ctx, app.TradeInput{
			OwnerID: "user-3", InstrumentID: "ACME", Side: domain.TradeBuy, Units: dec("1"), Price: dec("10"),
		})
		if err != nil {
			t.Fatalf("buy: %v", err)
		}
		stale := created
		stale.Version = 0
		lot := domain.Lot{Side: domain.TradeBuy, Units: dec("1"), Price: dec("10"), Fees: decimal.Zero, TradedAt: now}
		if err := repo.UpdateHolding(ctx, stale, lot); err != domain.ErrHoldingConflict {
			t.Fatalf("expected ErrHoldingConflict, got %v", err)
		}
	})
}
