package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type HoldingRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// GetHoldingForUpdate locks and returns the holding with its history, or nil.
	GetHoldingForUpdate(ctx context.Context, ownerID, instrumentID string) (*domain.Holding, error)
	GetHolding(ctx context.Context, ownerID, instrumentID string) (*domain.Holding, error)
	// CreateHolding returns domain.ErrHoldingConflict if the pair already exists.
	CreateHolding(ctx context.Context, h domain.Holding) error
	// UpdateHolding writes the position fields and appends lot, guarded by h.Version.
	UpdateHolding(ctx context.Context, h domain.Holding, lot domain.Lot) error
}

// PriceSource supplies the current reference price of an instrument.
type PriceSource interface {
	Price(ctx context.Context, instrumentID string) (decimal.Decimal, error)
}

type HoldingService struct {
	repo   HoldingRepository
	prices PriceSource
	clock  clock.Clock
	options
}

func NewHoldingService(repo HoldingRepository, prices PriceSource, clk clock.Clock, opts ...Option) *HoldingService {
	return &HoldingService{
		repo:    repo,
		prices:  prices,
		clock:   clk,
		options: newOptions(opts),
	}
}

type TradeInput struct {
	OwnerID      string
	InstrumentID string
	Side         domain.TradeSide
	Units        decimal.Decimal
	Price        decimal.Decimal
	Fees         decimal.Decimal
	// TradedAt defaults to the service clock.
	TradedAt time.Time
}

func (in TradeInput) validate() error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return domain.ErrOwnerRequired
	}
	if strings.TrimSpace(in.InstrumentID) == "" {
		return domain.ErrInstrumentRequired
	}
	if !in.Side.Valid() {
		return domain.ErrInvalidTradeSide
	}
	if !in.Units.IsPositive() || !domain.FitsQuantity(in.Units) {
		return domain.ErrInvalidUnits
	}
	if !in.Price.IsPositive() || !domain.FitsQuantity(in.Price) {
		return domain.ErrInvalidPrice
	}
	if in.Fees.IsNegative() || !domain.FitsMoney(in.Fees) {
		return domain.ErrInvalidFees
	}
	return nil
}

// ApplyTrade folds one settled trade into the owner's position.
func (s *HoldingService) ApplyTrade(ctx context.Context, in TradeInput) (domain.Holding, error) {
	if err := in.validate(); err != nil {
		return domain.Holding{}, err
	}
	now := s.clock.Now()
	tradedAt := in.TradedAt
	if tradedAt.IsZero() {
		tradedAt = now
	}
	lot := domain.Lot{
		Side:     in.Side,
		Units:    in.Units,
		Price:    in.Price,
		Fees:     in.Fees,
		TradedAt: tradedAt.UTC(),
	}

	var result domain.Holding
	apply := func(txCtx context.Context) error {
		h, err := s.repo.GetHoldingForUpdate(txCtx, in.OwnerID, in.InstrumentID)
		if err != nil {
			return err
		}

		if h == nil {
			if in.Side == domain.TradeSell {
				return domain.ErrSellExceedsHolding
			}
			created := domain.Holding{
				ID:            newUUID(),
				OwnerID:       in.OwnerID,
				InstrumentID:  in.InstrumentID,
				Units:         decimal.Zero,
				TotalInvested: decimal.Zero,
				Version:       1,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			created.Buy(lot)
			if err := s.repo.CreateHolding(txCtx, created); err != nil {
				return err
			}
			result = created
			return nil
		}

		switch in.Side {
		case domain.TradeBuy:
			h.Buy(lot)
		case domain.TradeSell:
			if err := h.Sell(lot); err != nil {
				return err
			}
		}
		h.UpdatedAt = now
		if err := s.repo.UpdateHolding(txCtx, *h, lot); err != nil {
			return err
		}
		h.Version++
		result = *h
		return nil
	}

	err := s.repo.WithTx(ctx, apply)
	if errors.Is(err, domain.ErrHoldingConflict) {
		// A concurrent first buy created the row; the retry locks and updates it.
		err = s.repo.WithTx(ctx, apply)
	}
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Info("holding update lost race",
				zap.String("owner_id", in.OwnerID),
				zap.String("instrument_id", in.InstrumentID))
		}
		return domain.Holding{}, err
	}

	s.logger.Info("holding updated",
		zap.String("owner_id", result.OwnerID),
		zap.String("instrument_id", result.InstrumentID),
		zap.String("side", string(in.Side)),
		zap.String("units", result.Units.String()),
		zap.String("avg_purchase_price", result.AvgPurchasePrice.String()))
	s.publish(ctx, events.Event{
		Type:       events.TypeHoldingUpdated,
		Key:        result.OwnerID,
		OccurredAt: now,
		Payload: holdingPayload{
			OwnerID:          result.OwnerID,
			InstrumentID:     result.InstrumentID,
			Side:             string(in.Side),
			Units:            result.Units.String(),
			AvgPurchasePrice: result.AvgPurchasePrice.String(),
			TotalInvested:    result.TotalInvested.String(),
		},
	})
	return result, nil
}

// Valuation values the position at currentPrice. Owners without a position get
// an explicit zero result.
func (s *HoldingService) Valuation(ctx context.Context, ownerID, instrumentID string, currentPrice decimal.Decimal) (domain.Valuation, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Valuation{}, domain.ErrOwnerRequired
	}
	if strings.TrimSpace(instrumentID) == "" {
		return domain.Valuation{}, domain.ErrInstrumentRequired
	}
	if currentPrice.IsNegative() {
		return domain.Valuation{}, domain.ErrInvalidPrice
	}

	h, err := s.repo.GetHolding(ctx, ownerID, instrumentID)
	if err != nil {
		return domain.Valuation{}, err
	}
	if h == nil {
		return domain.ZeroValuation(ownerID, instrumentID, currentPrice), nil
	}
	return h.Value(currentPrice), nil
}

// MarketValuation values the position at the price reported by the price source.
func (s *HoldingService) MarketValuation(ctx context.Context, ownerID, instrumentID string) (domain.Valuation, error) {
	if s.prices == nil {
		return domain.Valuation{}, domain.ErrPriceUnavailable
	}
	price, err := s.prices.Price(ctx, instrumentID)
	if err != nil {
		return domain.Valuation{}, err
	}
	return s.Valuation(ctx, ownerID, instrumentID, price)
}

func (s *HoldingService) GetHolding(ctx context.Context, ownerID, instrumentID string) (*domain.Holding, error) {
	return s.repo.GetHolding(ctx, ownerID, instrumentID)
}

type holdingPayload struct {
	OwnerID          string `json:"owner_id"`
	InstrumentID     string `json:"instrument_id"`
	Side             string `json:"side"`
	Units            string `json:"units"`
	AvgPurchasePrice string `json:"avg_purchase_price"`
	TotalInvested    string `json:"total_invested"`
}
