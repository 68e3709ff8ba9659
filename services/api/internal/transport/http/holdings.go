package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type HoldingAggregator interface {
	ApplyTrade(ctx context.Context, in app.TradeInput) (domain.Holding, error)
	Valuation(ctx context.Context, ownerID, instrumentID string, currentPrice decimal.Decimal) (domain.Valuation, error)
	MarketValuation(ctx context.Context, ownerID, instrumentID string) (domain.Valuation, error)
}

// PriceSetter accepts reference prices from the market data feed.
type PriceSetter interface {
	SetPrice(ctx context.Context, instrumentID string, price decimal.Decimal) error
}

// HandleApplyTrade folds a settled trade of the caller in X-Owner-ID into their position.
func HandleApplyTrade(svc HoldingAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get(ownerHeader)
		if ownerID == "" {
			writeError(w, http.StatusUnauthorized, codeOwnerRequired, "owner id is required")
			return
		}

		var req applyTradeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in := app.TradeInput{
			OwnerID:      ownerID,
			InstrumentID: req.InstrumentID,
			Side:         domain.TradeSide(strings.ToUpper(req.Side)),
			Units:        req.Units,
			Price:        req.Price,
			Fees:         req.Fees,
		}
		if req.TradedAt != nil {
			in.TradedAt = *req.TradedAt
		}

		h, err := svc.ApplyTrade(r.Context(), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, holdingResponse{
			ID:               h.ID,
			OwnerID:          h.OwnerID,
			InstrumentID:     h.InstrumentID,
			Units:            h.Units,
			AvgPurchasePrice: h.AvgPurchasePrice,
			TotalInvested:    h.TotalInvested,
			Lots:             len(h.History),
			UpdatedAt:        h.UpdatedAt,
		})
	}
}

// HandleValuation values a position at ?price= when given, otherwise at the
// cached reference price.
func HandleValuation(svc HoldingAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerID")
		instrumentID := chi.URLParam(r, "instrumentID")

		var (
			v   domain.Valuation
			err error
		)
		if raw := r.URL.Query().Get("price"); raw != "" {
			price, parseErr := decimal.NewFromString(raw)
			if parseErr != nil {
				respondError(w, r, domain.ErrInvalidPrice)
				return
			}
			v, err = svc.Valuation(r.Context(), ownerID, instrumentID, price)
		} else {
			v, err = svc.MarketValuation(r.Context(), ownerID, instrumentID)
		}
		if err != nil {
			respondError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, valuationResponse{
			OwnerID:          v.OwnerID,
			InstrumentID:     v.InstrumentID,
			HasPosition:      v.HasPosition,
			Units:            v.Units,
			AvgPurchasePrice: v.AvgPurchasePrice,
			TotalInvested:    v.TotalInvested,
			CurrentPrice:     v.CurrentPrice,
			CurrentValue:     v.CurrentValue,
			GainLoss:         v.GainLoss,
			GainLossPct:      v.GainLossPct,
		})
	}
}

func HandleSetPrice(svc PriceSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setPriceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.SetPrice(r.Context(), chi.URLParam(r, "instrumentID"), req.Price); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type applyTradeRequest struct {
	InstrumentID string          `json:"instrument_id"`
	Side         string          `json:"side"`
	Units        decimal.Decimal `json:"units"`
	Price        decimal.Decimal `json:"price"`
	Fees         decimal.Decimal `json:"fees"`
	TradedAt     *time.Time      `json:"traded_at,omitempty"`
}

type setPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type holdingResponse struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"owner_id"`
	InstrumentID     string          `json:"instrument_id"`
	Units            decimal.Decimal `json:"units"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	Lots             int             `json:"lots"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type valuationResponse struct {
	OwnerID          string          `json:"owner_id"`
	InstrumentID     string          `json:"instrument_id"`
	HasPosition      bool            `json:"has_position"`
	Units            decimal.Decimal `json:"units"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	GainLoss         decimal.Decimal `json:"gain_loss"`
	GainLossPct      decimal.Decimal `json:"gain_loss_pct"`
}
