package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

func (s TradeSide) Valid() bool {
	return s == TradeBuy || s == TradeSell
}

// Lot is one entry of a holding's purchase history.
type Lot struct {
	Side     TradeSide
	Units    decimal.Decimal
	Price    decimal.Decimal
	Fees     decimal.Decimal
	TradedAt time.Time
}

// Holding is a user's position in one instrument. A fully sold position keeps
// its row with zero units so the cost basis and history stay readable.
type Holding struct {
	ID               string
	OwnerID          string
	InstrumentID     string
	Units            decimal.Decimal
	AvgPurchasePrice decimal.Decimal
	TotalInvested    decimal.Decimal
	History          []Lot
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Buy adds units at price and recomputes the weighted-average cost.
func (h *Holding) Buy(lot Lot) {
	cost := lot.Units.Mul(lot.Price)
	if h.Units.IsZero() {
		h.AvgPurchasePrice = lot.Price
	} else {
		total := h.Units.Add(lot.Units)
		h.AvgPurchasePrice = h.Units.Mul(h.AvgPurchasePrice).Add(cost).Div(total)
	}
	h.Units = h.Units.Add(lot.Units)
	h.TotalInvested = h.TotalInvested.Add(cost)
	h.History = append(h.History, lot)
}

// Sell removes units; the average cost of the remaining units does not move and
// the invested total shrinks in proportion to the units sold.
func (h *Holding) Sell(lot Lot) error {
	if lot.Units.GreaterThan(h.Units) {
		return ErrSellExceedsHolding
	}
	if lot.Units.Equal(h.Units) {
		h.TotalInvested = decimal.Zero
	} else {
		sold := h.TotalInvested.Mul(lot.Units).Div(h.Units)
		h.TotalInvested = h.TotalInvested.Sub(sold)
	}
	h.Units = h.Units.Sub(lot.Units)
	h.History = append(h.History, lot)
	return nil
}

// Valuation is the read-time view of a holding against a reference price.
type Valuation struct {
	OwnerID          string
	InstrumentID     string
	HasPosition      bool
	Units            decimal.Decimal
	AvgPurchasePrice decimal.Decimal
	TotalInvested    decimal.Decimal
	CurrentPrice     decimal.Decimal
	CurrentValue     decimal.Decimal
	GainLoss         decimal.Decimal
	GainLossPct      decimal.Decimal
}

const displayPlaces = 2

var hundred = decimal.NewFromInt(100)

// Value derives current value and unrealized gain/loss, rounded for display.
func (h Holding) Value(currentPrice decimal.Decimal) Valuation {
	current := h.Units.Mul(currentPrice)
	gain := current.Sub(h.TotalInvested)
	pct := decimal.Zero
	if !h.TotalInvested.IsZero() {
		pct = gain.Div(h.TotalInvested).Mul(hundred)
	}
	return Valuation{
		OwnerID:          h.OwnerID,
		InstrumentID:     h.InstrumentID,
		HasPosition:      h.Units.IsPositive(),
		Units:            h.Units,
		AvgPurchasePrice: h.AvgPurchasePrice.Round(displayPlaces),
		TotalInvested:    h.TotalInvested.Round(displayPlaces),
		CurrentPrice:     currentPrice,
		CurrentValue:     current.Round(displayPlaces),
		GainLoss:         gain.Round(displayPlaces),
		GainLossPct:      pct.Round(displayPlaces),
	}
}

// ZeroValuation is returned when the owner holds nothing in the instrument.
func ZeroValuation(ownerID, instrumentID string, currentPrice decimal.Decimal) Valuation {
	return Valuation{
		OwnerID:          ownerID,
		InstrumentID:     instrumentID,
		Units:            decimal.Zero,
		AvgPurchasePrice: decimal.Zero,
		TotalInvested:    decimal.Zero,
		CurrentPrice:     currentPrice,
		CurrentValue:     decimal.Zero,
		GainLoss:         decimal.Zero,
		GainLossPct:      decimal.Zero,
	}
}
