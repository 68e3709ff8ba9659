package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxDeposit          TxType = "DEPOSIT"
	TxWithdrawal       TxType = "WITHDRAWAL"
	TxInvestmentBuy    TxType = "INVESTMENT_BUY"
	TxInvestmentSell   TxType = "INVESTMENT_SELL"
	TxInternalTransfer TxType = "INTERNAL_TRANSFER"
	TxRefund           TxType = "REFUND"
	TxFee              TxType = "FEE"
	TxBonus            TxType = "BONUS"
	TxAdjustment       TxType = "ADJUSTMENT"
)

func (t TxType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxInvestmentBuy, TxInvestmentSell, TxInternalTransfer,
		TxRefund, TxFee, TxBonus, TxAdjustment:
		return true
	}
	return false
}

type TxStatus string

const (
	TxStatusPending     TxStatus = "PENDING"
	TxStatusCompleted   TxStatus = "COMPLETED"
	TxStatusFailed      TxStatus = "FAILED"
	TxStatusCancelled   TxStatus = "CANCELLED"
	TxStatusUnderReview TxStatus = "UNDER_REVIEW"
	TxStatusRefunded    TxStatus = "REFUNDED"
)

var txTransitions = map[TxStatus][]TxStatus{
	TxStatusPending:     {TxStatusCompleted, TxStatusFailed, TxStatusCancelled, TxStatusUnderReview},
	TxStatusUnderReview: {TxStatusCompleted, TxStatusFailed, TxStatusCancelled},
	TxStatusCompleted:   {TxStatusRefunded},
}

func (s TxStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed, TxStatusCancelled,
		TxStatusUnderReview, TxStatusRefunded:
		return true
	}
	return false
}

func (s TxStatus) CanTransitionTo(to TxStatus) bool {
	for _, next := range txTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Settled entries are the ones folded into the balance.
func (s TxStatus) Settled() bool {
	return s == TxStatusCompleted || s == TxStatusRefunded
}

// Direction is the sign a ledger entry applies to the balance.
type Direction int8

const (
	DirectionNone   Direction = 0
	DirectionCredit Direction = 1
	DirectionDebit  Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionCredit:
		return "credit"
	case DirectionDebit:
		return "debit"
	default:
		return "none"
	}
}

// ParseDirection maps "credit"/"debit" to a Direction; anything else is DirectionNone.
func ParseDirection(s string) Direction {
	switch s {
	case "credit":
		return DirectionCredit
	case "debit":
		return DirectionDebit
	default:
		return DirectionNone
	}
}

// ImpliedDirection is the fixed sign of t, or DirectionNone for types whose sign
// the caller must state (INTERNAL_TRANSFER, ADJUSTMENT).
func (t TxType) ImpliedDirection() Direction {
	switch t {
	case TxDeposit, TxRefund, TxBonus, TxInvestmentSell:
		return DirectionCredit
	case TxWithdrawal, TxInvestmentBuy, TxFee:
		return DirectionDebit
	default:
		return DirectionNone
	}
}

// ComputeNet derives the unsigned net amount of an entry: fees come out of
// credits (DEPOSIT, REFUND, BONUS), are added on top of debits (WITHDRAWAL,
// INVESTMENT_BUY, FEE), and are ignored for every other type.
func ComputeNet(t TxType, amount, fees decimal.Decimal) decimal.Decimal {
	switch t {
	case TxDeposit, TxRefund, TxBonus:
		return amount.Sub(fees)
	case TxWithdrawal, TxInvestmentBuy, TxFee:
		return amount.Add(fees)
	default:
		return amount
	}
}

// ApplyNet returns the balance after applying net in direction d.
func ApplyNet(previous, net decimal.Decimal, d Direction) decimal.Decimal {
	if d == DirectionDebit {
		return previous.Sub(net)
	}
	return previous.Add(net)
}

type SourceKind string

const (
	SourceDeposit SourceKind = "deposit"
	SourceTrade   SourceKind = "trade"
	SourceOrder   SourceKind = "order"
)

// SourceRef links a ledger entry to the event that produced it. At most one
// entry exists per source.
type SourceRef struct {
	Kind SourceKind
	ID   string
}

func (r SourceRef) IsZero() bool { return r.Kind == "" && r.ID == "" }

func (r SourceRef) Validate() error {
	if r.IsZero() {
		return nil
	}
	switch r.Kind {
	case SourceDeposit, SourceTrade, SourceOrder:
	default:
		return ErrInvalidSourceRef
	}
	if r.ID == "" {
		return ErrInvalidSourceRef
	}
	return nil
}

// WalletTransaction is one append-only ledger entry.
type WalletTransaction struct {
	ID              string
	OwnerID         string
	Seq             int64
	Type            TxType
	Direction       Direction
	Currency        string
	Amount          decimal.Decimal
	Fees            decimal.Decimal
	NetAmount       decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Status          TxStatus
	Source          SourceRef
	Details         TxDetails
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SignedNet is NetAmount with the entry's direction applied.
func (tx WalletTransaction) SignedNet() decimal.Decimal {
	if tx.Direction == DirectionDebit {
		return tx.NetAmount.Neg()
	}
	return tx.NetAmount
}

// Consistent reports whether the stored balances agree with the net amount.
func (tx WalletTransaction) Consistent() bool {
	return tx.NewBalance.Sub(tx.PreviousBalance).Equal(tx.SignedNet()) &&
		tx.NetAmount.Equal(ComputeNet(tx.Type, tx.Amount, tx.Fees))
}

// FoldBalance folds settled entries (in Seq order) into a balance.
func FoldBalance(entries []WalletTransaction) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		if !e.Status.Settled() {
			continue
		}
		balance = balance.Add(e.SignedNet())
	}
	return balance
}

// LastSettledSeq returns the highest Seq among settled entries, or zero.
func LastSettledSeq(entries []WalletTransaction) int64 {
	var seq int64
	for _, e := range entries {
		if e.Status.Settled() && e.Seq > seq {
			seq = e.Seq
		}
	}
	return seq
}

// BalanceAt is a folded balance and the SettledSeq of the head it was folded at.
type BalanceAt struct {
	Balance    decimal.Decimal
	SettledSeq int64
}

// LedgerHead summarizes an owner's ledger at the time it was read.
type LedgerHead struct {
	// Balance is the NewBalance of the settled entry with the highest Seq, or zero.
	Balance decimal.Decimal
	// SettledSeq is that entry's Seq, or zero.
	SettledSeq int64
	// LastSeq is the highest Seq of any entry, settled or not.
	LastSeq int64
}
