package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusExpired    OrderStatus = "expired"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusExpired},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
}

// CanTransitionTo reports whether to is a direct successor of s in the order lifecycle.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCrypto       PaymentMethod = "crypto"
	PaymentMethodWallet       PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodCrypto, PaymentMethodWallet:
		return true
	}
	return false
}

// Billing is the billing snapshot captured at checkout.
type Billing struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Country string `json:"country,omitempty"`
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	Postal  string `json:"postal,omitempty"`
}

// Order represents one checkout attempt. Orders are never deleted; expiry is a status.
type Order struct {
	ID              string
	Reference       string
	Owner           Owner
	ProductID       string
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	Currency        string
	Amount          decimal.Decimal
	CryptoAmount    *decimal.Decimal
	WalletAddress   string
	TransactionHash string
	ExpiresAt       time.Time
	PaidAt          *time.Time
	ConfirmedAt     *time.Time
	ConnectedAt     *time.Time
	Billing         Billing
	Metadata        map[string]string
	IdempotencyKey  string
	// CreatedBy is the persisted owner id at creation. It scopes IdempotencyKey
	// and does not change when a guest order is connected to an account.
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentExpired reports whether a pending order's window has lapsed at now.
// Once the order leaves pending, ExpiresAt no longer decides anything.
func (o Order) PaymentExpired(now time.Time) bool {
	return o.Status == OrderStatusPending && !o.ExpiresAt.After(now)
}

// PaymentProof is the external confirmation signal for a pending order.
type PaymentProof struct {
	TransactionRef string
	CryptoAmount   *decimal.Decimal
	WalletAddress  string
}

func (p PaymentProof) Validate() error {
	if strings.TrimSpace(p.TransactionRef) == "" {
		return ErrProofRequired
	}
	if p.CryptoAmount != nil && !p.CryptoAmount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// PaymentWindow describes how much of a pending order's window is left.
type PaymentWindow struct {
	OrderID          string
	ExpiresAt        time.Time
	TotalWindow      time.Duration
	RemainingSeconds int64
	ProgressPercent  float64
}

// NewPaymentWindow computes remaining seconds (floored at 0) and elapsed progress
// (0-100) of total at now.
func NewPaymentWindow(o Order, total time.Duration, now time.Time) PaymentWindow {
	remaining := o.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	progress := 100.0
	if total > 0 {
		progress = float64(total-remaining) / float64(total) * 100
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return PaymentWindow{
		OrderID:          o.ID,
		ExpiresAt:        o.ExpiresAt,
		TotalWindow:      total,
		RemainingSeconds: int64(remaining / time.Second),
		ProgressPercent:  progress,
	}
}
