// Package events publishes lifecycle notifications after state changes commit.
package events

import (
	"context"
	"time"
)

const (
	TypeOrderCreated   = "order.created"
	TypeOrderPaid      = "order.paid"
	TypeOrderExpired   = "order.expired"
	TypeOrderStatus    = "order.status_changed"
	TypeOrdersLinked   = "orders.connected"
	TypeLedgerRecorded = "ledger.recorded"
	TypeLedgerStatus   = "ledger.status_changed"
	TypeHoldingUpdated = "holding.updated"
)

// Event is one notification. Key groups events that must stay ordered
// (an order id, an owner id).
type Event struct {
	Type       string    `json:"event_type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
