package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"github.com/shopspring/decimal"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newFakeOrderRepo(orders ...domain.Order) *fakeOrderRepo {
	f := &fakeOrderRepo{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrderRepo) get(id string) domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeOrderRepo) GetOrder(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) FindOrderByIdempotencyKey(_ context.Context, createdBy, key string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if creatorOf(o) == createdBy && o.IdempotencyKey == key {
			copy := o
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeOrderRepo) CreateOrder(_ context.Context, order domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if creatorOf(o) == creatorOf(order) && o.IdempotencyKey == order.IdempotencyKey {
			return domain.ErrIdempotencyConflict
		}
	}
	f.orders[order.ID] = order
	return nil
}

func creatorOf(o domain.Order) string {
	if o.CreatedBy != "" {
		return o.CreatedBy
	}
	return o.Owner.String()
}

func (f *fakeOrderRepo) MarkPaid(_ context.Context, id string, proof domain.PaymentProof, now time.Time) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != domain.OrderStatusPending || !o.ExpiresAt.After(now) {
		return domain.Order{}, domain.ErrOrderConflict
	}
	o.Status = domain.OrderStatusPaid
	o.TransactionHash = proof.TransactionRef
	o.PaidAt = &now
	o.UpdatedAt = now
	f.orders[id] = o
	return o, nil
}

func (f *fakeOrderRepo) UpdateOrderStatus(_ context.Context, id string, from, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != from {
		return domain.Order{}, domain.ErrOrderConflict
	}
	o.Status = to
	o.UpdatedAt = now
	f.orders[id] = o
	return o, nil
}

func (f *fakeOrderRepo) ConnectGuestOrders(_ context.Context, guest, account domain.Owner, snapshot, now time.Time) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Order{}
	for id, o := range f.orders {
		if o.Owner != guest || o.CreatedAt.After(snapshot) {
			continue
		}
		o.Owner = account
		o.ConnectedAt = &now
		o.UpdatedAt = now
		f.orders[id] = o
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeOrderRepo) ExpireStaleOrders(_ context.Context, now time.Time, limit int) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0)
	for id, o := range f.orders {
		if o.Status == domain.OrderStatusPending && !o.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o := f.orders[id]
		o.Status = domain.OrderStatusExpired
		o.UpdatedAt = now
		f.orders[id] = o
		out = append(out, o)
	}
	return out, nil
}

// fakeLedgerRepo serializes WithTx the way the owner advisory lock does.
type fakeLedgerRepo struct {
	txMu    sync.Mutex
	mu      sync.Mutex
	entries []domain.WalletTransaction
}

func (f *fakeLedgerRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	return fn(ctx)
}

func (f *fakeLedgerRepo) LockOwner(context.Context, string) error { return nil }

func (f *fakeLedgerRepo) Head(_ context.Context, ownerID string) (domain.LedgerHead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	head := domain.LedgerHead{Balance: decimal.Zero}
	for _, e := range f.entries {
		if e.OwnerID != ownerID {
			continue
		}
		if e.Seq > head.LastSeq {
			head.LastSeq = e.Seq
		}
		if e.Status.Settled() && e.Seq > head.SettledSeq {
			head.SettledSeq = e.Seq
			head.Balance = e.NewBalance
		}
	}
	return head, nil
}

func (f *fakeLedgerRepo) FindTransactionBySource(_ context.Context, ref domain.SourceRef) (*domain.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Source == ref {
			copy := e
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeLedgerRepo) InsertTransaction(_ context.Context, tx domain.WalletTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if !tx.Source.IsZero() && e.Source == tx.Source {
			return domain.ErrTransactionConflict
		}
		if e.OwnerID == tx.OwnerID && e.Seq == tx.Seq {
			return domain.ErrBalanceConflict
		}
	}
	f.entries = append(f.entries, tx)
	return nil
}

func (f *fakeLedgerRepo) GetTransactionForUpdate(_ context.Context, id string) (domain.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.WalletTransaction{}, domain.ErrTransactionNotFound
}

func (f *fakeLedgerRepo) UpdateTransactionStatus(_ context.Context, id string, from, to domain.TxStatus, now time.Time) (domain.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID != id {
			continue
		}
		if e.Status != from {
			return domain.WalletTransaction{}, domain.ErrTransactionConflict
		}
		e.Status = to
		e.UpdatedAt = now
		f.entries[i] = e
		return e, nil
	}
	return domain.WalletTransaction{}, domain.ErrTransactionNotFound
}

func (f *fakeLedgerRepo) ListTransactions(_ context.Context, ownerID string) ([]domain.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.WalletTransaction{}
	for _, e := range f.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

type fakeBalanceCache struct {
	mu          sync.Mutex
	balances    map[string]domain.BalanceAt
	invalidated []string
}

func newFakeBalanceCache() *fakeBalanceCache {
	return &fakeBalanceCache{balances: make(map[string]domain.BalanceAt)}
}

func (c *fakeBalanceCache) GetBalance(_ context.Context, ownerID string) (domain.BalanceAt, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.balances[ownerID]
	return b, ok, nil
}

func (c *fakeBalanceCache) SetBalance(_ context.Context, ownerID string, balance domain.BalanceAt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[ownerID] = balance
	return nil
}

func (c *fakeBalanceCache) InvalidateBalance(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, ownerID)
	c.invalidated = append(c.invalidated, ownerID)
	return nil
}

type fakeHoldingRepo struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	holdings map[string]domain.Holding
	// createConflicts makes the next CreateHolding calls fail as if a
	// concurrent first buy had won.
	createConflicts int
}

func newFakeHoldingRepo() *fakeHoldingRepo {
	return &fakeHoldingRepo{holdings: make(map[string]domain.Holding)}
}

func holdingKey(ownerID, instrumentID string) string { return ownerID + "/" + instrumentID }

func cloneHolding(h domain.Holding) domain.Holding {
	h.History = append([]domain.Lot(nil), h.History...)
	return h
}

func (f *fakeHoldingRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	return fn(ctx)
}

func (f *fakeHoldingRepo) GetHoldingForUpdate(ctx context.Context, ownerID, instrumentID string) (*domain.Holding, error) {
	return f.GetHolding(ctx, ownerID, instrumentID)
}

func (f *fakeHoldingRepo) GetHolding(_ context.Context, ownerID, instrumentID string) (*domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holdings[holdingKey(ownerID, instrumentID)]
	if !ok {
		return nil, nil
	}
	copy := cloneHolding(h)
	return &copy, nil
}

func (f *fakeHoldingRepo) CreateHolding(_ context.Context, h domain.Holding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := holdingKey(h.OwnerID, h.InstrumentID)
	if f.createConflicts > 0 {
		f.createConflicts--
		winner := domain.Holding{
			ID: "winner", OwnerID: h.OwnerID, InstrumentID: h.InstrumentID, Version: 1,
			Units: decimal.Zero, TotalInvested: decimal.Zero, AvgPurchasePrice: decimal.Zero,
		}
		winner.Buy(domain.Lot{Side: domain.TradeBuy, Units: decimal.NewFromInt(1), Price: decimal.NewFromInt(10), Fees: decimal.Zero})
		f.holdings[key] = winner
		return domain.ErrHoldingConflict
	}
	if _, exists := f.holdings[key]; exists {
		return domain.ErrHoldingConflict
	}
	f.holdings[key] = cloneHolding(h)
	return nil
}

func (f *fakeHoldingRepo) UpdateHolding(_ context.Context, h domain.Holding, _ domain.Lot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := holdingKey(h.OwnerID, h.InstrumentID)
	stored, ok := f.holdings[key]
	if !ok || stored.Version != h.Version {
		return domain.ErrHoldingConflict
	}
	next := cloneHolding(h)
	next.Version++
	f.holdings[key] = next
	return nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
}

func (p fakePrices) Price(_ context.Context, instrumentID string) (decimal.Decimal, error) {
	price, ok := p.prices[instrumentID]
	if !ok {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	return price, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
