package http

import (
	"context"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/shopspring/decimal"
)

type stubCheckout struct {
	result app.CreateOrderResult
	err    error
	got    app.CreateOrderInput
}

func (s *stubCheckout) CreateOrder(_ context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error) {
	s.got = in
	return s.result, s.err
}

type stubPayments struct {
	order      domain.Order
	window     domain.PaymentWindow
	err        error
	gotID      string
	gotProof   domain.PaymentProof
	gotStatus  domain.OrderStatus
	confirmHit int
}

func (s *stubPayments) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.gotID = id
	return s.order, s.err
}

func (s *stubPayments) ConfirmPayment(_ context.Context, id string, proof domain.PaymentProof) (domain.Order, error) {
	s.gotID = id
	s.gotProof = proof
	s.confirmHit++
	return s.order, s.err
}

func (s *stubPayments) GetPaymentWindow(_ context.Context, id string) (domain.PaymentWindow, error) {
	s.gotID = id
	return s.window, s.err
}

func (s *stubPayments) Transition(_ context.Context, id string, to domain.OrderStatus) (domain.Order, error) {
	s.gotID = id
	s.gotStatus = to
	return s.order, s.err
}

type stubGuests struct {
	result     app.ReconcileResult
	err        error
	gotGuest   string
	gotAccount string
}

func (s *stubGuests) Reconcile(_ context.Context, guestID, accountID string) (app.ReconcileResult, error) {
	s.gotGuest, s.gotAccount = guestID, accountID
	return s.result, s.err
}

type stubLedger struct {
	record  app.RecordResult
	entries []domain.WalletTransaction
	balance decimal.Decimal
	updated domain.WalletTransaction
	err     error
	got     app.RecordInput
}

func (s *stubLedger) Record(_ context.Context, in app.RecordInput) (app.RecordResult, error) {
	s.got = in
	return s.record, s.err
}

func (s *stubLedger) List(context.Context, string) ([]domain.WalletTransaction, error) {
	return s.entries, s.err
}

func (s *stubLedger) Balance(context.Context, string) (decimal.Decimal, error) {
	return s.balance, s.err
}

func (s *stubLedger) UpdateStatus(context.Context, string, domain.TxStatus) (domain.WalletTransaction, error) {
	return s.updated, s.err
}

type stubAuditor struct {
	report app.AuditReport
	err    error
}

func (s *stubAuditor) Audit(context.Context, string) (app.AuditReport, error) {
	return s.report, s.err
}

type stubHoldings struct {
	holding    domain.Holding
	valuation  domain.Valuation
	err        error
	gotTrade   app.TradeInput
	gotPrice   decimal.Decimal
	marketCall bool
}

func (s *stubHoldings) ApplyTrade(_ context.Context, in app.TradeInput) (domain.Holding, error) {
	s.gotTrade = in
	return s.holding, s.err
}

func (s *stubHoldings) Valuation(_ context.Context, _, _ string, price decimal.Decimal) (domain.Valuation, error) {
	s.gotPrice = price
	return s.valuation, s.err
}

func (s *stubHoldings) MarketValuation(context.Context, string, string) (domain.Valuation, error) {
	s.marketCall = true
	return s.valuation, s.err
}

type stubPrices struct {
	instrument string
	price      decimal.Decimal
	err        error
}

func (s *stubPrices) SetPrice(_ context.Context, instrumentID string, price decimal.Decimal) error {
	s.instrument, s.price = instrumentID, price
	return s.err
}
