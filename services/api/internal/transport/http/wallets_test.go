package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/shopspring/decimal"
)

func TestHandleRecordTransaction(t *testing.T) {
	t.Parallel()

	dec := decimal.RequireFromString
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	entry := domain.WalletTransaction{
		ID:              "01JTESTENTRY",
		OwnerID:         "user-1",
		Seq:             2,
		Type:            domain.TxInvestmentBuy,
		Direction:       domain.DirectionDebit,
		Currency:        "USD",
		Amount:          dec("80"),
		Fees:            dec("1"),
		NetAmount:       dec("81"),
		PreviousBalance: dec("98"),
		NewBalance:      dec("17"),
		Status:          domain.TxStatusCompleted,
		Source:          domain.SourceRef{Kind: domain.SourceTrade, ID: "trade-1"},
		Details:         domain.TradeDetails{Symbol: "ACME", Quantity: dec("2"), Price: dec("40")},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	body := `{"type":"INVESTMENT_BUY","amount":"80","fees":"1","previous_balance":"98","currency":"USD",
		"source":{"kind":"trade","id":"trade-1"},
		"details":{"kind":"trade","data":{"symbol":"ACME","quantity":"2","price":"40"}}}`
	owner := map[string]string{ownerHeader: "user-1"}

	t.Run("created", func(t *testing.T) {
		svc := &stubLedger{record: app.RecordResult{Entry: entry, Created: true}}
		rec := serve(t, NewRouter(RouterConfig{Ledger: svc}), http.MethodPost, "/wallets/user-1/transactions", body, owner)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.got.OwnerID != "user-1" || svc.got.Type != domain.TxInvestmentBuy || !svc.got.PreviousBalance.Equal(dec("98")) {
			t.Fatalf("unexpected input: %+v", svc.got)
		}
		if svc.got.Source != (domain.SourceRef{Kind: domain.SourceTrade, ID: "trade-1"}) {
			t.Fatalf("unexpected source: %+v", svc.got.Source)
		}
		details, ok := svc.got.Details.(domain.TradeDetails)
		if !ok || details.Symbol != "ACME" {
			t.Fatalf("unexpected details: %#v", svc.got.Details)
		}

		var resp transactionResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Direction != "debit" || !resp.NetAmount.Equal(dec("81")) || !resp.NewBalance.Equal(dec("17")) {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if resp.Source == nil || resp.Source.ID != "trade-1" {
			t.Fatalf("expected source in response, got %+v", resp.Source)
		}
	})

	t.Run("replayed source", func(t *testing.T) {
		svc := &stubLedger{record: app.RecordResult{Entry: entry}}
		rec := serve(t, NewRouter(RouterConfig{Ledger: svc}), http.MethodPost, "/wallets/user-1/transactions", body, owner)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("explicit direction", func(t *testing.T) {
		svc := &stubLedger{record: app.RecordResult{Entry: entry, Created: true}}
		rec := serve(t, NewRouter(RouterConfig{Ledger: svc}), http.MethodPost, "/wallets/user-1/transactions",
			`{"type":"ADJUSTMENT","direction":"credit","amount":"5","fees":"0","previous_balance":"0","currency":"USD"}`, owner)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rec.Code)
		}
		if svc.got.Direction != domain.DirectionCredit || svc.got.Details != nil {
			t.Fatalf("unexpected input: %+v", svc.got)
		}
	})

	t.Run("stale balance", func(t *testing.T) {
		svc := &stubLedger{err: domain.ErrBalanceConflict}
		rec := serve(t, NewRouter(RouterConfig{Ledger: svc}), http.MethodPost, "/wallets/user-1/transactions", body, owner)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != "balance_conflict" {
			t.Fatalf("expected balance_conflict, got %s", resp.Code)
		}
	})

	t.Run("unknown details kind", func(t *testing.T) {
		svc := &stubLedger{}
		rec := serve(t, NewRouter(RouterConfig{Ledger: svc}), http.MethodPost, "/wallets/user-1/transactions",
			`{"type":"DEPOSIT","amount":"5","currency":"USD","details":{"kind":"card","data":{}}}`, owner)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandleLedgerReads(t *testing.T) {
	t.Parallel()

	dec := decimal.RequireFromString
	owner := map[string]string{ownerHeader: "user-1"}
	svc := &stubLedger{
		balance: dec("17"),
		entries: []domain.WalletTransaction{
			{ID: "a", OwnerID: "user-1", Seq: 1, Type: domain.TxDeposit, Direction: domain.DirectionCredit, Status: domain.TxStatusCompleted,
				Amount: dec("100"), Fees: dec("2"), NetAmount: dec("98"), PreviousBalance: decimal.Zero, NewBalance: dec("98")},
		},
	}
	router := NewRouter(RouterConfig{Ledger: svc})

	rec := serve(t, router, http.MethodGet, "/wallets/user-1/balance", "", owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var balance balanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&balance); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if balance.OwnerID != "user-1" || !balance.Balance.Equal(dec("17")) {
		t.Fatalf("unexpected balance: %+v", balance)
	}

	rec = serve(t, router, http.MethodGet, "/wallets/user-1/transactions", "", owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var entries []transactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Direction != "credit" || entries[0].Source != nil {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestHandleTransactionStatus(t *testing.T) {
	t.Parallel()

	t.Run("settles", func(t *testing.T) {
		svc := &stubLedger{updated: domain.WalletTransaction{ID: "tx-1", Status: domain.TxStatusCompleted}}
		rec := serve(t, NewRouter(RouterConfig{Ledger: svc}), http.MethodPost, "/admin/transactions/tx-1/status", `{"status":"COMPLETED"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("terminal entry", func(t *testing.T) {
		svc := &stubLedger{err: domain.ErrTxStatusTransition}
		rec := serve(t, NewRouter(RouterConfig{Ledger: svc}), http.MethodPost, "/admin/transactions/tx-1/status", `{"status":"PENDING"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != "invalid_status_transition" {
			t.Fatalf("expected invalid_status_transition, got %s", resp.Code)
		}
	})
}

func TestHandleAudit(t *testing.T) {
	t.Parallel()

	svc := &stubAuditor{report: app.AuditReport{
		OwnerID:  "user-1",
		Entries:  3,
		Settled:  2,
		Balance:  decimal.RequireFromString("17"),
		Problems: []app.AuditProblem{{TransactionID: "b", Seq: 2, Reason: "previous balance does not chain"}},
	}}

	rec := serve(t, NewRouter(RouterConfig{Audit: svc}), http.MethodGet, "/admin/wallets/user-1/audit", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp auditResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || resp.Entries != 3 || len(resp.Problems) != 1 || resp.Problems[0].Seq != 2 {
		t.Fatalf("unexpected report: %+v", resp)
	}
}
