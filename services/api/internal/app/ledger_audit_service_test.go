package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/shopspring/decimal"
)

func TestLedgerAuditService_Audit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	dec := decimal.RequireFromString
	ctx := context.Background()

	record := func(t *testing.T, svc *LedgerService, in RecordInput) domain.WalletTransaction {
		t.Helper()
		res, err := svc.Record(ctx, in)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		return res.Entry
	}

	t.Run("a chain written by the ledger passes", func(t *testing.T) {
		repo := &fakeLedgerRepo{}
		ledger := NewLedgerService(repo, nil, clock.NewFixed(now))
		record(t, ledger, RecordInput{OwnerID: "user-1", Type: domain.TxDeposit, Amount: dec("100"), Fees: dec("2"), Currency: "USD"})
		record(t, ledger, RecordInput{OwnerID: "user-1", Type: domain.TxWithdrawal, Amount: dec("10"), Currency: "USD", Status: domain.TxStatusPending, PreviousBalance: dec("98")})
		record(t, ledger, RecordInput{OwnerID: "user-1", Type: domain.TxFee, Amount: dec("3"), Currency: "USD", PreviousBalance: dec("98")})

		report, err := NewLedgerAuditService(repo).Audit(ctx, "user-1")
		if err != nil {
			t.Fatalf("audit: %v", err)
		}
		if !report.OK() {
			t.Fatalf("expected a clean report, got %+v", report.Problems)
		}
		if report.Entries != 3 || report.Settled != 2 || !report.Balance.Equal(dec("95")) {
			t.Fatalf("unexpected report: %+v", report)
		}
	})

	t.Run("reports broken links and inconsistent entries", func(t *testing.T) {
		repo := &fakeLedgerRepo{}
		ledger := NewLedgerService(repo, nil, clock.NewFixed(now))
		record(t, ledger, RecordInput{OwnerID: "user-1", Type: domain.TxBonus, Amount: dec("10"), Currency: "USD"})
		second := record(t, ledger, RecordInput{OwnerID: "user-1", Type: domain.TxBonus, Amount: dec("5"), Currency: "USD", PreviousBalance: dec("10")})

		repo.mu.Lock()
		for i, e := range repo.entries {
			if e.ID == second.ID {
				e.PreviousBalance = dec("12")
				e.NewBalance = dec("16")
				repo.entries[i] = e
			}
		}
		repo.mu.Unlock()

		report, err := NewLedgerAuditService(repo).Audit(ctx, "user-1")
		if err != nil {
			t.Fatalf("audit: %v", err)
		}
		if report.OK() {
			t.Fatalf("expected problems")
		}
		var broken, inconsistent bool
		for _, p := range report.Problems {
			if p.TransactionID == second.ID && strings.HasPrefix(p.Reason, "previous balance") {
				broken = true
			}
			if p.TransactionID == second.ID && strings.HasPrefix(p.Reason, "net amount") {
				inconsistent = true
			}
		}
		if !broken || !inconsistent {
			t.Fatalf("expected both a broken link and an inconsistent entry, got %+v", report.Problems)
		}
	})

	t.Run("empty ledger", func(t *testing.T) {
		report, err := NewLedgerAuditService(&fakeLedgerRepo{}).Audit(ctx, "nobody")
		if err != nil {
			t.Fatalf("audit: %v", err)
		}
		if !report.OK() || report.Entries != 0 || !report.Balance.IsZero() || report.Problems == nil {
			t.Fatalf("unexpected empty report: %+v", report)
		}
	})

	t.Run("requires an owner", func(t *testing.T) {
		if _, err := NewLedgerAuditService(&fakeLedgerRepo{}).Audit(ctx, " "); err != domain.ErrOwnerRequired {
			t.Fatalf("expected ErrOwnerRequired, got %v", err)
		}
	})
}
