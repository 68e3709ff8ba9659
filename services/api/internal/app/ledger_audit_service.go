package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/shopspring/decimal"
)

type AuditRepository interface {
	ListTransactions(ctx context.Context, ownerID string) ([]domain.WalletTransaction, error)
}

// LedgerAuditService re-checks an owner's stored ledger for internal consistency.
type LedgerAuditService struct {
	repo AuditRepository
}

func NewLedgerAuditService(repo AuditRepository) *LedgerAuditService {
	return &LedgerAuditService{repo: repo}
}

type AuditProblem struct {
	TransactionID string
	Seq           int64
	Reason        string
}

type AuditReport struct {
	OwnerID  string
	Entries  int
	Settled  int
	Balance  decimal.Decimal
	Problems []AuditProblem
}

func (r AuditReport) OK() bool { return len(r.Problems) == 0 }

// Audit walks the entries in sequence order. Every entry must satisfy the
// net and balance formulas, and every settled entry must start from the
// balance the previous settled entry left.
func (s *LedgerAuditService) Audit(ctx context.Context, ownerID string) (AuditReport, error) {
	if strings.TrimSpace(ownerID) == "" {
		return AuditReport{}, domain.ErrOwnerRequired
	}
	entries, err := s.repo.ListTransactions(ctx, ownerID)
	if err != nil {
		return AuditReport{}, err
	}

	report := AuditReport{
		OwnerID:  ownerID,
		Entries:  len(entries),
		Balance:  decimal.Zero,
		Problems: []AuditProblem{},
	}
	running := decimal.Zero
	var lastSeq int64
	for _, tx := range entries {
		if tx.Seq <= lastSeq {
			report.Problems = append(report.Problems, AuditProblem{
				TransactionID: tx.ID,
				Seq:           tx.Seq,
				Reason:        fmt.Sprintf("sequence %d does not follow %d", tx.Seq, lastSeq),
			})
		}
		lastSeq = tx.Seq

		if !tx.Consistent() {
			report.Problems = append(report.Problems, AuditProblem{
				TransactionID: tx.ID,
				Seq:           tx.Seq,
				Reason:        "net amount or new balance does not match amount, fees and previous balance",
			})
		}
		if !tx.Status.Settled() {
			continue
		}
		report.Settled++
		if !tx.PreviousBalance.Equal(running) {
			report.Problems = append(report.Problems, AuditProblem{
				TransactionID: tx.ID,
				Seq:           tx.Seq,
				Reason:        fmt.Sprintf("previous balance %s, expected %s", tx.PreviousBalance, running),
			})
		}
		running = tx.NewBalance
	}

	report.Balance = domain.FoldBalance(entries)
	if !report.Balance.Equal(running) {
		report.Problems = append(report.Problems, AuditProblem{
			Reason: fmt.Sprintf("folded balance %s differs from chained balance %s", report.Balance, running),
		})
	}
	return report, nil
}
