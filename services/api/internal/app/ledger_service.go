package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockOwner serializes ledger writes for ownerID until the surrounding transaction ends.
	LockOwner(ctx context.Context, ownerID string) error
	Head(ctx context.Context, ownerID string) (domain.LedgerHead, error)
	FindTransactionBySource(ctx context.Context, ref domain.SourceRef) (*domain.WalletTransaction, error)
	// InsertTransaction returns domain.ErrConflict-kinded errors for a taken
	// (owner, seq) or source; it never overwrites.
	InsertTransaction(ctx context.Context, tx domain.WalletTransaction) error
	GetTransactionForUpdate(ctx context.Context, id string) (domain.WalletTransaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, from, to domain.TxStatus, now time.Time) (domain.WalletTransaction, error)
	ListTransactions(ctx context.Context, ownerID string) ([]domain.WalletTransaction, error)
}

// BalanceCache keeps the folded balance per owner for repeat reads, tagged with
// the settled seq it was folded at. Writes never consult it.
type BalanceCache interface {
	GetBalance(ctx context.Context, ownerID string) (domain.BalanceAt, bool, error)
	SetBalance(ctx context.Context, ownerID string, balance domain.BalanceAt) error
	InvalidateBalance(ctx context.Context, ownerID string) error
}

type nopBalanceCache struct{}

func (nopBalanceCache) GetBalance(context.Context, string) (domain.BalanceAt, bool, error) {
	return domain.BalanceAt{}, false, nil
}
func (nopBalanceCache) SetBalance(context.Context, string, domain.BalanceAt) error { return nil }
func (nopBalanceCache) InvalidateBalance(context.Context, string) error            { return nil }

type LedgerService struct {
	repo  LedgerRepository
	cache BalanceCache
	clock clock.Clock
	options
}

func NewLedgerService(repo LedgerRepository, cache BalanceCache, clk clock.Clock, opts ...Option) *LedgerService {
	if cache == nil {
		cache = nopBalanceCache{}
	}
	return &LedgerService{
		repo:    repo,
		cache:   cache,
		clock:   clk,
		options: newOptions(opts),
	}
}

type RecordInput struct {
	OwnerID         string
	Type            domain.TxType
	Amount          decimal.Decimal
	Fees            decimal.Decimal
	PreviousBalance decimal.Decimal
	Currency        string
	Source          domain.SourceRef
	Details         domain.TxDetails
	// Status defaults to COMPLETED.
	Status domain.TxStatus
	// Direction is required for INTERNAL_TRANSFER and ADJUSTMENT and must agree
	// with the implied direction for every other type.
	Direction domain.Direction
}

type RecordResult struct {
	Entry   domain.WalletTransaction
	Created bool
}

// Record appends one entry. PreviousBalance must equal the owner's settled head
// balance, otherwise the append fails with domain.ErrBalanceConflict and the
// caller re-reads its balance. A source that already has an entry returns that
// entry with Created=false before any balance check runs.
func (s *LedgerService) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	now := s.clock.Now()
	entry, err := buildEntry(in, now)
	if err != nil {
		return RecordResult{}, err
	}

	var result RecordResult
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockOwner(txCtx, entry.OwnerID); err != nil {
			return err
		}

		if !entry.Source.IsZero() {
			existing, err := s.repo.FindTransactionBySource(txCtx, entry.Source)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.OwnerID != entry.OwnerID || existing.Type != entry.Type {
					return domain.ErrIdempotencyConflict
				}
				result = RecordResult{Entry: *existing, Created: false}
				return nil
			}
		}

		if err := checkNewBalance(entry); err != nil {
			return err
		}
		head, err := s.repo.Head(txCtx, entry.OwnerID)
		if err != nil {
			return err
		}
		if !head.Balance.Equal(entry.PreviousBalance) {
			return domain.ErrBalanceConflict
		}

		entry.Seq = head.LastSeq + 1
		if err := s.repo.InsertTransaction(txCtx, entry); err != nil {
			return err
		}
		result = RecordResult{Entry: entry, Created: true}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Info("ledger append rejected",
				zap.String("owner_id", entry.OwnerID),
				zap.String("type", string(entry.Type)),
				zap.Error(err))
		}
		return RecordResult{}, err
	}
	if !result.Created {
		return result, nil
	}

	if entry.Status.Settled() {
		s.invalidateCache(ctx, entry.OwnerID)
	}
	s.logger.Info("ledger entry recorded",
		zap.String("owner_id", entry.OwnerID),
		zap.String("tx_id", entry.ID),
		zap.Int64("seq", entry.Seq),
		zap.String("type", string(entry.Type)),
		zap.String("net_amount", entry.NetAmount.String()),
		zap.String("new_balance", entry.NewBalance.String()))
	s.publish(ctx, ledgerEvent(events.TypeLedgerRecorded, entry, now))
	return result, nil
}

func buildEntry(in RecordInput, now time.Time) (domain.WalletTransaction, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return domain.WalletTransaction{}, domain.ErrOwnerRequired
	}
	if !in.Type.Valid() {
		return domain.WalletTransaction{}, domain.ErrUnknownTxType
	}
	if !in.Amount.IsPositive() || !domain.FitsMoney(in.Amount) {
		return domain.WalletTransaction{}, domain.ErrInvalidAmount
	}
	if in.Fees.IsNegative() || !domain.FitsMoney(in.Fees) {
		return domain.WalletTransaction{}, domain.ErrInvalidFees
	}
	if !domain.FitsMoney(in.PreviousBalance) {
		return domain.WalletTransaction{}, domain.ErrInvalidAmount
	}
	if err := in.Source.Validate(); err != nil {
		return domain.WalletTransaction{}, err
	}
	if err := domain.ValidateDetails(in.Type, in.Details); err != nil {
		return domain.WalletTransaction{}, err
	}

	status := in.Status
	if status == "" {
		status = domain.TxStatusCompleted
	}
	// New entries start either pending, under review, or completed.
	switch status {
	case domain.TxStatusPending, domain.TxStatusUnderReview, domain.TxStatusCompleted:
	default:
		return domain.WalletTransaction{}, domain.ErrTxStatusTransition
	}

	direction := in.Type.ImpliedDirection()
	switch {
	case direction == domain.DirectionNone && in.Direction == domain.DirectionNone:
		return domain.WalletTransaction{}, domain.ErrDirectionRequired
	case direction == domain.DirectionNone:
		direction = in.Direction
	case in.Direction != domain.DirectionNone && in.Direction != direction:
		return domain.WalletTransaction{}, domain.ErrDirectionRequired
	}

	net := domain.ComputeNet(in.Type, in.Amount, in.Fees)
	if net.IsNegative() {
		return domain.WalletTransaction{}, domain.ErrFeesExceedAmount
	}
	newBalance := domain.ApplyNet(in.PreviousBalance, net, direction)

	return domain.WalletTransaction{
		ID:              newULID(now),
		OwnerID:         strings.TrimSpace(in.OwnerID),
		Type:            in.Type,
		Direction:       direction,
		Currency:        strings.ToUpper(strings.TrimSpace(in.Currency)),
		Amount:          in.Amount,
		Fees:            in.Fees,
		NetAmount:       net,
		PreviousBalance: in.PreviousBalance,
		NewBalance:      newBalance,
		Status:          status,
		Source:          in.Source,
		Details:         in.Details,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// checkNewBalance rejects entries whose resulting balance cannot be held.
func checkNewBalance(entry domain.WalletTransaction) error {
	if entry.NewBalance.IsNegative() && entry.Type != domain.TxAdjustment {
		return domain.ErrInsufficientBalance
	}
	if !domain.FitsMoney(entry.NewBalance) {
		return domain.ErrInvalidAmount
	}
	return nil
}

// HasEntryForSource lets callers check for an existing entry before recording.
func (s *LedgerService) HasEntryForSource(ctx context.Context, ref domain.SourceRef) (bool, error) {
	if ref.IsZero() {
		return false, domain.ErrInvalidSourceRef
	}
	if err := ref.Validate(); err != nil {
		return false, err
	}
	existing, err := s.repo.FindTransactionBySource(ctx, ref)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

type DepositInput struct {
	OwnerID         string
	DepositID       string
	Amount          decimal.Decimal
	Fees            decimal.Decimal
	PreviousBalance decimal.Decimal
	Currency        string
	Details         domain.TxDetails
	Status          domain.TxStatus
}

// RecordDeposit records a DEPOSIT keyed by the deposit id.
func (s *LedgerService) RecordDeposit(ctx context.Context, in DepositInput) (RecordResult, error) {
	return s.Record(ctx, RecordInput{
		OwnerID:         in.OwnerID,
		Type:            domain.TxDeposit,
		Amount:          in.Amount,
		Fees:            in.Fees,
		PreviousBalance: in.PreviousBalance,
		Currency:        in.Currency,
		Source:          domain.SourceRef{Kind: domain.SourceDeposit, ID: in.DepositID},
		Details:         in.Details,
		Status:          in.Status,
	})
}

type TradeEntryInput struct {
	OwnerID         string
	TradeID         string
	Side            domain.TradeSide
	Symbol          string
	Units           decimal.Decimal
	Price           decimal.Decimal
	Fees            decimal.Decimal
	PreviousBalance decimal.Decimal
	Currency        string
}

// RecordTrade records the cash side of a settled trade keyed by the trade id:
// INVESTMENT_BUY for buys, INVESTMENT_SELL for sells, amount = units * price.
func (s *LedgerService) RecordTrade(ctx context.Context, in TradeEntryInput) (RecordResult, error) {
	var typ domain.TxType
	switch in.Side {
	case domain.TradeBuy:
		typ = domain.TxInvestmentBuy
	case domain.TradeSell:
		typ = domain.TxInvestmentSell
	default:
		return RecordResult{}, domain.ErrInvalidTradeSide
	}
	return s.Record(ctx, RecordInput{
		OwnerID:         in.OwnerID,
		Type:            typ,
		Amount:          in.Units.Mul(in.Price),
		Fees:            in.Fees,
		PreviousBalance: in.PreviousBalance,
		Currency:        in.Currency,
		Source:          domain.SourceRef{Kind: domain.SourceTrade, ID: in.TradeID},
		Details: domain.TradeDetails{
			Symbol:   in.Symbol,
			Quantity: in.Units,
			Price:    in.Price,
		},
	})
}

// UpdateStatus progresses an entry's status; no other field ever changes.
// Settling a pending entry requires that nothing settled after it and that its
// PreviousBalance still matches the head.
func (s *LedgerService) UpdateStatus(ctx context.Context, id string, to domain.TxStatus) (domain.WalletTransaction, error) {
	if !to.Valid() {
		return domain.WalletTransaction{}, domain.ErrTxStatusTransition
	}
	now := s.clock.Now()

	var updated domain.WalletTransaction
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetTransactionForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(to) {
			return domain.ErrTxStatusTransition
		}

		if to == domain.TxStatusCompleted {
			if err := s.repo.LockOwner(txCtx, current.OwnerID); err != nil {
				return err
			}
			head, err := s.repo.Head(txCtx, current.OwnerID)
			if err != nil {
				return err
			}
			if head.SettledSeq > current.Seq || !head.Balance.Equal(current.PreviousBalance) {
				return domain.ErrBalanceConflict
			}
		}

		updated, err = s.repo.UpdateTransactionStatus(txCtx, id, current.Status, to, now)
		return err
	})
	if err != nil {
		return domain.WalletTransaction{}, err
	}

	if to == domain.TxStatusCompleted {
		s.invalidateCache(ctx, updated.OwnerID)
	}
	s.logger.Info("ledger entry status changed",
		zap.String("tx_id", id),
		zap.String("owner_id", updated.OwnerID),
		zap.String("status", string(to)))
	s.publish(ctx, ledgerEvent(events.TypeLedgerStatus, updated, now))
	return updated, nil
}

func (s *LedgerService) List(ctx context.Context, ownerID string) ([]domain.WalletTransaction, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrOwnerRequired
	}
	return s.repo.ListTransactions(ctx, ownerID)
}

// Balance folds the owner's settled entries. A cached value is served only
// while it was folded at the current head's SettledSeq.
func (s *LedgerService) Balance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	if strings.TrimSpace(ownerID) == "" {
		return decimal.Zero, domain.ErrOwnerRequired
	}
	head, err := s.repo.Head(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	if cached, ok, err := s.cache.GetBalance(ctx, ownerID); err != nil {
		s.logger.Warn("balance cache read failed", zap.String("owner_id", ownerID), zap.Error(err))
	} else if ok && cached.SettledSeq == head.SettledSeq {
		return cached.Balance, nil
	}

	entries, err := s.repo.ListTransactions(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	// Tag with the seq of the folded entries, not the head read above.
	folded := domain.BalanceAt{
		Balance:    domain.FoldBalance(entries),
		SettledSeq: domain.LastSettledSeq(entries),
	}
	s.refreshCache(ctx, ownerID, folded)
	return folded.Balance, nil
}

func (s *LedgerService) refreshCache(ctx context.Context, ownerID string, balance domain.BalanceAt) {
	if err := s.cache.SetBalance(ctx, ownerID, balance); err != nil {
		s.logger.Warn("balance cache write failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

// invalidateCache drops the cached balance after a settled write; the next
// Balance call refolds from storage.
func (s *LedgerService) invalidateCache(ctx context.Context, ownerID string) {
	if err := s.cache.InvalidateBalance(ctx, ownerID); err != nil {
		s.logger.Warn("balance cache invalidate failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

type ledgerPayload struct {
	TxID       string `json:"tx_id"`
	OwnerID    string `json:"owner_id"`
	Seq        int64  `json:"seq"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	NetAmount  string `json:"net_amount"`
	NewBalance string `json:"new_balance"`
	SourceKind string `json:"source_kind,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
}

func ledgerEvent(typ string, tx domain.WalletTransaction, now time.Time) events.Event {
	return events.Event{
		Type:       typ,
		Key:        tx.OwnerID,
		OccurredAt: now,
		Payload: ledgerPayload{
			TxID:       tx.ID,
			OwnerID:    tx.OwnerID,
			Seq:        tx.Seq,
			Type:       string(tx.Type),
			Status:     string(tx.Status),
			NetAmount:  tx.NetAmount.String(),
			NewBalance: tx.NewBalance.String(),
			SourceKind: string(tx.Source.Kind),
			SourceID:   tx.Source.ID,
		},
	}
}
