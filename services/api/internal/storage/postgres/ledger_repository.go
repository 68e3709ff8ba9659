package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const txColumns = `id, owner_id, seq, type, direction, currency, amount::text, fees::text, net_amount::text,
previous_balance::text, new_balance::text, status, source_kind, source_id, details, created_at, updated_at`

type LedgerRepository struct {
	db
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db{pool: pool}}
}

func (r *LedgerRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// LockOwner takes a transaction-scoped advisory lock keyed by the owner id. It
// must run inside WithTx.
func (r *LedgerRepository) LockOwner(ctx context.Context, ownerID string) error {
	if txFromContext(ctx) == nil {
		return errors.New("lock owner: no transaction in context")
	}
	if _, err := r.exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, ownerID); err != nil {
		return fmt.Errorf("lock ledger owner: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Head(ctx context.Context, ownerID string) (domain.LedgerHead, error) {
	const query = `
SELECT
	COALESCE((SELECT new_balance::text FROM wallet_transactions
		WHERE owner_id = $1 AND status IN ('COMPLETED', 'REFUNDED')
		ORDER BY seq DESC LIMIT 1), '0'),
	COALESCE((SELECT MAX(seq) FROM wallet_transactions
		WHERE owner_id = $1 AND status IN ('COMPLETED', 'REFUNDED')), 0),
	COALESCE((SELECT MAX(seq) FROM wallet_transactions WHERE owner_id = $1), 0)`

	var (
		head    domain.LedgerHead
		balance string
	)
	if err := r.queryRow(ctx, query, ownerID).Scan(&balance, &head.SettledSeq, &head.LastSeq); err != nil {
		return domain.LedgerHead{}, fmt.Errorf("read ledger head: %w", err)
	}
	b, err := parseDecimal("new_balance", balance)
	if err != nil {
		return domain.LedgerHead{}, err
	}
	head.Balance = b
	return head, nil
}

func (r *LedgerRepository) FindTransactionBySource(ctx context.Context, ref domain.SourceRef) (*domain.WalletTransaction, error) {
	query := `SELECT ` + txColumns + ` FROM wallet_transactions WHERE source_kind = $1 AND source_id = $2`

	tx, err := scanTransaction(r.queryRow(ctx, query, string(ref.Kind), ref.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transaction by source: %w", err)
	}
	return &tx, nil
}

// InsertTransaction never overwrites. A taken source leaves the transaction
// usable and returns ErrTransactionConflict; a taken seq aborts it with
// ErrBalanceConflict.
func (r *LedgerRepository) InsertTransaction(ctx context.Context, t domain.WalletTransaction) error {
	const stmt = `
INSERT INTO wallet_transactions (id, owner_id, seq, type, direction, currency, amount, fees, net_amount,
	previous_balance, new_balance, status, source_kind, source_id, details, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
ON CONFLICT (source_kind, source_id) WHERE source_id IS NOT NULL DO NOTHING`

	details, err := domain.MarshalDetails(t.Details)
	if err != nil {
		return err
	}
	var detailsArg *string
	if details != nil {
		s := string(details)
		detailsArg = &s
	}
	var sourceKind, sourceID *string
	if !t.Source.IsZero() {
		k, id := string(t.Source.Kind), t.Source.ID
		sourceKind, sourceID = &k, &id
	}

	tag, err := r.exec(ctx, stmt,
		t.ID, t.OwnerID, t.Seq, string(t.Type), int16(t.Direction), t.Currency,
		t.Amount.String(), t.Fees.String(), t.NetAmount.String(),
		t.PreviousBalance.String(), t.NewBalance.String(), string(t.Status),
		sourceKind, sourceID, detailsArg, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBalanceConflict
		}
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionConflict
	}
	return nil
}

func (r *LedgerRepository) GetTransactionForUpdate(ctx context.Context, id string) (domain.WalletTransaction, error) {
	query := `SELECT ` + txColumns + ` FROM wallet_transactions WHERE id = $1 FOR UPDATE`

	tx, err := scanTransaction(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WalletTransaction{}, domain.ErrTransactionNotFound
		}
		return domain.WalletTransaction{}, fmt.Errorf("get wallet transaction: %w", err)
	}
	return tx, nil
}

func (r *LedgerRepository) UpdateTransactionStatus(ctx context.Context, id string, from, to domain.TxStatus, now time.Time) (domain.WalletTransaction, error) {
	query := `
UPDATE wallet_transactions SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
RETURNING ` + txColumns

	tx, err := scanTransaction(r.queryRow(ctx, query, id, string(from), string(to), now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WalletTransaction{}, domain.ErrTransactionConflict
		}
		return domain.WalletTransaction{}, fmt.Errorf("update wallet transaction status: %w", err)
	}
	return tx, nil
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, ownerID string) ([]domain.WalletTransaction, error) {
	query := `SELECT ` + txColumns + ` FROM wallet_transactions WHERE owner_id = $1 ORDER BY seq`

	rows, err := r.query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	out := []domain.WalletTransaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row scanner) (domain.WalletTransaction, error) {
	var (
		t                                   domain.WalletTransaction
		typ, status                         string
		direction                           int16
		amount, fees, net, previous, newBal string
		sourceKind, sourceID                *string
		details                             []byte
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Seq, &typ, &direction, &t.Currency, &amount, &fees, &net,
		&previous, &newBal, &status, &sourceKind, &sourceID, &details, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	t.Type = domain.TxType(typ)
	t.Status = domain.TxStatus(status)
	t.Direction = domain.Direction(direction)
	if sourceKind != nil && sourceID != nil {
		t.Source = domain.SourceRef{Kind: domain.SourceKind(*sourceKind), ID: *sourceID}
	}

	for _, f := range []struct {
		column string
		raw    string
		dst    *decimal.Decimal
	}{
		{"amount", amount, &t.Amount},
		{"fees", fees, &t.Fees},
		{"net_amount", net, &t.NetAmount},
		{"previous_balance", previous, &t.PreviousBalance},
		{"new_balance", newBal, &t.NewBalance},
	} {
		d, err := parseDecimal(f.column, f.raw)
		if err != nil {
			return domain.WalletTransaction{}, err
		}
		*f.dst = d
	}

	if t.Details, err = domain.UnmarshalDetails(details); err != nil {
		return domain.WalletTransaction{}, err
	}
	return t, nil
}
