package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const holdingColumns = `id, owner_id, instrument_id, units::text, avg_purchase_price::text, total_invested::text,
version, created_at, updated_at`

type HoldingRepository struct {
	db
}

func NewHoldingRepository(pool *pgxpool.Pool) *HoldingRepository {
	return &HoldingRepository{db: db{pool: pool}}
}

func (r *HoldingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *HoldingRepository) GetHoldingForUpdate(ctx context.Context, ownerID, instrumentID string) (*domain.Holding, error) {
	return r.getHolding(ctx, ownerID, instrumentID, true)
}

func (r *HoldingRepository) GetHolding(ctx context.Context, ownerID, instrumentID string) (*domain.Holding, error) {
	return r.getHolding(ctx, ownerID, instrumentID, false)
}

func (r *HoldingRepository) getHolding(ctx context.Context, ownerID, instrumentID string, lock bool) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE owner_id = $1 AND instrument_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}

	h, err := scanHolding(r.queryRow(ctx, query, ownerID, instrumentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get holding: %w", err)
	}

	lots, err := r.listLots(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	h.History = lots
	return &h, nil
}

func (r *HoldingRepository) CreateHolding(ctx context.Context, h domain.Holding) error {
	const stmt = `
INSERT INTO holdings (id, owner_id, instrument_id, units, avg_purchase_price, total_invested, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		h.ID, h.OwnerID, h.InstrumentID, h.Units.String(), h.AvgPurchasePrice.String(), h.TotalInvested.String(),
		h.Version, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrHoldingConflict
		}
		return fmt.Errorf("create holding: %w", err)
	}
	for _, lot := range h.History {
		if err := r.insertLot(ctx, h.ID, lot); err != nil {
			return err
		}
	}
	return nil
}

// UpdateHolding applies only when the stored version still equals h.Version,
// and bumps it.
func (r *HoldingRepository) UpdateHolding(ctx context.Context, h domain.Holding, lot domain.Lot) error {
	const stmt = `
UPDATE holdings
SET units = $2, avg_purchase_price = $3, total_invested = $4, version = version + 1, updated_at = $5
WHERE id = $1 AND version = $6`

	tag, err := r.exec(ctx, stmt,
		h.ID, h.Units.String(), h.AvgPurchasePrice.String(), h.TotalInvested.String(), h.UpdatedAt, h.Version,
	)
	if err != nil {
		return fmt.Errorf("update holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldingConflict
	}
	return r.insertLot(ctx, h.ID, lot)
}

func (r *HoldingRepository) insertLot(ctx context.Context, holdingID string, lot domain.Lot) error {
	const stmt = `
INSERT INTO holding_lots (holding_id, side, units, price, fees, traded_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt,
		holdingID, string(lot.Side), lot.Units.String(), lot.Price.String(), lot.Fees.String(), lot.TradedAt)
	if err != nil {
		return fmt.Errorf("insert holding lot: %w", err)
	}
	return nil
}

func (r *HoldingRepository) listLots(ctx context.Context, holdingID string) ([]domain.Lot, error) {
	const query = `
SELECT side, units::text, price::text, fees::text, traded_at
FROM holding_lots
WHERE holding_id = $1
ORDER BY id`

	rows, err := r.query(ctx, query, holdingID)
	if err != nil {
		return nil, fmt.Errorf("list holding lots: %w", err)
	}
	defer rows.Close()

	lots := []domain.Lot{}
	for rows.Next() {
		var (
			lot                domain.Lot
			side               string
			units, price, fees string
		)
		if err := rows.Scan(&side, &units, &price, &fees, &lot.TradedAt); err != nil {
			return nil, fmt.Errorf("scan holding lot: %w", err)
		}
		lot.Side = domain.TradeSide(side)
		if lot.Units, err = parseDecimal("units", units); err != nil {
			return nil, err
		}
		if lot.Price, err = parseDecimal("price", price); err != nil {
			return nil, err
		}
		if lot.Fees, err = parseDecimal("fees", fees); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list holding lots: %w", err)
	}
	return lots, nil
}

func scanHolding(row scanner) (domain.Holding, error) {
	var (
		h                    domain.Holding
		units, avg, invested string
	)
	if err := row.Scan(&h.ID, &h.OwnerID, &h.InstrumentID, &units, &avg, &invested,
		&h.Version, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return domain.Holding{}, err
	}
	var err error
	if h.Units, err = parseDecimal("units", units); err != nil {
		return domain.Holding{}, err
	}
	if h.AvgPurchasePrice, err = parseDecimal("avg_purchase_price", avg); err != nil {
		return domain.Holding{}, err
	}
	if h.TotalInvested, err = parseDecimal("total_invested", invested); err != nil {
		return domain.Holding{}, err
	}
	return h, nil
}
