package postgres

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, reference, owner_id, is_guest, product_id, status, payment_method, currency,
amount::text, crypto_amount::text, wallet_address, transaction_hash, expires_at, paid_at, confirmed_at,
connected_at, billing, metadata, idempotency_key, created_by, created_at, updated_at`

type OrderRepository struct {
	db
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db{pool: pool}}
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.queryRow(ctx, query, orderID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// FindOrderByIdempotencyKey looks the key up under the owner that created the
// order, so retries still find it after a guest order was connected.
func (r *OrderRepository) FindOrderByIdempotencyKey(ctx context.Context, createdBy, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE created_by = $1 AND idempotency_key = $2`

	o, err := scanOrder(r.queryRow(ctx, query, createdBy, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by idempotency key: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, reference, owner_id, is_guest, product_id, status, payment_method, currency,
	amount, crypto_amount, wallet_address, expires_at, billing, metadata, idempotency_key, created_by,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)`

	billing, err := json.Marshal(order.Billing)
	if err != nil {
		return fmt.Errorf("encode billing: %w", err)
	}
	metadata, err := encodeMetadata(order.Metadata)
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, stmt,
		order.ID, order.Reference, order.Owner.String(), order.Owner.IsGuest(), order.ProductID,
		string(order.Status), string(order.PaymentMethod), order.Currency,
		order.Amount.String(), nullDecimal(order.CryptoAmount), order.WalletAddress, order.ExpiresAt,
		string(billing), string(metadata), order.IdempotencyKey, createdBy(order), order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, proof domain.PaymentProof, now time.Time) (domain.Order, error) {
	query := `
UPDATE orders
SET status = 'paid',
	paid_at = $2,
	confirmed_at = $2,
	updated_at = $2,
	transaction_hash = $3,
	crypto_amount = COALESCE($4::numeric, crypto_amount),
	wallet_address = CASE WHEN $5::text = '' THEN wallet_address ELSE $5::text END
WHERE id = $1 AND status = 'pending' AND expires_at > $2
RETURNING ` + orderColumns

	o, err := scanOrder(r.queryRow(ctx, query,
		orderID, now, proof.TransactionRef, nullDecimal(proof.CryptoAmount), proof.WalletAddress))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderConflict
		}
		return domain.Order{}, fmt.Errorf("mark order paid: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	query := `
UPDATE orders SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
RETURNING ` + orderColumns

	o, err := scanOrder(r.queryRow(ctx, query, orderID, string(from), string(to), now))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderConflict
		}
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

// ConnectGuestOrders is a single statement, so either every matching order moves
// or none does.
func (r *OrderRepository) ConnectGuestOrders(ctx context.Context, guest, account domain.Owner, snapshot, now time.Time) ([]domain.Order, error) {
	query := `
UPDATE orders
SET owner_id = $2, is_guest = FALSE, connected_at = $4, updated_at = $4
WHERE owner_id = $1 AND is_guest AND created_at <= $3
RETURNING ` + orderColumns

	orders, err := r.queryOrders(ctx, query, guest.String(), account.String(), snapshot, now)
	if err != nil {
		return nil, fmt.Errorf("connect guest orders: %w", err)
	}
	return orders, nil
}

func (r *OrderRepository) ExpireStaleOrders(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	query := `
UPDATE orders SET status = 'expired', updated_at = $1
WHERE id IN (
	SELECT id FROM orders
	WHERE status = 'pending' AND expires_at <= $1
	ORDER BY expires_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
) AND status = 'pending'
RETURNING ` + orderColumns

	orders, err := r.queryOrders(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("expire stale orders: %w", err)
	}
	return orders, nil
}

func (r *OrderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return orders, nil
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o                     domain.Order
		ownerID               string
		isGuest               bool
		status, method        string
		amount                string
		cryptoAmount          *string
		billing, metadataJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.Reference, &ownerID, &isGuest, &o.ProductID, &status, &method, &o.Currency,
		&amount, &cryptoAmount, &o.WalletAddress, &o.TransactionHash, &o.ExpiresAt, &o.PaidAt, &o.ConfirmedAt,
		&o.ConnectedAt, &billing, &metadataJSON, &o.IdempotencyKey, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	if isGuest {
		o.Owner = domain.GuestOwner(strings.TrimPrefix(ownerID, domain.GuestPrefix))
	} else {
		o.Owner = domain.AccountOwner(ownerID)
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(method)

	if o.Amount, err = parseDecimal("amount", amount); err != nil {
		return domain.Order{}, err
	}
	if o.CryptoAmount, err = parseNullDecimal("crypto_amount", cryptoAmount); err != nil {
		return domain.Order{}, err
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &o.Billing); err != nil {
			return domain.Order{}, fmt.Errorf("decode billing: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &o.Metadata); err != nil {
			return domain.Order{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return o, nil
}

func createdBy(o domain.Order) string {
	if o.CreatedBy != "" {
		return o.CreatedBy
	}
	return o.Owner.String()
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}
