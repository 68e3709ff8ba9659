// Package cache keeps read-side values in Redis: per-owner ledger balances and
// reference prices pushed by the market data feed.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	balanceNamespace = "balance:v2"
	priceNamespace   = "price:v1"

	DefaultBalanceTTL = 30 * time.Second
)

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func key(namespace, id string) string {
	return namespace + ":" + id
}

// BalanceCache stores folded ledger balances for a short TTL as
// "<settled seq>:<balance>", so readers can tell which head a value belongs to.
type BalanceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewBalanceCache(client redis.UniversalClient, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &BalanceCache{client: client, ttl: ttl}
}

func (c *BalanceCache) GetBalance(ctx context.Context, ownerID string) (domain.BalanceAt, bool, error) {
	raw, err := c.client.Get(ctx, key(balanceNamespace, ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.BalanceAt{}, false, nil
	}
	if err != nil {
		return domain.BalanceAt{}, false, fmt.Errorf("get cached balance: %w", err)
	}
	b, err := parseBalanceAt(raw)
	if err != nil {
		return domain.BalanceAt{}, false, err
	}
	return b, true, nil
}

func (c *BalanceCache) SetBalance(ctx context.Context, ownerID string, balance domain.BalanceAt) error {
	if err := c.client.Set(ctx, key(balanceNamespace, ownerID), formatBalanceAt(balance), c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached balance: %w", err)
	}
	return nil
}

func (c *BalanceCache) InvalidateBalance(ctx context.Context, ownerID string) error {
	if err := c.client.Del(ctx, key(balanceNamespace, ownerID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached balance: %w", err)
	}
	return nil
}

func formatBalanceAt(b domain.BalanceAt) string {
	return strconv.FormatInt(b.SettledSeq, 10) + ":" + b.Balance.String()
}

func parseBalanceAt(raw string) (domain.BalanceAt, error) {
	seqPart, balancePart, ok := strings.Cut(raw, ":")
	if !ok {
		return domain.BalanceAt{}, fmt.Errorf("parse cached balance %q: missing seq", raw)
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil {
		return domain.BalanceAt{}, fmt.Errorf("parse cached balance seq %q: %w", raw, err)
	}
	d, err := decimal.NewFromString(balancePart)
	if err != nil {
		return domain.BalanceAt{}, fmt.Errorf("parse cached balance %q: %w", raw, err)
	}
	return domain.BalanceAt{Balance: d, SettledSeq: seq}, nil
}

// PriceCache is the PriceSource backed by prices an upstream feed writes with SetPrice.
type PriceCache struct {
	client redis.UniversalClient
	maxAge time.Duration
}

// NewPriceCache expires prices after maxAge; zero keeps them until overwritten.
func NewPriceCache(client redis.UniversalClient, maxAge time.Duration) *PriceCache {
	return &PriceCache{client: client, maxAge: maxAge}
}

func (c *PriceCache) Price(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	raw, err := c.client.Get(ctx, key(priceNamespace, instrumentID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get price: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return d, nil
}

func (c *PriceCache) SetPrice(ctx context.Context, instrumentID string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return domain.ErrInvalidPrice
	}
	if err := c.client.Set(ctx, key(priceNamespace, instrumentID), price.String(), c.maxAge).Err(); err != nil {
		return fmt.Errorf("set price: %w", err)
	}
	return nil
}
