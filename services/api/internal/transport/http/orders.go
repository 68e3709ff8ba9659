package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	idempotencyHeader = "Idempotency-Key"
	ownerHeader       = "X-Owner-ID"
)

// OrderCreator is the minimal interface needed to open an order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error)
}

// PaymentProcessor reads orders and moves them through payment and fulfilment.
type PaymentProcessor interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ConfirmPayment(ctx context.Context, orderID string, proof domain.PaymentProof) (domain.Order, error)
	GetPaymentWindow(ctx context.Context, orderID string) (domain.PaymentWindow, error)
	Transition(ctx context.Context, orderID string, to domain.OrderStatus) (domain.Order, error)
}

// HandleCreateOrder opens an order for the caller in X-Owner-ID, which may be a
// guest id. Replays of the same idempotency key answer 200 with the first order.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := domain.ParseOwner(r.Header.Get(ownerHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeOwnerRequired, err.Error())
			return
		}

		var req createOrderRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			key = req.IdempotencyKey
		}

		res, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			Owner:          owner,
			ProductID:      req.ProductID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			PaymentMethod:  domain.PaymentMethod(req.PaymentMethod),
			CryptoAmount:   req.CryptoAmount,
			WalletAddress:  req.WalletAddress,
			Billing:        req.Billing,
			Metadata:       req.Metadata,
			IdempotencyKey: key,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, newOrderResponse(res.Order))
	}
}

func HandleGetOrder(svc PaymentProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

// HandleConfirmPayment applies a payment confirmation. A lapsed window answers
// 410 and leaves the order expired.
func HandleConfirmPayment(svc PaymentProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmPaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		order, err := svc.ConfirmPayment(r.Context(), chi.URLParam(r, "orderID"), domain.PaymentProof{
			TransactionRef: req.TransactionRef,
			CryptoAmount:   req.CryptoAmount,
			WalletAddress:  req.WalletAddress,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

func HandlePaymentWindow(svc PaymentProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pw, err := svc.GetPaymentWindow(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, paymentWindowResponse{
			OrderID:            pw.OrderID,
			ExpiresAt:          pw.ExpiresAt,
			TotalWindowSeconds: int64(pw.TotalWindow / time.Second),
			RemainingSeconds:   pw.RemainingSeconds,
			ProgressPercent:    pw.ProgressPercent,
		})
	}
}

func HandleOrderStatus(svc PaymentProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		to := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))

		order, err := svc.Transition(r.Context(), chi.URLParam(r, "orderID"), to)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

type createOrderRequest struct {
	ProductID      string            `json:"product_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	PaymentMethod  string            `json:"payment_method"`
	CryptoAmount   *decimal.Decimal  `json:"crypto_amount,omitempty"`
	WalletAddress  string            `json:"wallet_address,omitempty"`
	Billing        domain.Billing    `json:"billing"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type confirmPaymentRequest struct {
	TransactionRef string           `json:"transaction_ref"`
	CryptoAmount   *decimal.Decimal `json:"crypto_amount,omitempty"`
	WalletAddress  string           `json:"wallet_address,omitempty"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID              string            `json:"id"`
	Reference       string            `json:"reference"`
	OwnerID         string            `json:"owner_id"`
	IsGuest         bool              `json:"is_guest"`
	ProductID       string            `json:"product_id"`
	Status          string            `json:"status"`
	PaymentMethod   string            `json:"payment_method"`
	Currency        string            `json:"currency"`
	Amount          decimal.Decimal   `json:"amount"`
	CryptoAmount    *decimal.Decimal  `json:"crypto_amount,omitempty"`
	WalletAddress   string            `json:"wallet_address,omitempty"`
	TransactionHash string            `json:"transaction_hash,omitempty"`
	ExpiresAt       time.Time         `json:"expires_at"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	ConfirmedAt     *time.Time        `json:"confirmed_at,omitempty"`
	ConnectedAt     *time.Time        `json:"connected_at,omitempty"`
	Billing         domain.Billing    `json:"billing"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func newOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Reference:       o.Reference,
		OwnerID:         o.Owner.String(),
		IsGuest:         o.Owner.IsGuest(),
		ProductID:       o.ProductID,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		Currency:        o.Currency,
		Amount:          o.Amount,
		CryptoAmount:    o.CryptoAmount,
		WalletAddress:   o.WalletAddress,
		TransactionHash: o.TransactionHash,
		ExpiresAt:       o.ExpiresAt,
		PaidAt:          o.PaidAt,
		ConfirmedAt:     o.ConfirmedAt,
		ConnectedAt:     o.ConnectedAt,
		Billing:         o.Billing,
		Metadata:        o.Metadata,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type paymentWindowResponse struct {
	OrderID            string    `json:"order_id"`
	ExpiresAt          time.Time `json:"expires_at"`
	TotalWindowSeconds int64     `json:"total_window_seconds"`
	RemainingSeconds   int64     `json:"remaining_seconds"`
	ProgressPercent    float64   `json:"progress_percent"`
}
