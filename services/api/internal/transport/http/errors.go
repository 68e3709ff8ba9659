package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"go.uber.org/zap"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeOwnerRequired      = "owner_required"
	codeForbidden          = "forbidden"
	codeRateLimited        = "rate_limited"
	codeInternalError      = "internal_error"

	codeInvalidArgument      = "invalid_argument"
	codeInvalidState         = "invalid_state"
	codeExpired              = "expired"
	codeInsufficientPosition = "insufficient_position"
	codeConflict             = "conflict"
)

// Specific codes for the errors clients are expected to branch on. Anything
// else falls back to the code of its kind.
var errorCodes = map[error]string{
	domain.ErrOrderNotFound:         "order_not_found",
	domain.ErrTransactionNotFound:   "transaction_not_found",
	domain.ErrPriceUnavailable:      "price_unavailable",
	domain.ErrOrderNotPending:       "order_not_pending",
	domain.ErrInvalidTransition:     "invalid_transition",
	domain.ErrPaymentWindowExpired:  "payment_window_expired",
	domain.ErrOrderConflict:         "order_conflict",
	domain.ErrIdempotencyConflict:   "idempotency_conflict",
	domain.ErrIdempotencyKeyMissing: "idempotency_key_required",
	domain.ErrInvalidID:             "invalid_id",
	domain.ErrInsufficientBalance:   "insufficient_balance",
	domain.ErrTxStatusTransition:    "invalid_status_transition",
	domain.ErrBalanceConflict:       "balance_conflict",
	domain.ErrTransactionConflict:   "transaction_conflict",
	domain.ErrSellExceedsHolding:    "insufficient_position",
	domain.ErrHoldingConflict:       "holding_conflict",
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// respondError maps a service error to its HTTP status. Errors that are not
// domain failures are logged and reported without their message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, kindCode := statusForKind(domain.Kind(err))
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, codeInternalError, "internal error")
		return
	}

	code := kindCode
	for target, c := range errorCodes {
		if errors.Is(err, target) {
			code = c
			break
		}
	}
	writeError(w, status, code, err.Error())
}

func statusForKind(kind error) (int, string) {
	switch kind {
	case domain.ErrNotFound:
		return http.StatusNotFound, codeNotFound
	case domain.ErrInvalidArgument:
		return http.StatusBadRequest, codeInvalidArgument
	case domain.ErrInvalidState:
		return http.StatusConflict, codeInvalidState
	case domain.ErrExpired:
		return http.StatusGone, codeExpired
	case domain.ErrInsufficientPosition:
		return http.StatusUnprocessableEntity, codeInsufficientPosition
	case domain.ErrConflict:
		return http.StatusConflict, codeConflict
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}
