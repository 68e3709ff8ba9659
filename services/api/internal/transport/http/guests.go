package http

import (
	"context"
	"net/http"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
)

type GuestReconciler interface {
	Reconcile(ctx context.Context, guestID, accountID string) (app.ReconcileResult, error)
}

// HandleReconcileGuest moves the orders of guest_id in the body to the
// authenticated account in X-Owner-ID.
func HandleReconcileGuest(svc GuestReconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := r.Header.Get(ownerHeader)
		if account == "" {
			writeError(w, http.StatusUnauthorized, codeOwnerRequired, "owner id is required")
			return
		}

		var req reconcileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.Reconcile(r.Context(), req.GuestID, account)
		if err != nil {
			respondError(w, r, err)
			return
		}

		orders := make([]orderResponse, 0, len(res.ConnectedOrders))
		for _, o := range res.ConnectedOrders {
			orders = append(orders, newOrderResponse(o))
		}
		writeJSON(w, http.StatusOK, reconcileResponse{
			ConnectedCount:  res.ConnectedCount,
			ConnectedOrders: orders,
		})
	}
}

type reconcileRequest struct {
	GuestID string `json:"guest_id"`
}

type reconcileResponse struct {
	ConnectedCount  int             `json:"connected_count"`
	ConnectedOrders []orderResponse `json:"connected_orders"`
}
