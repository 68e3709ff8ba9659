package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/app"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Ledger is the wallet ledger as seen by the transport.
type Ledger interface {
	Record(ctx context.Context, in app.RecordInput) (app.RecordResult, error)
	List(ctx context.Context, ownerID string) ([]domain.WalletTransaction, error)
	Balance(ctx context.Context, ownerID string) (decimal.Decimal, error)
	UpdateStatus(ctx context.Context, id string, to domain.TxStatus) (domain.WalletTransaction, error)
}

type LedgerAuditor interface {
	Audit(ctx context.Context, ownerID string) (app.AuditReport, error)
}

func HandleRecordTransaction(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordTransactionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		details, err := domain.UnmarshalDetails(req.Details)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid details")
			return
		}
		var source domain.SourceRef
		if req.Source != nil {
			source = domain.SourceRef{Kind: domain.SourceKind(req.Source.Kind), ID: req.Source.ID}
		}

		res, err := svc.Record(r.Context(), app.RecordInput{
			OwnerID:         chi.URLParam(r, "ownerID"),
			Type:            domain.TxType(req.Type),
			Amount:          req.Amount,
			Fees:            req.Fees,
			PreviousBalance: req.PreviousBalance,
			Currency:        req.Currency,
			Source:          source,
			Details:         details,
			Status:          domain.TxStatus(req.Status),
			Direction:       domain.ParseDirection(req.Direction),
		})
		if err != nil {
			respondError(w, r, err)
			return
		}

		resp, err := newTransactionResponse(res.Entry)
		if err != nil {
			respondError(w, r, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, resp)
	}
}

func HandleListTransactions(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.List(r.Context(), chi.URLParam(r, "ownerID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		out := make([]transactionResponse, 0, len(entries))
		for _, e := range entries {
			resp, err := newTransactionResponse(e)
			if err != nil {
				respondError(w, r, err)
				return
			}
			out = append(out, resp)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func HandleBalance(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerID")
		balance, err := svc.Balance(r.Context(), ownerID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, balanceResponse{OwnerID: ownerID, Balance: balance})
	}
}

func HandleTransactionStatus(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transactionStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		tx, err := svc.UpdateStatus(r.Context(), chi.URLParam(r, "txID"), domain.TxStatus(req.Status))
		if err != nil {
			respondError(w, r, err)
			return
		}
		resp, err := newTransactionResponse(tx)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleAudit(svc LedgerAuditor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Audit(r.Context(), chi.URLParam(r, "ownerID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		problems := make([]auditProblemResponse, 0, len(report.Problems))
		for _, p := range report.Problems {
			problems = append(problems, auditProblemResponse{TransactionID: p.TransactionID, Seq: p.Seq, Reason: p.Reason})
		}
		writeJSON(w, http.StatusOK, auditResponse{
			OwnerID:  report.OwnerID,
			OK:       report.OK(),
			Entries:  report.Entries,
			Settled:  report.Settled,
			Balance:  report.Balance,
			Problems: problems,
		})
	}
}

type sourceRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type recordTransactionRequest struct {
	Type            string          `json:"type"`
	Direction       string          `json:"direction,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Fees            decimal.Decimal `json:"fees"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status,omitempty"`
	Source          *sourceRequest  `json:"source,omitempty"`
	Details         json.RawMessage `json:"details,omitempty"`
}

type transactionStatusRequest struct {
	Status string `json:"status"`
}

type transactionResponse struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Seq             int64           `json:"seq"`
	Type            string          `json:"type"`
	Direction       string          `json:"direction"`
	Currency        string          `json:"currency"`
	Amount          decimal.Decimal `json:"amount"`
	Fees            decimal.Decimal `json:"fees"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Status          string          `json:"status"`
	Source          *sourceRequest  `json:"source,omitempty"`
	Details         json.RawMessage `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func newTransactionResponse(t domain.WalletTransaction) (transactionResponse, error) {
	details, err := domain.MarshalDetails(t.Details)
	if err != nil {
		return transactionResponse{}, err
	}
	resp := transactionResponse{
		ID:              t.ID,
		OwnerID:         t.OwnerID,
		Seq:             t.Seq,
		Type:            string(t.Type),
		Direction:       t.Direction.String(),
		Currency:        t.Currency,
		Amount:          t.Amount,
		Fees:            t.Fees,
		NetAmount:       t.NetAmount,
		PreviousBalance: t.PreviousBalance,
		NewBalance:      t.NewBalance,
		Status:          string(t.Status),
		Details:         details,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if !t.Source.IsZero() {
		resp.Source = &sourceRequest{Kind: string(t.Source.Kind), ID: t.Source.ID}
	}
	return resp, nil
}

type balanceResponse struct {
	OwnerID string          `json:"owner_id"`
	Balance decimal.Decimal `json:"balance"`
}

type auditProblemResponse struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Seq           int64  `json:"seq,omitempty"`
	Reason        string `json:"reason"`
}

type auditResponse struct {
	OwnerID  string                 `json:"owner_id"`
	OK       bool                   `json:"ok"`
	Entries  int                    `json:"entries"`
	Settled  int                    `json:"settled"`
	Balance  decimal.Decimal        `json:"balance"`
	Problems []auditProblemResponse `json:"problems"`
}
