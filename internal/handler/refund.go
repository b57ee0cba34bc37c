package handler

import (
	"net/http"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

type computeRefundRequest struct {
	Deductions []ledger.DeductionItem `json:"deductions"`
	RefundDate string                 `json:"refund_date,omitempty"`
}

// ComputeRefund creates the pending deposit refund for a terminated lease.
// POST /v1/leases/{id}/refunds
func (h *LedgerHandler) ComputeRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req computeRefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	date, err := parseDate("refund_date", req.RefundDate)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	ref, err := h.svc.ComputeRefund(ctx, id, ledger.ComputeRefundInput{Items: req.Deductions, RefundDate: date})
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// GetRefund returns a deposit refund.
// GET /v1/refunds/{id}
func (h *LedgerHandler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ref, err := h.svc.GetRefund(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// ProcessRefund pays out a pending refund.
// POST /v1/refunds/{id}/process
func (h *LedgerHandler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	ref, err := h.svc.ProcessRefund(ctx, id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// CancelRefund cancels a pending refund.
// POST /v1/refunds/{id}/cancel
func (h *LedgerHandler) CancelRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	ref, err := h.svc.CancelRefund(ctx, id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}
