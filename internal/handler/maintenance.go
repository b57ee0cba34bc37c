package handler

import (
	"net/http"
	"time"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

// RepairDeposits recomputes security_deposit_paid on every lease.
// POST /v1/maintenance/repair-deposits
func (h *LedgerHandler) RepairDeposits(w http.ResponseWriter, r *http.Request) {
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	fixes, err := h.svc.RepairDeposits(ctx)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	if fixes == nil {
		fixes = []ledger.DepositCorrection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrections": fixes, "total_count": len(fixes)})
}

type markOverdueRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

// MarkOverdue flags unpaid invoices past their due date.
// POST /v1/maintenance/mark-overdue
func (h *LedgerHandler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req markOverdueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	n, err := h.svc.MarkOverdue(ctx, asOf)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": n, "as_of": asOf.Format(time.DateOnly)})
}
