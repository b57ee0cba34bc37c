package handler

import (
	"net/http"
)

// GetSubmission returns a payment submission.
// GET /v1/submissions/{id}
func (h *LedgerHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	sub, err := h.svc.GetSubmission(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ConfirmSubmission confirms a pending submission and settles its invoice.
// POST /v1/submissions/{id}/confirm
func (h *LedgerHandler) ConfirmSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ConfirmSubmission(ctx, id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

// RejectSubmission rejects a pending submission.
// POST /v1/submissions/{id}/reject
func (h *LedgerHandler) RejectSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	sub, err := h.svc.RejectSubmission(ctx, id, req.Notes)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
