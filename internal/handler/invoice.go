package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

type createInvoiceRequest struct {
	LeaseID     uuid.UUID       `json:"lease_id"`
	InvoiceDate string          `json:"invoice_date"`
	DueDate     string          `json:"due_date"`
	RentAmount  decimal.Decimal `json:"rent_amount"`
	LateFee     decimal.Decimal `json:"late_fee"`
}

// CreateInvoice issues the next invoice for a lease.
// POST /v1/invoices
func (h *LedgerHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req createInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	invDate, err := parseDate("invoice_date", req.InvoiceDate)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	inv, err := h.svc.CreateInvoice(ctx, ledger.CreateInvoiceInput{
		LeaseID:     req.LeaseID,
		InvoiceDate: invDate,
		DueDate:     due,
		RentAmount:  req.RentAmount,
		LateFee:     req.LateFee,
	})
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// GetInvoice returns an invoice.
// GET /v1/invoices/{id}
func (h *LedgerHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.svc.GetInvoice(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type allocateRequest struct {
	// Amount is optional. Without it the allocation engine decides.
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// AllocateAdvanceRent applies advance rent to an invoice.
// POST /v1/invoices/{id}/allocate
func (h *LedgerHandler) AllocateAdvanceRent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req allocateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	var (
		alloc ledger.Allocation
		err   error
	)
	if req.Amount != nil {
		alloc, err = h.svc.AllocateAmount(ctx, id, *req.Amount)
	} else {
		alloc, err = h.svc.ApplyAdvanceRent(ctx, id)
	}
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

type recordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	PaymentDate string          `json:"payment_date,omitempty"`
	Reference   string          `json:"reference,omitempty"`
}

// RecordPayment records a payment received directly against an invoice.
// POST /v1/invoices/{id}/payments
func (h *LedgerHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	paid, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	inv, err := h.svc.RecordPayment(ctx, id, ledger.RecordPaymentInput{
		Amount:      req.Amount,
		Method:      ledger.PaymentMethod(req.Method),
		PaymentDate: paid,
		Reference:   req.Reference,
	})
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type voidRequest struct {
	Reason string `json:"reason"`
}

// VoidInvoice cancels an unpaid invoice and restores its advance rent.
// POST /v1/invoices/{id}/void
func (h *LedgerHandler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	inv, err := h.svc.VoidInvoice(ctx, id, req.Reason)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type submitPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	PaymentDate string          `json:"payment_date,omitempty"`
	ReceiptPath string          `json:"receipt_path,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// SubmitPayment records a tenant's payment submission for review.
// POST /v1/invoices/{id}/submissions
func (h *LedgerHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req submitPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	paid, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	sub, err := h.svc.SubmitPayment(ctx, ledger.SubmitPaymentInput{
		InvoiceID:   id,
		Amount:      req.Amount,
		Method:      ledger.PaymentMethod(req.Method),
		PaymentDate: paid,
		ReceiptPath: req.ReceiptPath,
		Notes:       req.Notes,
	})
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubmissions returns the invoice's submissions.
// GET /v1/invoices/{id}/submissions
func (h *LedgerHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	subs, err := h.svc.ListSubmissions(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	if subs == nil {
		subs = []*ledger.PaymentSubmission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs, "total_count": len(subs)})
}
