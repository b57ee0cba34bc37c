// Package handler implements the HTTP API over the ledger service.
package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

// LedgerHandler implements HTTP handlers for the lease ledger.
type LedgerHandler struct {
	svc *ledger.Service
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(svc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

type createLeaseRequest struct {
	TenantID                uuid.UUID       `json:"tenant_id"`
	UnitID                  uuid.UUID       `json:"unit_id"`
	Status                  string          `json:"status,omitempty"`
	LeaseStart              string          `json:"lease_start"`
	LeaseEnd                string          `json:"lease_end,omitempty"`
	MonthlyRent             decimal.Decimal `json:"monthly_rent"`
	Currency                string          `json:"currency"`
	SecurityDepositCurrency string          `json:"security_deposit_currency,omitempty"`
}

// CreateLease registers a lease.
// POST /v1/leases
func (h *LedgerHandler) CreateLease(w http.ResponseWriter, r *http.Request) {
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req createLeaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	start, err := parseDate("lease_start", req.LeaseStart)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	in := ledger.CreateLeaseInput{
		TenantID:                req.TenantID,
		UnitID:                  req.UnitID,
		LeaseStart:              start,
		MonthlyRent:             req.MonthlyRent,
		Currency:                req.Currency,
		SecurityDepositCurrency: req.SecurityDepositCurrency,
	}
	if req.Status != "" {
		st, err := ledger.ParseLeaseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_STATUS", err.Error())
			return
		}
		in.Status = st
	}
	if req.LeaseEnd != "" {
		end, err := parseDate("lease_end", req.LeaseEnd)
		if err != nil {
			ledgerErrorToHTTP(w, r, err)
			return
		}
		in.LeaseEnd = &end
	}

	l, err := h.svc.CreateLease(ctx, in)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// GetLease returns a lease.
// GET /v1/leases/{id}
func (h *LedgerHandler) GetLease(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	l, err := h.svc.GetLease(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// GetLedger returns the lease's balance snapshot.
// GET /v1/leases/{id}/ledger
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	snap, err := h.svc.Snapshot(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListInvoices returns the lease's invoices in chronological order.
// GET /v1/leases/{id}/invoices
func (h *LedgerHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	invs, err := h.svc.ListInvoices(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	if invs == nil {
		invs = []*ledger.Invoice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invs, "total_count": len(invs)})
}

// ListFinancialRecords returns the lease's financial records.
// GET /v1/leases/{id}/financial-records
func (h *LedgerHandler) ListFinancialRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	recs, err := h.svc.ListFinancialRecords(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	if recs == nil {
		recs = []*ledger.FinancialRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "total_count": len(recs)})
}

// AuditLease cross-checks the lease's stored balances.
// GET /v1/leases/{id}/audit
func (h *LedgerHandler) AuditLease(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	rep, err := h.svc.AuditLease(r.Context(), id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type collectAdvanceRentRequest struct {
	Months        int             `json:"months"`
	Amount        decimal.Decimal `json:"amount"`
	CollectedDate string          `json:"collected_date,omitempty"`
	ApplyExisting bool            `json:"apply_existing,omitempty"`
}

// CollectAdvanceRent records a new advance-rent collection.
// POST /v1/leases/{id}/advance-rent
func (h *LedgerHandler) CollectAdvanceRent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req collectAdvanceRentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	date, err := parseDate("collected_date", req.CollectedDate)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	res, err := h.svc.CollectAdvanceRent(ctx, id, ledger.CollectAdvanceRentInput{
		Months:        req.Months,
		Amount:        req.Amount,
		CollectedDate: date,
		ApplyExisting: req.ApplyExisting,
	})
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RetroactiveApply applies the advance-rent balance to existing invoices.
// POST /v1/leases/{id}/advance-rent/apply
func (h *LedgerHandler) RetroactiveApply(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RetroactiveApply(ctx, id)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type recordDepositRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	PaidAt   string          `json:"paid_at,omitempty"`
}

// RecordDeposit records a security deposit payment.
// POST /v1/leases/{id}/deposits
func (h *LedgerHandler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req recordDepositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	paidAt, err := parseDate("paid_at", req.PaidAt)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	l, err := h.svc.RecordDeposit(ctx, id, ledger.RecordDepositInput{Amount: req.Amount, Currency: req.Currency, PaidAt: paidAt})
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type terminateRequest struct {
	EndDate string `json:"end_date,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// TerminateLease terminates a lease.
// POST /v1/leases/{id}/terminate
func (h *LedgerHandler) TerminateLease(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req terminateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	l, err := h.svc.TerminateLease(ctx, id, ledger.TerminateInput{EndDate: end, Reason: req.Reason})
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
