package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("writeJSON encode error", zap.Error(err))
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v. Unknown fields are rejected
// and an empty body decodes to the zero value.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// parseUUID extracts and validates a UUID path parameter.
func parseUUID(w http.ResponseWriter, r *http.Request, paramName string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, paramName)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "invalid UUID: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// errorStatus maps each ledger error kind to an HTTP status and a stable code.
var errorStatus = map[ledger.ErrorKind]struct {
	status int
	code   string
}{
	ledger.KindInvalidAmount:              {http.StatusBadRequest, "INVALID_AMOUNT"},
	ledger.KindInvalidMonths:              {http.StatusBadRequest, "INVALID_MONTHS"},
	ledger.KindReceiptRequired:            {http.StatusBadRequest, "RECEIPT_REQUIRED"},
	ledger.KindNotesRequired:              {http.StatusBadRequest, "NOTES_REQUIRED"},
	ledger.KindInvalidRequest:             {http.StatusBadRequest, "INVALID_REQUEST"},
	ledger.KindNotFound:                   {http.StatusNotFound, "NOT_FOUND"},
	ledger.KindDuplicatePendingSubmission: {http.StatusConflict, "DUPLICATE_PENDING_SUBMISSION"},
	ledger.KindAlreadyFinalized:           {http.StatusConflict, "ALREADY_FINALIZED"},
	ledger.KindConcurrentModification:     {http.StatusConflict, "CONCURRENT_MODIFICATION"},
	ledger.KindLeaseClosed:                {http.StatusConflict, "LEASE_CLOSED"},
	ledger.KindInvalidTransition:          {http.StatusConflict, "INVALID_TRANSITION"},
	ledger.KindRefundExists:               {http.StatusConflict, "REFUND_EXISTS"},
	ledger.KindInvoiceHasPayments:         {http.StatusConflict, "INVOICE_HAS_PAYMENTS"},
	ledger.KindDeductionsExceedDeposit:    {http.StatusUnprocessableEntity, "DEDUCTIONS_EXCEED_DEPOSIT"},
	ledger.KindInsufficientBalance:        {http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
}

// ledgerErrorToHTTP maps ledger errors to appropriate HTTP responses.
func ledgerErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	if m, ok := errorStatus[ledger.Kind(err)]; ok {
		writeError(w, m.status, m.code, err.Error())
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		writeError(w, http.StatusServiceUnavailable, "TIMEOUT", "request timed out")
		return
	}
	zap.L().Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// parseAuditContext extracts audit metadata from request headers and
// attaches it to the request context. Mutations require X-Actor.
func parseAuditContext(w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	actor := strings.TrimSpace(r.Header.Get("X-Actor"))
	if actor == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACTOR", "X-Actor header is required")
		return nil, false
	}
	source := r.Header.Get("X-Source")
	if source == "" {
		source = "api"
	}
	info := ledger.AuditInfo{
		Actor:  actor,
		Source: source,
	}
	if cid := r.Header.Get("X-Correlation-ID"); cid != "" {
		info.CorrelationID = &cid
	}
	return ledger.WithAudit(r.Context(), info), true
}

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
// The empty string is the zero time.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD or RFC 3339, got %q", ledger.ErrInvalidInput, field, s)
	}
	return t.UTC(), nil
}
