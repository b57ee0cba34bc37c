package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

func TestLedgerErrorToHTTP(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: boom", ledger.ErrInvalidAmount), http.StatusBadRequest, "INVALID_AMOUNT"},
		{fmt.Errorf("wrapped: %w", ledger.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{ledger.ErrDuplicatePendingSubmission, http.StatusConflict, "DUPLICATE_PENDING_SUBMISSION"},
		{ledger.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{ledger.ErrDeductionsExceedDeposit, http.StatusUnprocessableEntity, "DEDUCTIONS_EXCEED_DEPOSIT"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ledgerErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), c.err)
			assert.Equal(t, c.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, c.code, body["code"])
		})
	}
}

func TestParseAuditContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	_, ok := parseAuditContext(rec, req)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req.Header.Set("X-Actor", "manager-7")
	req.Header.Set("X-Correlation-ID", "req-42")
	ctx, ok := parseAuditContext(httptest.NewRecorder(), req)
	require.True(t, ok)
	info := ledger.AuditFrom(ctx)
	assert.Equal(t, "manager-7", info.Actor)
	assert.Equal(t, "api", info.Source)
	require.NotNil(t, info.CorrelationID)
	assert.Equal(t, "req-42", *info.CorrelationID)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("due_date", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("due_date", "")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = parseDate("due_date", "03/01/2025")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var v struct {
		Amount string `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","extra":true}`))
	assert.Error(t, decodeJSON(req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.NoError(t, decodeJSON(req, &v))
}
