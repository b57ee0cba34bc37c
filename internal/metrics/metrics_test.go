package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/types"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("confirm_submission", "", 10*time.Millisecond)
	m.ObserveOperation("confirm_submission", ledger.KindAlreadyFinalized, time.Millisecond)
	m.ObserveRetry("confirm_submission")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("confirm_submission", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("confirm_submission", "AlreadyFinalized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues("confirm_submission")))
}

func TestObserveEvent_AdvanceApplied(t *testing.T) {
	m := New()
	evt := event.NewAdvanceRentApplied(event.AdvanceRentAppliedPayload{
		LeaseID:       "11111111-2222-3333-4444-555555555555",
		InvoiceID:     "66666666-7777-8888-9999-000000000000",
		InvoiceNumber: "INV-11111111-0001",
		Amount:        types.NewMoney(decimal.RequireFromString("1250.50"), "USD"),
		Remaining:     types.NewMoney(decimal.Zero, "USD"),
	})
	m.ObserveEvent(evt)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("advance_rent_applied", "advance_rent")))
	assert.InDelta(t, 1250.50, testutil.ToFloat64(m.AdvanceApplied), 0.001)
}

func TestHandler_Exposes(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/v1/leases/{id}", 200, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "rentledger_http_requests_total"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
