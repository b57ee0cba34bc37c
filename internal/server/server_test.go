package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/metrics"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, func(db *store.DB) activity.Store {
		return activity.NewSQLStore(db.Driver(), db.Dialect())
	})
}

func newTestServerWith(t *testing.T, activityStore func(*store.DB) activity.Store) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	db, err := store.OpenMemory(context.Background(), strings.ReplaceAll(t.Name(), "/", "_"), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	acts := activityStore(db)
	m := metrics.New()
	svc := ledger.NewService(store.NewRepository(db), db, ledger.Options{
		Logger:   log,
		Events:   event.NewActivityRecorder(acts),
		Observer: m,
	})
	srv := httptest.NewServer(NewRouter(Config{
		Ledger:   svc,
		Activity: acts,
		Metrics:  m,
		Health:   db.Ping,
		Logger:   log,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, t: t}
}

// do sends body as JSON with an X-Actor header and decodes the response into
// out when out is non-nil.
func (s *testServer) do(method, path string, body, out any) *http.Response {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "landlord-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *testServer) createLease() ledger.Lease {
	s.t.Helper()
	var l ledger.Lease
	resp := s.do(http.MethodPost, "/v1/leases", map[string]any{
		"tenant_id":    uuid.NewString(),
		"unit_id":      uuid.NewString(),
		"lease_start":  "2025-01-01",
		"monthly_rent": "1000.00",
		"currency":     "usd",
	}, &l)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	return l
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdvanceRentFlow(t *testing.T) {
	s := newTestServer(t)
	l := s.createLease()
	assert.Equal(t, ledger.LeaseActive, l.Status)
	assert.Equal(t, "USD", l.Currency)

	var collected ledger.CollectResult
	resp := s.do(http.MethodPost, "/v1/leases/"+l.ID.String()+"/advance-rent", map[string]any{
		"months":         2,
		"amount":         "2000.00",
		"collected_date": "2024-12-20",
	}, &collected)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, collected.Snapshot.AdvanceRentRemaining.Equal(decimal.NewFromInt(2000)))

	// Inside the coverage window: allocated on creation.
	var inv ledger.Invoice
	resp = s.do(http.MethodPost, "/v1/invoices", map[string]any{
		"lease_id":     l.ID,
		"invoice_date": "2025-01-01",
		"due_date":     "2025-01-05",
		"rent_amount":  "1000.00",
	}, &inv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, ledger.InvoicePaid, inv.Status)
	assert.True(t, inv.AdvanceRentApplied.Equal(decimal.NewFromInt(1000)))

	var snap ledger.Snapshot
	resp = s.do(http.MethodGet, "/v1/leases/"+l.ID.String()+"/ledger", nil, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, snap.AdvanceRentUsed.Equal(decimal.NewFromInt(1000)))
	assert.True(t, snap.AdvanceRentRemaining.Equal(decimal.NewFromInt(1000)))

	var rep ledger.AuditReport
	resp = s.do(http.MethodGet, "/v1/leases/"+l.ID.String()+"/audit", nil, &rep)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, rep.Consistent, "%+v", rep.Discrepancies)

	var records struct {
		Records    []ledger.FinancialRecord `json:"records"`
		TotalCount int                      `json:"total_count"`
	}
	s.do(http.MethodGet, "/v1/leases/"+l.ID.String()+"/financial-records", nil, &records)
	assert.Equal(t, 2, records.TotalCount)
	for _, r := range records.Records {
		assert.Equal(t, "landlord-1", r.Actor)
		assert.Equal(t, "api", r.Source)
	}

	var feed struct {
		Activities []json.RawMessage `json:"activities"`
		TotalCount int               `json:"total_count"`
	}
	resp = s.do(http.MethodGet, "/v1/activity/entity/lease/"+l.ID.String(), nil, &feed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotZero(t, feed.TotalCount)
}

func TestSubmissionFlow(t *testing.T) {
	s := newTestServer(t)
	l := s.createLease()

	var inv ledger.Invoice
	s.do(http.MethodPost, "/v1/invoices", map[string]any{
		"lease_id":     l.ID,
		"invoice_date": "2025-02-01",
		"due_date":     "2025-02-05",
		"rent_amount":  "1000.00",
	}, &inv)
	require.Equal(t, ledger.InvoicePending, inv.Status)
	path := "/v1/invoices/" + inv.ID.String() + "/submissions"

	var eb errorBody
	resp := s.do(http.MethodPost, path, map[string]any{"amount": "400.00", "method": "bank_transfer"}, &eb)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "RECEIPT_REQUIRED", eb.Code)

	var sub ledger.PaymentSubmission
	resp = s.do(http.MethodPost, path, map[string]any{"amount": "400.00", "method": "cash"}, &sub)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodPost, path, map[string]any{"amount": "100.00", "method": "cash"}, &eb)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_PENDING_SUBMISSION", eb.Code)

	var confirmed ledger.ConfirmResult
	resp = s.do(http.MethodPost, "/v1/submissions/"+sub.ID.String()+"/confirm", nil, &confirmed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ledger.SubmissionConfirmed, confirmed.Submission.Status)
	assert.Equal(t, ledger.InvoicePartiallyPaid, confirmed.Invoice.Status)

	resp = s.do(http.MethodPost, "/v1/submissions/"+sub.ID.String()+"/reject", map[string]any{"notes": "late"}, &eb)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_FINALIZED", eb.Code)

	var list struct {
		Submissions []ledger.PaymentSubmission `json:"submissions"`
	}
	s.do(http.MethodGet, path, nil, &list)
	assert.Len(t, list.Submissions, 1)
}

func TestActivity_MemoryStore(t *testing.T) {
	s := newTestServerWith(t, func(*store.DB) activity.Store { return activity.NewMemoryStore(10) })
	l := s.createLease()

	var inv ledger.Invoice
	s.do(http.MethodPost, "/v1/invoices", map[string]any{
		"lease_id":     l.ID,
		"invoice_date": "2025-02-01",
		"due_date":     "2025-02-05",
		"rent_amount":  "1000.00",
	}, &inv)
	var sub ledger.PaymentSubmission
	resp := s.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/submissions",
		map[string]any{"amount": "400.00", "method": "cash"}, &sub)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var feed struct {
		Activities []types.ActivityEntry `json:"activities"`
		TotalCount int                   `json:"total_count"`
	}
	resp = s.do(http.MethodGet, "/v1/activity/entity/payment_submission/"+sub.ID.String(), nil, &feed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, feed.TotalCount)
	assert.Equal(t, "payment_submitted", feed.Activities[0].EventType)

	var found struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}
	resp = s.do(http.MethodPost, "/v1/activity/search", map[string]any{
		"query":       "tenant submitted",
		"entity_type": "invoice",
	}, &found)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, found.TotalCount)
	assert.Equal(t, inv.ID.String(), found.Results[0].IndexedEntityID)
}

func TestErrors(t *testing.T) {
	s := newTestServer(t)

	var eb errorBody
	resp := s.do(http.MethodGet, "/v1/leases/"+uuid.NewString(), nil, &eb)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", eb.Code)

	resp = s.do(http.MethodGet, "/v1/leases/not-a-uuid", nil, &eb)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	l := s.createLease()
	resp = s.do(http.MethodPost, "/v1/leases/"+l.ID.String()+"/advance-rent",
		map[string]any{"months": 13, "amount": "13000"}, &eb)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_MONTHS", eb.Code)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/v1/leases/"+l.ID.String()+"/terminate", strings.NewReader(`{}`))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&eb))
	assert.Equal(t, "MISSING_ACTOR", eb.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createLease()

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rentledger_http_requests_total{method="POST",route="/v1/leases",status="201"} 1`)
	assert.Contains(t, string(body), `rentledger_ledger_operations_total{op="create_lease",outcome="ok"} 1`)
}
