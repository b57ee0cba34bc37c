package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := OpenMemory(context.Background(), name, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time { return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC) }

func testLease() *ledger.Lease {
	now := time.Now().UTC().Truncate(time.Second)
	collected := day(2025, 1, 1)
	return &ledger.Lease{
		ID:                        uuid.New(),
		TenantID:                  uuid.New(),
		UnitID:                    uuid.New(),
		Status:                    ledger.LeaseActive,
		LeaseStart:                day(2025, 1, 1),
		MonthlyRent:               d("1200.00"),
		Currency:                  "USD",
		SecurityDepositPaid:       d("0"),
		SecurityDepositCurrency:   "USD",
		AdvanceRentAmount:         d("3600.00"),
		AdvanceRentMonths:         3,
		AdvanceRentUsed:           d("0"),
		AdvanceRentRemaining:      d("3600.00"),
		AdvanceRentCollectedTotal: d("3600.00"),
		AdvanceRentCollectedAt:    &collected,
		Version:                   1,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

func testInvoice(l *ledger.Lease, seq int, date time.Time) *ledger.Invoice {
	now := time.Now().UTC()
	return &ledger.Invoice{
		ID:                 uuid.New(),
		LeaseID:            l.ID,
		InvoiceNumber:      ledger.InvoiceNumber(l.ID, seq),
		Sequence:           seq,
		InvoiceDate:        date,
		DueDate:            date.AddDate(0, 0, 5),
		RentAmount:         d("1200.00"),
		LateFee:            d("0"),
		TotalAmount:        d("1200.00"),
		AdvanceRentApplied: d("0"),
		AmountPaid:         d("0"),
		Status:             ledger.InvoicePending,
		Currency:           "USD",
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestLeaseRoundTripAndCAS(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	l := testLease()
	require.NoError(t, repo.CreateLease(ctx, l))

	got, err := repo.GetLease(ctx, l.ID, true)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, ledger.LeaseActive, got.Status)
	assert.True(t, got.AdvanceRentAmount.Equal(d("3600")), "amount %s", got.AdvanceRentAmount)
	assert.Equal(t, 3, got.AdvanceRentMonths)
	assert.True(t, got.LeaseStart.Equal(l.LeaseStart))
	require.NotNil(t, got.AdvanceRentCollectedAt)
	assert.Nil(t, got.LeaseEnd)

	stale := *got
	got.AdvanceRentUsed = d("1200")
	got.AdvanceRentRemaining = d("2400")
	require.NoError(t, repo.UpdateLease(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	err = repo.UpdateLease(ctx, &stale)
	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification), "got %v", err)

	_, err = repo.GetLease(ctx, uuid.New(), false)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestInvoiceSequenceAndDueQuery(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	l := testLease()
	require.NoError(t, repo.CreateLease(ctx, l))

	seq, err := repo.NextInvoiceSequence(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	for i, date := range []time.Time{day(2025, 2, 1), day(2025, 1, 1), day(2025, 3, 1)} {
		require.NoError(t, repo.CreateInvoice(ctx, testInvoice(l, i+1, date)))
	}
	seq, err = repo.NextInvoiceSequence(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, seq)

	invs, err := repo.ListInvoices(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, invs, 3)
	assert.True(t, invs[0].InvoiceDate.Equal(day(2025, 1, 1)), "ordered by invoice date")

	due, err := repo.ListInvoicesDueBefore(ctx, day(2025, 2, 10))
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestDuplicatePendingSubmissionIsMapped(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	l := testLease()
	require.NoError(t, repo.CreateLease(ctx, l))
	inv := testInvoice(l, 1, day(2025, 4, 1))
	require.NoError(t, repo.CreateInvoice(ctx, inv))

	sub := func() *ledger.PaymentSubmission {
		return &ledger.PaymentSubmission{
			ID:            uuid.New(),
			InvoiceID:     inv.ID,
			LeaseID:       l.ID,
			PaymentAmount: d("1200"),
			PaymentMethod: ledger.MethodCash,
			PaymentDate:   day(2025, 4, 2),
			Status:        ledger.SubmissionPending,
			CreatedAt:     time.Now().UTC(),
		}
	}
	first := sub()
	require.NoError(t, repo.CreateSubmission(ctx, first))
	pending, err := repo.HasPendingSubmission(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	err = repo.CreateSubmission(ctx, sub())
	assert.True(t, errors.Is(err, ledger.ErrDuplicatePendingSubmission), "got %v", err)

	now := time.Now().UTC()
	first.Status = ledger.SubmissionRejected
	first.RejectedAt = &now
	first.Notes = "no receipt"
	require.NoError(t, repo.UpdateSubmission(ctx, first))

	// A decided submission cannot be decided again.
	err = repo.UpdateSubmission(ctx, first)
	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification))

	// The index only covers pending rows.
	require.NoError(t, repo.CreateSubmission(ctx, sub()))
}

func TestRunInTx_RollsBack(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	l := testLease()
	boom := fmt.Errorf("boom")
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.CreateLease(ctx, l); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return db.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := repo.GetLease(ctx, l.ID, true); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetLease(ctx, l.ID, false)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRefundAndRecords(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := ledger.WithAudit(context.Background(), ledger.AuditInfo{Actor: "landlord-7", Source: "api"})

	l := testLease()
	require.NoError(t, repo.CreateLease(ctx, l))

	rf := &ledger.SecurityDepositRefund{
		ID:              uuid.New(),
		LeaseID:         l.ID,
		RefundNumber:    ledger.RefundNumber(l.ID, day(2025, 6, 30), 1),
		OriginalDeposit: d("1000"),
		Deductions:      d("150.50"),
		DeductionItems:  []ledger.DeductionItem{{Reason: "Carpet cleaning", Amount: d("150.50")}},
		RefundAmount:    d("849.50"),
		Currency:        "USD",
		Status:          ledger.RefundPending,
		RefundDate:      day(2025, 6, 30),
		Version:         1,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.CreateRefund(ctx, rf))
	got, err := repo.GetRefund(ctx, rf.ID)
	require.NoError(t, err)
	require.Len(t, got.DeductionItems, 1)
	assert.Equal(t, "Carpet cleaning", got.DeductionItems[0].Reason)
	assert.True(t, got.RefundAmount.Equal(d("849.5")))

	got.Status = ledger.RefundProcessed
	require.NoError(t, repo.UpdateRefund(ctx, got))

	inv := uuid.New()
	corr := "req-1"
	require.NoError(t, repo.AppendRecord(ctx, &ledger.FinancialRecord{
		ID: uuid.New(), LeaseID: l.ID, InvoiceID: &inv, Type: ledger.RecordDepositRefund,
		Amount: d("849.50"), Currency: "USD", Direction: ledger.DirectionOut, Date: day(2025, 6, 30),
		Description: "refund", Actor: "landlord-7", Source: "api", CorrelationID: &corr, CreatedAt: time.Now().UTC(),
	}))
	recs, err := repo.ListRecords(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].InvoiceID)
	assert.Equal(t, inv, *recs[0].InvoiceID)
	require.NotNil(t, recs[0].CorrelationID)
	assert.Equal(t, "req-1", *recs[0].CorrelationID)
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(errors.New("database is locked (5) (SQLITE_BUSY)")), ledger.ErrConcurrentModification)
	assert.ErrorIs(t, mapError(errors.New("constraint failed: UNIQUE constraint failed: payment_submissions.invoice_id (2067)")),
		ledger.ErrDuplicatePendingSubmission)
	plain := errors.New("constraint failed: UNIQUE constraint failed: invoices.invoice_number (2067)")
	assert.Equal(t, plain, mapError(plain))
	assert.Nil(t, mapError(nil))
}
