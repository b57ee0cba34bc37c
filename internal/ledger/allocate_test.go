package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func leaseWithAdvance(amount string, months int) *Lease {
	return &Lease{
		ID:                        uuid.New(),
		Status:                    LeaseActive,
		LeaseStart:                date(2025, 1, 1),
		MonthlyRent:               dec("1000"),
		Currency:                  "USD",
		AdvanceRentAmount:         dec(amount),
		AdvanceRentMonths:         months,
		AdvanceRentUsed:           decimal.Zero,
		AdvanceRentRemaining:      dec(amount),
		AdvanceRentCollectedTotal: dec(amount),
	}
}

func invoiceFor(l *Lease, seq int, invoiceDate time.Time, total string) *Invoice {
	return &Invoice{
		ID:                 uuid.New(),
		LeaseID:            l.ID,
		InvoiceNumber:      InvoiceNumber(l.ID, seq),
		Sequence:           seq,
		InvoiceDate:        invoiceDate,
		DueDate:            invoiceDate.AddDate(0, 0, 5),
		RentAmount:         dec(total),
		LateFee:            decimal.Zero,
		TotalAmount:        dec(total),
		AdvanceRentApplied: decimal.Zero,
		AmountPaid:         decimal.Zero,
		Status:             InvoicePending,
	}
}

func TestAllocate(t *testing.T) {
	t.Run("covers the invoice in full", func(t *testing.T) {
		l := leaseWithAdvance("2000", 2)
		inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")

		a, err := allocate(l, inv)
		require.NoError(t, err)
		assert.True(t, a.Applied.Equal(dec("1000")))
		assert.True(t, a.OutstandingAfter.IsZero())
		assert.Equal(t, InvoicePaid, inv.Status)
		assert.True(t, l.AdvanceRentRemaining.Equal(dec("1000")))
		assert.True(t, l.AdvanceRentUsed.Equal(dec("1000")))
		assert.NoError(t, l.CheckBalance())
	})

	t.Run("partial when the balance runs short", func(t *testing.T) {
		l := leaseWithAdvance("300", 1)
		inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")

		a, err := allocate(l, inv)
		require.NoError(t, err)
		assert.True(t, a.Applied.Equal(dec("300")))
		assert.Equal(t, InvoicePartiallyPaid, inv.Status)
		assert.True(t, l.AdvanceRentRemaining.IsZero())
	})

	t.Run("counts direct payments against the outstanding amount", func(t *testing.T) {
		l := leaseWithAdvance("2000", 2)
		inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")
		inv.AmountPaid = dec("750")
		inv.Status = InvoicePartiallyPaid

		a, err := allocate(l, inv)
		require.NoError(t, err)
		assert.True(t, a.Applied.Equal(dec("250")))
		assert.Equal(t, InvoicePaid, inv.Status)
	})

	t.Run("no-op on paid and cancelled invoices", func(t *testing.T) {
		l := leaseWithAdvance("2000", 2)
		for _, st := range []InvoiceStatus{InvoicePaid, InvoiceCancelled} {
			inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")
			inv.Status = st
			a, err := allocate(l, inv)
			require.NoError(t, err)
			assert.True(t, a.Applied.IsZero())
		}
		assert.True(t, l.AdvanceRentRemaining.Equal(dec("2000")))
	})

	t.Run("no-op on an empty balance", func(t *testing.T) {
		l := leaseWithAdvance("0", 1)
		inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")
		a, err := allocate(l, inv)
		require.NoError(t, err)
		assert.True(t, a.Applied.IsZero())
		assert.Equal(t, InvoicePending, inv.Status)
	})
}

func TestAllocateExact(t *testing.T) {
	l := leaseWithAdvance("500", 1)
	inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")

	_, err := allocateExact(l, inv, dec("600"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = allocateExact(l, inv, dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	a, err := allocateExact(l, inv, dec("200.50"))
	require.NoError(t, err)
	assert.True(t, a.Applied.Equal(dec("200.50")))
	assert.True(t, l.AdvanceRentRemaining.Equal(dec("299.50")))

	small := invoiceFor(l, 2, date(2025, 1, 15), "100")
	_, err = allocateExact(l, small, dec("150"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestReverseAdvance(t *testing.T) {
	l := leaseWithAdvance("2000", 2)
	inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")
	_, err := allocate(l, inv)
	require.NoError(t, err)

	restored, superseded := reverseAdvance(l, inv)
	assert.True(t, restored.Equal(dec("1000")))
	assert.True(t, superseded.IsZero())
	assert.True(t, l.AdvanceRentRemaining.Equal(dec("2000")))
	assert.True(t, inv.AdvanceRentApplied.IsZero())
	assert.NoError(t, l.CheckBalance())
}

func TestReverseAdvance_AfterRecollection(t *testing.T) {
	l := leaseWithAdvance("1000", 1)
	inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")
	_, err := allocate(l, inv)
	require.NoError(t, err)

	// A new collection resets used to zero; the old allocation is history.
	l.AdvanceRentAmount, l.AdvanceRentUsed, l.AdvanceRentRemaining = dec("500"), decimal.Zero, dec("500")

	restored, superseded := reverseAdvance(l, inv)
	assert.True(t, restored.IsZero())
	assert.True(t, superseded.Equal(dec("1000")))
	assert.True(t, l.AdvanceRentRemaining.Equal(dec("500")))
	assert.NoError(t, l.CheckBalance())
}

func TestSettle(t *testing.T) {
	l := leaseWithAdvance("0", 1)
	inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")

	applied, excess, err := settle(inv, dec("400"))
	require.NoError(t, err)
	assert.True(t, applied.Equal(dec("400")))
	assert.True(t, excess.IsZero())
	assert.Equal(t, InvoicePartiallyPaid, inv.Status)

	applied, excess, err = settle(inv, dec("700"))
	require.NoError(t, err)
	assert.True(t, applied.Equal(dec("600")))
	assert.True(t, excess.Equal(dec("100")))
	assert.Equal(t, InvoicePaid, inv.Status)

	_, _, err = settle(inv, dec("1"))
	assert.ErrorIs(t, err, ErrInvoiceNotPayable)
}

func TestSettle_OverdueStaysOverdueUntilPaid(t *testing.T) {
	l := leaseWithAdvance("0", 1)
	inv := invoiceFor(l, 1, date(2025, 1, 1), "1000")
	inv.Status = InvoiceOverdue

	_, _, err := settle(inv, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, InvoiceOverdue, inv.Status)

	_, _, err = settle(inv, dec("900"))
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, inv.Status)
}

func TestPlanRetroactive_ChronologicalOrder(t *testing.T) {
	l := leaseWithAdvance("1500", 3)
	march := invoiceFor(l, 3, date(2025, 3, 1), "1000")
	jan := invoiceFor(l, 1, date(2025, 1, 1), "1000")
	feb := invoiceFor(l, 2, date(2025, 2, 1), "1000")
	outside := invoiceFor(l, 4, date(2025, 4, 1), "1000")
	cancelled := invoiceFor(l, 5, date(2025, 1, 15), "1000")
	cancelled.Status = InvoiceCancelled

	res, touched, err := planRetroactive(l, []*Invoice{march, outside, feb, cancelled, jan})
	require.NoError(t, err)

	require.Len(t, touched, 2)
	assert.Equal(t, jan.ID, touched[0].ID)
	assert.Equal(t, feb.ID, touched[1].ID)
	assert.Equal(t, InvoicePaid, jan.Status)
	assert.Equal(t, InvoicePartiallyPaid, feb.Status)
	assert.Equal(t, InvoicePending, march.Status)
	assert.Equal(t, InvoicePending, outside.Status)
	assert.True(t, res.TotalApplied.Equal(dec("1500")))
	assert.True(t, res.Remaining.IsZero())
	assert.Equal(t, 2, res.InvoicesTouched)
}

func TestPlanRetroactive_Idempotent(t *testing.T) {
	l := leaseWithAdvance("3000", 3)
	invs := []*Invoice{
		invoiceFor(l, 1, date(2025, 1, 1), "1000"),
		invoiceFor(l, 2, date(2025, 2, 1), "1000"),
	}
	_, _, err := planRetroactive(l, invs)
	require.NoError(t, err)

	res, touched, err := planRetroactive(l, invs)
	require.NoError(t, err)
	assert.Empty(t, touched)
	assert.True(t, res.TotalApplied.IsZero())
	assert.True(t, l.AdvanceRentRemaining.Equal(dec("1000")))
}

func TestEligibleInvoices_SameDateOrdersByNumber(t *testing.T) {
	l := leaseWithAdvance("1000", 1)
	b := invoiceFor(l, 2, date(2025, 1, 10), "10")
	a := invoiceFor(l, 1, date(2025, 1, 10), "10")
	got := EligibleInvoices(l, []*Invoice{b, a})
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
}
