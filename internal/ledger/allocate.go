package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocation is one application of advance rent to one invoice.
type Allocation struct {
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	Applied           decimal.Decimal `json:"applied"`
	OutstandingBefore decimal.Decimal `json:"outstanding_before"`
	OutstandingAfter  decimal.Decimal `json:"outstanding_after"`
	Status            InvoiceStatus   `json:"status"`
}

// EngineAmount is the amount the allocation engine applies to inv:
// min(advance_rent_remaining, total - advance_rent_applied - amount_paid).
// It is zero for paid or cancelled invoices and when either side is exhausted.
func EngineAmount(l *Lease, inv *Invoice) decimal.Decimal {
	if !inv.Status.Settleable() {
		return decimal.Zero
	}
	if !l.AdvanceRentRemaining.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(l.AdvanceRentRemaining, inv.Outstanding())
}

// allocate runs the engine against inv, mutating both records in memory.
// A zero allocation is a valid no-op.
func allocate(l *Lease, inv *Invoice) (Allocation, error) {
	return applyAdvance(l, inv, EngineAmount(l, inv))
}

// allocateExact applies exactly amount, rejecting amounts the balance or the
// invoice cannot absorb instead of clamping.
func allocateExact(l *Lease, inv *Invoice, amount decimal.Decimal) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, fmt.Errorf("%w: allocation must be positive, got %s", ErrInvalidAmount, amount)
	}
	if !inv.Status.Settleable() {
		return Allocation{}, fmt.Errorf("%w: invoice %s is %s", ErrInvoiceNotPayable, inv.InvoiceNumber, inv.Status)
	}
	if amount.GreaterThan(l.AdvanceRentRemaining) {
		return Allocation{}, fmt.Errorf("%w: requested %s, remaining %s",
			ErrInsufficientBalance, amount, l.AdvanceRentRemaining)
	}
	if amount.GreaterThan(inv.Outstanding()) {
		return Allocation{}, fmt.Errorf("%w: requested %s exceeds outstanding %s on %s",
			ErrInvalidAmount, amount, inv.Outstanding(), inv.InvoiceNumber)
	}
	return applyAdvance(l, inv, amount)
}

func applyAdvance(l *Lease, inv *Invoice, amount decimal.Decimal) (Allocation, error) {
	a := Allocation{
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		Applied:           decimal.Zero,
		OutstandingBefore: inv.Outstanding(),
		OutstandingAfter:  inv.Outstanding(),
		Status:            inv.Status,
	}
	if amount.IsZero() {
		return a, nil
	}
	if inv.LeaseID != l.ID {
		return a, fmt.Errorf("%w: invoice %s does not belong to lease %s", ErrInvalidAmount, inv.ID, l.ID)
	}

	inv.AdvanceRentApplied = inv.AdvanceRentApplied.Add(amount)
	l.AdvanceRentRemaining = l.AdvanceRentRemaining.Sub(amount)
	l.AdvanceRentUsed = l.AdvanceRentUsed.Add(amount)
	if err := inv.recomputeStatus(); err != nil {
		return a, err
	}
	if err := l.CheckBalance(); err != nil {
		return a, err
	}

	a.Applied = amount
	a.OutstandingAfter = inv.Outstanding()
	a.Status = inv.Status
	return a, nil
}

// reverseAdvance undoes the advance rent applied to inv as part of a void.
// Only the portion still represented in advance_rent_used returns to the
// balance; the rest came from a superseded collection.
func reverseAdvance(l *Lease, inv *Invoice) (restored, superseded decimal.Decimal) {
	applied := inv.AdvanceRentApplied
	restored = decimal.Min(applied, l.AdvanceRentUsed)
	if restored.IsNegative() {
		restored = decimal.Zero
	}
	superseded = applied.Sub(restored)

	l.AdvanceRentUsed = l.AdvanceRentUsed.Sub(restored)
	l.AdvanceRentRemaining = l.AdvanceRentRemaining.Add(restored)
	inv.AdvanceRentApplied = decimal.Zero
	return restored, superseded
}

// settle records a direct payment on inv and returns the portion that
// exceeded the outstanding balance. Callers that must not overpay check
// Outstanding first.
func settle(inv *Invoice, amount decimal.Decimal) (applied, excess decimal.Decimal, err error) {
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: payment must be positive, got %s", ErrInvalidAmount, amount)
	}
	if !inv.Status.Settleable() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: invoice %s is %s", ErrInvoiceNotPayable, inv.InvoiceNumber, inv.Status)
	}
	applied = decimal.Min(amount, inv.Outstanding())
	excess = amount.Sub(applied)
	inv.AmountPaid = inv.AmountPaid.Add(applied)
	if err := inv.recomputeStatus(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return applied, excess, nil
}
