package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RetroactiveResult reports what one retroactive pass changed.
type RetroactiveResult struct {
	LeaseID         uuid.UUID       `json:"lease_id"`
	InvoicesTouched int             `json:"invoices_touched"`
	TotalApplied    decimal.Decimal `json:"total_applied"`
	Allocations     []Allocation    `json:"allocations"`
	Remaining       decimal.Decimal `json:"advance_rent_remaining"`
}

// EligibleInvoices returns the non-cancelled invoices of l whose invoice date
// falls inside the coverage window, ordered by invoice date then invoice number.
func EligibleInvoices(l *Lease, invoices []*Invoice) []*Invoice {
	window := l.CoverageWindow()
	out := make([]*Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.LeaseID != l.ID || inv.Status == InvoiceCancelled {
			continue
		}
		if !window.Contains(inv.InvoiceDate) {
			continue
		}
		out = append(out, inv)
	}
	sortChronologically(out)
	return out
}

func sortChronologically(invoices []*Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		a, b := invoices[i], invoices[j]
		if !a.InvoiceDate.Equal(b.InvoiceDate) {
			return a.InvoiceDate.Before(b.InvoiceDate)
		}
		return a.InvoiceNumber < b.InvoiceNumber
	})
}

// planRetroactive runs the allocation engine over the eligible invoices in
// chronological order until the list or the balance is exhausted. It mutates
// l and the invoices in memory and returns only the invoices it changed.
func planRetroactive(l *Lease, invoices []*Invoice) (*RetroactiveResult, []*Invoice, error) {
	res := &RetroactiveResult{
		LeaseID:      l.ID,
		TotalApplied: decimal.Zero,
		Allocations:  []Allocation{},
	}
	var touched []*Invoice
	for _, inv := range EligibleInvoices(l, invoices) {
		if !l.AdvanceRentRemaining.IsPositive() {
			break
		}
		a, err := allocate(l, inv)
		if err != nil {
			return nil, nil, err
		}
		if a.Applied.IsZero() {
			continue
		}
		res.Allocations = append(res.Allocations, a)
		res.TotalApplied = res.TotalApplied.Add(a.Applied)
		touched = append(touched, inv)
	}
	res.InvoicesTouched = len(touched)
	res.Remaining = l.AdvanceRentRemaining
	return res, touched, nil
}
