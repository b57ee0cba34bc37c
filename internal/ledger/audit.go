package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Discrepancy codes reported by AuditLease.
const (
	DiscBalanceConservation   = "balance_conservation"
	DiscNegativeBalance       = "negative_balance"
	DiscInvoiceOverApplied    = "invoice_over_applied"
	DiscInvoiceStatusMismatch = "invoice_status_mismatch"
	DiscCancelledWithAdvance  = "cancelled_with_advance"
	DiscAmountPaidMismatch    = "amount_paid_mismatch"
	DiscConfirmedWithoutPay   = "confirmed_without_payment"
	DiscDuplicatePending      = "duplicate_pending_submission"
	DiscOverAllocation        = "over_allocation"
	DiscDepositDrift          = "deposit_drift"
)

// Discrepancy is one inconsistency found by AuditLease.
type Discrepancy struct {
	Code       string `json:"code"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Message    string `json:"message"`
}

// AuditReport is the result of AuditLease.
type AuditReport struct {
	LeaseID       uuid.UUID     `json:"lease_id"`
	CheckedAt     time.Time     `json:"checked_at"`
	Invoices      int           `json:"invoices"`
	Consistent    bool          `json:"consistent"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// AuditLease cross-checks a lease's stored balances against its invoices,
// payments, submissions and deposit payments, reading everything in one
// transaction. A confirm torn between the submission and its invoice shows up
// as confirmed_without_payment or amount_paid_mismatch.
func (s *Service) AuditLease(ctx context.Context, leaseID uuid.UUID) (*AuditReport, error) {
	var rep *AuditReport
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		l, err := s.repo.GetLease(ctx, leaseID, false)
		if err != nil {
			return err
		}
		invoices, err := s.repo.ListInvoices(ctx, leaseID)
		if err != nil {
			return err
		}
		payments, err := s.repo.ListPayments(ctx, leaseID)
		if err != nil {
			return err
		}
		subs, err := s.repo.ListLeaseSubmissions(ctx, leaseID)
		if err != nil {
			return err
		}
		deposits, err := s.repo.ListDepositPayments(ctx, leaseID)
		if err != nil {
			return err
		}
		rep = auditLease(l, invoices, payments, subs, deposits)
		rep.CheckedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func auditLease(l *Lease, invoices []*Invoice, payments []*InvoicePayment, subs []*PaymentSubmission, deposits []*DepositPayment) *AuditReport {
	rep := &AuditReport{LeaseID: l.ID, Invoices: len(invoices), Discrepancies: []Discrepancy{}}
	add := func(code, entityType string, id uuid.UUID, format string, args ...any) {
		rep.Discrepancies = append(rep.Discrepancies, Discrepancy{
			Code:       code,
			EntityType: entityType,
			EntityID:   id.String(),
			Message:    fmt.Sprintf(format, args...),
		})
	}

	if !l.AdvanceRentAmount.Equal(l.AdvanceRentUsed.Add(l.AdvanceRentRemaining)) {
		add(DiscBalanceConservation, "lease", l.ID, "advance_rent_amount %s != used %s + remaining %s",
			l.AdvanceRentAmount, l.AdvanceRentUsed, l.AdvanceRentRemaining)
	}
	if l.AdvanceRentRemaining.IsNegative() || l.AdvanceRentUsed.IsNegative() {
		add(DiscNegativeBalance, "lease", l.ID, "used %s, remaining %s", l.AdvanceRentUsed, l.AdvanceRentRemaining)
	}

	paidByInvoice := make(map[uuid.UUID]decimal.Decimal)
	paidBySubmission := make(map[uuid.UUID]bool)
	for _, p := range payments {
		paidByInvoice[p.InvoiceID] = paidByInvoice[p.InvoiceID].Add(p.Amount)
		if p.SubmissionID != nil {
			paidBySubmission[*p.SubmissionID] = true
		}
	}

	applied := decimal.Zero
	for _, inv := range invoices {
		if inv.Status == InvoiceCancelled {
			if !inv.AdvanceRentApplied.IsZero() {
				add(DiscCancelledWithAdvance, "invoice", inv.ID, "cancelled %s still holds %s advance rent",
					inv.InvoiceNumber, inv.AdvanceRentApplied)
			}
		} else {
			applied = applied.Add(inv.AdvanceRentApplied)
			covered := inv.Covered()
			if covered.GreaterThan(inv.TotalAmount) {
				add(DiscInvoiceOverApplied, "invoice", inv.ID, "%s covered %s exceeds total %s",
					inv.InvoiceNumber, covered, inv.TotalAmount)
			}
			if covered.GreaterThanOrEqual(inv.TotalAmount) != (inv.Status == InvoicePaid) {
				add(DiscInvoiceStatusMismatch, "invoice", inv.ID, "%s is %s with %s of %s covered",
					inv.InvoiceNumber, inv.Status, covered, inv.TotalAmount)
			}
		}
		if sum := paidByInvoice[inv.ID]; !sum.Equal(inv.AmountPaid) {
			add(DiscAmountPaidMismatch, "invoice", inv.ID, "%s amount_paid %s != payments %s",
				inv.InvoiceNumber, inv.AmountPaid, sum)
		}
	}
	if applied.GreaterThan(l.AdvanceRentCollectedTotal) {
		add(DiscOverAllocation, "lease", l.ID, "advance applied %s exceeds lifetime collected %s",
			applied, l.AdvanceRentCollectedTotal)
	}

	pending := make(map[uuid.UUID]int)
	for _, sub := range subs {
		switch sub.Status {
		case SubmissionConfirmed:
			if !paidBySubmission[sub.ID] {
				add(DiscConfirmedWithoutPay, "payment_submission", sub.ID, "confirmed submission has no payment row")
			}
		case SubmissionPending:
			pending[sub.InvoiceID]++
			if pending[sub.InvoiceID] == 2 {
				add(DiscDuplicatePending, "invoice", sub.InvoiceID, "more than one pending submission")
			}
		}
	}

	completed := decimal.Zero
	for _, d := range deposits {
		if d.Status == DepositCompleted {
			completed = completed.Add(d.Amount)
		}
	}
	if !completed.Equal(l.SecurityDepositPaid) {
		add(DiscDepositDrift, "lease", l.ID, "security_deposit_paid %s != completed deposits %s",
			l.SecurityDepositPaid, completed)
	}

	rep.Consistent = len(rep.Discrepancies) == 0
	return rep
}
