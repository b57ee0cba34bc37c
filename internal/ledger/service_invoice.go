package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

// InvoiceNumber formats the per-lease monotonic invoice number.
func InvoiceNumber(leaseID uuid.UUID, seq int) string {
	return fmt.Sprintf("INV-%s-%04d", strings.ToUpper(leaseID.String()[:8]), seq)
}

// CreateInvoiceInput is one billing period's charge, as issued by the
// external billing schedule.
type CreateInvoiceInput struct {
	LeaseID     uuid.UUID
	InvoiceDate time.Time
	DueDate     time.Time
	RentAmount  decimal.Decimal
	LateFee     decimal.Decimal
}

// CreateInvoice issues the next invoice for a lease. When the invoice date
// falls in the coverage window the allocation engine runs on it in the same
// transaction.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Invoice, error) {
	if !in.RentAmount.IsPositive() {
		return nil, fmt.Errorf("%w: rent amount must be positive, got %s", ErrInvalidAmount, in.RentAmount)
	}
	if in.LateFee.IsNegative() {
		return nil, fmt.Errorf("%w: late fee cannot be negative, got %s", ErrInvalidAmount, in.LateFee)
	}
	if in.InvoiceDate.IsZero() {
		return nil, fmt.Errorf("%w: invoice_date is required", ErrInvalidInput)
	}
	invoiceDate := types.Date(in.InvoiceDate)
	dueDate := invoiceDate
	if !in.DueDate.IsZero() {
		dueDate = types.Date(in.DueDate)
	}
	if dueDate.Before(invoiceDate) {
		return nil, fmt.Errorf("%w: due_date precedes invoice_date", ErrInvalidInput)
	}

	var out *Invoice
	err := s.mutateLease(ctx, "create_invoice", in.LeaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		seq, err := s.repo.NextInvoiceSequence(ctx, l.ID)
		if err != nil {
			return err
		}
		now := s.now()
		inv := &Invoice{
			ID:                 uuid.New(),
			LeaseID:            l.ID,
			InvoiceNumber:      InvoiceNumber(l.ID, seq),
			Sequence:           seq,
			InvoiceDate:        invoiceDate,
			DueDate:            dueDate,
			RentAmount:         in.RentAmount,
			LateFee:            in.LateFee,
			TotalAmount:        in.RentAmount.Add(in.LateFee),
			AdvanceRentApplied: decimal.Zero,
			AmountPaid:         decimal.Zero,
			Status:             InvoicePending,
			Currency:           l.Currency,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		var a Allocation
		if l.CoverageWindow().Contains(inv.InvoiceDate) {
			if a, err = allocate(l, inv); err != nil {
				return err
			}
		}
		if err := s.repo.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		emit(event.NewInvoiceCreated(invoicePayload(inv, "")))
		if a.Applied.IsPositive() {
			if err := s.recordAllocation(ctx, l, inv, a, emit); err != nil {
				return err
			}
			l.UpdatedAt = now
			if err := s.repo.UpdateLease(ctx, l); err != nil {
				return err
			}
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func invoicePayload(inv *Invoice, reason string) event.InvoicePayload {
	return event.InvoicePayload{
		LeaseID:       inv.LeaseID.String(),
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		DueDate:       inv.DueDate,
		Total:         money(inv.TotalAmount, inv.Currency),
		Status:        string(inv.Status),
		Reason:        reason,
	}
}

// recordAllocation writes the financial record and event for an allocation
// already applied in memory. The invoice row is the caller's to persist.
func (s *Service) recordAllocation(ctx context.Context, l *Lease, inv *Invoice, a Allocation, emit func(event.DomainEvent)) error {
	rec := s.newRecord(ctx, l, RecordAdvanceRentApplied, a.Applied, DirectionInternal, s.now(),
		fmt.Sprintf("Advance rent applied to %s", inv.InvoiceNumber))
	rec.InvoiceID = &inv.ID
	if err := s.repo.AppendRecord(ctx, rec); err != nil {
		return err
	}
	emit(event.NewAdvanceRentApplied(event.AdvanceRentAppliedPayload{
		LeaseID:       l.ID.String(),
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        money(a.Applied, l.Currency),
		Remaining:     money(l.AdvanceRentRemaining, l.Currency),
		InvoiceStatus: string(inv.Status),
	}))
	return nil
}

// invoiceLease resolves the lease an invoice belongs to so the mutation can
// lock it. The invoice is re-read inside the transaction.
func (s *Service) invoiceLease(ctx context.Context, invoiceID uuid.UUID) (uuid.UUID, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID, false)
	if err != nil {
		return uuid.Nil, err
	}
	return inv.LeaseID, nil
}

// ApplyAdvanceRent runs the allocation engine on one invoice. A zero
// allocation is a valid no-op.
func (s *Service) ApplyAdvanceRent(ctx context.Context, invoiceID uuid.UUID) (Allocation, error) {
	return s.allocateOne(ctx, "apply_advance_rent", invoiceID, func(l *Lease, inv *Invoice) (Allocation, error) {
		return allocate(l, inv)
	})
}

// AllocateAmount applies exactly amount of advance rent to one invoice. It
// rejects amounts above the remaining balance with ErrInsufficientBalance and
// amounts above the invoice's outstanding balance with ErrInvalidAmount.
func (s *Service) AllocateAmount(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, fmt.Errorf("%w: allocation must be positive, got %s", ErrInvalidAmount, amount)
	}
	return s.allocateOne(ctx, "allocate_amount", invoiceID, func(l *Lease, inv *Invoice) (Allocation, error) {
		return allocateExact(l, inv, amount)
	})
}

func (s *Service) allocateOne(ctx context.Context, op string, invoiceID uuid.UUID, run func(*Lease, *Invoice) (Allocation, error)) (Allocation, error) {
	leaseID, err := s.invoiceLease(ctx, invoiceID)
	if err != nil {
		return Allocation{}, err
	}
	var out Allocation
	err = s.mutateLease(ctx, op, leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		inv, err := s.repo.GetInvoice(ctx, invoiceID, true)
		if err != nil {
			return err
		}
		a, err := run(l, inv)
		if err != nil {
			return err
		}
		out = a
		if a.Applied.IsZero() {
			return nil
		}
		inv.UpdatedAt = s.now()
		if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := s.recordAllocation(ctx, l, inv, a, emit); err != nil {
			return err
		}
		l.UpdatedAt = s.now()
		return s.repo.UpdateLease(ctx, l)
	})
	if err != nil {
		return Allocation{}, err
	}
	return out, nil
}

// RetroactiveApply runs the allocation engine over the lease's existing
// invoices in the coverage window, oldest first, while holding the lease for
// the whole pass. Running it twice in a row changes nothing the second time.
func (s *Service) RetroactiveApply(ctx context.Context, leaseID uuid.UUID) (*RetroactiveResult, error) {
	var out *RetroactiveResult
	err := s.mutateLease(ctx, "retroactive_apply", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		res, err := s.retroactive(ctx, l, emit)
		if err != nil {
			return err
		}
		if res.InvoicesTouched > 0 {
			l.UpdatedAt = s.now()
			if err := s.repo.UpdateLease(ctx, l); err != nil {
				return err
			}
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retroactive plans and persists one pass. The lease row is the caller's to persist.
func (s *Service) retroactive(ctx context.Context, l *Lease, emit func(event.DomainEvent)) (*RetroactiveResult, error) {
	if !l.AdvanceRentRemaining.IsPositive() {
		return &RetroactiveResult{
			LeaseID:      l.ID,
			TotalApplied: decimal.Zero,
			Allocations:  []Allocation{},
			Remaining:    l.AdvanceRentRemaining,
		}, nil
	}
	invoices, err := s.repo.ListInvoices(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	res, touched, err := planRetroactive(l, invoices)
	if err != nil {
		return nil, err
	}
	for i, inv := range touched {
		inv.UpdatedAt = s.now()
		if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
			return nil, err
		}
		if err := s.recordAllocation(ctx, l, inv, res.Allocations[i], emit); err != nil {
			return nil, err
		}
	}
	if res.InvoicesTouched > 0 {
		emit(event.NewRetroactiveApplied(event.RetroactiveAppliedPayload{
			LeaseID:         l.ID.String(),
			InvoicesTouched: res.InvoicesTouched,
			TotalApplied:    money(res.TotalApplied, l.Currency),
			Remaining:       money(l.AdvanceRentRemaining, l.Currency),
		}))
	}
	return res, nil
}

// RecordPaymentInput is a payment received directly against an invoice.
type RecordPaymentInput struct {
	Amount      decimal.Decimal
	Method      PaymentMethod
	PaymentDate time.Time
	Reference   string
}

// RecordPayment settles amount against an invoice. Amounts above the
// outstanding balance are rejected.
func (s *Service) RecordPayment(ctx context.Context, invoiceID uuid.UUID, in RecordPaymentInput) (*Invoice, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive, got %s", ErrInvalidAmount, in.Amount)
	}
	if _, err := ParsePaymentMethod(string(in.Method)); err != nil {
		return nil, err
	}
	leaseID, err := s.invoiceLease(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	paid := in.PaymentDate
	if paid.IsZero() {
		paid = s.now()
	}

	var out *Invoice
	err = s.mutateLease(ctx, "record_payment", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		inv, err := s.repo.GetInvoice(ctx, invoiceID, true)
		if err != nil {
			return err
		}
		if inv.Status.Settleable() && in.Amount.GreaterThan(inv.Outstanding()) {
			return fmt.Errorf("%w: payment %s exceeds outstanding %s on %s",
				ErrInvalidAmount, in.Amount, inv.Outstanding(), inv.InvoiceNumber)
		}
		if _, err := s.settlePayment(ctx, l, inv, payment{
			amount:    in.Amount,
			method:    in.Method,
			date:      paid,
			reference: strings.TrimSpace(in.Reference),
		}); err != nil {
			return err
		}
		emit(event.NewPaymentRecorded(event.PaymentPayload{
			LeaseID:       l.ID.String(),
			InvoiceID:     inv.ID.String(),
			InvoiceNumber: inv.InvoiceNumber,
			Amount:        money(in.Amount, inv.Currency),
			Method:        string(in.Method),
			InvoiceStatus: string(inv.Status),
		}))
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type payment struct {
	amount       decimal.Decimal
	method       PaymentMethod
	date         time.Time
	reference    string
	submissionID *uuid.UUID
}

// settlePayment is the settlement path shared by direct payments and
// confirmed submissions: it bumps amount_paid, writes the payment row and
// the financial records, and persists the invoice. It returns the excess
// over the outstanding balance, recorded as an overpayment.
//
// A confirmed submission whose invoice was paid in full while it waited is
// still settled: nothing is applied and the whole amount is excess.
func (s *Service) settlePayment(ctx context.Context, l *Lease, inv *Invoice, p payment) (decimal.Decimal, error) {
	var applied, excess decimal.Decimal
	if p.submissionID != nil && inv.Status == InvoicePaid {
		applied, excess = decimal.Zero, p.amount
	} else {
		var err error
		if applied, excess, err = settle(inv, p.amount); err != nil {
			return decimal.Zero, err
		}
	}
	inv.UpdatedAt = s.now()
	if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.CreatePayment(ctx, &InvoicePayment{
		ID:           uuid.New(),
		InvoiceID:    inv.ID,
		LeaseID:      l.ID,
		SubmissionID: p.submissionID,
		Amount:       applied,
		Method:       p.method,
		PaymentDate:  types.Date(p.date),
		Reference:    p.reference,
		CreatedAt:    s.now(),
	}); err != nil {
		return decimal.Zero, err
	}
	if applied.IsPositive() {
		rec := s.newRecord(ctx, l, RecordRentPayment, applied, DirectionIn, p.date,
			fmt.Sprintf("Rent payment by %s on %s", p.method, inv.InvoiceNumber))
		rec.InvoiceID = &inv.ID
		rec.Currency = inv.Currency
		if err := s.repo.AppendRecord(ctx, rec); err != nil {
			return decimal.Zero, err
		}
	}
	if excess.IsPositive() {
		over := s.newRecord(ctx, l, RecordOverpayment, excess, DirectionIn, p.date,
			fmt.Sprintf("Payment exceeded the outstanding balance of %s", inv.InvoiceNumber))
		over.InvoiceID = &inv.ID
		over.Currency = inv.Currency
		if err := s.repo.AppendRecord(ctx, over); err != nil {
			return decimal.Zero, err
		}
	}
	return excess, nil
}

// VoidInvoice cancels an invoice that has no recorded payments and returns
// the advance rent it consumed to the lease balance. Pending submissions on
// the invoice are rejected with a note naming the void.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID uuid.UUID, reason string) (*Invoice, error) {
	leaseID, err := s.invoiceLease(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	var out *Invoice
	err = s.mutateLease(ctx, "void_invoice", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		inv, err := s.repo.GetInvoice(ctx, invoiceID, true)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return fmt.Errorf("%w: invoice %s is already cancelled", ErrAlreadyFinalized, inv.InvoiceNumber)
		}
		if inv.AmountPaid.IsPositive() {
			return fmt.Errorf("%w: %s has %s paid", ErrInvoiceHasPayments, inv.InvoiceNumber, inv.AmountPaid)
		}
		if err := checkTransition("invoice", inv.Status, InvoiceCancelled, inv.Status.CanTransitionTo(InvoiceCancelled)); err != nil {
			return err
		}
		if err := s.rejectPending(ctx, l, inv, reason, emit); err != nil {
			return err
		}

		restored, superseded := reverseAdvance(l, inv)
		inv.Status = InvoiceCancelled
		inv.UpdatedAt = s.now()
		if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		if restored.IsPositive() {
			if err := l.CheckBalance(); err != nil {
				return err
			}
			rec := s.newRecord(ctx, l, RecordAdvanceRentReversed, restored, DirectionInternal, s.now(),
				fmt.Sprintf("Advance rent returned from voided %s", inv.InvoiceNumber))
			rec.InvoiceID = &inv.ID
			if err := s.repo.AppendRecord(ctx, rec); err != nil {
				return err
			}
			l.UpdatedAt = s.now()
			if err := s.repo.UpdateLease(ctx, l); err != nil {
				return err
			}
		}
		if superseded.IsPositive() {
			rec := s.newRecord(ctx, l, RecordAdvanceRentSuperseded, superseded, DirectionInternal, s.now(),
				fmt.Sprintf("Advance rent on voided %s came from a superseded collection and was not restored", inv.InvoiceNumber))
			rec.InvoiceID = &inv.ID
			if err := s.repo.AppendRecord(ctx, rec); err != nil {
				return err
			}
		}

		p := invoicePayload(inv, reason)
		r := money(restored, l.Currency)
		p.Restored = &r
		emit(event.NewInvoiceVoided(p))
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rejectPending closes any submission still waiting on an invoice that is
// being voided, so it cannot later be confirmed against a cancelled invoice.
func (s *Service) rejectPending(ctx context.Context, l *Lease, inv *Invoice, reason string, emit func(event.DomainEvent)) error {
	subs, err := s.repo.ListSubmissions(ctx, inv.ID)
	if err != nil {
		return err
	}
	notes := "Invoice " + inv.InvoiceNumber + " was voided"
	if reason != "" {
		notes += ": " + reason
	}
	actor := AuditFrom(ctx).Actor
	for _, sub := range subs {
		if sub.Status != SubmissionPending {
			continue
		}
		if err := sub.reject(actor, notes, s.now()); err != nil {
			return err
		}
		if err := s.repo.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		emit(event.NewSubmissionRejected(event.PaymentPayload{
			LeaseID:       l.ID.String(),
			InvoiceID:     inv.ID.String(),
			InvoiceNumber: inv.InvoiceNumber,
			SubmissionID:  sub.ID.String(),
			Amount:        money(sub.PaymentAmount, inv.Currency),
			Method:        string(sub.PaymentMethod),
			Notes:         sub.Notes,
			DecidedBy:     sub.DecidedBy,
		}))
	}
	return nil
}

// MarkOverdue flips pending and partially paid invoices whose due date is
// before asOf to overdue. It returns how many invoices changed.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	asOf = types.Date(asOf)
	candidates, err := s.repo.ListInvoicesDueBefore(ctx, asOf)
	if err != nil {
		return 0, err
	}
	byLease := make(map[uuid.UUID][]uuid.UUID)
	var order []uuid.UUID
	for _, inv := range candidates {
		if _, ok := byLease[inv.LeaseID]; !ok {
			order = append(order, inv.LeaseID)
		}
		byLease[inv.LeaseID] = append(byLease[inv.LeaseID], inv.ID)
	}

	total := 0
	for _, leaseID := range order {
		changed := 0
		err := s.mutateLease(ctx, "mark_overdue", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
			changed = 0
			if l.Status.Closed() {
				return nil
			}
			for _, id := range byLease[leaseID] {
				inv, err := s.repo.GetInvoice(ctx, id, true)
				if err != nil {
					return err
				}
				if inv.Status != InvoicePending && inv.Status != InvoicePartiallyPaid {
					continue
				}
				if !inv.DueDate.Before(asOf) {
					continue
				}
				inv.Status = InvoiceOverdue
				inv.UpdatedAt = s.now()
				if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
					return err
				}
				emit(event.NewInvoiceOverdue(invoicePayload(inv, "")))
				changed++
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("mark overdue on lease %s: %w", leaseID, err)
		}
		total += changed
	}
	return total, nil
}
