package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

// SubmitPayment records a tenant's payment claim against an invoice. Only one
// submission per invoice may be pending at a time.
func (s *Service) SubmitPayment(ctx context.Context, in SubmitPaymentInput) (*PaymentSubmission, error) {
	in.ReceiptPath = strings.TrimSpace(in.ReceiptPath)
	if err := in.validate(s.policy.ReceiptMethods); err != nil {
		return nil, err
	}
	if in.ReceiptPath != "" && s.receipts != nil {
		if err := s.receipts.Validate(in.ReceiptPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
		}
	}
	leaseID, err := s.invoiceLease(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	paid := in.PaymentDate
	if paid.IsZero() {
		paid = s.now()
	}

	var out *PaymentSubmission
	err = s.mutateLease(ctx, "submit_payment", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		inv, err := s.repo.GetInvoice(ctx, in.InvoiceID, true)
		if err != nil {
			return err
		}
		if !inv.Status.Settleable() {
			return fmt.Errorf("%w: invoice %s is %s", ErrInvoiceNotPayable, inv.InvoiceNumber, inv.Status)
		}
		if in.Amount.GreaterThan(inv.Outstanding()) {
			return fmt.Errorf("%w: submitted %s exceeds outstanding %s on %s",
				ErrInvalidAmount, in.Amount, inv.Outstanding(), inv.InvoiceNumber)
		}
		pending, err := s.repo.HasPendingSubmission(ctx, inv.ID)
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("%w: %s", ErrDuplicatePendingSubmission, inv.InvoiceNumber)
		}
		sub := &PaymentSubmission{
			ID:            uuid.New(),
			InvoiceID:     inv.ID,
			LeaseID:       l.ID,
			PaymentAmount: in.Amount,
			PaymentMethod: in.Method,
			PaymentDate:   types.Date(paid),
			ReceiptPath:   in.ReceiptPath,
			Notes:         strings.TrimSpace(in.Notes),
			Status:        SubmissionPending,
			CreatedAt:     s.now(),
		}
		if err := s.repo.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		emit(event.NewPaymentSubmitted(event.PaymentPayload{
			LeaseID:       l.ID.String(),
			InvoiceID:     inv.ID.String(),
			InvoiceNumber: inv.InvoiceNumber,
			SubmissionID:  sub.ID.String(),
			Amount:        money(sub.PaymentAmount, inv.Currency),
			Method:        string(sub.PaymentMethod),
		}))
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmResult is returned by ConfirmSubmission.
type ConfirmResult struct {
	Submission  *PaymentSubmission `json:"submission"`
	Invoice     *Invoice           `json:"invoice"`
	Overpayment decimal.Decimal    `json:"overpayment"`
}

func (s *Service) submissionLease(ctx context.Context, id uuid.UUID) (*PaymentSubmission, error) {
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != SubmissionPending {
		return nil, fmt.Errorf("%w: submission %s is %s", ErrAlreadyFinalized, sub.ID, sub.Status)
	}
	return sub, nil
}

// ConfirmSubmission settles a pending submission against its invoice in one
// transaction. If the invoice's outstanding balance shrank since submission,
// the excess is recorded as an overpayment.
func (s *Service) ConfirmSubmission(ctx context.Context, id uuid.UUID) (*ConfirmResult, error) {
	first, err := s.submissionLease(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := AuditFrom(ctx).Actor

	var out *ConfirmResult
	err = s.mutateLease(ctx, "confirm_submission", first.LeaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		sub, err := s.repo.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		if err := sub.confirm(actor, s.now()); err != nil {
			return err
		}
		if err := l.ensureOpen(); err != nil {
			return err
		}
		inv, err := s.repo.GetInvoice(ctx, sub.InvoiceID, true)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		excess, err := s.settlePayment(ctx, l, inv, payment{
			amount:       sub.PaymentAmount,
			method:       sub.PaymentMethod,
			date:         sub.PaymentDate,
			reference:    sub.ReceiptPath,
			submissionID: &sub.ID,
		})
		if err != nil {
			return err
		}
		p := event.PaymentPayload{
			LeaseID:       l.ID.String(),
			InvoiceID:     inv.ID.String(),
			InvoiceNumber: inv.InvoiceNumber,
			SubmissionID:  sub.ID.String(),
			Amount:        money(sub.PaymentAmount, inv.Currency),
			Method:        string(sub.PaymentMethod),
			InvoiceStatus: string(inv.Status),
			DecidedBy:     sub.DecidedBy,
		}
		if excess.IsPositive() {
			over := money(excess, inv.Currency)
			p.Overpayment = &over
		}
		emit(event.NewSubmissionConfirmed(p))
		out = &ConfirmResult{Submission: sub, Invoice: inv, Overpayment: excess}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RejectSubmission rejects a pending submission. The invoice is untouched and
// the tenant may submit again.
func (s *Service) RejectSubmission(ctx context.Context, id uuid.UUID, notes string) (*PaymentSubmission, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, ErrNotesRequired
	}
	first, err := s.submissionLease(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := AuditFrom(ctx).Actor

	var out *PaymentSubmission
	err = s.mutateLease(ctx, "reject_submission", first.LeaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		sub, err := s.repo.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		if err := sub.reject(actor, notes, s.now()); err != nil {
			return err
		}
		if err := s.repo.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		inv, err := s.repo.GetInvoice(ctx, sub.InvoiceID, false)
		if err != nil {
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
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
