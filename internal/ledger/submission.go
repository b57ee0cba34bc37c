package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitPaymentInput is a tenant's claim of having paid an invoice.
type SubmitPaymentInput struct {
	InvoiceID   uuid.UUID
	Amount      decimal.Decimal
	Method      PaymentMethod
	PaymentDate time.Time
	ReceiptPath string
	Notes       string
}

// validate checks the input against the receipt policy. receiptMethods lists
// the methods that require an attached receipt.
func (in SubmitPaymentInput) validate(receiptMethods []PaymentMethod) error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive, got %s", ErrInvalidAmount, in.Amount)
	}
	if _, err := ParsePaymentMethod(string(in.Method)); err != nil {
		return err
	}
	if strings.TrimSpace(in.ReceiptPath) == "" {
		for _, m := range receiptMethods {
			if m == in.Method {
				return fmt.Errorf("%w: %s", ErrReceiptRequired, in.Method)
			}
		}
	}
	return nil
}

// confirm moves a pending submission to confirmed.
func (s *PaymentSubmission) confirm(actor string, now time.Time) error {
	if s.Status != SubmissionPending {
		return fmt.Errorf("%w: submission %s is %s", ErrAlreadyFinalized, s.ID, s.Status)
	}
	if err := checkTransition("submission", s.Status, SubmissionConfirmed, s.Status.CanTransitionTo(SubmissionConfirmed)); err != nil {
		return err
	}
	s.Status = SubmissionConfirmed
	s.ConfirmedAt = &now
	s.DecidedBy = actor
	return nil
}

// reject moves a pending submission to rejected. notes must explain why.
func (s *PaymentSubmission) reject(actor, notes string, now time.Time) error {
	if s.Status != SubmissionPending {
		return fmt.Errorf("%w: submission %s is %s", ErrAlreadyFinalized, s.ID, s.Status)
	}
	if strings.TrimSpace(notes) == "" {
		return ErrNotesRequired
	}
	if err := checkTransition("submission", s.Status, SubmissionRejected, s.Status.CanTransitionTo(SubmissionRejected)); err != nil {
		return err
	}
	s.Status = SubmissionRejected
	s.Notes = strings.TrimSpace(notes)
	s.RejectedAt = &now
	s.DecidedBy = actor
	return nil
}
