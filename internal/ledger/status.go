package ledger

import "fmt"

// Every status field in the ledger is a closed enum. Transitions are checked
// with an exhaustive switch per entity; an unknown value is always rejected.

// ── Lease ───────────────────────────────────────────────────────────────────

// LeaseStatus is the lifecycle state of a lease (tenant-unit).
type LeaseStatus string

const (
	LeasePending    LeaseStatus = "pending"
	LeaseActive     LeaseStatus = "active"
	LeaseInactive   LeaseStatus = "inactive"
	LeaseTerminated LeaseStatus = "terminated"
	LeaseEnded      LeaseStatus = "ended"
	LeaseFormer     LeaseStatus = "former"
	LeaseCancelled  LeaseStatus = "cancelled"
)

// ParseLeaseStatus validates a raw status string.
func ParseLeaseStatus(s string) (LeaseStatus, error) {
	switch st := LeaseStatus(s); st {
	case LeasePending, LeaseActive, LeaseInactive, LeaseTerminated, LeaseEnded, LeaseFormer, LeaseCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown lease status %q", ErrInvalidTransition, s)
}

// Closed reports whether the lease no longer accepts ledger mutations.
func (s LeaseStatus) Closed() bool {
	switch s {
	case LeaseEnded, LeaseFormer, LeaseCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s LeaseStatus) CanTransitionTo(target LeaseStatus) bool {
	switch s {
	case LeasePending:
		return target == LeaseActive || target == LeaseCancelled
	case LeaseActive:
		return target == LeaseInactive || target == LeaseTerminated
	case LeaseInactive:
		return target == LeaseActive || target == LeaseTerminated
	case LeaseTerminated:
		return target == LeaseEnded
	case LeaseEnded:
		return target == LeaseFormer
	case LeaseFormer, LeaseCancelled:
		return false
	}
	return false
}

// ── Invoice ─────────────────────────────────────────────────────────────────

// InvoiceStatus is the settlement state of a rent invoice.
type InvoiceStatus string

const (
	InvoicePending       InvoiceStatus = "pending"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceCancelled     InvoiceStatus = "cancelled"
)

// ParseInvoiceStatus validates a raw status string.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch st := InvoiceStatus(s); st {
	case InvoicePending, InvoicePartiallyPaid, InvoiceOverdue, InvoicePaid, InvoiceCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown invoice status %q", ErrInvalidTransition, s)
}

// Settleable reports whether allocations and payments may still land on the invoice.
func (s InvoiceStatus) Settleable() bool {
	switch s {
	case InvoicePending, InvoicePartiallyPaid, InvoiceOverdue:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to target is allowed.
// A paid invoice may only be cancelled by an explicit void.
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	switch s {
	case InvoicePending:
		return target == InvoicePartiallyPaid || target == InvoiceOverdue ||
			target == InvoicePaid || target == InvoiceCancelled
	case InvoicePartiallyPaid:
		return target == InvoiceOverdue || target == InvoicePaid || target == InvoiceCancelled
	case InvoiceOverdue:
		return target == InvoicePaid || target == InvoiceCancelled
	case InvoicePaid:
		return target == InvoiceCancelled
	case InvoiceCancelled:
		return false
	}
	return false
}

// ── Payment submission ──────────────────────────────────────────────────────

// SubmissionStatus is the state of a tenant payment claim.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionConfirmed SubmissionStatus = "confirmed"
	SubmissionRejected  SubmissionStatus = "rejected"
)

// ParseSubmissionStatus validates a raw status string.
func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch st := SubmissionStatus(s); st {
	case SubmissionPending, SubmissionConfirmed, SubmissionRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown submission status %q", ErrInvalidTransition, s)
}

// CanTransitionTo reports whether moving from s to target is allowed.
// pending → confirmed | rejected; both targets are terminal.
func (s SubmissionStatus) CanTransitionTo(target SubmissionStatus) bool {
	switch s {
	case SubmissionPending:
		return target == SubmissionConfirmed || target == SubmissionRejected
	case SubmissionConfirmed, SubmissionRejected:
		return false
	}
	return false
}

// PaymentMethod is how a tenant claims to have paid.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankDeposit  PaymentMethod = "bank_deposit"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// ParsePaymentMethod validates a raw payment method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodCash, MethodBankDeposit, MethodBankTransfer:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidMethod, s)
}

// ── Security deposit refund ─────────────────────────────────────────────────

// RefundStatus is the state of a security deposit refund.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
	RefundCancelled RefundStatus = "cancelled"
)

// ParseRefundStatus validates a raw status string.
func ParseRefundStatus(s string) (RefundStatus, error) {
	switch st := RefundStatus(s); st {
	case RefundPending, RefundProcessed, RefundCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown refund status %q", ErrInvalidTransition, s)
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s RefundStatus) CanTransitionTo(target RefundStatus) bool {
	switch s {
	case RefundPending:
		return target == RefundProcessed || target == RefundCancelled
	case RefundProcessed, RefundCancelled:
		return false
	}
	return false
}

// ── Deposit payments ────────────────────────────────────────────────────────

// DepositPaymentStatus is the state of a security deposit payment entry.
// Only completed entries count towards security_deposit_paid.
type DepositPaymentStatus string

const (
	DepositPending   DepositPaymentStatus = "pending"
	DepositCompleted DepositPaymentStatus = "completed"
	DepositFailed    DepositPaymentStatus = "failed"
)

// ── Financial records ───────────────────────────────────────────────────────

// RecordType classifies an immutable financial record.
type RecordType string

const (
	RecordAdvanceRentCollected  RecordType = "advance_rent_collected"
	RecordAdvanceRentSuperseded RecordType = "advance_rent_superseded"
	RecordAdvanceRentApplied    RecordType = "advance_rent_applied"
	RecordAdvanceRentReversed   RecordType = "advance_rent_reversed"
	RecordRentPayment           RecordType = "rent_payment"
	RecordOverpayment           RecordType = "overpayment"
	RecordDepositReceived       RecordType = "security_deposit_received"
	RecordDepositAdjusted       RecordType = "security_deposit_adjusted"
	RecordDepositRefund         RecordType = "security_deposit_refund"
)

// Direction is the cash direction of a financial record from the landlord's side.
type Direction string

const (
	DirectionIn       Direction = "in"
	DirectionOut      Direction = "out"
	DirectionInternal Direction = "internal"
)

// checkTransition wraps a rejected transition in ErrInvalidTransition.
func checkTransition(entity string, from, to fmt.Stringer, allowed bool) error {
	if allowed {
		return nil
	}
	return fmt.Errorf("%w: %s cannot move from %q to %q", ErrInvalidTransition, entity, from, to)
}

func (s LeaseStatus) String() string      { return string(s) }
func (s InvoiceStatus) String() string    { return string(s) }
func (s SubmissionStatus) String() string { return string(s) }
func (s RefundStatus) String() string     { return string(s) }
