package ledger

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrInvalidMonths              = errors.New("advance rent months out of range")
	ErrInvalidMethod              = errors.New("invalid payment method")
	ErrDuplicatePendingSubmission = errors.New("a pending submission already exists for this invoice")
	ErrReceiptRequired            = errors.New("a receipt is required for this payment method")
	ErrAlreadyFinalized           = errors.New("already finalized")
	ErrNotesRequired              = errors.New("notes are required")
	ErrDeductionsExceedDeposit    = errors.New("deductions exceed the security deposit paid")
	ErrInsufficientBalance        = errors.New("insufficient advance rent balance")
	ErrConcurrentModification     = errors.New("concurrent modification")

	ErrNotFound           = errors.New("not found")
	ErrLeaseClosed        = errors.New("lease is closed to ledger mutations")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrRefundExists       = errors.New("a refund already exists for this lease")
	ErrInvoiceHasPayments = errors.New("invoice has recorded payments")
	ErrInvoiceNotPayable  = errors.New("invoice is not open for settlement")
	ErrCurrencyMismatch   = errors.New("currency does not match")
	ErrInvalidReceipt     = errors.New("invalid receipt reference")
	ErrInvalidInput       = errors.New("invalid input")
)

// ErrorKind is the stable classification returned to callers.
type ErrorKind string

const (
	KindInvalidAmount              ErrorKind = "InvalidAmount"
	KindInvalidMonths              ErrorKind = "InvalidMonths"
	KindDuplicatePendingSubmission ErrorKind = "DuplicatePendingSubmission"
	KindReceiptRequired            ErrorKind = "ReceiptRequired"
	KindAlreadyFinalized           ErrorKind = "AlreadyFinalized"
	KindNotesRequired              ErrorKind = "NotesRequired"
	KindDeductionsExceedDeposit    ErrorKind = "DeductionsExceedDeposit"
	KindInsufficientBalance        ErrorKind = "InsufficientBalance"
	KindConcurrentModification     ErrorKind = "ConcurrentModification"
	KindNotFound                   ErrorKind = "NotFound"
	KindLeaseClosed                ErrorKind = "LeaseClosed"
	KindInvalidTransition          ErrorKind = "InvalidTransition"
	KindRefundExists               ErrorKind = "RefundExists"
	KindInvoiceHasPayments         ErrorKind = "InvoiceHasPayments"
	KindInvalidRequest             ErrorKind = "InvalidRequest"
	KindInternal                   ErrorKind = "Internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidMonths, KindInvalidMonths},
	{ErrInvalidMethod, KindInvalidRequest},
	{ErrDuplicatePendingSubmission, KindDuplicatePendingSubmission},
	{ErrReceiptRequired, KindReceiptRequired},
	{ErrAlreadyFinalized, KindAlreadyFinalized},
	{ErrNotesRequired, KindNotesRequired},
	{ErrDeductionsExceedDeposit, KindDeductionsExceedDeposit},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrNotFound, KindNotFound},
	{ErrLeaseClosed, KindLeaseClosed},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInvoiceNotPayable, KindInvalidTransition},
	{ErrRefundExists, KindRefundExists},
	{ErrInvoiceHasPayments, KindInvoiceHasPayments},
	{ErrCurrencyMismatch, KindInvalidRequest},
	{ErrInvalidReceipt, KindInvalidRequest},
	{ErrInvalidInput, KindInvalidRequest},
}

// Kind classifies err. Unrecognised errors are Internal.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
