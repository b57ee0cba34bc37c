// Package ledger implements the lease financial ledger: advance-rent
// prepayments, their allocation across monthly invoices, tenant payment
// submissions, and security deposit refunds.
//
// All balance mutations go through Service, which serializes them per lease
// and runs each one as a single storage transaction.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/types"
)

// Lease is one tenant's occupancy of one unit, plus the balances the ledger owns.
type Lease struct {
	ID                      uuid.UUID       `json:"id"`
	TenantID                uuid.UUID       `json:"tenant_id"`
	UnitID                  uuid.UUID       `json:"unit_id"`
	Status                  LeaseStatus     `json:"status"`
	LeaseStart              time.Time       `json:"lease_start"`
	LeaseEnd                *time.Time      `json:"lease_end,omitempty"`
	MonthlyRent             decimal.Decimal `json:"monthly_rent"`
	Currency                string          `json:"currency"`
	SecurityDepositPaid     decimal.Decimal `json:"security_deposit_paid"`
	SecurityDepositCurrency string          `json:"security_deposit_currency"`

	AdvanceRentAmount    decimal.Decimal `json:"advance_rent_amount"`
	AdvanceRentMonths    int             `json:"advance_rent_months"`
	AdvanceRentUsed      decimal.Decimal `json:"advance_rent_used"`
	AdvanceRentRemaining decimal.Decimal `json:"advance_rent_remaining"`
	// AdvanceRentCollectedTotal accumulates every collection, including
	// balances later superseded by a re-collection.
	AdvanceRentCollectedTotal decimal.Decimal `json:"advance_rent_collected_total"`
	AdvanceRentCollectedAt    *time.Time      `json:"advance_rent_collected_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CoverageWindow is [lease_start, lease_start + advance_rent_months).
func (l *Lease) CoverageWindow() types.DateRange {
	start := types.Date(l.LeaseStart)
	end := types.AddMonths(start, l.AdvanceRentMonths)
	return types.DateRange{Start: start, End: &end}
}

// CheckBalance verifies amount = used + remaining and remaining >= 0.
func (l *Lease) CheckBalance() error {
	if l.AdvanceRentRemaining.IsNegative() {
		return fmt.Errorf("lease %s: advance_rent_remaining %s is negative", l.ID, l.AdvanceRentRemaining)
	}
	if l.AdvanceRentUsed.IsNegative() {
		return fmt.Errorf("lease %s: advance_rent_used %s is negative", l.ID, l.AdvanceRentUsed)
	}
	if !l.AdvanceRentAmount.Equal(l.AdvanceRentUsed.Add(l.AdvanceRentRemaining)) {
		return fmt.Errorf("lease %s: advance_rent_amount %s != used %s + remaining %s",
			l.ID, l.AdvanceRentAmount, l.AdvanceRentUsed, l.AdvanceRentRemaining)
	}
	return nil
}

func (l *Lease) ensureOpen() error {
	if l.Status.Closed() {
		return fmt.Errorf("%w: lease %s is %s", ErrLeaseClosed, l.ID, l.Status)
	}
	return nil
}

// Invoice is one billing period's rent charge.
type Invoice struct {
	ID                 uuid.UUID       `json:"id"`
	LeaseID            uuid.UUID       `json:"lease_id"`
	InvoiceNumber      string          `json:"invoice_number"`
	Sequence           int             `json:"sequence"`
	InvoiceDate        time.Time       `json:"invoice_date"`
	DueDate            time.Time       `json:"due_date"`
	RentAmount         decimal.Decimal `json:"rent_amount"`
	LateFee            decimal.Decimal `json:"late_fee"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	AdvanceRentApplied decimal.Decimal `json:"advance_rent_applied"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	Status             InvoiceStatus   `json:"status"`
	Currency           string          `json:"currency"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Covered is advance_rent_applied + amount_paid.
func (i *Invoice) Covered() decimal.Decimal {
	return i.AdvanceRentApplied.Add(i.AmountPaid)
}

// Outstanding is what remains to be covered, never negative.
func (i *Invoice) Outstanding() decimal.Decimal {
	out := i.TotalAmount.Sub(i.Covered())
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// settledStatus derives the status implied by the covered amount.
// Overdue invoices stay overdue until fully covered.
func (i *Invoice) settledStatus() InvoiceStatus {
	switch {
	case i.Covered().GreaterThanOrEqual(i.TotalAmount):
		return InvoicePaid
	case i.Status == InvoiceOverdue:
		return InvoiceOverdue
	case i.Covered().IsPositive():
		return InvoicePartiallyPaid
	default:
		return i.Status
	}
}

// recomputeStatus moves the invoice to its settled status.
func (i *Invoice) recomputeStatus() error {
	next := i.settledStatus()
	if next == i.Status {
		return nil
	}
	if err := checkTransition("invoice", i.Status, next, i.Status.CanTransitionTo(next)); err != nil {
		return err
	}
	i.Status = next
	return nil
}

// PaymentSubmission is a tenant-asserted payment awaiting landlord verification.
type PaymentSubmission struct {
	ID            uuid.UUID        `json:"id"`
	InvoiceID     uuid.UUID        `json:"invoice_id"`
	LeaseID       uuid.UUID        `json:"lease_id"`
	PaymentAmount decimal.Decimal  `json:"payment_amount"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	PaymentDate   time.Time        `json:"payment_date"`
	ReceiptPath   string           `json:"receipt_path,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Status        SubmissionStatus `json:"status"`
	ConfirmedAt   *time.Time       `json:"confirmed_at,omitempty"`
	RejectedAt    *time.Time       `json:"rejected_at,omitempty"`
	DecidedBy     string           `json:"decided_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// InvoicePayment is a settled payment against an invoice: either recorded
// directly or produced by a confirmed submission.
type InvoicePayment struct {
	ID           uuid.UUID       `json:"id"`
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	LeaseID      uuid.UUID       `json:"lease_id"`
	SubmissionID *uuid.UUID      `json:"submission_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Method       PaymentMethod   `json:"method"`
	PaymentDate  time.Time       `json:"payment_date"`
	Reference    string          `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DeductionItem is one itemized deduction from a security deposit.
type DeductionItem struct {
	Reason string          `json:"reason"`
	Amount decimal.Decimal `json:"amount"`
}

// SecurityDepositRefund is the one-time deposit settlement at lease end.
type SecurityDepositRefund struct {
	ID              uuid.UUID       `json:"id"`
	LeaseID         uuid.UUID       `json:"lease_id"`
	RefundNumber    string          `json:"refund_number"`
	OriginalDeposit decimal.Decimal `json:"original_deposit"`
	Deductions      decimal.Decimal `json:"deductions"`
	DeductionItems  []DeductionItem `json:"deduction_reasons"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	Currency        string          `json:"currency"`
	Status          RefundStatus    `json:"status"`
	RefundDate      time.Time       `json:"refund_date"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DepositPayment is a security deposit payment entry, the source of truth
// that security_deposit_paid is reconciled against.
type DepositPayment struct {
	ID        uuid.UUID            `json:"id"`
	LeaseID   uuid.UUID            `json:"lease_id"`
	Amount    decimal.Decimal      `json:"amount"`
	Currency  string               `json:"currency"`
	Status    DepositPaymentStatus `json:"status"`
	PaidAt    time.Time            `json:"paid_at"`
	CreatedAt time.Time            `json:"created_at"`
}

// FinancialRecord is the immutable audit record emitted for every balance mutation.
type FinancialRecord struct {
	ID            uuid.UUID       `json:"id"`
	LeaseID       uuid.UUID       `json:"lease_id"`
	InvoiceID     *uuid.UUID      `json:"invoice_id,omitempty"`
	Type          RecordType      `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Direction     Direction       `json:"direction"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Actor         string          `json:"actor"`
	Source        string          `json:"source"`
	CorrelationID *string         `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Snapshot is the read model of a lease's balances.
type Snapshot struct {
	LeaseID                   uuid.UUID       `json:"lease_id"`
	Status                    LeaseStatus     `json:"status"`
	Currency                  string          `json:"currency"`
	AdvanceRentAmount         decimal.Decimal `json:"advance_rent_amount"`
	AdvanceRentMonths         int             `json:"advance_rent_months"`
	AdvanceRentUsed           decimal.Decimal `json:"advance_rent_used"`
	AdvanceRentRemaining      decimal.Decimal `json:"advance_rent_remaining"`
	AdvanceRentCollectedTotal decimal.Decimal `json:"advance_rent_collected_total"`
	Coverage                  types.DateRange `json:"coverage_window"`
	SecurityDeposit           types.Money     `json:"security_deposit_paid"`
	AsOf                      time.Time       `json:"as_of"`
}

// SnapshotOf builds the read model for l.
func SnapshotOf(l *Lease, now time.Time) *Snapshot {
	return &Snapshot{
		LeaseID:                   l.ID,
		Status:                    l.Status,
		Currency:                  l.Currency,
		AdvanceRentAmount:         l.AdvanceRentAmount,
		AdvanceRentMonths:         l.AdvanceRentMonths,
		AdvanceRentUsed:           l.AdvanceRentUsed,
		AdvanceRentRemaining:      l.AdvanceRentRemaining,
		AdvanceRentCollectedTotal: l.AdvanceRentCollectedTotal,
		Coverage:                  l.CoverageWindow(),
		SecurityDeposit:           types.NewMoney(l.SecurityDepositPaid, l.SecurityDepositCurrency),
		AsOf:                      now,
	}
}

// AuditInfo identifies who triggered a mutation.
type AuditInfo struct {
	Actor         string
	Source        string
	CorrelationID *string
}

// SystemAudit is used by maintenance commands.
var SystemAudit = AuditInfo{Actor: "system", Source: "system"}
