package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRefund(t *testing.T) {
	items := []DeductionItem{
		{Reason: "Carpet cleaning", Amount: dec("150.00")},
		{Reason: "Broken blind", Amount: dec("49.99")},
	}
	calc, err := ComputeRefund(dec("1000"), items, OverDeductionReject)
	require.NoError(t, err)
	assert.True(t, calc.Deductions.Equal(dec("199.99")))
	assert.True(t, calc.RefundAmount.Equal(dec("800.01")))
	assert.True(t, calc.OriginalDeposit.Equal(dec("1000")))

	calc, err = ComputeRefund(dec("1000"), nil, OverDeductionReject)
	require.NoError(t, err)
	assert.True(t, calc.RefundAmount.Equal(dec("1000")))

	over := []DeductionItem{{Reason: "Water damage", Amount: dec("1200")}}
	_, err = ComputeRefund(dec("1000"), over, OverDeductionReject)
	assert.ErrorIs(t, err, ErrDeductionsExceedDeposit)

	calc, err = ComputeRefund(dec("1000"), over, OverDeductionClamp)
	require.NoError(t, err)
	assert.True(t, calc.RefundAmount.IsZero())
	assert.True(t, calc.Deductions.Equal(dec("1200")))

	_, err = ComputeRefund(dec("1000"), []DeductionItem{{Reason: "Credit", Amount: dec("-5")}}, OverDeductionReject)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRefundTransition(t *testing.T) {
	r := &SecurityDepositRefund{RefundNumber: "SDR-1", Status: RefundPending}
	require.NoError(t, r.transition(RefundProcessed))
	assert.Equal(t, RefundProcessed, r.Status)
	assert.ErrorIs(t, r.transition(RefundCancelled), ErrAlreadyFinalized)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, LeasePending.CanTransitionTo(LeaseActive))
	assert.True(t, LeasePending.CanTransitionTo(LeaseCancelled))
	assert.True(t, LeaseActive.CanTransitionTo(LeaseTerminated))
	assert.True(t, LeaseTerminated.CanTransitionTo(LeaseEnded))
	assert.False(t, LeaseEnded.CanTransitionTo(LeaseActive))
	assert.False(t, LeaseCancelled.CanTransitionTo(LeaseActive))

	assert.True(t, InvoicePending.CanTransitionTo(InvoicePaid))
	assert.True(t, InvoicePaid.CanTransitionTo(InvoiceCancelled))
	assert.False(t, InvoicePaid.CanTransitionTo(InvoicePending))
	assert.False(t, InvoiceCancelled.CanTransitionTo(InvoicePending))

	assert.True(t, SubmissionPending.CanTransitionTo(SubmissionConfirmed))
	assert.False(t, SubmissionRejected.CanTransitionTo(SubmissionConfirmed))

	for _, s := range []LeaseStatus{LeaseEnded, LeaseFormer, LeaseCancelled} {
		assert.True(t, s.Closed(), s)
	}
	assert.False(t, LeaseTerminated.Closed())

	_, err := ParseLeaseStatus("evicted")
	assert.Error(t, err)
	_, err = ParsePaymentMethod("cheque")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestSubmitPaymentInput_Validate(t *testing.T) {
	receipts := DefaultPolicy().ReceiptMethods
	base := SubmitPaymentInput{InvoiceID: uuid.New(), Amount: dec("100"), Method: MethodCash}
	assert.NoError(t, base.validate(receipts))

	zero := base
	zero.Amount = decimal.Zero
	assert.ErrorIs(t, zero.validate(receipts), ErrInvalidAmount)

	bad := base
	bad.Method = "cheque"
	assert.ErrorIs(t, bad.validate(receipts), ErrInvalidMethod)

	for _, m := range []PaymentMethod{MethodBankDeposit, MethodBankTransfer} {
		in := base
		in.Method = m
		assert.ErrorIs(t, in.validate(receipts), ErrReceiptRequired, m)
		in.ReceiptPath = "receipts/2025/01/slip.pdf"
		assert.NoError(t, in.validate(receipts), m)
	}

	// An operator policy can drop the receipt requirement.
	in := base
	in.Method = MethodBankTransfer
	assert.NoError(t, in.validate([]PaymentMethod{}))
}

func TestSubmissionDecisions(t *testing.T) {
	now := time.Now()
	s := &PaymentSubmission{ID: uuid.New(), Status: SubmissionPending}
	assert.ErrorIs(t, s.reject("mgr", "  ", now), ErrNotesRequired)
	require.NoError(t, s.confirm("mgr", now))
	assert.Equal(t, "mgr", s.DecidedBy)
	assert.ErrorIs(t, s.confirm("mgr", now), ErrAlreadyFinalized)
	assert.ErrorIs(t, s.reject("mgr", "dup", now), ErrAlreadyFinalized)
}

func TestKind(t *testing.T) {
	assert.Equal(t, ErrorKind(""), Kind(nil))
	assert.Equal(t, KindNotFound, Kind(fmt.Errorf("lease x: %w", ErrNotFound)))
	assert.Equal(t, KindInvalidTransition, Kind(ErrInvoiceNotPayable))
	assert.Equal(t, KindInvalidRequest, Kind(ErrInvalidInput))
	assert.Equal(t, KindInternal, Kind(errors.New("boom")))
	assert.Equal(t, KindInternal, Kind(context.DeadlineExceeded))
}

func TestLockArena(t *testing.T) {
	a := newLockArena()
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := a.Lock(id)
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, a.size())

	// Different leases do not block each other.
	u1 := a.Lock(uuid.New())
	u2 := a.Lock(uuid.New())
	assert.Equal(t, 2, a.size())
	u1()
	u2()
}

func TestPolicyNormalized(t *testing.T) {
	p := Policy{MaxMonths: 6}.normalized()
	assert.Equal(t, 1, p.MinMonths)
	assert.Equal(t, 6, p.MaxMonths)
	assert.Equal(t, OverDeductionReject, p.OverDeductions)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, DefaultPolicy().ReceiptMethods, p.ReceiptMethods)
}

func TestAuditLease(t *testing.T) {
	l := leaseWithAdvance("2000", 2)
	paid := invoiceFor(l, 1, date(2025, 1, 1), "1000")
	_, err := allocate(l, paid)
	require.NoError(t, err)
	l.SecurityDepositPaid = dec("500")
	deposits := []*DepositPayment{{ID: uuid.New(), LeaseID: l.ID, Amount: dec("500"), Status: DepositCompleted}}

	rep := auditLease(l, []*Invoice{paid}, nil, nil, deposits)
	assert.True(t, rep.Consistent, "%+v", rep.Discrepancies)

	// Drift the stored balances and check every family of discrepancy fires.
	l.AdvanceRentRemaining = dec("900")
	l.SecurityDepositPaid = dec("700")
	paid.AmountPaid = dec("10")
	sub := &PaymentSubmission{ID: uuid.New(), InvoiceID: paid.ID, Status: SubmissionConfirmed}
	pending := []*PaymentSubmission{
		sub,
		{ID: uuid.New(), InvoiceID: paid.ID, Status: SubmissionPending},
		{ID: uuid.New(), InvoiceID: paid.ID, Status: SubmissionPending},
	}

	rep = auditLease(l, []*Invoice{paid}, nil, pending, deposits)
	assert.False(t, rep.Consistent)
	codes := map[string]bool{}
	for _, d := range rep.Discrepancies {
		codes[d.Code] = true
	}
	for _, want := range []string{
		DiscBalanceConservation, DiscAmountPaidMismatch, DiscConfirmedWithoutPay,
		DiscDuplicatePending, DiscDepositDrift,
	} {
		assert.True(t, codes[want], "missing %s in %+v", want, rep.Discrepancies)
	}
}
