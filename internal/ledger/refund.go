package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OverDeductionPolicy decides what happens when deductions exceed the deposit.
type OverDeductionPolicy string

const (
	// OverDeductionReject fails with ErrDeductionsExceedDeposit.
	OverDeductionReject OverDeductionPolicy = "reject"
	// OverDeductionClamp refunds zero and keeps the itemized deductions.
	OverDeductionClamp OverDeductionPolicy = "clamp"
)

// RefundCalculation is the result of ComputeRefund.
type RefundCalculation struct {
	OriginalDeposit decimal.Decimal
	Deductions      decimal.Decimal
	RefundAmount    decimal.Decimal
}

// ComputeRefund returns deposit − Σ items. Item amounts must be non-negative.
func ComputeRefund(depositPaid decimal.Decimal, items []DeductionItem, policy OverDeductionPolicy) (RefundCalculation, error) {
	deductions := decimal.Zero
	for i, it := range items {
		if it.Amount.IsNegative() {
			return RefundCalculation{}, fmt.Errorf("%w: deduction %d (%s) is negative", ErrInvalidAmount, i, strings.TrimSpace(it.Reason))
		}
		deductions = deductions.Add(it.Amount)
	}
	calc := RefundCalculation{
		OriginalDeposit: depositPaid,
		Deductions:      deductions,
		RefundAmount:    depositPaid.Sub(deductions),
	}
	if deductions.GreaterThan(depositPaid) {
		if policy != OverDeductionClamp {
			return RefundCalculation{}, fmt.Errorf("%w: deductions %s, deposit %s",
				ErrDeductionsExceedDeposit, deductions, depositPaid)
		}
		calc.RefundAmount = decimal.Zero
	}
	return calc, nil
}

func (r *SecurityDepositRefund) transition(to RefundStatus) error {
	if r.Status != RefundPending {
		return fmt.Errorf("%w: refund %s is %s", ErrAlreadyFinalized, r.RefundNumber, r.Status)
	}
	if err := checkTransition("refund", r.Status, to, r.Status.CanTransitionTo(to)); err != nil {
		return err
	}
	r.Status = to
	return nil
}
