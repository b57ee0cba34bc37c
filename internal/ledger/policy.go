package ledger

import "time"

// Policy holds the operator-tunable ledger rules. internal/policy loads it
// from CUE; DefaultPolicy matches the embedded defaults.
type Policy struct {
	MinMonths      int
	MaxMonths      int
	OverDeductions OverDeductionPolicy
	MaxAttempts    int
	Backoff        time.Duration
	ReceiptMethods []PaymentMethod
}

// DefaultPolicy returns the built-in rules.
func DefaultPolicy() Policy {
	return Policy{
		MinMonths:      1,
		MaxMonths:      12,
		OverDeductions: OverDeductionReject,
		MaxAttempts:    3,
		Backoff:        25 * time.Millisecond,
		ReceiptMethods: []PaymentMethod{MethodBankDeposit, MethodBankTransfer},
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MinMonths <= 0 {
		p.MinMonths = d.MinMonths
	}
	if p.MaxMonths <= 0 {
		p.MaxMonths = d.MaxMonths
	}
	if p.OverDeductions == "" {
		p.OverDeductions = d.OverDeductions
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.ReceiptMethods == nil {
		p.ReceiptMethods = d.ReceiptMethods
	}
	return p
}
