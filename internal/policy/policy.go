// Package policy loads the operator-tunable ledger rules from a CUE file,
// validated against the embedded #Policy schema.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

//go:embed schema.cue
var schemaSource string

type document struct {
	AdvanceRent struct {
		MinMonths int `json:"min_months"`
		MaxMonths int `json:"max_months"`
	} `json:"advance_rent"`
	Refund struct {
		OverDeductions string `json:"over_deductions"`
	} `json:"refund"`
	Submission struct {
		RequireReceiptFor []string `json:"require_receipt_for"`
	} `json:"submission"`
	Retry struct {
		MaxAttempts int    `json:"max_attempts"`
		Backoff     string `json:"backoff"`
	} `json:"retry"`
}

// Load reads the policy at path. An empty path loads the defaults.
func Load(path string) (ledger.Policy, error) {
	var src []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return ledger.Policy{}, fmt.Errorf("reading policy: %w", err)
		}
		src = b
	}
	return Parse(path, src)
}

// Parse validates src against #Policy and converts it. filename is only used
// in error messages.
func Parse(filename string, src []byte) (ledger.Policy, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return ledger.Policy{}, fmt.Errorf("compiling policy schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Policy"))

	v := def
	if len(src) > 0 {
		if filename == "" {
			filename = "policy.cue"
		}
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return ledger.Policy{}, fmt.Errorf("compiling %s: %w", filename, err)
		}
		v = def.Unify(user)
	}
	if err := v.Validate(cue.Concrete(true), cue.Hidden(true)); err != nil {
		return ledger.Policy{}, fmt.Errorf("invalid policy: %w", err)
	}

	var doc document
	if err := v.Decode(&doc); err != nil {
		return ledger.Policy{}, fmt.Errorf("decoding policy: %w", err)
	}
	return doc.policy()
}

func (d document) policy() (ledger.Policy, error) {
	backoff, err := time.ParseDuration(d.Retry.Backoff)
	if err != nil {
		return ledger.Policy{}, fmt.Errorf("invalid policy: retry.backoff: %w", err)
	}
	methods := make([]ledger.PaymentMethod, 0, len(d.Submission.RequireReceiptFor))
	for _, m := range d.Submission.RequireReceiptFor {
		pm, err := ledger.ParsePaymentMethod(m)
		if err != nil {
			return ledger.Policy{}, err
		}
		methods = append(methods, pm)
	}
	for _, required := range []ledger.PaymentMethod{ledger.MethodBankDeposit, ledger.MethodBankTransfer} {
		if !slices.Contains(methods, required) {
			return ledger.Policy{}, fmt.Errorf("invalid policy: submission.require_receipt_for must include %s", required)
		}
	}
	return ledger.Policy{
		MinMonths:      d.AdvanceRent.MinMonths,
		MaxMonths:      d.AdvanceRent.MaxMonths,
		OverDeductions: ledger.OverDeductionPolicy(d.Refund.OverDeductions),
		MaxAttempts:    d.Retry.MaxAttempts,
		Backoff:        backoff,
		ReceiptMethods: methods,
	}, nil
}
