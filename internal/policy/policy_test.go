package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

func TestLoad_DefaultsMatchBuiltIn(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultPolicy(), p)
}

func TestParse_Overrides(t *testing.T) {
	src := []byte(`
advance_rent: max_months: 6
refund: over_deductions: "clamp"
submission: require_receipt_for: ["bank_transfer", "cash", "bank_deposit"]
retry: {
	max_attempts: 5
	backoff:      "10ms"
}
`)
	p, err := Parse("policy.cue", src)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MinMonths)
	assert.Equal(t, 6, p.MaxMonths)
	assert.Equal(t, ledger.OverDeductionClamp, p.OverDeductions)
	assert.Equal(t, []ledger.PaymentMethod{ledger.MethodBankTransfer, ledger.MethodCash, ledger.MethodBankDeposit}, p.ReceiptMethods)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, p.Backoff)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"max below min":  `advance_rent: {min_months: 6, max_months: 3}`,
		"above ceiling":  `advance_rent: max_months: 24`,
		"unknown mode":   `refund: over_deductions: "forgive"`,
		"unknown method": `submission: require_receipt_for: ["cheque"]`,
		"no receipts":    `submission: require_receipt_for: []`,
		"cash only":      `submission: require_receipt_for: ["cash"]`,
		"deposit only":   `submission: require_receipt_for: ["bank_deposit"]`,
		"unknown field":  `advance_rent: maximum: 4`,
		"bad duration":   `retry: backoff: "soon"`,
		"zero attempts":  `retry: max_attempts: 0`,
		"not cue at all": `advance_rent: {`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("policy.cue", []byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte(`advance_rent: min_months: 2`), 0o600))
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.MinMonths)
	assert.Equal(t, 12, p.MaxMonths)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
