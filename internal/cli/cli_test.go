package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db-dsn", dsn, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func testDSN(t *testing.T) string {
	return "file:" + filepath.Join(t.TempDir(), "ledger.db") + "?_time_format=sqlite&_pragma=foreign_keys(1)"
}

func TestMigrateThenRepair(t *testing.T) {
	dsn := testDSN(t)

	_, err := run(t, dsn, "migrate")
	require.NoError(t, err)

	out, err := run(t, dsn, "repair-deposits")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	out, err = run(t, dsn, "mark-overdue", "--as-of", "2025-01-31")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 0 invoice(s) overdue as of 2025-01-31")
}

func TestAudit_UnknownLease(t *testing.T) {
	dsn := testDSN(t)
	_, err := run(t, dsn, "migrate")
	require.NoError(t, err)

	_, err = run(t, dsn, "audit", uuid.NewString())
	assert.ErrorContains(t, err, "not found")
}

func TestArgumentValidation(t *testing.T) {
	dsn := testDSN(t)

	_, err := run(t, dsn, "retro-apply", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid lease id")

	_, err = run(t, dsn, "mark-overdue", "--as-of", "31/01/2025")
	assert.ErrorContains(t, err, "--as-of")

	_, err = run(t, dsn, "--db-driver", "oracle", "migrate")
	assert.ErrorContains(t, err, "database.driver")
}
