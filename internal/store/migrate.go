package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/activity"
)

// Money is stored exactly: numeric on Postgres, decimal text on SQLite.
var moneyType = map[string]string{
	dialect.Postgres: "numeric(18,2)",
	dialect.SQLite:   "text",
}

func uuidCol(name string, nullable bool) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeUUID, Nullable: nullable}
}

func moneyCol(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, SchemaType: moneyType, Default: "0"}
}

func stringCol(name string, size int64) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, Size: size}
}

func timeCol(name string, nullable bool) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeTime, Nullable: nullable}
}

// auditCols are the traceability columns every mutable entity carries:
// who created and last touched the row, from which surface, and under which
// correlation id.
func auditCols() []*schema.Column {
	return []*schema.Column{
		timeCol("created_at", false),
		timeCol("updated_at", false),
		stringCol("created_by", 128),
		stringCol("updated_by", 128),
		stringCol("source", 32),
		{Name: "correlation_id", Type: field.TypeString, Size: 128, Nullable: true},
	}
}

var (
	leaseColumns = append([]*schema.Column{
		uuidCol("id", false),
		uuidCol("tenant_id", false),
		uuidCol("unit_id", false),
		stringCol("status", 16),
		timeCol("lease_start", false),
		timeCol("lease_end", true),
		moneyCol("monthly_rent"),
		stringCol("currency", 3),
		moneyCol("security_deposit_paid"),
		stringCol("security_deposit_currency", 3),
		moneyCol("advance_rent_amount"),
		{Name: "advance_rent_months", Type: field.TypeInt, Default: 0},
		moneyCol("advance_rent_used"),
		moneyCol("advance_rent_remaining"),
		moneyCol("advance_rent_collected_total"),
		timeCol("advance_rent_collected_at", true),
		{Name: "version", Type: field.TypeInt64, Default: 1},
	}, auditCols()...)

	// LeasesTable holds leases and the advance-rent and deposit balances.
	LeasesTable = &schema.Table{
		Name:       "leases",
		Columns:    leaseColumns,
		PrimaryKey: []*schema.Column{leaseColumns[0]},
		Indexes: []*schema.Index{
			{Name: "leases_status", Columns: []*schema.Column{leaseColumns[3]}},
		},
	}

	invoiceColumns = append([]*schema.Column{
		uuidCol("id", false),
		uuidCol("lease_id", false),
		{Name: "invoice_number", Type: field.TypeString, Size: 64, Unique: true},
		{Name: "sequence", Type: field.TypeInt},
		timeCol("invoice_date", false),
		timeCol("due_date", false),
		moneyCol("rent_amount"),
		moneyCol("late_fee"),
		moneyCol("total_amount"),
		moneyCol("advance_rent_applied"),
		moneyCol("amount_paid"),
		stringCol("status", 16),
		stringCol("currency", 3),
		{Name: "version", Type: field.TypeInt64, Default: 1},
	}, auditCols()...)

	// InvoicesTable holds rent invoices.
	InvoicesTable = &schema.Table{
		Name:       "invoices",
		Columns:    invoiceColumns,
		PrimaryKey: []*schema.Column{invoiceColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "invoices_leases_invoices",
			Columns:    []*schema.Column{invoiceColumns[1]},
			RefColumns: []*schema.Column{leaseColumns[0]},
			OnDelete:   schema.NoAction,
		}},
		Indexes: []*schema.Index{
			{Name: "invoices_lease_sequence", Unique: true, Columns: []*schema.Column{invoiceColumns[1], invoiceColumns[3]}},
			{Name: "invoices_status_due", Columns: []*schema.Column{invoiceColumns[11], invoiceColumns[5]}},
		},
	}

	submissionColumns = []*schema.Column{
		uuidCol("id", false),
		uuidCol("invoice_id", false),
		uuidCol("lease_id", false),
		moneyCol("payment_amount"),
		stringCol("payment_method", 32),
		timeCol("payment_date", false),
		{Name: "receipt_path", Type: field.TypeString, Size: 512, Nullable: true},
		{Name: "notes", Type: field.TypeString, Size: 2147483647, Nullable: true},
		stringCol("status", 16),
		timeCol("confirmed_at", true),
		timeCol("rejected_at", true),
		{Name: "decided_by", Type: field.TypeString, Size: 128, Nullable: true},
		timeCol("created_at", false),
		stringCol("created_by", 128),
		stringCol("source", 32),
		{Name: "correlation_id", Type: field.TypeString, Size: 128, Nullable: true},
	}

	// SubmissionsTable holds tenant payment submissions. At most one pending
	// submission per invoice is enforced by a partial unique index.
	SubmissionsTable = &schema.Table{
		Name:       "payment_submissions",
		Columns:    submissionColumns,
		PrimaryKey: []*schema.Column{submissionColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "payment_submissions_invoices_submissions",
				Columns:    []*schema.Column{submissionColumns[1]},
				RefColumns: []*schema.Column{invoiceColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "payment_submissions_leases_submissions",
				Columns:    []*schema.Column{submissionColumns[2]},
				RefColumns: []*schema.Column{leaseColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:       pendingSubmissionIndex,
				Unique:     true,
				Columns:    []*schema.Column{submissionColumns[1]},
				Annotation: &entsql.IndexAnnotation{Where: "status = 'pending'"},
			},
			{Name: "payment_submissions_lease", Columns: []*schema.Column{submissionColumns[2]}},
		},
	}

	paymentColumns = []*schema.Column{
		uuidCol("id", false),
		uuidCol("invoice_id", false),
		uuidCol("lease_id", false),
		{Name: "submission_id", Type: field.TypeUUID, Nullable: true, Unique: true},
		moneyCol("amount"),
		stringCol("method", 32),
		timeCol("payment_date", false),
		{Name: "reference", Type: field.TypeString, Size: 256, Nullable: true},
		timeCol("created_at", false),
		stringCol("created_by", 128),
	}

	// PaymentsTable holds settled invoice payments.
	PaymentsTable = &schema.Table{
		Name:       "invoice_payments",
		Columns:    paymentColumns,
		PrimaryKey: []*schema.Column{paymentColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "invoice_payments_invoices_payments",
			Columns:    []*schema.Column{paymentColumns[1]},
			RefColumns: []*schema.Column{invoiceColumns[0]},
			OnDelete:   schema.NoAction,
		}},
		Indexes: []*schema.Index{
			{Name: "invoice_payments_lease", Columns: []*schema.Column{paymentColumns[2]}},
		},
	}

	depositColumns = []*schema.Column{
		uuidCol("id", false),
		uuidCol("lease_id", false),
		moneyCol("amount"),
		stringCol("currency", 3),
		stringCol("status", 16),
		timeCol("paid_at", false),
		timeCol("created_at", false),
	}

	// DepositPaymentsTable holds security deposit payment entries.
	DepositPaymentsTable = &schema.Table{
		Name:       "deposit_payments",
		Columns:    depositColumns,
		PrimaryKey: []*schema.Column{depositColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "deposit_payments_leases_deposits",
			Columns:    []*schema.Column{depositColumns[1]},
			RefColumns: []*schema.Column{leaseColumns[0]},
			OnDelete:   schema.NoAction,
		}},
	}

	refundColumns = append([]*schema.Column{
		uuidCol("id", false),
		uuidCol("lease_id", false),
		{Name: "refund_number", Type: field.TypeString, Size: 64, Unique: true},
		moneyCol("original_deposit"),
		moneyCol("deductions"),
		{Name: "deduction_reasons", Type: field.TypeJSON},
		moneyCol("refund_amount"),
		stringCol("currency", 3),
		stringCol("status", 16),
		timeCol("refund_date", false),
		timeCol("processed_at", true),
		{Name: "version", Type: field.TypeInt64, Default: 1},
	}, auditCols()...)

	// RefundsTable holds security deposit refunds.
	RefundsTable = &schema.Table{
		Name:       "security_deposit_refunds",
		Columns:    refundColumns,
		PrimaryKey: []*schema.Column{refundColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "security_deposit_refunds_leases_refunds",
			Columns:    []*schema.Column{refundColumns[1]},
			RefColumns: []*schema.Column{leaseColumns[0]},
			OnDelete:   schema.NoAction,
		}},
	}

	recordColumns = []*schema.Column{
		uuidCol("id", false),
		uuidCol("lease_id", false),
		uuidCol("invoice_id", true),
		stringCol("type", 40),
		moneyCol("amount"),
		stringCol("currency", 3),
		stringCol("direction", 16),
		timeCol("date", false),
		{Name: "description", Type: field.TypeString, Size: 2147483647},
		stringCol("actor", 128),
		stringCol("source", 32),
		{Name: "correlation_id", Type: field.TypeString, Size: 128, Nullable: true},
		timeCol("created_at", false),
	}

	// RecordsTable holds the append-only financial records.
	RecordsTable = &schema.Table{
		Name:       "financial_records",
		Columns:    recordColumns,
		PrimaryKey: []*schema.Column{recordColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "financial_records_leases_records",
			Columns:    []*schema.Column{recordColumns[1]},
			RefColumns: []*schema.Column{leaseColumns[0]},
			OnDelete:   schema.NoAction,
		}},
		Indexes: []*schema.Index{
			{Name: "financial_records_lease_created", Columns: []*schema.Column{recordColumns[1], recordColumns[12]}},
		},
	}

	// Tables is every table the service owns, in dependency order.
	Tables = []*schema.Table{
		LeasesTable,
		InvoicesTable,
		SubmissionsTable,
		PaymentsTable,
		DepositPaymentsTable,
		RefundsTable,
		RecordsTable,
		activity.Table,
	}
)

const pendingSubmissionIndex = "payment_submissions_one_pending"

func init() {
	InvoicesTable.ForeignKeys[0].RefTable = LeasesTable
	SubmissionsTable.ForeignKeys[0].RefTable = InvoicesTable
	SubmissionsTable.ForeignKeys[1].RefTable = LeasesTable
	PaymentsTable.ForeignKeys[0].RefTable = InvoicesTable
	DepositPaymentsTable.ForeignKeys[0].RefTable = LeasesTable
	RefundsTable.ForeignKeys[0].RefTable = LeasesTable
	RecordsTable.ForeignKeys[0].RefTable = LeasesTable
}

// Migrate creates or upgrades every table.
func (d *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(d.drv)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("running schema migration: %w", err)
	}
	d.log.Info("database migrated", zap.Int("tables", len(Tables)))
	return nil
}
