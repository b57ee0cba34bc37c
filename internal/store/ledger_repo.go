package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

// Repository implements ledger.Repository on DB.
type Repository struct {
	db *DB
}

var _ ledger.Repository = (*Repository)(nil)

// NewRepository creates a Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func notFound(entity string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", ledger.ErrNotFound, entity, id)
}

// cas interprets the result of a compare-and-swap update.
func cas(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

// ─── Leases ─────────────────────────────────────────────────────────────────

var leaseSelect = []string{
	"id", "tenant_id", "unit_id", "status", "lease_start", "lease_end",
	"monthly_rent", "currency", "security_deposit_paid", "security_deposit_currency",
	"advance_rent_amount", "advance_rent_months", "advance_rent_used", "advance_rent_remaining",
	"advance_rent_collected_total", "advance_rent_collected_at", "version", "created_at", "updated_at",
}

func scanLease(s scanner) (*ledger.Lease, error) {
	var (
		l           ledger.Lease
		end, colled sql.NullTime
	)
	if err := s.Scan(
		&l.ID, &l.TenantID, &l.UnitID, &l.Status, &l.LeaseStart, &end,
		&l.MonthlyRent, &l.Currency, &l.SecurityDepositPaid, &l.SecurityDepositCurrency,
		&l.AdvanceRentAmount, &l.AdvanceRentMonths, &l.AdvanceRentUsed, &l.AdvanceRentRemaining,
		&l.AdvanceRentCollectedTotal, &colled, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning lease: %w", err)
	}
	l.LeaseStart = l.LeaseStart.UTC()
	l.LeaseEnd = timePtr(end)
	l.AdvanceRentCollectedAt = timePtr(colled)
	l.CreatedAt, l.UpdatedAt = l.CreatedAt.UTC(), l.UpdatedAt.UTC()
	return &l, nil
}

func (r *Repository) CreateLease(ctx context.Context, l *ledger.Lease) error {
	a := ledger.AuditFrom(ctx)
	q, args := r.db.builder().Insert(LeasesTable.Name).
		Columns(append(leaseSelect, "created_by", "updated_by", "source", "correlation_id")...).
		Values(
			l.ID, l.TenantID, l.UnitID, string(l.Status), utc(l.LeaseStart), nullTime(l.LeaseEnd),
			l.MonthlyRent, l.Currency, l.SecurityDepositPaid, l.SecurityDepositCurrency,
			l.AdvanceRentAmount, l.AdvanceRentMonths, l.AdvanceRentUsed, l.AdvanceRentRemaining,
			l.AdvanceRentCollectedTotal, nullTime(l.AdvanceRentCollectedAt), l.Version, utc(l.CreatedAt), utc(l.UpdatedAt),
			a.Actor, a.Actor, a.Source, nullStringPtr(a.CorrelationID),
		).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return fmt.Errorf("inserting lease: %w", err)
	}
	return nil
}

func (r *Repository) GetLease(ctx context.Context, id uuid.UUID, forUpdate bool) (*ledger.Lease, error) {
	b := r.db.builder()
	sel := b.Select(leaseSelect...).From(b.Table(LeasesTable.Name)).Where(entsql.EQ("id", id))
	if forUpdate {
		r.db.lockRows(sel)
	}
	var out *ledger.Lease
	err := r.db.query(ctx, sel, func(s scanner) error {
		l, err := scanLease(s)
		out = l
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, notFound("lease", id)
	}
	return out, nil
}

func (r *Repository) UpdateLease(ctx context.Context, l *ledger.Lease) error {
	a := ledger.AuditFrom(ctx)
	q, args := r.db.builder().Update(LeasesTable.Name).
		Set("status", string(l.Status)).
		Set("lease_end", nullTime(l.LeaseEnd)).
		Set("security_deposit_paid", l.SecurityDepositPaid).
		Set("security_deposit_currency", l.SecurityDepositCurrency).
		Set("advance_rent_amount", l.AdvanceRentAmount).
		Set("advance_rent_months", l.AdvanceRentMonths).
		Set("advance_rent_used", l.AdvanceRentUsed).
		Set("advance_rent_remaining", l.AdvanceRentRemaining).
		Set("advance_rent_collected_total", l.AdvanceRentCollectedTotal).
		Set("advance_rent_collected_at", nullTime(l.AdvanceRentCollectedAt)).
		Set("version", l.Version+1).
		Set("updated_at", utc(l.UpdatedAt)).
		Set("updated_by", a.Actor).
		Set("source", a.Source).
		Set("correlation_id", nullStringPtr(a.CorrelationID)).
		Where(entsql.And(entsql.EQ("id", l.ID), entsql.EQ("version", l.Version))).
		Query()
	if err := cas(r.db.exec(ctx, q, args)); err != nil {
		return fmt.Errorf("updating lease %s: %w", l.ID, err)
	}
	l.Version++
	return nil
}

func (r *Repository) ListLeaseIDs(ctx context.Context) ([]uuid.UUID, error) {
	b := r.db.builder()
	sel := b.Select("id").From(b.Table(LeasesTable.Name)).OrderBy(entsql.Asc("created_at"))
	var ids []uuid.UUID
	err := r.db.query(ctx, sel, func(s scanner) error {
		var id uuid.UUID
		if err := s.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// ─── Invoices ───────────────────────────────────────────────────────────────

var invoiceSelect = []string{
	"id", "lease_id", "invoice_number", "sequence", "invoice_date", "due_date",
	"rent_amount", "late_fee", "total_amount", "advance_rent_applied", "amount_paid",
	"status", "currency", "version", "created_at", "updated_at",
}

func scanInvoice(s scanner) (*ledger.Invoice, error) {
	var inv ledger.Invoice
	if err := s.Scan(
		&inv.ID, &inv.LeaseID, &inv.InvoiceNumber, &inv.Sequence, &inv.InvoiceDate, &inv.DueDate,
		&inv.RentAmount, &inv.LateFee, &inv.TotalAmount, &inv.AdvanceRentApplied, &inv.AmountPaid,
		&inv.Status, &inv.Currency, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning invoice: %w", err)
	}
	inv.InvoiceDate, inv.DueDate = inv.InvoiceDate.UTC(), inv.DueDate.UTC()
	inv.CreatedAt, inv.UpdatedAt = inv.CreatedAt.UTC(), inv.UpdatedAt.UTC()
	return &inv, nil
}

func (r *Repository) listInvoices(ctx context.Context, where *entsql.Predicate) ([]*ledger.Invoice, error) {
	b := r.db.builder()
	sel := b.Select(invoiceSelect...).From(b.Table(InvoicesTable.Name)).Where(where).
		OrderBy(entsql.Asc("invoice_date"), entsql.Asc("sequence"))
	var out []*ledger.Invoice
	err := r.db.query(ctx, sel, func(s scanner) error {
		inv, err := scanInvoice(s)
		if err != nil {
			return err
		}
		out = append(out, inv)
		return nil
	})
	return out, err
}

func (r *Repository) CreateInvoice(ctx context.Context, inv *ledger.Invoice) error {
	a := ledger.AuditFrom(ctx)
	q, args := r.db.builder().Insert(InvoicesTable.Name).
		Columns(append(invoiceSelect, "created_by", "updated_by", "source", "correlation_id")...).
		Values(
			inv.ID, inv.LeaseID, inv.InvoiceNumber, inv.Sequence, utc(inv.InvoiceDate), utc(inv.DueDate),
			inv.RentAmount, inv.LateFee, inv.TotalAmount, inv.AdvanceRentApplied, inv.AmountPaid,
			string(inv.Status), inv.Currency, inv.Version, utc(inv.CreatedAt), utc(inv.UpdatedAt),
			a.Actor, a.Actor, a.Source, nullStringPtr(a.CorrelationID),
		).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return fmt.Errorf("inserting invoice: %w", err)
	}
	return nil
}

func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID, forUpdate bool) (*ledger.Invoice, error) {
	b := r.db.builder()
	sel := b.Select(invoiceSelect...).From(b.Table(InvoicesTable.Name)).Where(entsql.EQ("id", id))
	if forUpdate {
		r.db.lockRows(sel)
	}
	var out *ledger.Invoice
	err := r.db.query(ctx, sel, func(s scanner) error {
		inv, err := scanInvoice(s)
		out = inv
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, notFound("invoice", id)
	}
	return out, nil
}

func (r *Repository) UpdateInvoice(ctx context.Context, inv *ledger.Invoice) error {
	a := ledger.AuditFrom(ctx)
	q, args := r.db.builder().Update(InvoicesTable.Name).
		Set("advance_rent_applied", inv.AdvanceRentApplied).
		Set("amount_paid", inv.AmountPaid).
		Set("status", string(inv.Status)).
		Set("version", inv.Version+1).
		Set("updated_at", utc(inv.UpdatedAt)).
		Set("updated_by", a.Actor).
		Set("source", a.Source).
		Set("correlation_id", nullStringPtr(a.CorrelationID)).
		Where(entsql.And(entsql.EQ("id", inv.ID), entsql.EQ("version", inv.Version))).
		Query()
	if err := cas(r.db.exec(ctx, q, args)); err != nil {
		return fmt.Errorf("updating invoice %s: %w", inv.InvoiceNumber, err)
	}
	inv.Version++
	return nil
}

func (r *Repository) ListInvoices(ctx context.Context, leaseID uuid.UUID) ([]*ledger.Invoice, error) {
	return r.listInvoices(ctx, entsql.EQ("lease_id", leaseID))
}

func (r *Repository) ListInvoicesDueBefore(ctx context.Context, asOf time.Time) ([]*ledger.Invoice, error) {
	return r.listInvoices(ctx, entsql.And(
		entsql.In("status", string(ledger.InvoicePending), string(ledger.InvoicePartiallyPaid)),
		entsql.LT("due_date", asOf.UTC()),
	))
}

func (r *Repository) NextInvoiceSequence(ctx context.Context, leaseID uuid.UUID) (int, error) {
	b := r.db.builder()
	sel := b.Select("MAX(sequence)").From(b.Table(InvoicesTable.Name)).Where(entsql.EQ("lease_id", leaseID))
	var last sql.NullInt64
	err := r.db.query(ctx, sel, func(s scanner) error { return s.Scan(&last) })
	if err != nil {
		return 0, fmt.Errorf("reading invoice sequence: %w", err)
	}
	return int(last.Int64) + 1, nil
}

// ─── Payment submissions ────────────────────────────────────────────────────

var submissionSelect = []string{
	"id", "invoice_id", "lease_id", "payment_amount", "payment_method", "payment_date",
	"receipt_path", "notes", "status", "confirmed_at", "rejected_at", "decided_by", "created_at",
}

func scanSubmission(s scanner) (*ledger.PaymentSubmission, error) {
	var (
		sub                     ledger.PaymentSubmission
		receipt, notes, decided sql.NullString
		confirmedAt, rejectedAt sql.NullTime
	)
	if err := s.Scan(
		&sub.ID, &sub.InvoiceID, &sub.LeaseID, &sub.PaymentAmount, &sub.PaymentMethod, &sub.PaymentDate,
		&receipt, &notes, &sub.Status, &confirmedAt, &rejectedAt, &decided, &sub.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning payment submission: %w", err)
	}
	sub.PaymentDate, sub.CreatedAt = sub.PaymentDate.UTC(), sub.CreatedAt.UTC()
	sub.ReceiptPath, sub.Notes, sub.DecidedBy = receipt.String, notes.String, decided.String
	sub.ConfirmedAt, sub.RejectedAt = timePtr(confirmedAt), timePtr(rejectedAt)
	return &sub, nil
}

func (r *Repository) listSubmissions(ctx context.Context, where *entsql.Predicate) ([]*ledger.PaymentSubmission, error) {
	b := r.db.builder()
	sel := b.Select(submissionSelect...).From(b.Table(SubmissionsTable.Name)).Where(where).
		OrderBy(entsql.Asc("created_at"))
	var out []*ledger.PaymentSubmission
	err := r.db.query(ctx, sel, func(s scanner) error {
		sub, err := scanSubmission(s)
		if err != nil {
			return err
		}
		out = append(out, sub)
		return nil
	})
	return out, err
}

func (r *Repository) CreateSubmission(ctx context.Context, sub *ledger.PaymentSubmission) error {
	a := ledger.AuditFrom(ctx)
	q, args := r.db.builder().Insert(SubmissionsTable.Name).
		Columns(append(submissionSelect, "created_by", "source", "correlation_id")...).
		Values(
			sub.ID, sub.InvoiceID, sub.LeaseID, sub.PaymentAmount, string(sub.PaymentMethod), utc(sub.PaymentDate),
			nullString(sub.ReceiptPath), nullString(sub.Notes), string(sub.Status),
			nullTime(sub.ConfirmedAt), nullTime(sub.RejectedAt), nullString(sub.DecidedBy), utc(sub.CreatedAt),
			a.Actor, a.Source, nullStringPtr(a.CorrelationID),
		).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return fmt.Errorf("inserting payment submission: %w", err)
	}
	return nil
}

func (r *Repository) GetSubmission(ctx context.Context, id uuid.UUID) (*ledger.PaymentSubmission, error) {
	subs, err := r.listSubmissions(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, notFound("payment submission", id)
	}
	return subs[0], nil
}

// UpdateSubmission records the decision on a pending submission. The row
// must still be pending.
func (r *Repository) UpdateSubmission(ctx context.Context, sub *ledger.PaymentSubmission) error {
	q, args := r.db.builder().Update(SubmissionsTable.Name).
		Set("status", string(sub.Status)).
		Set("confirmed_at", nullTime(sub.ConfirmedAt)).
		Set("rejected_at", nullTime(sub.RejectedAt)).
		Set("decided_by", nullString(sub.DecidedBy)).
		Set("notes", nullString(sub.Notes)).
		Where(entsql.And(entsql.EQ("id", sub.ID), entsql.EQ("status", string(ledger.SubmissionPending)))).
		Query()
	if err := cas(r.db.exec(ctx, q, args)); err != nil {
		return fmt.Errorf("updating payment submission %s: %w", sub.ID, err)
	}
	return nil
}

func (r *Repository) HasPendingSubmission(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	b := r.db.builder()
	sel := b.Select(entsql.Count("*")).From(b.Table(SubmissionsTable.Name)).Where(entsql.And(
		entsql.EQ("invoice_id", invoiceID),
		entsql.EQ("status", string(ledger.SubmissionPending)),
	))
	var n int
	if err := r.db.query(ctx, sel, func(s scanner) error { return s.Scan(&n) }); err != nil {
		return false, fmt.Errorf("checking pending submissions: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) ListSubmissions(ctx context.Context, invoiceID uuid.UUID) ([]*ledger.PaymentSubmission, error) {
	return r.listSubmissions(ctx, entsql.EQ("invoice_id", invoiceID))
}

func (r *Repository) ListLeaseSubmissions(ctx context.Context, leaseID uuid.UUID) ([]*ledger.PaymentSubmission, error) {
	return r.listSubmissions(ctx, entsql.EQ("lease_id", leaseID))
}

// ─── Invoice payments ───────────────────────────────────────────────────────

var paymentSelect = []string{
	"id", "invoice_id", "lease_id", "submission_id", "amount", "method", "payment_date", "reference", "created_at",
}

func (r *Repository) CreatePayment(ctx context.Context, p *ledger.InvoicePayment) error {
	var submission any
	if p.SubmissionID != nil {
		submission = *p.SubmissionID
	}
	q, args := r.db.builder().Insert(PaymentsTable.Name).
		Columns(append(paymentSelect, "created_by")...).
		Values(
			p.ID, p.InvoiceID, p.LeaseID, submission, p.Amount, string(p.Method), utc(p.PaymentDate),
			nullString(p.Reference), utc(p.CreatedAt), ledger.AuditFrom(ctx).Actor,
		).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return fmt.Errorf("inserting invoice payment: %w", err)
	}
	return nil
}

func (r *Repository) ListPayments(ctx context.Context, leaseID uuid.UUID) ([]*ledger.InvoicePayment, error) {
	b := r.db.builder()
	sel := b.Select(paymentSelect...).From(b.Table(PaymentsTable.Name)).
		Where(entsql.EQ("lease_id", leaseID)).OrderBy(entsql.Asc("created_at"))
	var out []*ledger.InvoicePayment
	err := r.db.query(ctx, sel, func(s scanner) error {
		var (
			p          ledger.InvoicePayment
			submission uuid.NullUUID
			reference  sql.NullString
		)
		if err := s.Scan(&p.ID, &p.InvoiceID, &p.LeaseID, &submission, &p.Amount, &p.Method,
			&p.PaymentDate, &reference, &p.CreatedAt); err != nil {
			return fmt.Errorf("scanning invoice payment: %w", err)
		}
		if submission.Valid {
			id := submission.UUID
			p.SubmissionID = &id
		}
		p.Reference = reference.String
		p.PaymentDate, p.CreatedAt = p.PaymentDate.UTC(), p.CreatedAt.UTC()
		out = append(out, &p)
		return nil
	})
	return out, err
}

// ─── Deposit payments ───────────────────────────────────────────────────────

var depositSelect = []string{"id", "lease_id", "amount", "currency", "status", "paid_at", "created_at"}

func (r *Repository) CreateDepositPayment(ctx context.Context, p *ledger.DepositPayment) error {
	q, args := r.db.builder().Insert(DepositPaymentsTable.Name).
		Columns(depositSelect...).
		Values(p.ID, p.LeaseID, p.Amount, p.Currency, string(p.Status), utc(p.PaidAt), utc(p.CreatedAt)).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return fmt.Errorf("inserting deposit payment: %w", err)
	}
	return nil
}

func (r *Repository) ListDepositPayments(ctx context.Context, leaseID uuid.UUID) ([]*ledger.DepositPayment, error) {
	b := r.db.builder()
	sel := b.Select(depositSelect...).From(b.Table(DepositPaymentsTable.Name)).
		Where(entsql.EQ("lease_id", leaseID)).OrderBy(entsql.Asc("paid_at"))
	var out []*ledger.DepositPayment
	err := r.db.query(ctx, sel, func(s scanner) error {
		var p ledger.DepositPayment
		if err := s.Scan(&p.ID, &p.LeaseID, &p.Amount, &p.Currency, &p.Status, &p.PaidAt, &p.CreatedAt); err != nil {
			return fmt.Errorf("scanning deposit payment: %w", err)
		}
		p.PaidAt, p.CreatedAt = p.PaidAt.UTC(), p.CreatedAt.UTC()
		out = append(out, &p)
		return nil
	})
	return out, err
}

// ─── Security deposit refunds ───────────────────────────────────────────────

var refundSelect = []string{
	"id", "lease_id", "refund_number", "original_deposit", "deductions", "deduction_reasons",
	"refund_amount", "currency", "status", "refund_date", "processed_at", "version", "created_at",
}

func scanRefund(s scanner) (*ledger.SecurityDepositRefund, error) {
	var (
		rf        ledger.SecurityDepositRefund
		items     []byte
		processed sql.NullTime
	)
	if err := s.Scan(
		&rf.ID, &rf.LeaseID, &rf.RefundNumber, &rf.OriginalDeposit, &rf.Deductions, &items,
		&rf.RefundAmount, &rf.Currency, &rf.Status, &rf.RefundDate, &processed, &rf.Version, &rf.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning refund: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &rf.DeductionItems); err != nil {
			return nil, fmt.Errorf("decoding deduction reasons: %w", err)
		}
	}
	rf.RefundDate, rf.CreatedAt = rf.RefundDate.UTC(), rf.CreatedAt.UTC()
	rf.ProcessedAt = timePtr(processed)
	return &rf, nil
}

func (r *Repository) listRefunds(ctx context.Context, where *entsql.Predicate) ([]*ledger.SecurityDepositRefund, error) {
	b := r.db.builder()
	sel := b.Select(refundSelect...).From(b.Table(RefundsTable.Name)).Where(where).OrderBy(entsql.Asc("created_at"))
	var out []*ledger.SecurityDepositRefund
	err := r.db.query(ctx, sel, func(s scanner) error {
		rf, err := scanRefund(s)
		if err != nil {
			return err
		}
		out = append(out, rf)
		return nil
	})
	return out, err
}

func (r *Repository) CreateRefund(ctx context.Context, rf *ledger.SecurityDepositRefund) error {
	items := rf.DeductionItems
	if items == nil {
		items = []ledger.DeductionItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding deduction reasons: %w", err)
	}
	a := ledger.AuditFrom(ctx)
	q, args := r.db.builder().Insert(RefundsTable.Name).
		Columns(append(refundSelect, "updated_at", "created_by", "updated_by", "source", "correlation_id")...).
		Values(
			rf.ID, rf.LeaseID, rf.RefundNumber, rf.OriginalDeposit, rf.Deductions, string(itemsJSON),
			rf.RefundAmount, rf.Currency, string(rf.Status), utc(rf.RefundDate), nullTime(rf.ProcessedAt),
			rf.Version, utc(rf.CreatedAt), utc(rf.CreatedAt),
			a.Actor, a.Actor, a.Source, nullStringPtr(a.CorrelationID),
		).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return fmt.Errorf("inserting refund: %w", err)
	}
	return nil
}

func (r *Repository) GetRefund(ctx context.Context, id uuid.UUID) (*ledger.SecurityDepositRefund, error) {
	refunds, err := r.listRefunds(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(refunds) == 0 {
		return nil, notFound("refund", id)
	}
	return refunds[0], nil
}

func (r *Repository) UpdateRefund(ctx context.Context, rf *ledger.SecurityDepositRefund) error {
	a := ledger.AuditFrom(ctx)
	q, args := r.db.builder().Update(RefundsTable.Name).
		Set("status", string(rf.Status)).
		Set("processed_at", nullTime(rf.ProcessedAt)).
		Set("version", rf.Version+1).
		Set("updated_at", time.Now().UTC()).
		Set("updated_by", a.Actor).
		Set("source", a.Source).
		Set("correlation_id", nullStringPtr(a.CorrelationID)).
		Where(entsql.And(entsql.EQ("id", rf.ID), entsql.EQ("version", rf.Version))).
		Query()
	if err := cas(r.db.exec(ctx, q, args)); err != nil {
		return fmt.Errorf("updating refund %s: %w", rf.RefundNumber, err)
	}
	rf.Version++
	return nil
}

func (r *Repository) ListRefunds(ctx context.Context, leaseID uuid.UUID) ([]*ledger.SecurityDepositRefund, error) {
	return r.listRefunds(ctx, entsql.EQ("lease_id", leaseID))
}

// ─── Financial records ──────────────────────────────────────────────────────

var recordSelect = []string{
	"id", "lease_id", "invoice_id", "type", "amount", "currency", "direction",
	"date", "description", "actor", "source", "correlation_id", "created_at",
}

func (r *Repository) AppendRecord(ctx context.Context, rec *ledger.FinancialRecord) error {
	var invoice any
	if rec.InvoiceID != nil {
		invoice = *rec.InvoiceID
	}
	q, args := r.db.builder().Insert(RecordsTable.Name).
		Columns(recordSelect...).
		Values(
			rec.ID, rec.LeaseID, invoice, string(rec.Type), rec.Amount, rec.Currency, string(rec.Direction),
			utc(rec.Date), rec.Description, rec.Actor, rec.Source, nullStringPtr(rec.CorrelationID), utc(rec.CreatedAt),
		).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return fmt.Errorf("appending financial record: %w", err)
	}
	return nil
}

func (r *Repository) ListRecords(ctx context.Context, leaseID uuid.UUID) ([]*ledger.FinancialRecord, error) {
	b := r.db.builder()
	sel := b.Select(recordSelect...).From(b.Table(RecordsTable.Name)).
		Where(entsql.EQ("lease_id", leaseID)).OrderBy(entsql.Asc("created_at"))
	var out []*ledger.FinancialRecord
	err := r.db.query(ctx, sel, func(s scanner) error {
		var (
			rec     ledger.FinancialRecord
			invoice uuid.NullUUID
			corr    sql.NullString
		)
		if err := s.Scan(&rec.ID, &rec.LeaseID, &invoice, &rec.Type, &rec.Amount, &rec.Currency, &rec.Direction,
			&rec.Date, &rec.Description, &rec.Actor, &rec.Source, &corr, &rec.CreatedAt); err != nil {
			return fmt.Errorf("scanning financial record: %w", err)
		}
		if invoice.Valid {
			id := invoice.UUID
			rec.InvoiceID = &id
		}
		rec.CorrelationID = stringPtr(corr)
		rec.Date, rec.CreatedAt = rec.Date.UTC(), rec.CreatedAt.UTC()
		out = append(out, &rec)
		return nil
	})
	return out, err
}
