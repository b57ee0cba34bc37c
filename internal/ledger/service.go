package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

// Repository is the persistence boundary of the ledger. Every method runs on
// the transaction carried by ctx when there is one.
//
// Update methods are compare-and-swap on Version (or on the submission's
// pending status) and return ErrConcurrentModification when the row moved
// underneath the caller. On success they bump Version on the passed struct.
type Repository interface {
	CreateLease(ctx context.Context, l *Lease) error
	GetLease(ctx context.Context, id uuid.UUID, forUpdate bool) (*Lease, error)
	UpdateLease(ctx context.Context, l *Lease) error
	ListLeaseIDs(ctx context.Context) ([]uuid.UUID, error)

	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID, forUpdate bool) (*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	ListInvoices(ctx context.Context, leaseID uuid.UUID) ([]*Invoice, error)
	ListInvoicesDueBefore(ctx context.Context, asOf time.Time) ([]*Invoice, error)
	NextInvoiceSequence(ctx context.Context, leaseID uuid.UUID) (int, error)

	CreateSubmission(ctx context.Context, s *PaymentSubmission) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*PaymentSubmission, error)
	UpdateSubmission(ctx context.Context, s *PaymentSubmission) error
	HasPendingSubmission(ctx context.Context, invoiceID uuid.UUID) (bool, error)
	ListSubmissions(ctx context.Context, invoiceID uuid.UUID) ([]*PaymentSubmission, error)
	ListLeaseSubmissions(ctx context.Context, leaseID uuid.UUID) ([]*PaymentSubmission, error)

	CreatePayment(ctx context.Context, p *InvoicePayment) error
	ListPayments(ctx context.Context, leaseID uuid.UUID) ([]*InvoicePayment, error)

	CreateDepositPayment(ctx context.Context, p *DepositPayment) error
	ListDepositPayments(ctx context.Context, leaseID uuid.UUID) ([]*DepositPayment, error)

	CreateRefund(ctx context.Context, r *SecurityDepositRefund) error
	GetRefund(ctx context.Context, id uuid.UUID) (*SecurityDepositRefund, error)
	UpdateRefund(ctx context.Context, r *SecurityDepositRefund) error
	ListRefunds(ctx context.Context, leaseID uuid.UUID) ([]*SecurityDepositRefund, error)

	AppendRecord(ctx context.Context, rec *FinancialRecord) error
	ListRecords(ctx context.Context, leaseID uuid.UUID) ([]*FinancialRecord, error)
}

// TxRunner runs fn inside one storage transaction, committing when fn
// returns nil and rolling back otherwise.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReceiptStore validates receipt references attached to payment submissions.
type ReceiptStore interface {
	Validate(ref string) error
}

// Observer receives per-operation outcomes, typically for metrics.
type Observer interface {
	ObserveOperation(op string, kind ErrorKind, elapsed time.Duration)
	ObserveRetry(op string)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, ErrorKind, time.Duration) {}
func (nopObserver) ObserveRetry(string)                              {}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Policy   Policy
	Logger   *zap.Logger
	Events   event.Recorder
	Receipts ReceiptStore
	Observer Observer
	Now      func() time.Time
}

// Service is the single entry point for ledger mutations. Each mutation runs
// under the lease's in-process lock, inside one transaction that re-reads the
// lease row (FOR UPDATE where the dialect supports it), and is retried on
// ErrConcurrentModification.
type Service struct {
	repo     Repository
	tx       TxRunner
	policy   Policy
	log      *zap.Logger
	events   event.Recorder
	receipts ReceiptStore
	observer Observer
	now      func() time.Time
	locks    *lockArena
}

// NewService creates a Service.
func NewService(repo Repository, tx TxRunner, opts Options) *Service {
	s := &Service{
		repo:     repo,
		tx:       tx,
		policy:   opts.Policy.normalized(),
		log:      opts.Logger,
		events:   opts.Events,
		receipts: opts.Receipts,
		observer: opts.Observer,
		now:      opts.Now,
		locks:    newLockArena(),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Policy returns the rules the service enforces.
func (s *Service) Policy() Policy { return s.policy }

// ─── Audit context ──────────────────────────────────────────────────────────

type auditKey struct{}

// WithAudit attaches who/what triggered the mutations run with ctx.
func WithAudit(ctx context.Context, a AuditInfo) context.Context {
	return context.WithValue(ctx, auditKey{}, a)
}

// AuditFrom returns the audit info on ctx, or SystemAudit.
func AuditFrom(ctx context.Context) AuditInfo {
	if a, ok := ctx.Value(auditKey{}).(AuditInfo); ok && a.Actor != "" {
		if a.Source == "" {
			a.Source = "api"
		}
		return a
	}
	return SystemAudit
}

// ─── Mutation entry point ───────────────────────────────────────────────────

type mutation func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error

// mutateLease runs fn as one serialized, retried transaction on leaseID.
// Events emitted by fn are recorded only after a successful commit.
func (s *Service) mutateLease(ctx context.Context, op string, leaseID uuid.UUID, fn mutation) error {
	start := time.Now()
	unlock := s.locks.Lock(leaseID)
	defer unlock()

	var (
		events []event.DomainEvent
		err    error
	)
	for attempt := 1; ; attempt++ {
		events = events[:0]
		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			l, err := s.repo.GetLease(ctx, leaseID, true)
			if err != nil {
				return err
			}
			return fn(ctx, l, func(e event.DomainEvent) { events = append(events, e) })
		})
		if err == nil || !errors.Is(err, ErrConcurrentModification) || attempt >= s.policy.MaxAttempts {
			break
		}
		s.observer.ObserveRetry(op)
		s.log.Warn("ledger conflict, retrying",
			zap.String("op", op),
			zap.String("lease_id", leaseID.String()),
			zap.Int("attempt", attempt),
		)
		if werr := s.wait(ctx, attempt); werr != nil {
			err = werr
			break
		}
	}

	s.finish(op, leaseID, err, start)
	if err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

func (s *Service) wait(ctx context.Context, attempt int) error {
	if s.policy.Backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.policy.Backoff * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) finish(op string, leaseID uuid.UUID, err error, start time.Time) {
	elapsed := time.Since(start)
	kind := Kind(err)
	s.observer.ObserveOperation(op, kind, elapsed)
	switch {
	case err == nil:
		s.log.Debug("ledger mutation committed",
			zap.String("op", op),
			zap.String("lease_id", leaseID.String()),
			zap.Duration("elapsed", elapsed),
		)
	case kind == KindInternal:
		s.log.Error("ledger mutation failed",
			zap.String("op", op),
			zap.String("lease_id", leaseID.String()),
			zap.Error(err),
		)
	default:
		s.log.Info("ledger mutation rejected",
			zap.String("op", op),
			zap.String("lease_id", leaseID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// publish is best effort: the ledger rows are already committed.
func (s *Service) publish(ctx context.Context, events []event.DomainEvent) {
	if s.events == nil {
		return
	}
	for _, e := range events {
		if err := s.events.Record(ctx, e); err != nil {
			s.log.Warn("failed to record domain event",
				zap.String("event_type", e.EventType),
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
		}
	}
}

// newRecord builds a financial record stamped with the audit info on ctx.
func (s *Service) newRecord(ctx context.Context, l *Lease, typ RecordType, amount decimal.Decimal, dir Direction, date time.Time, desc string) *FinancialRecord {
	a := AuditFrom(ctx)
	return &FinancialRecord{
		ID:            uuid.New(),
		LeaseID:       l.ID,
		Type:          typ,
		Amount:        amount,
		Currency:      l.Currency,
		Direction:     dir,
		Date:          types.Date(date),
		Description:   desc,
		Actor:         a.Actor,
		Source:        a.Source,
		CorrelationID: a.CorrelationID,
		CreatedAt:     s.now(),
	}
}

func money(amount decimal.Decimal, currency string) types.Money {
	return types.NewMoney(amount, currency)
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// GetLease returns the lease.
func (s *Service) GetLease(ctx context.Context, id uuid.UUID) (*Lease, error) {
	return s.repo.GetLease(ctx, id, false)
}

// Snapshot returns the ledger read model for a lease.
func (s *Service) Snapshot(ctx context.Context, leaseID uuid.UUID) (*Snapshot, error) {
	l, err := s.repo.GetLease(ctx, leaseID, false)
	if err != nil {
		return nil, err
	}
	return SnapshotOf(l, s.now()), nil
}

// ListInvoices returns the lease's invoices in chronological order.
func (s *Service) ListInvoices(ctx context.Context, leaseID uuid.UUID) ([]*Invoice, error) {
	if _, err := s.repo.GetLease(ctx, leaseID, false); err != nil {
		return nil, err
	}
	invs, err := s.repo.ListInvoices(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	sortChronologically(invs)
	return invs, nil
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id, false)
}

// GetSubmission returns one payment submission.
func (s *Service) GetSubmission(ctx context.Context, id uuid.UUID) (*PaymentSubmission, error) {
	return s.repo.GetSubmission(ctx, id)
}

// ListSubmissions returns every submission made against an invoice, newest first.
func (s *Service) ListSubmissions(ctx context.Context, invoiceID uuid.UUID) ([]*PaymentSubmission, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID, false); err != nil {
		return nil, err
	}
	return s.repo.ListSubmissions(ctx, invoiceID)
}

// GetRefund returns one security deposit refund.
func (s *Service) GetRefund(ctx context.Context, id uuid.UUID) (*SecurityDepositRefund, error) {
	return s.repo.GetRefund(ctx, id)
}

// ListFinancialRecords returns the lease's financial records in creation order.
func (s *Service) ListFinancialRecords(ctx context.Context, leaseID uuid.UUID) ([]*FinancialRecord, error) {
	if _, err := s.repo.GetLease(ctx, leaseID, false); err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, leaseID)
}
