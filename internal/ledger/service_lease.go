package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

// CreateLeaseInput registers a signed lease with the ledger.
type CreateLeaseInput struct {
	TenantID                uuid.UUID
	UnitID                  uuid.UUID
	Status                  LeaseStatus
	LeaseStart              time.Time
	LeaseEnd                *time.Time
	MonthlyRent             decimal.Decimal
	Currency                string
	SecurityDepositCurrency string
}

// CreateLease registers a lease. Status defaults to active; only active and
// pending are accepted for a new lease.
func (s *Service) CreateLease(ctx context.Context, in CreateLeaseInput) (*Lease, error) {
	if in.TenantID == uuid.Nil || in.UnitID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant_id and unit_id are required", ErrInvalidInput)
	}
	if !in.MonthlyRent.IsPositive() {
		return nil, fmt.Errorf("%w: monthly rent must be positive, got %s", ErrInvalidAmount, in.MonthlyRent)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	if in.LeaseStart.IsZero() {
		return nil, fmt.Errorf("%w: lease_start is required", ErrInvalidInput)
	}
	status := in.Status
	if status == "" {
		status = LeaseActive
	}
	if status != LeaseActive && status != LeasePending {
		return nil, fmt.Errorf("%w: a new lease must be active or pending, got %q", ErrInvalidTransition, status)
	}
	start := types.Date(in.LeaseStart)
	var end *time.Time
	if in.LeaseEnd != nil {
		e := types.Date(*in.LeaseEnd)
		if !e.After(start) {
			return nil, fmt.Errorf("%w: lease_end must be after lease_start", ErrInvalidInput)
		}
		end = &e
	}
	depositCurrency := strings.ToUpper(strings.TrimSpace(in.SecurityDepositCurrency))
	if depositCurrency == "" {
		depositCurrency = currency
	}

	now := s.now()
	l := &Lease{
		ID:                        uuid.New(),
		TenantID:                  in.TenantID,
		UnitID:                    in.UnitID,
		Status:                    status,
		LeaseStart:                start,
		LeaseEnd:                  end,
		MonthlyRent:               in.MonthlyRent,
		Currency:                  currency,
		SecurityDepositPaid:       decimal.Zero,
		SecurityDepositCurrency:   depositCurrency,
		AdvanceRentAmount:         decimal.Zero,
		AdvanceRentUsed:           decimal.Zero,
		AdvanceRentRemaining:      decimal.Zero,
		AdvanceRentCollectedTotal: decimal.Zero,
		Version:                   1,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	began := time.Now()
	err := s.repo.CreateLease(ctx, l)
	s.finish("create_lease", l.ID, err, began)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, []event.DomainEvent{event.NewLeaseCreated(event.LeaseCreatedPayload{
		LeaseID:     l.ID.String(),
		TenantID:    l.TenantID.String(),
		UnitID:      l.UnitID.String(),
		Status:      string(l.Status),
		LeaseStart:  l.LeaseStart,
		MonthlyRent: money(l.MonthlyRent, l.Currency),
	})})
	return l, nil
}

// CollectAdvanceRentInput describes one advance-rent collection.
type CollectAdvanceRentInput struct {
	Months        int
	Amount        decimal.Decimal
	CollectedDate time.Time
	// ApplyExisting runs the retroactive pass in the same transaction.
	ApplyExisting bool
}

// CollectResult is returned by CollectAdvanceRent.
type CollectResult struct {
	Snapshot    *Snapshot          `json:"snapshot"`
	Superseded  decimal.Decimal    `json:"superseded"`
	Warning     string             `json:"warning,omitempty"`
	Retroactive *RetroactiveResult `json:"retroactive,omitempty"`
}

// CollectAdvanceRent replaces the lease's advance-rent balance with a new
// collection. Any unused prior balance is superseded, not carried over; the
// result carries a warning when that happens.
func (s *Service) CollectAdvanceRent(ctx context.Context, leaseID uuid.UUID, in CollectAdvanceRentInput) (*CollectResult, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: advance rent must be positive, got %s", ErrInvalidAmount, in.Amount)
	}
	if in.Months < s.policy.MinMonths || in.Months > s.policy.MaxMonths {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidMonths, in.Months, s.policy.MinMonths, s.policy.MaxMonths)
	}
	collected := in.CollectedDate
	if collected.IsZero() {
		collected = s.now()
	}
	collected = types.Date(collected)

	var res *CollectResult
	err := s.mutateLease(ctx, "collect_advance_rent", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		res = &CollectResult{Superseded: decimal.Zero}
		if l.AdvanceRentRemaining.IsPositive() {
			res.Superseded = l.AdvanceRentRemaining
			res.Warning = fmt.Sprintf("unused advance rent of %s %s was superseded by this collection",
				res.Superseded.StringFixed(2), l.Currency)
			rec := s.newRecord(ctx, l, RecordAdvanceRentSuperseded, res.Superseded, DirectionInternal, collected,
				fmt.Sprintf("Unused advance rent superseded by a new %d-month collection", in.Months))
			if err := s.repo.AppendRecord(ctx, rec); err != nil {
				return err
			}
		}

		l.AdvanceRentAmount = in.Amount
		l.AdvanceRentMonths = in.Months
		l.AdvanceRentUsed = decimal.Zero
		l.AdvanceRentRemaining = in.Amount
		l.AdvanceRentCollectedTotal = l.AdvanceRentCollectedTotal.Add(in.Amount)
		l.AdvanceRentCollectedAt = &collected
		if err := l.CheckBalance(); err != nil {
			return err
		}

		rec := s.newRecord(ctx, l, RecordAdvanceRentCollected, in.Amount, DirectionIn, collected,
			fmt.Sprintf("Advance rent collected for %d months", in.Months))
		if err := s.repo.AppendRecord(ctx, rec); err != nil {
			return err
		}
		emit(event.NewAdvanceRentCollected(event.AdvanceRentCollectedPayload{
			LeaseID:       l.ID.String(),
			Months:        in.Months,
			Amount:        money(in.Amount, l.Currency),
			Superseded:    money(res.Superseded, l.Currency),
			CollectedDate: collected,
		}))

		if in.ApplyExisting {
			retro, err := s.retroactive(ctx, l, emit)
			if err != nil {
				return err
			}
			res.Retroactive = retro
		}

		l.UpdatedAt = s.now()
		if err := s.repo.UpdateLease(ctx, l); err != nil {
			return err
		}
		res.Snapshot = SnapshotOf(l, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RecordDepositInput is one security deposit payment.
type RecordDepositInput struct {
	Amount   decimal.Decimal
	Currency string
	PaidAt   time.Time
}

// RecordDeposit appends a completed deposit payment and sets
// security_deposit_paid to the sum of completed deposit payments.
func (s *Service) RecordDeposit(ctx context.Context, leaseID uuid.UUID, in RecordDepositInput) (*Lease, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive, got %s", ErrInvalidAmount, in.Amount)
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var out *Lease
	err := s.mutateLease(ctx, "record_deposit", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = l.SecurityDepositCurrency
		}
		if currency != l.SecurityDepositCurrency {
			return fmt.Errorf("%w: deposit is %s, lease deposit currency is %s",
				ErrCurrencyMismatch, currency, l.SecurityDepositCurrency)
		}
		if err := s.repo.CreateDepositPayment(ctx, &DepositPayment{
			ID:        uuid.New(),
			LeaseID:   l.ID,
			Amount:    in.Amount,
			Currency:  currency,
			Status:    DepositCompleted,
			PaidAt:    types.Date(paidAt),
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		total, err := s.completedDeposits(ctx, l.ID)
		if err != nil {
			return err
		}
		previous := l.SecurityDepositPaid
		l.SecurityDepositPaid = total

		rec := s.newRecord(ctx, l, RecordDepositReceived, in.Amount, DirectionIn, paidAt, "Security deposit received")
		rec.Currency = l.SecurityDepositCurrency
		if err := s.repo.AppendRecord(ctx, rec); err != nil {
			return err
		}
		l.UpdatedAt = s.now()
		if err := s.repo.UpdateLease(ctx, l); err != nil {
			return err
		}
		emit(event.NewDepositRecorded(event.DepositPayload{
			LeaseID:  l.ID.String(),
			Amount:   money(in.Amount, currency),
			Previous: money(previous, currency),
			Current:  money(total, currency),
		}))
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) completedDeposits(ctx context.Context, leaseID uuid.UUID) (decimal.Decimal, error) {
	payments, err := s.repo.ListDepositPayments(ctx, leaseID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == DepositCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// DepositCorrection is one drift fixed by RepairDeposits.
type DepositCorrection struct {
	LeaseID  uuid.UUID       `json:"lease_id"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
}

// RepairDeposit recomputes one lease's security_deposit_paid from its
// completed deposit payments. It returns nil when there was no drift.
func (s *Service) RepairDeposit(ctx context.Context, leaseID uuid.UUID) (*DepositCorrection, error) {
	var fix *DepositCorrection
	err := s.mutateLease(ctx, "repair_deposit", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		fix = nil
		total, err := s.completedDeposits(ctx, l.ID)
		if err != nil {
			return err
		}
		if total.Equal(l.SecurityDepositPaid) {
			return nil
		}
		fix = &DepositCorrection{LeaseID: l.ID, Previous: l.SecurityDepositPaid, Current: total}
		diff := total.Sub(l.SecurityDepositPaid)
		dir := DirectionIn
		if diff.IsNegative() {
			dir = DirectionOut
		}
		rec := s.newRecord(ctx, l, RecordDepositAdjusted, diff.Abs(), dir, s.now(),
			fmt.Sprintf("Security deposit reconciled from %s to %s", fix.Previous.StringFixed(2), total.StringFixed(2)))
		rec.Currency = l.SecurityDepositCurrency
		if err := s.repo.AppendRecord(ctx, rec); err != nil {
			return err
		}
		l.SecurityDepositPaid = total
		l.UpdatedAt = s.now()
		if err := s.repo.UpdateLease(ctx, l); err != nil {
			return err
		}
		emit(event.NewDepositRepaired(event.DepositPayload{
			LeaseID:  l.ID.String(),
			Amount:   money(diff, l.SecurityDepositCurrency),
			Previous: money(fix.Previous, l.SecurityDepositCurrency),
			Current:  money(total, l.SecurityDepositCurrency),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fix, nil
}

// RepairDeposits runs RepairDeposit over every lease and returns the
// corrections made. Running it again right away returns none.
func (s *Service) RepairDeposits(ctx context.Context) ([]DepositCorrection, error) {
	ids, err := s.repo.ListLeaseIDs(ctx)
	if err != nil {
		return nil, err
	}
	fixes := []DepositCorrection{}
	for _, id := range ids {
		fix, err := s.RepairDeposit(ctx, id)
		if err != nil {
			return fixes, fmt.Errorf("repair lease %s: %w", id, err)
		}
		if fix != nil {
			fixes = append(fixes, *fix)
		}
	}
	return fixes, nil
}

// TerminateInput ends a lease's occupancy.
type TerminateInput struct {
	EndDate time.Time
	Reason  string
}

// TerminateLease moves an active or inactive lease to terminated. A pending
// lease that never started is cancelled instead. The lease stays open for
// final invoices and the deposit refund; processing the refund ends it.
func (s *Service) TerminateLease(ctx context.Context, leaseID uuid.UUID, in TerminateInput) (*Lease, error) {
	end := in.EndDate
	if end.IsZero() {
		end = s.now()
	}
	end = types.Date(end)

	var out *Lease
	err := s.mutateLease(ctx, "terminate_lease", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		target := LeaseTerminated
		if l.Status == LeasePending {
			target = LeaseCancelled
		}
		if err := checkTransition("lease", l.Status, target, l.Status.CanTransitionTo(target)); err != nil {
			return err
		}
		from := l.Status
		l.Status = target
		l.LeaseEnd = &end
		l.UpdatedAt = s.now()
		if err := s.repo.UpdateLease(ctx, l); err != nil {
			return err
		}
		emit(event.NewLeaseTerminated(event.LeaseStatusChangedPayload{
			LeaseID:  l.ID.String(),
			From:     string(from),
			To:       string(target),
			LeaseEnd: &end,
			Reason:   strings.TrimSpace(in.Reason),
		}))
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
