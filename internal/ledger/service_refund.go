package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

// RefundNumber formats a refund number: SDR-<yyyymmdd>-<lease8>, with a
// -<n> suffix for the n-th refund attempt on the same lease.
func RefundNumber(leaseID uuid.UUID, date time.Time, n int) string {
	num := fmt.Sprintf("SDR-%s-%s", date.Format("20060102"), strings.ToUpper(leaseID.String()[:8]))
	if n > 1 {
		num = fmt.Sprintf("%s-%d", num, n)
	}
	return num
}

// ComputeRefundInput itemizes the deductions taken from the deposit.
type ComputeRefundInput struct {
	Items      []DeductionItem
	RefundDate time.Time
}

// ComputeRefund creates the pending security deposit refund for a terminated
// lease. A lease has at most one refund that is not cancelled.
func (s *Service) ComputeRefund(ctx context.Context, leaseID uuid.UUID, in ComputeRefundInput) (*SecurityDepositRefund, error) {
	items := make([]DeductionItem, 0, len(in.Items))
	for i, it := range in.Items {
		reason := strings.TrimSpace(it.Reason)
		if reason == "" {
			return nil, fmt.Errorf("%w: deduction %d needs a reason", ErrInvalidInput, i)
		}
		items = append(items, DeductionItem{Reason: reason, Amount: it.Amount})
	}
	date := in.RefundDate
	if date.IsZero() {
		date = s.now()
	}
	date = types.Date(date)

	var out *SecurityDepositRefund
	err := s.mutateLease(ctx, "compute_refund", leaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		if err := l.ensureOpen(); err != nil {
			return err
		}
		if l.Status != LeaseTerminated {
			return fmt.Errorf("%w: refund requires a terminated lease, lease is %s", ErrInvalidTransition, l.Status)
		}
		existing, err := s.repo.ListRefunds(ctx, l.ID)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Status != RefundCancelled {
				return fmt.Errorf("%w: %s is %s", ErrRefundExists, r.RefundNumber, r.Status)
			}
		}
		calc, err := ComputeRefund(l.SecurityDepositPaid, items, s.policy.OverDeductions)
		if err != nil {
			return err
		}
		r := &SecurityDepositRefund{
			ID:              uuid.New(),
			LeaseID:         l.ID,
			RefundNumber:    RefundNumber(l.ID, date, len(existing)+1),
			OriginalDeposit: calc.OriginalDeposit,
			Deductions:      calc.Deductions,
			DeductionItems:  items,
			RefundAmount:    calc.RefundAmount,
			Currency:        l.SecurityDepositCurrency,
			Status:          RefundPending,
			RefundDate:      date,
			Version:         1,
			CreatedAt:       s.now(),
		}
		if err := s.repo.CreateRefund(ctx, r); err != nil {
			return err
		}
		emit(event.NewRefundComputed(refundPayload(r)))
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func refundPayload(r *SecurityDepositRefund) event.RefundPayload {
	return event.RefundPayload{
		LeaseID:      r.LeaseID.String(),
		RefundID:     r.ID.String(),
		RefundNumber: r.RefundNumber,
		Original:     money(r.OriginalDeposit, r.Currency),
		Deductions:   money(r.Deductions, r.Currency),
		Refund:       money(r.RefundAmount, r.Currency),
		Status:       string(r.Status),
	}
}

// ProcessRefund pays out a pending refund. Processing completes the lease's
// termination: a terminated lease moves to ended.
func (s *Service) ProcessRefund(ctx context.Context, id uuid.UUID) (*SecurityDepositRefund, error) {
	first, err := s.repo.GetRefund(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *SecurityDepositRefund
	err = s.mutateLease(ctx, "process_refund", first.LeaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		r, err := s.repo.GetRefund(ctx, id)
		if err != nil {
			return err
		}
		if err := r.transition(RefundProcessed); err != nil {
			return err
		}
		now := s.now()
		r.ProcessedAt = &now
		if err := s.repo.UpdateRefund(ctx, r); err != nil {
			return err
		}
		if r.RefundAmount.IsPositive() {
			rec := s.newRecord(ctx, l, RecordDepositRefund, r.RefundAmount, DirectionOut, r.RefundDate,
				fmt.Sprintf("Security deposit refund %s", r.RefundNumber))
			rec.Currency = r.Currency
			if err := s.repo.AppendRecord(ctx, rec); err != nil {
				return err
			}
		}
		emit(event.NewRefundProcessed(refundPayload(r)))

		if l.Status == LeaseTerminated {
			if err := checkTransition("lease", l.Status, LeaseEnded, l.Status.CanTransitionTo(LeaseEnded)); err != nil {
				return err
			}
			l.Status = LeaseEnded
			l.UpdatedAt = now
			if err := s.repo.UpdateLease(ctx, l); err != nil {
				return err
			}
			emit(event.NewLeaseEnded(event.LeaseStatusChangedPayload{
				LeaseID:  l.ID.String(),
				From:     string(LeaseTerminated),
				To:       string(LeaseEnded),
				LeaseEnd: l.LeaseEnd,
				Reason:   "security deposit refund processed",
			}))
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelRefund cancels a pending refund. A new one may then be computed.
func (s *Service) CancelRefund(ctx context.Context, id uuid.UUID) (*SecurityDepositRefund, error) {
	first, err := s.repo.GetRefund(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *SecurityDepositRefund
	err = s.mutateLease(ctx, "cancel_refund", first.LeaseID, func(ctx context.Context, l *Lease, emit func(event.DomainEvent)) error {
		r, err := s.repo.GetRefund(ctx, id)
		if err != nil {
			return err
		}
		if err := r.transition(RefundCancelled); err != nil {
			return err
		}
		if err := s.repo.UpdateRefund(ctx, r); err != nil {
			return err
		}
		emit(event.NewRefundCancelled(refundPayload(r)))
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
