package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/rentledger/internal/types"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string            `json:"id"`
	EventType        string            `json:"event_type"`
	OccurredAt       time.Time         `json:"occurred_at"`
	AffectedEntities []types.SourceRef `json:"affected_entities"`
	Summary          string            `json:"summary"`
	Category         string            `json:"category"` // "lease", "advance_rent", "invoice", "payment", "deposit"
	Weight           string            `json:"weight"`   // "critical", "major", "minor", "info"
	Polarity         string            `json:"polarity"` // "positive", "negative", "neutral"
	Payload          json.RawMessage   `json:"payload"`
}

// LeaseID returns the id of the lease the event is about, if any.
func (e DomainEvent) LeaseID() string {
	for _, ref := range e.AffectedEntities {
		if ref.EntityType == "lease" {
			return ref.EntityID
		}
	}
	return ""
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ── Lease events ─────────────────────────────────────────────────────────────

// LeaseCreatedPayload carries event-specific data for LeaseCreated.
type LeaseCreatedPayload struct {
	LeaseID     string      `json:"lease_id"`
	TenantID    string      `json:"tenant_id"`
	UnitID      string      `json:"unit_id"`
	Status      string      `json:"status"`
	LeaseStart  time.Time   `json:"lease_start"`
	MonthlyRent types.Money `json:"monthly_rent"`
}

func NewLeaseCreated(p LeaseCreatedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "lease_created",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
			{EntityType: "tenant", EntityID: p.TenantID, Role: "related"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Lease %s created", short(p.LeaseID)),
		Category: "lease",
		Weight:   "major",
		Polarity: "positive",
		Payload:  mustJSON(p),
	}
}

// LeaseStatusChangedPayload carries event-specific data for lease lifecycle moves.
type LeaseStatusChangedPayload struct {
	LeaseID  string     `json:"lease_id"`
	From     string     `json:"from"`
	To       string     `json:"to"`
	LeaseEnd *time.Time `json:"lease_end,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func NewLeaseTerminated(p LeaseStatusChangedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "lease_terminated",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
		},
		Summary:  fmt.Sprintf("Lease %s terminated", short(p.LeaseID)),
		Category: "lease",
		Weight:   "critical",
		Polarity: "negative",
		Payload:  mustJSON(p),
	}
}

func NewLeaseEnded(p LeaseStatusChangedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "lease_ended",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
		},
		Summary:  fmt.Sprintf("Lease %s ended", short(p.LeaseID)),
		Category: "lease",
		Weight:   "major",
		Polarity: "neutral",
		Payload:  mustJSON(p),
	}
}

// ── Advance rent events ──────────────────────────────────────────────────────

// AdvanceRentCollectedPayload carries event-specific data for AdvanceRentCollected.
type AdvanceRentCollectedPayload struct {
	LeaseID       string      `json:"lease_id"`
	Months        int         `json:"months"`
	Amount        types.Money `json:"amount"`
	Superseded    types.Money `json:"superseded"`
	CollectedDate time.Time   `json:"collected_date"`
}

func NewAdvanceRentCollected(p AdvanceRentCollectedPayload) DomainEvent {
	weight := "major"
	if p.Superseded.Amount.IsPositive() {
		weight = "critical"
	}
	return DomainEvent{
		ID:         newID(),
		EventType:  "advance_rent_collected",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
		},
		Summary:  fmt.Sprintf("Advance rent of %s %s collected for %d months on lease %s", p.Amount.Amount.StringFixed(2), p.Amount.Currency, p.Months, short(p.LeaseID)),
		Category: "advance_rent",
		Weight:   weight,
		Polarity: "positive",
		Payload:  mustJSON(p),
	}
}

// AdvanceRentAppliedPayload carries event-specific data for one allocation.
type AdvanceRentAppliedPayload struct {
	LeaseID       string      `json:"lease_id"`
	InvoiceID     string      `json:"invoice_id"`
	InvoiceNumber string      `json:"invoice_number"`
	Amount        types.Money `json:"amount"`
	Remaining     types.Money `json:"remaining"`
	InvoiceStatus string      `json:"invoice_status"`
}

func NewAdvanceRentApplied(p AdvanceRentAppliedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "advance_rent_applied",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
			{EntityType: "invoice", EntityID: p.InvoiceID, Role: "target"},
		},
		Summary:  fmt.Sprintf("Applied %s advance rent to %s", p.Amount.Amount.StringFixed(2), p.InvoiceNumber),
		Category: "advance_rent",
		Weight:   "minor",
		Polarity: "positive",
		Payload:  mustJSON(p),
	}
}

// RetroactiveAppliedPayload summarizes one retroactive pass.
type RetroactiveAppliedPayload struct {
	LeaseID         string      `json:"lease_id"`
	InvoicesTouched int         `json:"invoices_touched"`
	TotalApplied    types.Money `json:"total_applied"`
	Remaining       types.Money `json:"remaining"`
}

func NewRetroactiveApplied(p RetroactiveAppliedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "advance_rent_retroactive_applied",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
		},
		Summary:  fmt.Sprintf("Retroactive pass on lease %s touched %d invoices", short(p.LeaseID), p.InvoicesTouched),
		Category: "advance_rent",
		Weight:   "minor",
		Polarity: "neutral",
		Payload:  mustJSON(p),
	}
}

// ── Invoice events ───────────────────────────────────────────────────────────

// InvoicePayload carries invoice-level data shared by invoice events.
type InvoicePayload struct {
	LeaseID       string       `json:"lease_id"`
	InvoiceID     string       `json:"invoice_id"`
	InvoiceNumber string       `json:"invoice_number"`
	InvoiceDate   time.Time    `json:"invoice_date"`
	DueDate       time.Time    `json:"due_date"`
	Total         types.Money  `json:"total"`
	Status        string       `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Restored      *types.Money `json:"restored,omitempty"`
}

func invoiceRefs(p InvoicePayload) []types.SourceRef {
	return []types.SourceRef{
		{EntityType: "invoice", EntityID: p.InvoiceID, Role: "subject"},
		{EntityType: "lease", EntityID: p.LeaseID, Role: "context"},
	}
}

func NewInvoiceCreated(p InvoicePayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "invoice_created",
		OccurredAt:       time.Now(),
		AffectedEntities: invoiceRefs(p),
		Summary:          fmt.Sprintf("Invoice %s issued for %s %s", p.InvoiceNumber, p.Total.Amount.StringFixed(2), p.Total.Currency),
		Category:         "invoice",
		Weight:           "minor",
		Polarity:         "neutral",
		Payload:          mustJSON(p),
	}
}

func NewInvoiceVoided(p InvoicePayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "invoice_voided",
		OccurredAt:       time.Now(),
		AffectedEntities: invoiceRefs(p),
		Summary:          fmt.Sprintf("Invoice %s voided", p.InvoiceNumber),
		Category:         "invoice",
		Weight:           "major",
		Polarity:         "negative",
		Payload:          mustJSON(p),
	}
}

func NewInvoiceOverdue(p InvoicePayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "invoice_overdue",
		OccurredAt:       time.Now(),
		AffectedEntities: invoiceRefs(p),
		Summary:          fmt.Sprintf("Invoice %s is overdue", p.InvoiceNumber),
		Category:         "invoice",
		Weight:           "major",
		Polarity:         "negative",
		Payload:          mustJSON(p),
	}
}

// ── Payment events ───────────────────────────────────────────────────────────

// PaymentPayload carries event-specific data for payments and submissions.
type PaymentPayload struct {
	LeaseID       string       `json:"lease_id"`
	InvoiceID     string       `json:"invoice_id"`
	InvoiceNumber string       `json:"invoice_number"`
	SubmissionID  string       `json:"submission_id,omitempty"`
	Amount        types.Money  `json:"amount"`
	Method        string       `json:"method"`
	InvoiceStatus string       `json:"invoice_status,omitempty"`
	Overpayment   *types.Money `json:"overpayment,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	DecidedBy     string       `json:"decided_by,omitempty"`
}

func paymentRefs(p PaymentPayload) []types.SourceRef {
	refs := []types.SourceRef{}
	if p.SubmissionID != "" {
		refs = append(refs, types.SourceRef{EntityType: "payment_submission", EntityID: p.SubmissionID, Role: "subject"})
	}
	return append(refs,
		types.SourceRef{EntityType: "invoice", EntityID: p.InvoiceID, Role: "target"},
		types.SourceRef{EntityType: "lease", EntityID: p.LeaseID, Role: "context"},
	)
}

func NewPaymentRecorded(p PaymentPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "payment_recorded",
		OccurredAt:       time.Now(),
		AffectedEntities: paymentRefs(p),
		Summary:          fmt.Sprintf("Payment of %s %s recorded on %s", p.Amount.Amount.StringFixed(2), p.Amount.Currency, p.InvoiceNumber),
		Category:         "payment",
		Weight:           "minor",
		Polarity:         "positive",
		Payload:          mustJSON(p),
	}
}

func NewPaymentSubmitted(p PaymentPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "payment_submitted",
		OccurredAt:       time.Now(),
		AffectedEntities: paymentRefs(p),
		Summary:          fmt.Sprintf("Tenant submitted %s %s by %s for %s", p.Amount.Amount.StringFixed(2), p.Amount.Currency, p.Method, p.InvoiceNumber),
		Category:         "payment",
		Weight:           "info",
		Polarity:         "neutral",
		Payload:          mustJSON(p),
	}
}

func NewSubmissionConfirmed(p PaymentPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "payment_submission_confirmed",
		OccurredAt:       time.Now(),
		AffectedEntities: paymentRefs(p),
		Summary:          fmt.Sprintf("Submission %s confirmed on %s", short(p.SubmissionID), p.InvoiceNumber),
		Category:         "payment",
		Weight:           "minor",
		Polarity:         "positive",
		Payload:          mustJSON(p),
	}
}

func NewSubmissionRejected(p PaymentPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "payment_submission_rejected",
		OccurredAt:       time.Now(),
		AffectedEntities: paymentRefs(p),
		Summary:          fmt.Sprintf("Submission %s rejected on %s", short(p.SubmissionID), p.InvoiceNumber),
		Category:         "payment",
		Weight:           "minor",
		Polarity:         "negative",
		Payload:          mustJSON(p),
	}
}

// ── Deposit events ───────────────────────────────────────────────────────────

// DepositPayload carries event-specific data for deposit changes.
type DepositPayload struct {
	LeaseID  string      `json:"lease_id"`
	Amount   types.Money `json:"amount"`
	Previous types.Money `json:"previous"`
	Current  types.Money `json:"current"`
}

func NewDepositRecorded(p DepositPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "security_deposit_recorded",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
		},
		Summary:  fmt.Sprintf("Security deposit of %s %s recorded on lease %s", p.Amount.Amount.StringFixed(2), p.Amount.Currency, short(p.LeaseID)),
		Category: "deposit",
		Weight:   "minor",
		Polarity: "positive",
		Payload:  mustJSON(p),
	}
}

func NewDepositRepaired(p DepositPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "security_deposit_repaired",
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: p.LeaseID, Role: "subject"},
		},
		Summary:  fmt.Sprintf("Security deposit on lease %s corrected from %s to %s", short(p.LeaseID), p.Previous.Amount.StringFixed(2), p.Current.Amount.StringFixed(2)),
		Category: "deposit",
		Weight:   "major",
		Polarity: "neutral",
		Payload:  mustJSON(p),
	}
}

// RefundPayload carries event-specific data for refund lifecycle events.
type RefundPayload struct {
	LeaseID      string      `json:"lease_id"`
	RefundID     string      `json:"refund_id"`
	RefundNumber string      `json:"refund_number"`
	Original     types.Money `json:"original_deposit"`
	Deductions   types.Money `json:"deductions"`
	Refund       types.Money `json:"refund_amount"`
	Status       string      `json:"status"`
}

func refundEvent(eventType, verb, weight, polarity string, p RefundPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  eventType,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "security_deposit_refund", EntityID: p.RefundID, Role: "subject"},
			{EntityType: "lease", EntityID: p.LeaseID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Refund %s %s: %s %s", p.RefundNumber, verb, p.Refund.Amount.StringFixed(2), p.Refund.Currency),
		Category: "deposit",
		Weight:   weight,
		Polarity: polarity,
		Payload:  mustJSON(p),
	}
}

func NewRefundComputed(p RefundPayload) DomainEvent {
	return refundEvent("security_deposit_refund_computed", "computed", "major", "neutral", p)
}

func NewRefundProcessed(p RefundPayload) DomainEvent {
	return refundEvent("security_deposit_refund_processed", "processed", "major", "positive", p)
}

func NewRefundCancelled(p RefundPayload) DomainEvent {
	return refundEvent("security_deposit_refund_cancelled", "cancelled", "minor", "negative", p)
}
